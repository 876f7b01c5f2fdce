package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"contracker/internal/apperr"
	"contracker/models"
)

func TestCreateTenderHandler(t *testing.T) {
	body := `{
        "title": "Bridge overhaul",
        "description": "Full deck replacement",
        "minBidAmount": 1000,
        "maxBidAmount": 5000,
        "bidOpeningDate": "2026-09-01T00:00:00Z",
        "bidClosingDate": "2026-10-01T00:00:00Z"
    }`

	t.Run("gov creates a draft tender", func(t *testing.T) {
		store := &MockStorage{}
		h := newTestHandler(store)

		req := newRequest(http.MethodPost, "/api/tenders", body, nil, govCaller())
		rr := httptest.NewRecorder()
		h.CreateTenderHandler(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code)
		var tender models.Tender
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tender))
		require.Equal(t, models.TenderDraft, tender.Status)
		require.Equal(t, 100, tender.CreatedBy)
	})

	t.Run("contractor is rejected", func(t *testing.T) {
		h := newTestHandler(&MockStorage{})

		req := newRequest(http.MethodPost, "/api/tenders", body, nil, contractorCaller())
		rr := httptest.NewRecorder()
		h.CreateTenderHandler(rr, req)

		require.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("closing before opening", func(t *testing.T) {
		h := newTestHandler(&MockStorage{})
		bad := `{
            "title": "Bridge overhaul",
            "description": "Full deck replacement",
            "minBidAmount": 1000,
            "maxBidAmount": 5000,
            "bidOpeningDate": "2026-10-01T00:00:00Z",
            "bidClosingDate": "2026-09-01T00:00:00Z"
        }`

		req := newRequest(http.MethodPost, "/api/tenders", bad, nil, govCaller())
		rr := httptest.NewRecorder()
		h.CreateTenderHandler(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("min above max", func(t *testing.T) {
		h := newTestHandler(&MockStorage{})
		bad := `{
            "title": "Bridge overhaul",
            "description": "Full deck replacement",
            "minBidAmount": 9000,
            "maxBidAmount": 5000,
            "bidOpeningDate": "2026-09-01T00:00:00Z",
            "bidClosingDate": "2026-10-01T00:00:00Z"
        }`

		req := newRequest(http.MethodPost, "/api/tenders", bad, nil, govCaller())
		rr := httptest.NewRecorder()
		h.CreateTenderHandler(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestChangeTenderStatusHandler(t *testing.T) {
	t.Run("publish draft", func(t *testing.T) {
		store := &MockStorage{
			GetTenderFunc: func(ctx context.Context, id int) (*models.Tender, error) {
				return &models.Tender{ID: id, Status: models.TenderDraft}, nil
			},
		}
		h := newTestHandler(store)

		req := newRequest(http.MethodPatch, "/api/tenders/1/status", `{"status":"OPEN"}`,
			map[string]string{"tenderId": "1"}, govCaller())
		rr := httptest.NewRecorder()
		h.ChangeTenderStatusHandler(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("cannot publish open tender twice", func(t *testing.T) {
		h := newTestHandler(&MockStorage{})

		req := newRequest(http.MethodPatch, "/api/tenders/1/status", `{"status":"OPEN"}`,
			map[string]string{"tenderId": "1"}, govCaller())
		rr := httptest.NewRecorder()
		h.ChangeTenderStatusHandler(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("cannot cancel awarded tender", func(t *testing.T) {
		store := &MockStorage{
			GetTenderFunc: func(ctx context.Context, id int) (*models.Tender, error) {
				return &models.Tender{ID: id, Status: models.TenderAwarded}, nil
			},
		}
		h := newTestHandler(store)

		req := newRequest(http.MethodPatch, "/api/tenders/1/status", `{"status":"CANCELLED"}`,
			map[string]string{"tenderId": "1"}, govCaller())
		rr := httptest.NewRecorder()
		h.ChangeTenderStatusHandler(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestPlaceBidHandler(t *testing.T) {
	body := `{"tenderId":1,"bidAmount":500,"proposalDocument":"https://files/prop.pdf","timeline":"3 months"}`

	t.Run("snapshot of contractor profile", func(t *testing.T) {
		var created *models.Bid
		store := &MockStorage{
			CreateBidFunc: func(ctx context.Context, b *models.Bid) error {
				created = b
				return nil
			},
		}
		h := newTestHandler(store)

		req := newRequest(http.MethodPost, "/api/bids", body, nil, contractorCaller())
		rr := httptest.NewRecorder()
		h.PlaceBidHandler(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code)
		require.NotNil(t, created)
		require.Equal(t, 5, created.ExperienceYears)
		require.Equal(t, 4.0, created.ContractorRating)
		require.Equal(t, models.BidPending, created.Status)
	})

	t.Run("tender not accepting bids", func(t *testing.T) {
		store := &MockStorage{
			GetTenderFunc: func(ctx context.Context, id int) (*models.Tender, error) {
				return &models.Tender{ID: id, Status: models.TenderDraft}, nil
			},
		}
		h := newTestHandler(store)

		req := newRequest(http.MethodPost, "/api/bids", body, nil, contractorCaller())
		rr := httptest.NewRecorder()
		h.PlaceBidHandler(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("closing date passed", func(t *testing.T) {
		store := &MockStorage{
			GetTenderFunc: func(ctx context.Context, id int) (*models.Tender, error) {
				return &models.Tender{
					ID:             id,
					Status:         models.TenderOpen,
					BidOpeningDate: time.Now().Add(-2 * time.Hour),
					BidClosingDate: time.Now().Add(-time.Hour),
				}, nil
			},
		}
		h := newTestHandler(store)

		req := newRequest(http.MethodPost, "/api/bids", body, nil, contractorCaller())
		rr := httptest.NewRecorder()
		h.PlaceBidHandler(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("blocked contractor", func(t *testing.T) {
		store := &MockStorage{
			GetContractorFunc: func(ctx context.Context, id int) (*models.Contractor, error) {
				return &models.Contractor{ID: id, IsBlocked: true}, nil
			},
		}
		h := newTestHandler(store)

		req := newRequest(http.MethodPost, "/api/bids", body, nil, contractorCaller())
		rr := httptest.NewRecorder()
		h.PlaceBidHandler(rr, req)

		require.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("duplicate bid", func(t *testing.T) {
		store := &MockStorage{
			CreateBidFunc: func(ctx context.Context, b *models.Bid) error {
				return apperr.New(apperr.Conflict, "bid already placed for this tender")
			},
		}
		h := newTestHandler(store)

		req := newRequest(http.MethodPost, "/api/bids", body, nil, contractorCaller())
		rr := httptest.NewRecorder()
		h.PlaceBidHandler(rr, req)

		require.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("gov cannot bid", func(t *testing.T) {
		h := newTestHandler(&MockStorage{})

		req := newRequest(http.MethodPost, "/api/bids", body, nil, govCaller())
		rr := httptest.NewRecorder()
		h.PlaceBidHandler(rr, req)

		require.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestApproveWinnerHandler(t *testing.T) {
	closedTender := func(ctx context.Context, id int) (*models.Tender, error) {
		return &models.Tender{ID: id, Title: "Road repair", Status: models.TenderBiddingClosed}, nil
	}

	t.Run("recommended bid awarded as system selection", func(t *testing.T) {
		var awarded *models.Contract
		store := &MockStorage{
			GetTenderFunc: closedTender,
			AwardTenderFunc: func(ctx context.Context, tenderID int, winning *models.Bid, c *models.Contract) error {
				awarded = c
				c.ID = 1
				return nil
			},
		}
		h := newTestHandler(store)

		req := newRequest(http.MethodPost, "/api/bid-approve",
			`{"tenderId":1,"winningBidId":1}`, nil, govCaller())
		rr := httptest.NewRecorder()
		h.ApproveWinnerHandler(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code)
		require.NotNil(t, awarded)
		require.Equal(t, models.SelectionSystem, awarded.SelectionType)
		require.Contains(t, awarded.ContractUID, "CON-")
		require.Equal(t, 500.0, awarded.ContractValue)
		require.Equal(t, 500.0, awarded.MaxPayableAmount)
		require.Equal(t, models.PlanDraft, awarded.PlanStatus)
	})

	t.Run("manual selection requires a reason", func(t *testing.T) {
		store := &MockStorage{
			GetTenderFunc: closedTender,
			GetBidFunc: func(ctx context.Context, id int) (*models.Bid, error) {
				return &models.Bid{ID: id, TenderID: 1, ContractorID: 7, BidAmount: 900, SystemRecommended: false}, nil
			},
		}
		h := newTestHandler(store)

		req := newRequest(http.MethodPost, "/api/bid-approve",
			`{"tenderId":1,"winningBidId":2}`, nil, govCaller())
		rr := httptest.NewRecorder()
		h.ApproveWinnerHandler(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code)

		req = newRequest(http.MethodPost, "/api/bid-approve",
			`{"tenderId":1,"winningBidId":2,"manualReason":"local contractor with proven record"}`, nil, govCaller())
		rr = httptest.NewRecorder()
		h.ApproveWinnerHandler(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code)
		var contract models.Contract
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &contract))
		require.Equal(t, models.SelectionManual, contract.SelectionType)
	})

	t.Run("bid from another tender", func(t *testing.T) {
		store := &MockStorage{
			GetTenderFunc: closedTender,
			GetBidFunc: func(ctx context.Context, id int) (*models.Bid, error) {
				return &models.Bid{ID: id, TenderID: 99, SystemRecommended: true}, nil
			},
		}
		h := newTestHandler(store)

		req := newRequest(http.MethodPost, "/api/bid-approve",
			`{"tenderId":1,"winningBidId":5}`, nil, govCaller())
		rr := httptest.NewRecorder()
		h.ApproveWinnerHandler(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("already awarded", func(t *testing.T) {
		store := &MockStorage{
			GetTenderFunc: func(ctx context.Context, id int) (*models.Tender, error) {
				return &models.Tender{ID: id, Status: models.TenderAwarded}, nil
			},
		}
		h := newTestHandler(store)

		req := newRequest(http.MethodPost, "/api/bid-approve",
			`{"tenderId":1,"winningBidId":1}`, nil, govCaller())
		rr := httptest.NewRecorder()
		h.ApproveWinnerHandler(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("bidding still open", func(t *testing.T) {
		h := newTestHandler(&MockStorage{})

		req := newRequest(http.MethodPost, "/api/bid-approve",
			`{"tenderId":1,"winningBidId":1}`, nil, govCaller())
		rr := httptest.NewRecorder()
		h.ApproveWinnerHandler(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestEvaluateClosedTendersHandler(t *testing.T) {
	store := &MockStorage{
		EvaluateClosedTendersFunc: func(ctx context.Context, now time.Time) (int, error) {
			return 3, nil
		},
	}
	h := newTestHandler(store)

	req := newRequest(http.MethodPost, "/api/bid-evaluate", "", nil, nil)
	rr := httptest.NewRecorder()
	h.EvaluateClosedTendersHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"evaluated":3}`, rr.Body.String())
}
