package handlers_test

import (
	"context"
	"net/http"
	"strings"
	"time"

	"contracker/internal/auth"
	"contracker/internal/handlers"
	"contracker/internal/handlers/testutils"
	"contracker/internal/scoring"
	"contracker/models"
)

// MockStorage реализует StorageInterface. Поля-функции позволяют
// переопределять поведение в отдельных тестах.
type MockStorage struct {
	GetContractorFunc            func(ctx context.Context, id int) (*models.Contractor, error)
	CreateContractorFunc         func(ctx context.Context, c *models.Contractor) error
	RateContractorFunc           func(ctx context.Context, r *models.ContractorRating) (float64, error)
	GetContractorBidsFunc        func(ctx context.Context, contractorID, limit, offset int) ([]models.ContractorBid, error)
	CreateTenderFunc             func(ctx context.Context, t *models.Tender) error
	GetTenderFunc                func(ctx context.Context, id int) (*models.Tender, error)
	GetTendersFunc               func(ctx context.Context, statuses []models.TenderStatus, limit, offset int) ([]models.Tender, error)
	UpdateTenderStatusFunc       func(ctx context.Context, id int, from, to models.TenderStatus) error
	CreateBidFunc                func(ctx context.Context, b *models.Bid) error
	GetBidFunc                   func(ctx context.Context, id int) (*models.Bid, error)
	GetBidsForTenderFunc         func(ctx context.Context, tenderID int) ([]models.Bid, error)
	EvaluateClosedTendersFunc    func(ctx context.Context, now time.Time) (int, error)
	AwardTenderFunc              func(ctx context.Context, tenderID int, winning *models.Bid, c *models.Contract) error
	GetContractFunc              func(ctx context.Context, id int) (*models.Contract, error)
	GetContractorContractsFunc   func(ctx context.Context, contractorID, limit, offset int) ([]models.Contract, error)
	SaveMilestoneProposalFunc    func(ctx context.Context, c *models.Contract, proposed []models.ProposedMilestone) error
	FinalizeMilestonePlanFunc    func(ctx context.Context, c *models.Contract) error
	SubmitMilestoneFunc          func(ctx context.Context, milestoneID int, delayReason *string, aiScore int, aiRemarks string, proofs []models.Proof, now, votingClosesAt time.Time) error
	CastPublicVoteFunc           func(ctx context.Context, v *models.PublicVote, now time.Time) error
	GetMilestoneVotesFunc        func(ctx context.Context, milestoneID int) ([]models.PublicVote, error)
	CloseExpiredPublicVotingFunc func(ctx context.Context, now time.Time) (int, error)
	FinalizeMilestoneFunc        func(ctx context.Context, milestoneID int, status models.MilestoneStatus, eval scoring.FinalEvaluation, overridden bool, overrideReason *string, now time.Time) error
	ReleaseMilestoneFundsFunc    func(ctx context.Context, contractID, milestoneID int, transfer func(contractorID int, amount float64) (string, error)) error
}

func (m *MockStorage) GetContractor(ctx context.Context, id int) (*models.Contractor, error) {
	if m.GetContractorFunc != nil {
		return m.GetContractorFunc(ctx, id)
	}
	return &models.Contractor{ID: id, Name: "ACME Roads", Email: "acme@example.com", ExperienceYears: 5, Rating: 4}, nil
}

func (m *MockStorage) CreateContractor(ctx context.Context, c *models.Contractor) error {
	if m.CreateContractorFunc != nil {
		return m.CreateContractorFunc(ctx, c)
	}
	c.ID = 1
	return nil
}

func (m *MockStorage) RateContractor(ctx context.Context, r *models.ContractorRating) (float64, error) {
	if m.RateContractorFunc != nil {
		return m.RateContractorFunc(ctx, r)
	}
	r.ID = 1
	return float64(r.Rating), nil
}

func (m *MockStorage) GetContractorBids(ctx context.Context, contractorID, limit, offset int) ([]models.ContractorBid, error) {
	if m.GetContractorBidsFunc != nil {
		return m.GetContractorBidsFunc(ctx, contractorID, limit, offset)
	}
	return []models.ContractorBid{{
		Bid:          models.Bid{ID: 1, TenderID: 1, ContractorID: contractorID, BidAmount: 500},
		TenderTitle:  "Road repair",
		TenderStatus: models.TenderAwarded,
	}}, nil
}

func (m *MockStorage) CreateTender(ctx context.Context, t *models.Tender) error {
	if m.CreateTenderFunc != nil {
		return m.CreateTenderFunc(ctx, t)
	}
	t.ID = 1
	return nil
}

func (m *MockStorage) GetTender(ctx context.Context, id int) (*models.Tender, error) {
	if m.GetTenderFunc != nil {
		return m.GetTenderFunc(ctx, id)
	}
	return &models.Tender{
		ID:             id,
		Title:          "Road repair",
		Status:         models.TenderOpen,
		MinBidAmount:   100,
		MaxBidAmount:   1000,
		BidOpeningDate: time.Now().Add(-time.Hour),
		BidClosingDate: time.Now().Add(time.Hour),
	}, nil
}

func (m *MockStorage) GetTenders(ctx context.Context, statuses []models.TenderStatus, limit, offset int) ([]models.Tender, error) {
	if m.GetTendersFunc != nil {
		return m.GetTendersFunc(ctx, statuses, limit, offset)
	}
	return []models.Tender{{ID: 1, Title: "Road repair", Status: models.TenderOpen}}, nil
}

func (m *MockStorage) UpdateTenderStatus(ctx context.Context, id int, from, to models.TenderStatus) error {
	if m.UpdateTenderStatusFunc != nil {
		return m.UpdateTenderStatusFunc(ctx, id, from, to)
	}
	return nil
}

func (m *MockStorage) CreateBid(ctx context.Context, b *models.Bid) error {
	if m.CreateBidFunc != nil {
		return m.CreateBidFunc(ctx, b)
	}
	b.ID = 1
	return nil
}

func (m *MockStorage) GetBid(ctx context.Context, id int) (*models.Bid, error) {
	if m.GetBidFunc != nil {
		return m.GetBidFunc(ctx, id)
	}
	return &models.Bid{ID: id, TenderID: 1, ContractorID: 7, BidAmount: 500, SystemRecommended: true, Status: models.BidPending}, nil
}

func (m *MockStorage) GetBidsForTender(ctx context.Context, tenderID int) ([]models.Bid, error) {
	if m.GetBidsForTenderFunc != nil {
		return m.GetBidsForTenderFunc(ctx, tenderID)
	}
	return []models.Bid{{ID: 1, TenderID: tenderID, ContractorID: 7, BidAmount: 500}}, nil
}

func (m *MockStorage) EvaluateClosedTenders(ctx context.Context, now time.Time) (int, error) {
	if m.EvaluateClosedTendersFunc != nil {
		return m.EvaluateClosedTendersFunc(ctx, now)
	}
	return 0, nil
}

func (m *MockStorage) AwardTender(ctx context.Context, tenderID int, winning *models.Bid, c *models.Contract) error {
	if m.AwardTenderFunc != nil {
		return m.AwardTenderFunc(ctx, tenderID, winning, c)
	}
	c.ID = 1
	return nil
}

func (m *MockStorage) GetContract(ctx context.Context, id int) (*models.Contract, error) {
	if m.GetContractFunc != nil {
		return m.GetContractFunc(ctx, id)
	}
	return &models.Contract{
		ID:            id,
		ContractUID:   "CON-test",
		TenderID:      1,
		ContractorID:  7,
		ContractValue: 500,
		Status:        models.ContractActive,
		PlanStatus:    models.PlanDraft,
		Version:       1,
	}, nil
}

func (m *MockStorage) GetContractorContracts(ctx context.Context, contractorID, limit, offset int) ([]models.Contract, error) {
	if m.GetContractorContractsFunc != nil {
		return m.GetContractorContractsFunc(ctx, contractorID, limit, offset)
	}
	return []models.Contract{{ID: 1, ContractorID: contractorID}}, nil
}

func (m *MockStorage) SaveMilestoneProposal(ctx context.Context, c *models.Contract, proposed []models.ProposedMilestone) error {
	if m.SaveMilestoneProposalFunc != nil {
		return m.SaveMilestoneProposalFunc(ctx, c, proposed)
	}
	return nil
}

func (m *MockStorage) FinalizeMilestonePlan(ctx context.Context, c *models.Contract) error {
	if m.FinalizeMilestonePlanFunc != nil {
		return m.FinalizeMilestonePlanFunc(ctx, c)
	}
	return nil
}

func (m *MockStorage) SubmitMilestone(ctx context.Context, milestoneID int, delayReason *string,
	aiScore int, aiRemarks string, proofs []models.Proof, now, votingClosesAt time.Time) error {
	if m.SubmitMilestoneFunc != nil {
		return m.SubmitMilestoneFunc(ctx, milestoneID, delayReason, aiScore, aiRemarks, proofs, now, votingClosesAt)
	}
	return nil
}

func (m *MockStorage) CastPublicVote(ctx context.Context, v *models.PublicVote, now time.Time) error {
	if m.CastPublicVoteFunc != nil {
		return m.CastPublicVoteFunc(ctx, v, now)
	}
	v.ID = 1
	return nil
}

func (m *MockStorage) GetMilestoneVotes(ctx context.Context, milestoneID int) ([]models.PublicVote, error) {
	if m.GetMilestoneVotesFunc != nil {
		return m.GetMilestoneVotesFunc(ctx, milestoneID)
	}
	return []models.PublicVote{{ID: 1, MilestoneID: milestoneID, VoterID: 3, Vote: models.VoteApprove}}, nil
}

func (m *MockStorage) CloseExpiredPublicVoting(ctx context.Context, now time.Time) (int, error) {
	if m.CloseExpiredPublicVotingFunc != nil {
		return m.CloseExpiredPublicVotingFunc(ctx, now)
	}
	return 0, nil
}

func (m *MockStorage) FinalizeMilestone(ctx context.Context, milestoneID int, status models.MilestoneStatus,
	eval scoring.FinalEvaluation, overridden bool, overrideReason *string, now time.Time) error {
	if m.FinalizeMilestoneFunc != nil {
		return m.FinalizeMilestoneFunc(ctx, milestoneID, status, eval, overridden, overrideReason, now)
	}
	return nil
}

func (m *MockStorage) ReleaseMilestoneFunds(ctx context.Context, contractID, milestoneID int,
	transfer func(contractorID int, amount float64) (string, error)) error {
	if m.ReleaseMilestoneFundsFunc != nil {
		return m.ReleaseMilestoneFundsFunc(ctx, contractID, milestoneID, transfer)
	}
	_, err := transfer(7, 100)
	return err
}

// mockVerifier возвращает фиксированную оценку проверки.
type mockVerifier struct {
	score int
	err   error
}

func (v *mockVerifier) Verify(ctx context.Context, evidence []string) (int, string, error) {
	if v.err != nil {
		return 0, "", v.err
	}
	return v.score, "ok", nil
}

// mockReleaser возвращает фиксированную квитанцию перевода.
type mockReleaser struct {
	receipt string
	err     error
}

func (f *mockReleaser) Release(ctx context.Context, destination string, amount float64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.receipt, nil
}

type noopNotifier struct{}

func (noopNotifier) Notify(recipient, event string) {}

func newTestHandler(store *MockStorage) *handlers.Handler {
	return handlers.NewHandler(store, &mockVerifier{score: 88}, &mockReleaser{receipt: "RCPT-1"}, noopNotifier{})
}

// newRequest собирает запрос с телом, параметрами пути и вызывающим.
func newRequest(method, target, body string, params map[string]string, caller *auth.Caller) *http.Request {
	req, _ := http.NewRequest(method, target, strings.NewReader(body))
	if params != nil {
		req = testutils.WithChiURLParams(req, params)
	}
	if caller != nil {
		req = req.WithContext(auth.WithCaller(req.Context(), *caller))
	}
	return req
}

func govCaller() *auth.Caller        { return &auth.Caller{ID: 100, Role: auth.RoleGov} }
func contractorCaller() *auth.Caller { return &auth.Caller{ID: 7, Role: auth.RoleContractor} }
func publicCaller() *auth.Caller     { return &auth.Caller{ID: 3, Role: auth.RolePublic} }
