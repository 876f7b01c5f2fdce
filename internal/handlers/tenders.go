package handlers

import (
	"net/http"
	"strings"
	"time"

	"contracker/internal/apperr"
	"contracker/internal/auth"
	"contracker/models"
)

type createTenderRequest struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	MinBidAmount   float64   `json:"minBidAmount"`
	MaxBidAmount   float64   `json:"maxBidAmount"`
	BidOpeningDate time.Time `json:"bidOpeningDate"`
	BidClosingDate time.Time `json:"bidClosingDate"`
	Source         string    `json:"source"`
}

func (req *createTenderRequest) validate() error {
	if strings.TrimSpace(req.Title) == "" {
		return apperr.New(apperr.InvalidInput, "title is required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return apperr.New(apperr.InvalidInput, "description is required")
	}
	if req.MinBidAmount < 0 || req.MaxBidAmount <= 0 {
		return apperr.New(apperr.InvalidInput, "bid amounts must be positive")
	}
	if req.MinBidAmount > req.MaxBidAmount {
		return apperr.New(apperr.InvalidInput, "minBidAmount exceeds maxBidAmount")
	}
	if req.BidOpeningDate.IsZero() || req.BidClosingDate.IsZero() {
		return apperr.New(apperr.InvalidInput, "bid opening and closing dates are required")
	}
	if !req.BidOpeningDate.Before(req.BidClosingDate) {
		return apperr.New(apperr.InvalidInput, "bidOpeningDate must precede bidClosingDate")
	}
	return nil
}

// Создание тендера. Только для государственной роли, тендер
// рождается черновиком и не принимает ставки до публикации.
func (h *Handler) CreateTenderHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := requireRole(r, auth.RoleGov)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createTenderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	source := models.SourceDirect
	if models.TenderSource(req.Source) == models.SourceIssue {
		source = models.SourceIssue
	}

	tender := &models.Tender{
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		MinBidAmount:   req.MinBidAmount,
		MaxBidAmount:   req.MaxBidAmount,
		BidOpeningDate: req.BidOpeningDate,
		BidClosingDate: req.BidClosingDate,
		Source:         source,
		Status:         models.TenderDraft,
		CreatedBy:      caller.ID,
	}

	if err := h.Store.CreateTender(r.Context(), tender); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tender)
}

type changeTenderStatusRequest struct {
	Status models.TenderStatus `json:"status"`
}

// Смена статуса тендера: DRAFT -> OPEN (публикация) либо
// DRAFT/OPEN -> CANCELLED. Остальные переходы делает система.
func (h *Handler) ChangeTenderStatusHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, auth.RoleGov); err != nil {
		writeError(w, err)
		return
	}

	tenderID, err := urlParamInt(r, "tenderId")
	if err != nil {
		writeError(w, err)
		return
	}

	var req changeTenderStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	tender, err := h.Store.GetTender(r.Context(), tenderID)
	if err != nil {
		writeError(w, err)
		return
	}

	switch req.Status {
	case models.TenderOpen:
		if tender.Status != models.TenderDraft {
			writeError(w, apperr.New(apperr.InvalidState, "only a draft tender can be published"))
			return
		}
	case models.TenderCancelled:
		if tender.Status != models.TenderDraft && tender.Status != models.TenderOpen {
			writeError(w, apperr.New(apperr.InvalidState, "tender can no longer be cancelled"))
			return
		}
	default:
		writeError(w, apperr.New(apperr.InvalidInput, "unsupported status transition"))
		return
	}

	if err := h.Store.UpdateTenderStatus(r.Context(), tenderID, tender.Status, req.Status); err != nil {
		writeError(w, err)
		return
	}

	tender.Status = req.Status
	writeJSON(w, http.StatusOK, tender)
}

// Список тендеров с фильтром по статусам и пагинацией.
func (h *Handler) GetTendersHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	var statuses []models.TenderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, models.TenderStatus(strings.TrimSpace(s)))
		}
	}

	tenders, err := h.Store.GetTenders(r.Context(), statuses, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tenders)
}

func (h *Handler) GetTenderHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, err := urlParamInt(r, "tenderId")
	if err != nil {
		writeError(w, err)
		return
	}

	tender, err := h.Store.GetTender(r.Context(), tenderID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tender)
}

// Ставки тендера видит только государственная сторона.
func (h *Handler) GetBidsForTenderHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, auth.RoleGov); err != nil {
		writeError(w, err)
		return
	}

	tenderID, err := urlParamInt(r, "tenderId")
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.Store.GetTender(r.Context(), tenderID); err != nil {
		writeError(w, err)
		return
	}

	bids, err := h.Store.GetBidsForTender(r.Context(), tenderID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bids)
}
