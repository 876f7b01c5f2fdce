package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"contracker/internal/apperr"
	"contracker/internal/auth"
	"contracker/models"
)

type placeBidRequest struct {
	TenderID         int     `json:"tenderId"`
	BidAmount        float64 `json:"bidAmount"`
	ProposalDocument string  `json:"proposalDocument"`
	Timeline         string  `json:"timeline"`
	Remarks          string  `json:"remarks"`
}

// Подача ставки подрядчиком. Опыт и рейтинг замораживаются в ставке
// на момент подачи, чтобы оценка не зависела от поздних правок профиля.
func (h *Handler) PlaceBidHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := requireRole(r, auth.RoleContractor)
	if err != nil {
		writeError(w, err)
		return
	}

	var req placeBidRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TenderID <= 0 {
		writeError(w, apperr.New(apperr.InvalidInput, "tenderId is required"))
		return
	}
	if req.BidAmount <= 0 {
		writeError(w, apperr.New(apperr.InvalidInput, "bidAmount must be positive"))
		return
	}
	if strings.TrimSpace(req.ProposalDocument) == "" {
		writeError(w, apperr.New(apperr.InvalidInput, "proposalDocument is required"))
		return
	}

	tender, err := h.Store.GetTender(r.Context(), req.TenderID)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	if tender.Status != models.TenderOpen || now.Before(tender.BidOpeningDate) || now.After(tender.BidClosingDate) {
		writeError(w, apperr.New(apperr.InvalidState, "tender is not accepting bids"))
		return
	}

	contractor, err := h.Store.GetContractor(r.Context(), caller.ID)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			err = apperr.New(apperr.Forbidden, "contractor profile not found")
		}
		writeError(w, err)
		return
	}
	if contractor.IsBlocked {
		writeError(w, apperr.New(apperr.Forbidden, "contractor is blocked from bidding"))
		return
	}

	bid := &models.Bid{
		TenderID:         tender.ID,
		ContractorID:     contractor.ID,
		BidAmount:        req.BidAmount,
		ProposalDocument: req.ProposalDocument,
		Timeline:         req.Timeline,
		Remarks:          req.Remarks,
		ExperienceYears:  contractor.ExperienceYears,
		ContractorRating: contractor.Rating,
		Status:           models.BidPending,
	}

	if err := h.Store.CreateBid(r.Context(), bid); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bid)
}

// История ставок текущего подрядчика с контекстом тендеров.
func (h *Handler) GetMyBidsHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := requireRole(r, auth.RoleContractor)
	if err != nil {
		writeError(w, err)
		return
	}

	limit, offset := parsePagination(r)
	bids, err := h.Store.GetContractorBids(r.Context(), caller.ID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bids)
}

// Сервисный обход: закрывает приём ставок у просроченных тендеров
// и проставляет оценки. Вызывается планировщиком, идемпотентен.
func (h *Handler) EvaluateClosedTendersHandler(w http.ResponseWriter, r *http.Request) {
	n, err := h.Store.EvaluateClosedTenders(r.Context(), time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"evaluated": n})
}

type approveWinnerRequest struct {
	TenderID     int    `json:"tenderId"`
	WinningBidID int    `json:"winningBidId"`
	ManualReason string `json:"manualReason"`
}

// Утверждение победителя. Выбор не-рекомендованной ставки требует
// письменного обоснования и помечается как ручной отбор.
func (h *Handler) ApproveWinnerHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := requireRole(r, auth.RoleGov)
	if err != nil {
		writeError(w, err)
		return
	}

	var req approveWinnerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TenderID <= 0 || req.WinningBidID <= 0 {
		writeError(w, apperr.New(apperr.InvalidInput, "tenderId and winningBidId are required"))
		return
	}

	tender, err := h.Store.GetTender(r.Context(), req.TenderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if tender.Status == models.TenderAwarded {
		writeError(w, apperr.New(apperr.InvalidState, "tender is already awarded"))
		return
	}
	if tender.Status != models.TenderBiddingClosed {
		writeError(w, apperr.New(apperr.InvalidState, "tender is not awaiting award"))
		return
	}

	bid, err := h.Store.GetBid(r.Context(), req.WinningBidID)
	if err != nil {
		writeError(w, err)
		return
	}
	if bid.TenderID != tender.ID {
		writeError(w, apperr.New(apperr.InvalidInput, "bid does not belong to this tender"))
		return
	}

	selection := models.SelectionSystem
	var manualReason *string
	if !bid.SystemRecommended {
		reason := strings.TrimSpace(req.ManualReason)
		if reason == "" {
			writeError(w, apperr.New(apperr.InvalidInput, "manualReason is required when overriding the recommended bid"))
			return
		}
		selection = models.SelectionManual
		manualReason = &reason
	}

	contract := &models.Contract{
		ContractUID:      "CON-" + uuid.NewString(),
		TenderID:         tender.ID,
		ContractorID:     bid.ContractorID,
		ContractValue:    bid.BidAmount,
		MaxPayableAmount: bid.BidAmount,
		Status:           models.ContractActive,
		SelectionType:    selection,
		ManualReason:     manualReason,
		AwardedBy:        caller.ID,
		PlanStatus:       models.PlanDraft,
	}

	if err := h.Store.AwardTender(r.Context(), tender.ID, bid, contract); err != nil {
		writeError(w, err)
		return
	}

	if contractor, err := h.Store.GetContractor(r.Context(), bid.ContractorID); err == nil {
		h.Notifier.Notify(contractor.Email,
			fmt.Sprintf("tender %q awarded, contract %s for %.2f", tender.Title, contract.ContractUID, contract.ContractValue))
	}

	writeJSON(w, http.StatusCreated, contract)
}
