package handlers

import (
	"net/http"
	"strings"
	"time"

	"contracker/internal/apperr"
	"contracker/internal/auth"
	"contracker/models"
)

const (
	// Предел раундов контрпредложений со стороны подрядчика.
	maxNegotiationRounds = 2

	minReasonLen = 10
)

type milestoneInput struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Amount          float64   `json:"amount"`
	DueDate         time.Time `json:"dueDate"`
	GracePeriodDays int       `json:"gracePeriodDays"`
}

type proposalRequest struct {
	Milestones []milestoneInput `json:"milestones"`
	Reason     string           `json:"reason"`
}

// validateProposal проверяет набор этапов и собирает черновики.
// Сумма этапов не может превышать стоимость контракта — правило
// действует на каждом переходе плана, не только на финализации.
func validateProposal(contractID int, contractValue float64, inputs []milestoneInput) ([]models.ProposedMilestone, error) {
	if len(inputs) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "at least one milestone is required")
	}

	proposed := make([]models.ProposedMilestone, 0, len(inputs))
	var total float64
	for i, in := range inputs {
		if strings.TrimSpace(in.Title) == "" {
			return nil, apperr.New(apperr.InvalidInput, "milestone title is required")
		}
		if in.Amount <= 0 {
			return nil, apperr.New(apperr.InvalidInput, "milestone amount must be positive")
		}
		if in.DueDate.IsZero() {
			return nil, apperr.New(apperr.InvalidInput, "milestone dueDate is required")
		}
		if in.GracePeriodDays < 0 {
			return nil, apperr.New(apperr.InvalidInput, "gracePeriodDays cannot be negative")
		}
		total += in.Amount
		proposed = append(proposed, models.ProposedMilestone{
			ContractID:      contractID,
			Position:        i + 1,
			Title:           in.Title,
			Description:     in.Description,
			Amount:          in.Amount,
			DueDate:         in.DueDate,
			GracePeriodDays: in.GracePeriodDays,
		})
	}

	if total > contractValue {
		return nil, apperr.New(apperr.LimitExceeded, "milestone amounts exceed the contract value")
	}
	return proposed, nil
}

func (h *Handler) loadContract(r *http.Request) (*models.Contract, error) {
	contractID, err := urlParamInt(r, "contractId")
	if err != nil {
		return nil, err
	}
	return h.Store.GetContract(r.Context(), contractID)
}

// Первичное предложение плана этапов государственной стороной.
// DRAFT -> CONTRACTOR_REVIEW.
func (h *Handler) ProposeMilestonesHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, auth.RoleGov); err != nil {
		writeError(w, err)
		return
	}

	contract, err := h.loadContract(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if contract.PlanStatus != models.PlanDraft {
		writeError(w, apperr.New(apperr.InvalidState, "milestone plan has already been proposed"))
		return
	}

	var req proposalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	proposed, err := validateProposal(contract.ID, contract.ContractValue, req.Milestones)
	if err != nil {
		writeError(w, err)
		return
	}

	contract.PlanStatus = models.PlanContractorReview
	contract.ProposalReason = nil
	if err := h.Store.SaveMilestoneProposal(r.Context(), contract, proposed); err != nil {
		writeError(w, err)
		return
	}

	contract.ProposedMilestones = proposed
	writeJSON(w, http.StatusOK, contract)
}

// Подрядчик принимает план как есть. CONTRACTOR_REVIEW -> FINALIZED.
func (h *Handler) AcceptMilestonesHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := requireRole(r, auth.RoleContractor)
	if err != nil {
		writeError(w, err)
		return
	}

	contract, err := h.loadContract(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if contract.ContractorID != caller.ID {
		writeError(w, apperr.New(apperr.Forbidden, "contract belongs to another contractor"))
		return
	}
	if contract.PlanStatus != models.PlanContractorReview {
		writeError(w, apperr.New(apperr.InvalidState, "milestone plan is not awaiting contractor review"))
		return
	}

	contract.PlanStatus = models.PlanFinalized
	contract.ProposalReason = nil
	if err := h.Store.FinalizeMilestonePlan(r.Context(), contract); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.Store.GetContract(r.Context(), contract.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Контрпредложение подрядчика. CONTRACTOR_REVIEW -> GOV_REVIEW,
// раунд увеличивается; сверх лимита раундов — отказ.
func (h *Handler) CounterProposeHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := requireRole(r, auth.RoleContractor)
	if err != nil {
		writeError(w, err)
		return
	}

	contract, err := h.loadContract(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if contract.ContractorID != caller.ID {
		writeError(w, apperr.New(apperr.Forbidden, "contract belongs to another contractor"))
		return
	}
	if contract.PlanStatus != models.PlanContractorReview {
		writeError(w, apperr.New(apperr.InvalidState, "milestone plan is not awaiting contractor review"))
		return
	}
	if contract.NegotiationRound >= maxNegotiationRounds {
		writeError(w, apperr.New(apperr.LimitExceeded, "negotiation round limit reached"))
		return
	}

	var req proposalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if len(reason) < minReasonLen {
		writeError(w, apperr.New(apperr.InvalidInput, "counter-proposal reason must be at least 10 characters"))
		return
	}
	proposed, err := validateProposal(contract.ID, contract.ContractValue, req.Milestones)
	if err != nil {
		writeError(w, err)
		return
	}

	contract.PlanStatus = models.PlanGovReview
	contract.ProposalReason = &reason
	contract.NegotiationRound++
	if err := h.Store.SaveMilestoneProposal(r.Context(), contract, proposed); err != nil {
		writeError(w, err)
		return
	}

	contract.ProposedMilestones = proposed
	writeJSON(w, http.StatusOK, contract)
}

// Государственная сторона принимает контрпредложение.
// GOV_REVIEW -> FINALIZED.
func (h *Handler) AcceptCounterProposalHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, auth.RoleGov); err != nil {
		writeError(w, err)
		return
	}

	contract, err := h.loadContract(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if contract.PlanStatus != models.PlanGovReview {
		writeError(w, apperr.New(apperr.InvalidState, "milestone plan is not awaiting government review"))
		return
	}

	contract.PlanStatus = models.PlanFinalized
	contract.ProposalReason = nil
	if err := h.Store.FinalizeMilestonePlan(r.Context(), contract); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.Store.GetContract(r.Context(), contract.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Повторное предложение после контрпредложения подрядчика.
// GOV_REVIEW -> CONTRACTOR_REVIEW, требуется обоснование.
func (h *Handler) ReproposeMilestonesHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, auth.RoleGov); err != nil {
		writeError(w, err)
		return
	}

	contract, err := h.loadContract(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if contract.PlanStatus != models.PlanGovReview {
		writeError(w, apperr.New(apperr.InvalidState, "milestone plan is not awaiting government review"))
		return
	}

	var req proposalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if len(reason) < minReasonLen {
		writeError(w, apperr.New(apperr.InvalidInput, "revision reason must be at least 10 characters"))
		return
	}
	proposed, err := validateProposal(contract.ID, contract.ContractValue, req.Milestones)
	if err != nil {
		writeError(w, err)
		return
	}

	contract.PlanStatus = models.PlanContractorReview
	contract.ProposalReason = &reason
	if err := h.Store.SaveMilestoneProposal(r.Context(), contract, proposed); err != nil {
		writeError(w, err)
		return
	}

	contract.ProposedMilestones = proposed
	writeJSON(w, http.StatusOK, contract)
}
