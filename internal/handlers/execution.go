package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"contracker/internal/apperr"
	"contracker/internal/auth"
	"contracker/internal/scoring"
	"contracker/models"
)

// Окно публичного голосования после сдачи этапа.
const publicVotingWindow = time.Hour

// findMilestone ищет этап по позиции в финализированном плане.
func findMilestone(c *models.Contract, position int) (*models.Milestone, error) {
	if c.PlanStatus != models.PlanFinalized {
		return nil, apperr.New(apperr.InvalidState, "milestone plan is not finalized")
	}
	for i := range c.Milestones {
		if c.Milestones[i].Position == position {
			return &c.Milestones[i], nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "milestone not found")
}

func (h *Handler) loadContractMilestone(r *http.Request) (*models.Contract, *models.Milestone, error) {
	contract, err := h.loadContract(r)
	if err != nil {
		return nil, nil, err
	}
	position, err := urlParamInt(r, "position")
	if err != nil {
		return nil, nil, err
	}
	m, err := findMilestone(contract, position)
	if err != nil {
		return nil, nil, err
	}
	return contract, m, nil
}

type proofInput struct {
	FileURL   string `json:"fileUrl"`
	ProofType string `json:"proofType"`
}

type submitMilestoneRequest struct {
	DelayReason string       `json:"delayReason"`
	Proofs      []proofInput `json:"proofs"`
}

// Сдача этапа подрядчиком: доказательства уходят на автоматическую
// проверку, открывается часовое окно публичного голосования.
// Просроченный этап требует объяснения задержки.
func (h *Handler) SubmitMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := requireRole(r, auth.RoleContractor)
	if err != nil {
		writeError(w, err)
		return
	}

	contract, milestone, err := h.loadContractMilestone(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if contract.ContractorID != caller.ID {
		writeError(w, apperr.New(apperr.Forbidden, "contract belongs to another contractor"))
		return
	}
	if milestone.Status != models.MilestonePending {
		writeError(w, apperr.New(apperr.InvalidState, "milestone is not awaiting submission"))
		return
	}

	var req submitMilestoneRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Proofs) == 0 {
		writeError(w, apperr.New(apperr.InvalidInput, "at least one proof is required"))
		return
	}

	now := time.Now()
	var delayReason *string
	if models.MilestoneTemporalState(now, milestone.DueDate, milestone.GracePeriodDays) == models.Overdue {
		reason := strings.TrimSpace(req.DelayReason)
		if reason == "" {
			writeError(w, apperr.New(apperr.InvalidInput, "delayReason is required for an overdue milestone"))
			return
		}
		delayReason = &reason
	}

	evidence := make([]string, 0, len(req.Proofs))
	proofs := make([]models.Proof, 0, len(req.Proofs))
	for _, p := range req.Proofs {
		if strings.TrimSpace(p.FileURL) == "" {
			writeError(w, apperr.New(apperr.InvalidInput, "proof fileUrl is required"))
			return
		}
		proofType := p.ProofType
		if proofType == "" {
			proofType = "Image"
		}
		evidence = append(evidence, p.FileURL)
		proofs = append(proofs, models.Proof{
			MilestoneID: milestone.ID,
			FileURL:     p.FileURL,
			ProofType:   proofType,
			UploadedBy:  caller.ID,
		})
	}

	aiScore, aiRemarks, err := h.Verifier.Verify(r.Context(), evidence)
	if err != nil {
		writeError(w, apperr.New(apperr.Dependency, "automated verification is unavailable"))
		return
	}

	votingClosesAt := now.Add(publicVotingWindow)
	if err := h.Store.SubmitMilestone(r.Context(), milestone.ID, delayReason,
		aiScore, aiRemarks, proofs, now, votingClosesAt); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         models.MilestoneUnderReview,
		"aiScore":        aiScore,
		"aiRemarks":      aiRemarks,
		"votingClosesAt": votingClosesAt,
	})
}

type castVoteRequest struct {
	Vote    models.VoteValue `json:"vote"`
	Comment string           `json:"comment"`
}

// Публичный голос по этапу. Один голос на пользователя, только
// внутри открытого окна.
func (h *Handler) CastPublicVoteHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := requireRole(r, auth.RolePublic)
	if err != nil {
		writeError(w, err)
		return
	}

	_, milestone, err := h.loadContractMilestone(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req castVoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Vote != models.VoteApprove && req.Vote != models.VoteReject {
		writeError(w, apperr.New(apperr.InvalidInput, "vote must be approve or reject"))
		return
	}

	vote := &models.PublicVote{
		MilestoneID: milestone.ID,
		VoterID:     caller.ID,
		Vote:        req.Vote,
		Comment:     req.Comment,
	}
	if err := h.Store.CastPublicVote(r.Context(), vote, time.Now()); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, vote)
}

// Журнал голосов этапа для государственной проверки.
func (h *Handler) GetMilestoneVotesHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, auth.RoleGov); err != nil {
		writeError(w, err)
		return
	}

	_, milestone, err := h.loadContractMilestone(r)
	if err != nil {
		writeError(w, err)
		return
	}

	votes, err := h.Store.GetMilestoneVotes(r.Context(), milestone.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, votes)
}

// Сервисный обход: закрывает истёкшие окна голосования и передаёт
// этапы на государственную проверку. Идемпотентен.
func (h *Handler) ClosePublicVotingHandler(w http.ResponseWriter, r *http.Request) {
	n, err := h.Store.CloseExpiredPublicVoting(r.Context(), time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"closed": n})
}

const (
	finalizeActionAccept   = "ACCEPT"
	finalizeActionOverride = "OVERRIDE"
)

type finalizeMilestoneRequest struct {
	Action         string `json:"action"`
	Vote           string `json:"vote"`
	OverrideReason string `json:"overrideReason"`
}

// Государственный вердикт по этапу. ACCEPT доверяет взвешенной
// оценке; OVERRIDE принудительно одобряет с обязательным обоснованием.
func (h *Handler) FinalizeMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, auth.RoleGov); err != nil {
		writeError(w, err)
		return
	}

	_, milestone, err := h.loadContractMilestone(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if milestone.Status != models.MilestoneGovReview {
		writeError(w, apperr.New(apperr.InvalidState, "milestone is not under government review"))
		return
	}

	var req finalizeMilestoneRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	govApprove := false
	switch req.Vote {
	case "Approve":
		govApprove = true
	case "Reject":
	default:
		writeError(w, apperr.New(apperr.InvalidInput, "vote must be Approve or Reject"))
		return
	}

	aiScore := 0
	if milestone.AIScore != nil {
		aiScore = *milestone.AIScore
	}
	eval := scoring.MilestoneFinalScore(aiScore, milestone.PublicApprove, milestone.PublicReject, govApprove)

	var (
		status         models.MilestoneStatus
		overridden     bool
		overrideReason *string
	)
	switch req.Action {
	case finalizeActionAccept:
		status = models.MilestoneRejected
		if eval.Recommended {
			status = models.MilestoneApproved
		}
	case finalizeActionOverride:
		reason := strings.TrimSpace(req.OverrideReason)
		if reason == "" {
			writeError(w, apperr.New(apperr.InvalidInput, "overrideReason is required for an override"))
			return
		}
		status = models.MilestoneApproved
		overridden = true
		overrideReason = &reason
	default:
		writeError(w, apperr.New(apperr.InvalidInput, "action must be ACCEPT or OVERRIDE"))
		return
	}

	if err := h.Store.FinalizeMilestone(r.Context(), milestone.ID, status,
		eval, overridden, overrideReason, time.Now()); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"finalEvaluation": eval,
		"overridden":      overridden,
	})
}

// Выплата по одобренному этапу. Перевод выполняется под блокировкой
// строк контракта и этапа, повторная выплата невозможна.
func (h *Handler) ReleaseFundHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, auth.RoleGov); err != nil {
		writeError(w, err)
		return
	}

	contract, milestone, err := h.loadContractMilestone(r)
	if err != nil {
		writeError(w, err)
		return
	}

	transfer := func(contractorID int, amount float64) (string, error) {
		return h.Funds.Release(r.Context(), fmt.Sprintf("contractor-%d", contractorID), amount)
	}
	if err := h.Store.ReleaseMilestoneFunds(r.Context(), contract.ID, milestone.ID, transfer); err != nil {
		writeError(w, err)
		return
	}

	if contractor, err := h.Store.GetContractor(r.Context(), contract.ContractorID); err == nil {
		h.Notifier.Notify(contractor.Email,
			fmt.Sprintf("milestone %q paid, %.2f released", milestone.Title, milestone.Amount))
	}

	updated, err := h.Store.GetContract(r.Context(), contract.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Контракт с планом этапов. Доступен государственной стороне и
// подрядчику-владельцу; временное состояние этапов вычисляется на чтении.
func (h *Handler) GetContractHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.Forbidden, "authentication required"))
		return
	}

	contract, err := h.loadContract(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if caller.Role != auth.RoleGov && !(caller.Role == auth.RoleContractor && caller.ID == contract.ContractorID) {
		writeError(w, apperr.New(apperr.Forbidden, "no access to this contract"))
		return
	}

	decorateMilestones(contract, time.Now())
	writeJSON(w, http.StatusOK, contract)
}

// Контракты текущего подрядчика.
func (h *Handler) GetMyContractsHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := requireRole(r, auth.RoleContractor)
	if err != nil {
		writeError(w, err)
		return
	}

	limit, offset := parsePagination(r)
	contracts, err := h.Store.GetContractorContracts(r.Context(), caller.ID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, contracts)
}

func decorateMilestones(c *models.Contract, now time.Time) {
	for i := range c.Milestones {
		m := &c.Milestones[i]
		if m.Status == models.MilestonePending || m.Status == models.MilestoneUnderReview {
			m.Temporal = models.MilestoneTemporalState(now, m.DueDate, m.GracePeriodDays)
		}
	}
}
