package handlers

import (
	"net/http"
	"strings"

	"contracker/internal/apperr"
	"contracker/internal/auth"
	"contracker/models"
)

type createContractorRequest struct {
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	ExperienceYears int     `json:"experienceYears"`
	Rating          float64 `json:"rating"`
}

// Регистрация профиля подрядчика государственной стороной.
func (h *Handler) CreateContractorHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, auth.RoleGov); err != nil {
		writeError(w, err)
		return
	}

	var req createContractorRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, apperr.New(apperr.InvalidInput, "name is required"))
		return
	}
	if strings.TrimSpace(req.Email) == "" || !strings.Contains(req.Email, "@") {
		writeError(w, apperr.New(apperr.InvalidInput, "a valid email is required"))
		return
	}
	if req.ExperienceYears < 0 {
		writeError(w, apperr.New(apperr.InvalidInput, "experienceYears cannot be negative"))
		return
	}
	if req.Rating < 0 || req.Rating > 5 {
		writeError(w, apperr.New(apperr.InvalidInput, "rating must be between 0 and 5"))
		return
	}

	contractor := &models.Contractor{
		Name:            req.Name,
		Email:           req.Email,
		ExperienceYears: req.ExperienceYears,
		Rating:          req.Rating,
	}
	if err := h.Store.CreateContractor(r.Context(), contractor); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, contractor)
}

type rateContractorRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// Оценка подрядчика по действующему или завершённому контракту.
// Одна оценка на пару (контракт, пользователь); рейтинг подрядчика —
// пересчитанное среднее всех оценок.
func (h *Handler) RateContractorHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.Forbidden, "authentication required"))
		return
	}
	if caller.Role == auth.RoleContractor {
		writeError(w, apperr.New(apperr.Forbidden, "contractors cannot rate contractors"))
		return
	}

	contract, err := h.loadContract(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if contract.Status != models.ContractActive && contract.Status != models.ContractCompleted {
		writeError(w, apperr.New(apperr.InvalidState, "contract is not eligible for rating"))
		return
	}

	var req rateContractorRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, apperr.New(apperr.InvalidInput, "rating must be between 1 and 5"))
		return
	}

	rating := &models.ContractorRating{
		ContractorID: contract.ContractorID,
		ContractID:   contract.ID,
		RaterID:      caller.ID,
		Rating:       req.Rating,
		Comment:      req.Comment,
	}
	avg, err := h.Store.RateContractor(r.Context(), rating)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"rating":           rating,
		"contractorRating": avg,
	})
}
