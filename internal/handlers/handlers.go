package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"contracker/internal/apperr"
	"contracker/internal/auth"
	"contracker/internal/external"
)

const (
	defaultLimit = 20
	maxLimit     = 50

	maxBodyBytes = 1 << 20
)

type Handler struct {
	Store    StorageInterface
	Verifier external.Verifier
	Funds    external.FundReleaser
	Notifier external.Notifier
}

func NewHandler(store StorageInterface, verifier external.Verifier, funds external.FundReleaser, notifier external.Notifier) *Handler {
	return &Handler{Store: store, Verifier: verifier, Funds: funds, Notifier: notifier}
}

func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// writeJSON сериализует ответ и пишет статус.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError переводит ошибку приложения в HTTP-ответ.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.Internal {
		msg = "internal server error"
	}
	writeJSON(w, apperr.HTTPStatus(kind), map[string]string{
		"error": msg,
		"kind":  string(kind),
	})
}

// decodeBody читает тело запроса с лимитом и распаковывает JSON.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return apperr.New(apperr.InvalidInput, "unable to read request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.New(apperr.InvalidInput, "invalid JSON in request body")
	}
	return nil
}

// urlParamInt достаёт числовой параметр из пути.
func urlParamInt(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v <= 0 {
		return 0, apperr.New(apperr.InvalidInput, "invalid "+name+" parameter")
	}
	return v, nil
}

// requireRole проверяет аутентификацию и роль вызывающего.
func requireRole(r *http.Request, role string) (auth.Caller, error) {
	c, ok := auth.CallerFromContext(r.Context())
	if !ok {
		return auth.Caller{}, apperr.New(apperr.Forbidden, "authentication required")
	}
	if c.Role != role {
		return auth.Caller{}, apperr.New(apperr.Forbidden, "insufficient role for this operation")
	}
	return c, nil
}

// parsePagination разбирает limit/offset из query string.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
