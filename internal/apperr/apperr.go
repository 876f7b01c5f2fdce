package apperr

import (
	"errors"
	"net/http"
)

// Классификация ошибок доменных операций
type Kind string

const (
	NotFound      Kind = "not_found"
	Forbidden     Kind = "forbidden"
	InvalidState  Kind = "invalid_state"
	InvalidInput  Kind = "invalid_input"
	Conflict      Kind = "conflict"
	LimitExceeded Kind = "limit_exceeded"
	Dependency    Kind = "dependency"
	Internal      Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// KindOf возвращает вид ошибки; для неклассифицированных — Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus отображает вид ошибки в статус ответа.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case Dependency:
		return http.StatusBadGateway
	case InvalidState, InvalidInput, LimitExceeded:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
