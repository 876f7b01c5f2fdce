// Пакет auth разбирает bearer-токен и кладёт вызывающего в контекст запроса.
// Ядро доверяет клеймам токена и авторизует только по роли.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Роли вызывающих
const (
	RoleGov        = "gov"
	RoleContractor = "contractor"
	RolePublic     = "public"
)

// Caller — идентичность вызывающего, передаётся в операции явно.
type Caller struct {
	ID   int
	Role string
}

type ctxKey struct{}

// Middleware проверяет заголовок Authorization: Bearer <jwt> (HS256)
// и сохраняет Caller в контексте. Без валидного токена — 401.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				http.Error(w, "Missing bearer token", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			userID, ok := claims["userID"].(float64)
			if !ok {
				http.Error(w, "Invalid userID claim", http.StatusUnauthorized)
				return
			}
			role, ok := claims["role"].(string)
			if !ok {
				http.Error(w, "Invalid role claim", http.StatusUnauthorized)
				return
			}

			caller := Caller{ID: int(userID), Role: role}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}

// GenerateToken выпускает access-токен с клеймами userID и role.
func GenerateToken(secret []byte, userID int, role string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userID": userID,
		"role":   role,
		"exp":    time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}
