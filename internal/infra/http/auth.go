package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type userIDKey struct{}

// AuthMiddleware проверяет подпись идентификатора пользователя,
// проставленную внешним слоем аутентификации: заголовок X-User-ID с UUID
// и X-User-Sign с hex HMAC-SHA256 от идентификатора на секрете сервиса.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	key := sha256.Sum256([]byte(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawID := r.Header.Get("X-User-ID")
			if rawID == "" {
				http.Error(w, "X-User-ID отсутствует", http.StatusUnauthorized)
				return
			}
			userID, err := uuid.Parse(rawID)
			if err != nil {
				http.Error(w, "некорректный идентификатор", http.StatusUnauthorized)
				return
			}
			if !validateSignature(rawID, r.Header.Get("X-User-Sign"), key[:]) {
				http.Error(w, "подпись недействительна", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validateSignature(payload, signature string, key []byte) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, key)
	h.Write([]byte(payload))
	return hmac.Equal(h.Sum(nil), expected)
}

// UserID возвращает идентификатор пользователя из контекста запроса.
func UserID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(userIDKey{}).(uuid.UUID)
	return id, ok
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}
