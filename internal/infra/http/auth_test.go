package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func sign(secret, payload string) string {
	key := sha256.Sum256([]byte(secret))
	h := hmac.New(sha256.New, key[:])
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	userID := uuid.MustParse("abcdef12-3456-7890-abcd-ef1234567890")

	var gotID uuid.UUID
	var gotOK bool
	handler := AuthMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = UserID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", userID.String())
	req.Header.Set("X-User-Sign", sign(secret, userID.String()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	if !gotOK || gotID != userID {
		t.Fatalf("идентификатор пользователя не попал в контекст")
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	const secret = "test-secret"
	userID := uuid.MustParse("abcdef12-3456-7890-abcd-ef1234567890")

	handler := AuthMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("запрос не должен дойти до обработчика")
	}))

	cases := []struct {
		name string
		id   string
		sign string
	}{
		{"без идентификатора", "", ""},
		{"не UUID", "not-a-uuid", sign(secret, "not-a-uuid")},
		{"чужая подпись", userID.String(), sign("other-secret", userID.String())},
		{"битый hex", userID.String(), "zzzz"},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if c.id != "" {
			req.Header.Set("X-User-ID", c.id)
		}
		if c.sign != "" {
			req.Header.Set("X-User-Sign", c.sign)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: ожидали 401, получили %d", c.name, rec.Code)
		}
	}
}
