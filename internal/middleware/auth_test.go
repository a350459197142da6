package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func hashKey(t *testing.T, key string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	handler := APIKeyAuth(nil, false)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/s1", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthValidKey(t *testing.T) {
	hashes := []string{hashKey(t, "zmead-key-1")}
	handler := APIKeyAuth(hashes, true)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/s1", http.NoBody)
	req.Header.Set("X-API-Key", "zmead-key-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthBearerKey(t *testing.T) {
	hashes := []string{hashKey(t, "zmead-key-1")}
	handler := APIKeyAuth(hashes, true)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/s1", http.NoBody)
	req.Header.Set("Authorization", "Bearer zmead-key-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthInvalidKey(t *testing.T) {
	hashes := []string{hashKey(t, "zmead-key-1")}
	handler := APIKeyAuth(hashes, true)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/s1", http.NoBody)
	req.Header.Set("X-API-Key", "wrong-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMissingKey(t *testing.T) {
	hashes := []string{hashKey(t, "zmead-key-1")}
	handler := APIKeyAuth(hashes, true)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/messages", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthHealthExempt(t *testing.T) {
	hashes := []string{hashKey(t, "zmead-key-1")}
	handler := APIKeyAuth(hashes, true)(okHandler())

	for _, path := range []string{"/health", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected %s exempt, got %d", path, rec.Code)
		}
	}
}

func TestAuthWebSocketQueryParam(t *testing.T) {
	hashes := []string{hashKey(t, "zmead-key-1")}
	handler := APIKeyAuth(hashes, true)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws?api_key=zmead-key-1", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 via query param, got %d", rec.Code)
	}
}
