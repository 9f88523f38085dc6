package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"hedgebot/pkg/crypto"
)

func authProtected(t *testing.T, passwordHash string) http.Handler {
	t.Helper()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return BasicAuth(passwordHash)(ok)
}

func TestBasicAuthRejectsWithoutCredentials(t *testing.T) {
	hash, err := crypto.HashPassword("operator-secret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	handler := authProtected(t, hash)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("401 must carry WWW-Authenticate header")
	}
}

func TestBasicAuthRejectsWrongPassword(t *testing.T) {
	hash, err := crypto.HashPassword("operator-secret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	handler := authProtected(t, hash)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("operator", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestBasicAuthAcceptsCorrectPassword(t *testing.T) {
	hash, err := crypto.HashPassword("operator-secret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	handler := authProtected(t, hash)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("operator", "operator-secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestBasicAuthDisabledWithEmptyHash(t *testing.T) {
	handler := authProtected(t, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rec.Code)
	}
}
