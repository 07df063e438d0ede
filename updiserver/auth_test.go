package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAuthProcess(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	ok := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
	handler := authProcess(ok, "key", clock)

	validUser, validPass := authCalculate("key", "bench", now.Add(time.Hour))
	expiredUser, expiredPass := authCalculate("key", "", now.Add(-time.Hour))
	_, wrongPass := authCalculate("other", "bench", now.Add(time.Hour))

	tests := []struct {
		name       string
		user, pass string
		auth       bool
		want       int
	}{
		{"valid", validUser, validPass, true, http.StatusNoContent},
		{"missing", "", "", false, http.StatusUnauthorized},
		{"wrong key", validUser, wrongPass, true, http.StatusUnauthorized},
		{"not hex", validUser, "zz", true, http.StatusUnauthorized},
		{"expired", expiredUser, expiredPass, true, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.auth {
				req.SetBasicAuth(tt.user, tt.pass)
			}

			rec := httptest.NewRecorder()
			handler(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthDisabled(t *testing.T) {
	called := false
	handler := authProcess(func(w http.ResponseWriter, r *http.Request) { called = true }, "", time.Now)

	handler(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !called {
		t.Error("handler not called without an API key")
	}
}
