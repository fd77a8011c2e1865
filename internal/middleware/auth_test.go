package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartcanteen/api/internal/auth"
	"github.com/smartcanteen/api/internal/middleware"
)

const testSecret = "test-secret"

func mustToken(t *testing.T, secret, username, role string) string {
	t.Helper()
	token, err := auth.GenerateToken(secret, username, role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func TestAuthenticate(t *testing.T) {
	student := mustToken(t, testSecret, "asha", "student")

	tests := []struct {
		name      string
		header    string
		wantCode  int
		wantError string
	}{
		{"valid bearer", "Bearer " + student, http.StatusOK, ""},
		{"lowercase scheme", "bearer " + student, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"basic scheme", "Basic " + student, http.StatusUnauthorized, "invalid authorization format"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "invalid authorization format"},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, "invalid token"},
		{"other secret", "Bearer " + mustToken(t, "other-secret", "asha", "student"), http.StatusUnauthorized, "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *auth.Claims
			handler := middleware.Authenticate(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = middleware.ClaimsFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.wantCode)
			}
			if tt.wantError == "" {
				if seen == nil || seen.Username != "asha" {
					t.Fatalf("claims: got %+v, want username asha", seen)
				}
				return
			}
			var body map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != tt.wantError {
				t.Errorf("error: got %q, want %q", body["error"], tt.wantError)
			}
		})
	}
}

func TestRequireStaff(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		wantCode int
	}{
		{"student rejected", "student", http.StatusForbidden},
		{"staff allowed", "staff", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			handler := middleware.Authenticate(testSecret)(middleware.RequireStaff()(inner))

			req := httptest.NewRequest("PATCH", "/orders/1/status", nil)
			req.Header.Set("Authorization", "Bearer "+mustToken(t, testSecret, "someone", tt.role))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Errorf("status: got %d, want %d", rr.Code, tt.wantCode)
			}
		})
	}
}

func TestRequireRole_NoClaims(t *testing.T) {
	handler := middleware.RequireRole("staff")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/forecast/orders", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestWithClaims(t *testing.T) {
	claims := &auth.Claims{Username: "ravi", Role: "student"}
	ctx := middleware.WithClaims(httptest.NewRequest("GET", "/", nil).Context(), claims)

	if got := middleware.ClaimsFromContext(ctx); got != claims {
		t.Fatalf("claims: got %+v, want %+v", got, claims)
	}
}
