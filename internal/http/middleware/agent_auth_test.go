package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clinicvoice/booking-engine/internal/tenancy"
)

const testSecret = "test-agent-secret"

func signToken(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func protectedHandler(t *testing.T, wantTenant string) (http.Handler, *bool) {
	t.Helper()
	called := false
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		tenantID, ok := tenancy.TenantIDFromContext(r.Context())
		if !ok || tenantID != wantTenant {
			t.Errorf("tenant not installed in context: %q ok=%v", tenantID, ok)
		}
		w.WriteHeader(http.StatusOK)
	})
	return AgentJWT(testSecret)(h), &called
}

func TestAgentJWTInstallsTenantFromClaim(t *testing.T) {
	h, called := protectedHandler(t, "tenant-a")

	token := signToken(t, testSecret, jwt.MapClaims{
		"tenant_id": "tenant-a",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/toolcalls/reserve_atomic", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !*called {
		t.Fatalf("expected authorized request, got %d (called=%v)", rec.Code, *called)
	}
}

func TestAgentJWTFallsBackToSubject(t *testing.T) {
	h, called := protectedHandler(t, "tenant-b")

	token := signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "tenant-b",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	req := httptest.NewRequest(http.MethodPost, "/toolcalls/send_otp", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !*called {
		t.Fatalf("expected authorized request, got %d (called=%v)", rec.Code, *called)
	}
}

func TestAgentJWTRejectsBadRequests(t *testing.T) {
	h, called := protectedHandler(t, "tenant-a")

	cases := []struct {
		name  string
		token string
	}{
		{"missing header", ""},
		{"wrong secret", signToken(t, "other-secret", jwt.MapClaims{"tenant_id": "tenant-a"})},
		{"no tenant", signToken(t, testSecret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})},
		{"expired", signToken(t, testSecret, jwt.MapClaims{
			"tenant_id": "tenant-a",
			"exp":       time.Now().Add(-time.Hour).Unix(),
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/toolcalls/verify_otp", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
	if *called {
		t.Fatal("handler must never run for rejected requests")
	}
}

func TestAgentJWTDisabledWithoutSecret(t *testing.T) {
	h := AgentJWT("")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run when auth is disabled")
	}))
	req := httptest.NewRequest(http.MethodPost, "/toolcalls/reserve_atomic", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
