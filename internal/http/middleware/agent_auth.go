package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clinicvoice/booking-engine/internal/tenancy"
)

// agentClaims is the token payload the voice-agent runtime signs. The subject
// carries the tenant id so every tool call is scoped before any handler runs.
type agentClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// AgentJWT enforces an HMAC-signed JWT on the tool-call surface and installs
// the tenant id into the request context.
func AgentJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "agent auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := agentClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			tenantID := claims.TenantID
			if tenantID == "" {
				tenantID = claims.Subject
			}
			if tenantID == "" {
				http.Error(w, "token missing tenant", http.StatusUnauthorized)
				return
			}
			ctx := tenancy.WithTenantID(r.Context(), tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
