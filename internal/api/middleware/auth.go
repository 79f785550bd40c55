package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// agencyContextKey is the context key for the authenticated agency.
type agencyContextKey string

const agencyIDKey agencyContextKey = "agency_id"

// jwtTokenTTL is the lifetime of a dashboard JWT token (7 days).
const jwtTokenTTL = 7 * 24 * time.Hour

// AgencyClaims holds the JWT claims for dashboard authentication.
type AgencyClaims struct {
	AgencyID string `json:"agency_id"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for an agency dashboard login.
func GenerateToken(secret []byte, agencyID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(jwtTokenTTL)

	claims := AgencyClaims{
		AgencyID: agencyID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "callaudit",
			Subject:   agencyID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// RequireAgency returns middleware that validates JWT bearer tokens. On
// success it stores the agency ID in the request context.
func RequireAgency(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeAuthError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			tokenString := parts[1]

			claims := &AgencyClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Debug("auth: invalid jwt", "error", err)
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if claims.AgencyID == "" {
				writeAuthError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			// Tell the request logger who this is.
			if holder, ok := r.Context().Value(agencyLogKey{}).(*requestAgency); ok {
				holder.id = claims.AgencyID
			}

			ctx := context.WithValue(r.Context(), agencyIDKey, claims.AgencyID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AgencyFromContext retrieves the authenticated agency ID from the request
// context. Returns "" if not set.
func AgencyFromContext(ctx context.Context) string {
	id, _ := ctx.Value(agencyIDKey).(string)
	return id
}

// errEnvelope matches the api package's envelope format for error responses.
type errEnvelope struct {
	Error string `json:"error,omitempty"`
}

// writeAuthError writes a JSON error matching the API envelope format.
func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errEnvelope{Error: msg}) //nolint:errcheck
}
