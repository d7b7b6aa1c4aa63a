package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"go.uber.org/zap"

	"kashflow-sync/internal/logger"
)

type contextKey string

const claimsKey contextKey = "claims"

// TerminalClaims identify the till talking to the service.
type TerminalClaims struct {
	Terminal string `json:"terminal"`
	jwt.StandardClaims
}

// IssueToken signs an HS256 token for terminal valid for ttl.
func IssueToken(secret, terminal string, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &TerminalClaims{
		Terminal: terminal,
		StandardClaims: jwt.StandardClaims{
			Subject:   terminal,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	})
	return t.SignedString([]byte(secret))
}

func validateToken(secret, token string) (*TerminalClaims, error) {
	claims := &TerminalClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// AuthMiddleware requires a valid bearer token signed with secret. An
// empty secret disables the check for single-device setups.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearer = "Bearer "
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearer) {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := validateToken(secret, strings.TrimPrefix(header, bearer))
			if err != nil {
				logger.Log.Debug("Rejected token", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFrom returns the verified claims of the request, if any.
func ClaimsFrom(ctx context.Context) (*TerminalClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*TerminalClaims)
	return c, ok
}
