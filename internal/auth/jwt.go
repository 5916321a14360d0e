// Package auth verifies bearer tokens issued by the hosted identity provider
// and puts the authenticated owner id on the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tally/internal/core"
)

type ctxKey string

const ownerKey ctxKey = "owner"

// Verifier checks HS256 tokens. The owner is the token subject and must be a
// UUID.
type Verifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
}

// NewVerifier builds a verifier. An empty audience disables the aud check.
func NewVerifier(secret, audience string) (*Verifier, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	return &Verifier{secret: []byte(secret), audience: audience, leeway: 30 * time.Second}, nil
}

// Verify parses tokenStr and returns the owner id.
func (v *Verifier) Verify(tokenStr string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrUnauthorized, err)
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", fmt.Errorf("%w: subject is not a user id", core.ErrUnauthorized)
	}
	return uid.String(), nil
}

// Middleware rejects requests without a valid bearer token by calling
// onFail with an error wrapping core.ErrUnauthorized.
func (v *Verifier) Middleware(onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			scheme, tokenStr, ok := strings.Cut(h, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenStr) == "" {
				onFail(w, r, fmt.Errorf("%w: missing bearer token", core.ErrUnauthorized))
				return
			}

			owner, err := v.Verify(strings.TrimSpace(tokenStr))
			if err != nil {
				onFail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

// WithOwner returns ctx carrying owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// OwnerFromContext returns the authenticated owner id.
func OwnerFromContext(ctx context.Context) (string, error) {
	owner, ok := ctx.Value(ownerKey).(string)
	if !ok || owner == "" {
		return "", fmt.Errorf("%w: user not authenticated", core.ErrUnauthorized)
	}
	return owner, nil
}

// IssueToken signs a token for owner. It is meant for tests and local tooling;
// production tokens come from the identity provider.
func IssueToken(secret, owner, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   owner,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
