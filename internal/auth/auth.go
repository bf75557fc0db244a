// Package auth resolves bearer tokens into caller identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"retail-backoffice/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the role claim
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// MaxSubjectLength caps the sub claim, in characters, to what an order can store.
const MaxSubjectLength = 64

type ctxKey int

// ClaimsKey is the context key the HTTP layer stores Claims under.
const ClaimsKey ctxKey = 1

// Claims is the token payload. Subject holds the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// IsAdmin reports whether the caller holds the admin role.
func (c Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Resolver turns an Authorization header into Claims.
type Resolver interface {
	Resolve(ctx context.Context, authorizationHeader string) (Claims, error)
}

// Keys verifies and issues HS256 tokens with a shared secret.
type Keys struct {
	secret []byte
	issuer string
}

func NewKeys(secret, issuer string) (*Keys, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &Keys{secret: []byte(secret), issuer: issuer}, nil
}

// Resolve validates a "Bearer <token>" header.
func (k *Keys) Resolve(_ context.Context, header string) (Claims, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return Claims{}, apperr.Authentication("missing bearer token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if k.issuer != "" {
		opts = append(opts, jwt.WithIssuer(k.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (interface{}, error) {
		return k.secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, apperr.Authentication("invalid token")
	}
	if claims.Subject == "" {
		return Claims{}, apperr.Authentication("token has no subject")
	}
	if utf8.RuneCountInString(claims.Subject) > MaxSubjectLength {
		return Claims{}, apperr.Authentication("token subject is too long")
	}
	if claims.Role != RoleAdmin && claims.Role != RoleCustomer {
		return Claims{}, apperr.Authentication(fmt.Sprintf("unknown role %q", claims.Role))
	}
	return claims, nil
}

// GenerateToken signs a token for subject valid for ttl. cmd/token uses it
// to issue tokens to operators.
func (k *Keys) GenerateToken(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    k.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(k.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// FromContext returns the Claims stored by the HTTP layer.
func FromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(Claims)
	return c, ok
}

// WithClaims returns ctx carrying c.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, c)
}
