package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"retail-backoffice/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_ValidToken(t *testing.T) {
	k, err := NewKeys("secret", "backoffice")
	require.NoError(t, err)

	token, err := k.GenerateToken("user-1", RoleCustomer, time.Hour)
	require.NoError(t, err)

	claims, err := k.Resolve(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.False(t, claims.IsAdmin())
}

func TestResolve_Rejects(t *testing.T) {
	k, _ := NewKeys("secret", "backoffice")
	other, _ := NewKeys("other-secret", "backoffice")
	wrongIssuer, _ := NewKeys("secret", "someone-else")

	expired, _ := k.GenerateToken("user-1", RoleAdmin, -time.Minute)
	forged, _ := other.GenerateToken("user-1", RoleAdmin, time.Hour)
	foreign, _ := wrongIssuer.GenerateToken("user-1", RoleAdmin, time.Hour)
	badRole, _ := k.GenerateToken("user-1", "superuser", time.Hour)
	longSubject, _ := k.GenerateToken(strings.Repeat("u", MaxSubjectLength+1), RoleCustomer, time.Hour)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "backoffice"},
		Role:             RoleAdmin,
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"no scheme":    expired,
		"basic":        "Basic dXNlcjpwYXNz",
		"expired":      "Bearer " + expired,
		"wrong secret": "Bearer " + forged,
		"wrong issuer": "Bearer " + foreign,
		"unknown role": "Bearer " + badRole,
		"alg none":     "Bearer " + unsigned,
		"long subject": "Bearer " + longSubject,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := k.Resolve(context.Background(), header)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindAuthentication))
		})
	}
}

func TestNewKeys_RequiresSecret(t *testing.T) {
	_, err := NewKeys("", "")
	assert.Error(t, err)
}

func TestClaimsContextRoundTrip(t *testing.T) {
	ctx := WithClaims(context.Background(), Claims{Role: RoleAdmin})
	c, ok := FromContext(ctx)
	require.True(t, ok)
	assert.True(t, c.IsAdmin())

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
