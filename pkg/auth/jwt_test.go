package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T, cfg Config) (*Generator, *Validator) {
	t.Helper()
	g, err := NewGenerator(cfg)
	require.NoError(t, err)
	v, err := NewValidator(cfg)
	require.NoError(t, err)
	return g, v
}

func TestGenerateAndValidate(t *testing.T) {
	g, v := newPair(t, Config{SecretKey: "s3cret", Issuer: "coauthor", Audience: []string{"sync"}})

	token, err := g.Generate("alice", "Alice")
	require.NoError(t, err)

	claims, err := v.Validate("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.ParticipantID())
	assert.Equal(t, "Alice", claims.Name)
}

func TestValidateRejections(t *testing.T) {
	cfg := Config{SecretKey: "s3cret", Issuer: "coauthor"}
	g, v := newPair(t, cfg)

	_, err := v.Validate("")
	assert.ErrorIs(t, err, ErrMissingToken)

	other, _ := newPair(t, Config{SecretKey: "different", Issuer: "coauthor"})
	forged, err := other.Generate("alice", "")
	require.NoError(t, err)
	_, err = v.Validate(forged)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	expiredGen, err := NewGenerator(Config{SecretKey: "s3cret", Issuer: "coauthor", ExpiryTime: time.Nanosecond})
	require.NoError(t, err)
	expired, err := expiredGen.Generate("alice", "")
	require.NoError(t, err)
	time.Sleep(time.Second)
	_, err = v.Validate(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	wrongIssuer, _ := newPair(t, Config{SecretKey: "s3cret", Issuer: "elsewhere"})
	token, err := wrongIssuer.Generate("alice", "")
	require.NoError(t, err)
	_, err = v.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidClaims)

	empty, err := g.Generate("", "")
	require.NoError(t, err)
	_, err = v.Validate(empty)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestUnsupportedSigningMethod(t *testing.T) {
	_, err := NewValidator(Config{SigningMethod: "none"})
	assert.Error(t, err)
	_, err = NewGenerator(Config{SigningMethod: "HS256"})
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=abc", nil)
	assert.Equal(t, "abc", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "Bearer xyz", TokenFromRequest(r))
}

func TestClaimsContext(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{Name: "A"})
	claims, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "A", claims.Name)
}
