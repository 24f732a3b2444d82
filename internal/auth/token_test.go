package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTIssuerRoundTrip(t *testing.T) {
	issuer := NewJWTIssuer("secret", 0)
	assert.Equal(t, DefaultTokenTTL, issuer.ttl)

	token, err := issuer.Issue(42)
	require.NoError(t, err)

	userID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestJWTIssuerRejects(t *testing.T) {
	issuer := NewJWTIssuer("secret", time.Hour)
	token, err := issuer.Issue(7)
	require.NoError(t, err)

	_, err = NewJWTIssuer("other", time.Hour).Verify(token)
	assert.Error(t, err)

	_, err = issuer.Verify("not-a-token")
	assert.Error(t, err)

	expired := NewJWTIssuer("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue(7)
	require.NoError(t, err)
	_, err = issuer.Verify(old)
	assert.Error(t, err)

	_, err = NewJWTIssuer("", time.Hour).Issue(1)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	h := newHarness(t)

	_, err := h.auth.Authenticate("garbage")
	requireKind(t, err, KindUnauthorized, FieldToken)

	token, err := h.tokens.Issue(9)
	require.NoError(t, err)
	userID, err := h.auth.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(9), userID)
}
