package auth

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/shorttrack/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, RegisterInput{Name: "Ana", Email: "a@x.com", Password: "secret1"})

	sent, err := h.auth.RequestPasswordReset(ctx, "A@x.com")
	require.NoError(t, err)
	require.NotEmpty(t, sent.Code)

	err = h.auth.ConfirmPasswordReset(ctx, "a@x.com", wrongCode(sent.Code), "newpass")
	requireKind(t, err, KindVerification, FieldCode)

	err = h.auth.ConfirmPasswordReset(ctx, "a@x.com", sent.Code, "short")
	requireKind(t, err, KindValidation, FieldPassword)

	err = h.auth.ConfirmPasswordReset(ctx, "a@x.com", sent.Code, strings.Repeat("p", 73))
	requireKind(t, err, KindValidation, FieldPassword)

	require.NoError(t, h.auth.ConfirmPasswordReset(ctx, "a@x.com", sent.Code, "newpass"))

	_, err = h.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "secret1"})
	requireKind(t, err, KindBadCredentials, FieldPassword)
	_, err = h.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "newpass"})
	require.NoError(t, err)

	err = h.auth.ConfirmPasswordReset(ctx, "a@x.com", sent.Code, "another")
	requireKind(t, err, KindVerification, FieldCode)
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sent, err := h.auth.RequestPasswordReset(ctx, "ghost@x.com")
	require.NoError(t, err)
	require.NotEmpty(t, sent.Code, "unknown emails get the same response as real ones")

	require.NoError(t, h.auth.ConfirmPasswordReset(ctx, "ghost@x.com", sent.Code, "newpass"))

	err = h.auth.ConfirmPasswordReset(ctx, "ghost@x.com", sent.Code, "newpass")
	requireKind(t, err, KindVerification, FieldCode)
}

func TestPasswordResetResponsesMatch(t *testing.T) {
	h := newHarness(t)
	h.gateway.delivered = true
	ctx := context.Background()
	now := h.clock.Now()
	h.seedUser(t, types.User{Email: "real@x.com", EmailVerifiedAt: &now, IsActive: true})

	known, err := h.auth.RequestPasswordReset(ctx, "real@x.com")
	require.NoError(t, err)
	ghost, err := h.auth.RequestPasswordReset(ctx, "ghost@x.com")
	require.NoError(t, err)

	assert.Equal(t, known, ghost)
	assert.Len(t, h.gateway.emails, 2)
}

func TestPasswordResetThrottle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)
	again, err := h.auth.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Empty(t, again.Code)
	assert.Equal(t, 1, h.store.codeCount(types.PurposePasswordReset, "a@x.com"))
}

func TestPasswordResetConsumesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, RegisterInput{Name: "Ana", Email: "a@x.com", Password: "secret1"})

	sent, err := h.auth.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.auth.ConfirmPasswordReset(ctx, "a@x.com", sent.Code, "newpass"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}
