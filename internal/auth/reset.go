package auth

import (
	"context"
	"errors"

	"github.com/shorttrack/apiserver/internal/delivery"
	"github.com/shorttrack/apiserver/internal/store"
	"github.com/shorttrack/apiserver/types"
)

// RequestPasswordReset sends a reset code to email. The response is the same
// whether or not an account exists.
func (a *Authority) RequestPasswordReset(ctx context.Context, email string) (Dispatch, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Dispatch{}, err
	}

	code, issued, err := a.issueCode(ctx, codeRequest{
		purpose:  types.PurposePasswordReset,
		target:   email,
		ttl:      resetCodeTTL,
		generate: numericCode,
		throttle: true,
	})
	if err != nil || !issued {
		return Dispatch{}, err
	}

	const subject = "Reset your ShortTrack password"
	receipt, err := a.gateway.SendEmail(ctx, email, subject,
		delivery.CodeEmail(subject, code, int(resetCodeTTL.Minutes())))
	return a.dispatch(receipt, err, code, "reset code")
}

// ConfirmPasswordReset replaces the password once the reset code checks
// out. For an email without an account the code is still spent and the call
// succeeds.
func (a *Authority) ConfirmPasswordReset(ctx context.Context, email, code, password string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	passwordHash, err := a.hashPassword(password)
	if err != nil {
		return err
	}

	return a.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := a.redeemCode(ctx, types.PurposePasswordReset, email, code, FieldCode); err != nil {
			return err
		}

		user, err := a.users.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return internalError("failed to load user", err)
		}
		if _, err := a.users.Update(ctx, user.ID, types.UserPatch{PasswordHash: &passwordHash}); err != nil {
			return internalError("failed to update password", err)
		}
		return nil
	})
}
