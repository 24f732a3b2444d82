package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shorttrack/apiserver/internal/store"
	"github.com/shorttrack/apiserver/types"
)

// RequestOTP stores a fresh SMS sign-in code on the phone's owner and texts
// it. A new request replaces any pending code.
func (a *Authority) RequestOTP(ctx context.Context, phone string) (Dispatch, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return Dispatch{}, err
	}

	user, err := a.users.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Dispatch{}, newError(KindNotFound, FieldPhone, "phone not found")
		}
		return Dispatch{}, internalError("failed to load user", err)
	}

	code, err := numericCode()
	if err != nil {
		return Dispatch{}, internalError("failed to generate code", err)
	}
	if _, err := a.users.Update(ctx, user.ID, types.UserPatch{
		OTP: &types.OTPSlot{CodeHash: digest(code), ExpiresAt: a.now().Add(smsLoginTTL)},
	}); err != nil {
		return Dispatch{}, internalError("failed to store code", err)
	}

	body := fmt.Sprintf("ShortTrack: your sign-in code is %s. It expires in %d minutes.",
		code, int(smsLoginTTL.Minutes()))
	receipt, err := a.gateway.SendSMS(ctx, phone, body)
	return a.dispatch(receipt, err, code, "sign-in code")
}

// VerifyOTP signs in with the pending SMS code. The code is cleared on
// success so it works once.
func (a *Authority) VerifyOTP(ctx context.Context, phone, code string) (Session, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return Session{}, err
	}
	code = strings.TrimSpace(code)

	user, err := a.users.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, verificationError(FieldCode)
		}
		return Session{}, internalError("failed to load user", err)
	}

	hash := digest(code)
	if code == "" || user.OTPCodeHash == "" || user.OTPCodeHash != hash ||
		user.OTPExpiresAt == nil || !a.now().Before(*user.OTPExpiresAt) {
		return Session{}, verificationError(FieldCode)
	}

	if err := a.users.ClearOTP(ctx, user.ID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, verificationError(FieldCode)
		}
		return Session{}, internalError("failed to clear code", err)
	}
	return a.session(user)
}
