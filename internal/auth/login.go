package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/shorttrack/apiserver/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// LoginInput is the password sign-in form. Code is the authenticator code
// or an unused backup code, required only when TOTP is enabled.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
}

// Login checks a password sign-in. The checks run in a fixed order and the
// first failing one decides the error, so the TOTP requirement is never
// revealed before the password is confirmed.
func (a *Authority) Login(ctx context.Context, in LoginInput) (Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return Session{}, validationError(FieldEmail, "email is required")
	}

	user, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, newError(KindUserNotFound, FieldEmail, "no account for this email")
		}
		return Session{}, internalError("failed to load user", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return Session{}, newError(KindBadCredentials, FieldPassword, "incorrect password")
	}
	if user.EmailVerifiedAt == nil {
		return Session{}, newError(KindUnverified, FieldEmail, "email not verified")
	}
	if user.Phone != "" && user.PhoneVerifiedAt == nil {
		return Session{}, newError(KindUnverified, FieldPhone, "phone not verified")
	}
	if !user.IsActive {
		return Session{}, newError(KindAccountInactive, FieldAccount, "account is not active")
	}

	if user.TOTPEnabled {
		code := strings.TrimSpace(in.Code)
		if code == "" {
			return Session{}, newError(KindTotpRequired, FieldCode, "authenticator code required")
		}
		ok, err := a.checkSecondFactor(ctx, user.ID, user.TOTPSecret, code)
		if err != nil {
			return Session{}, err
		}
		if !ok {
			return Session{}, newError(KindTotpInvalid, FieldCode, "invalid authenticator code")
		}
	}

	return a.session(user)
}

// checkSecondFactor accepts a current authenticator code, or else spends a
// matching backup code.
func (a *Authority) checkSecondFactor(ctx context.Context, userID int64, secret, code string) (bool, error) {
	if a.validTOTP(secret, code) {
		return true, nil
	}

	err := a.users.ConsumeBackupCode(ctx, userID, digest(strings.ToUpper(code)))
	switch {
	case err == nil:
		a.log.WithField("user_id", userID).Info("backup code used for sign-in")
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, internalError("failed to check backup code", err)
	}
}
