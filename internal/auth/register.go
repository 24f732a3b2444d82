package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shorttrack/apiserver/internal/delivery"
	"github.com/shorttrack/apiserver/internal/store"
	"github.com/shorttrack/apiserver/types"
)

// Next tells the client which step follows a registration.
type Next string

const (
	NextDone        Next = "done"
	NextVerifyPhone Next = "verify-phone"
)

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone,omitempty"`
	EmailCode string `json:"emailCode"`
}

// RegisterResult describes a created account. Token is set when no further
// verification is needed. SMSCode carries the phone code when SMS is not
// configured.
type RegisterResult struct {
	User    types.PublicUser `json:"user"`
	Next    Next             `json:"next"`
	Token   string           `json:"token,omitempty"`
	SMSCode string           `json:"smsCode,omitempty"`
}

// RequestEmailCode sends a registration code to email. Repeated requests
// within the resend window succeed without sending anything new.
func (a *Authority) RequestEmailCode(ctx context.Context, email string) (Dispatch, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Dispatch{}, err
	}

	code, issued, err := a.issueCode(ctx, codeRequest{
		purpose:  types.PurposeEmailRegistration,
		target:   email,
		ttl:      emailCodeTTL,
		generate: numericCode,
		throttle: true,
	})
	if err != nil || !issued {
		return Dispatch{}, err
	}

	const subject = "Your ShortTrack verification code"
	receipt, err := a.gateway.SendEmail(ctx, email, subject,
		delivery.CodeEmail(subject, code, int(emailCodeTTL.Minutes())))
	return a.dispatch(receipt, err, code, "email code")
}

// Register creates an account once the email code checks out. Consuming the
// code and creating the user happen atomically. With a phone the account
// stays inactive until ConfirmPhone.
func (a *Authority) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return RegisterResult{}, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return RegisterResult{}, err
	}
	if err := validatePassword(in.Password); err != nil {
		return RegisterResult{}, err
	}
	var phone string
	if strings.TrimSpace(in.Phone) != "" {
		if phone, err = NormalizePhone(in.Phone); err != nil {
			return RegisterResult{}, err
		}
	}

	passwordHash, err := a.hashPassword(in.Password)
	if err != nil {
		return RegisterResult{}, err
	}

	var (
		user      types.User
		phoneCode string
	)
	err = a.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := a.ensureAvailable(ctx, email, phone); err != nil {
			return err
		}
		if err := a.redeemCode(ctx, types.PurposeEmailRegistration, email, in.EmailCode, FieldCode); err != nil {
			return err
		}

		now := a.now()
		user = types.User{
			Name:            name,
			Email:           email,
			PasswordHash:    passwordHash,
			Phone:           phone,
			EmailVerifiedAt: &now,
			IsActive:        phone == "",
		}
		created, err := a.users.Create(ctx, user)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return newError(KindConflict, FieldEmail, "email or phone already registered")
			}
			return internalError("failed to create user", err)
		}
		user = created

		if phone == "" {
			return nil
		}
		phoneCode, _, err = a.issueCode(ctx, codeRequest{
			purpose:  types.PurposePhoneConfirmation,
			target:   phone,
			ttl:      phoneCodeTTL,
			generate: numericCode,
		})
		return err
	})
	if err != nil {
		return RegisterResult{}, err
	}

	if phone == "" {
		session, err := a.session(user)
		if err != nil {
			return RegisterResult{}, err
		}
		return RegisterResult{User: session.User, Next: NextDone, Token: session.Token}, nil
	}

	result := RegisterResult{User: user.Public(), Next: NextVerifyPhone}
	receipt, err := a.gateway.SendSMS(ctx, phone, phoneCodeMessage(phoneCode))
	if err != nil {
		// The account exists already; the client can ask for a new code.
		a.log.WithError(err).WithField("user_id", user.ID).Warn("failed to send phone confirmation code")
		return result, nil
	}
	if !receipt.Delivered {
		result.SMSCode = phoneCode
	}
	return result, nil
}

// ConfirmPhone proves control of the phone given at registration and
// activates the account.
func (a *Authority) ConfirmPhone(ctx context.Context, userID int64, phone, code string) (types.PublicUser, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return types.PublicUser{}, err
	}

	var user types.User
	err = a.tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := a.loadUser(ctx, userID)
		if err != nil {
			return err
		}
		if current.Phone == "" || current.Phone != phone {
			return verificationError(FieldPhone)
		}
		if err := a.redeemCode(ctx, types.PurposePhoneConfirmation, phone, code, FieldCode); err != nil {
			return err
		}

		now := a.now()
		user, err = a.users.Update(ctx, userID, types.UserPatch{
			PhoneVerifiedAt: &now,
			IsActive:        ptr(true),
		})
		if err != nil {
			return internalError("failed to confirm phone", err)
		}
		return nil
	})
	if err != nil {
		return types.PublicUser{}, err
	}
	return user.Public(), nil
}

// ResendPhoneCode issues a fresh phone confirmation code for an account
// whose phone is still unverified. Unknown emails and verified phones get
// the same empty success.
func (a *Authority) ResendPhoneCode(ctx context.Context, email string) (Dispatch, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Dispatch{}, err
	}

	user, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Dispatch{}, nil
		}
		return Dispatch{}, internalError("failed to load user", err)
	}
	if user.Phone == "" || user.PhoneVerifiedAt != nil {
		return Dispatch{}, nil
	}

	code, issued, err := a.issueCode(ctx, codeRequest{
		purpose:  types.PurposePhoneConfirmation,
		target:   user.Phone,
		ttl:      phoneCodeTTL,
		generate: numericCode,
		throttle: true,
	})
	if err != nil || !issued {
		return Dispatch{}, err
	}

	receipt, err := a.gateway.SendSMS(ctx, user.Phone, phoneCodeMessage(code))
	return a.dispatch(receipt, err, code, "phone code")
}

func (a *Authority) ensureAvailable(ctx context.Context, email, phone string) error {
	if _, err := a.users.FindByEmail(ctx, email); err == nil {
		return newError(KindConflict, FieldEmail, "email already registered")
	} else if !errors.Is(err, store.ErrNotFound) {
		return internalError("failed to look up email", err)
	}

	if phone == "" {
		return nil
	}
	if _, err := a.users.FindByPhone(ctx, phone); err == nil {
		return newError(KindConflict, FieldPhone, "phone already registered")
	} else if !errors.Is(err, store.ErrNotFound) {
		return internalError("failed to look up phone", err)
	}
	return nil
}

func phoneCodeMessage(code string) string {
	return fmt.Sprintf("ShortTrack: your confirmation code is %s. It expires in %d minutes.",
		code, int(phoneCodeTTL.Minutes()))
}
