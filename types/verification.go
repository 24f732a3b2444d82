package types

import (
	"time"

	"github.com/google/uuid"
)

// CodePurpose names the flow a verification code belongs to.
type CodePurpose string

const (
	PurposeEmailRegistration CodePurpose = "email-registration"
	PurposePhoneConfirmation CodePurpose = "phone-confirmation"
	PurposePasswordReset     CodePurpose = "password-reset"
	PurposeMagicLogin        CodePurpose = "magic-login"
)

// Valid reports whether p is one of the known purposes.
func (p CodePurpose) Valid() bool {
	switch p {
	case PurposeEmailRegistration, PurposePhoneConfirmation, PurposePasswordReset, PurposeMagicLogin:
		return true
	default:
		return false
	}
}

// VerificationCode is a single-use, expiring proof of control over a target
// such as an email address or a phone number.
type VerificationCode struct {
	// ID is the unique identifier of the code row.
	ID uuid.UUID `json:"id" db:"id"`

	// Purpose is the flow the code was issued for.
	Purpose CodePurpose `json:"purpose" db:"purpose"`

	// Target is the normalized email address or E.164 phone number.
	Target string `json:"target" db:"target"`

	// CodeHash is the bcrypt hash of the plaintext code or token.
	CodeHash string `json:"-" db:"code_hash"`

	// CreatedAt is when the code was issued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// ExpiresAt is when the code stops being usable.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// ConsumedAt is set once the code has been redeemed.
	ConsumedAt *time.Time `json:"consumed_at,omitempty" db:"consumed_at"`
}

// Usable reports whether the code can still be redeemed at now.
func (c VerificationCode) Usable(now time.Time) bool {
	return c.ConsumedAt == nil && now.Before(c.ExpiresAt)
}
