package types

import "time"

// User represents an account in the system.
// It carries identity, credentials, and the verification state that gates
// sign-in.
type User struct {
	// ID is the unique identifier of the user.
	ID int64 `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's lower-cased email address. It is unique across
	// all users.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Phone is the user's phone number in E.164 format, or empty when the
	// user signed up without one. It is unique when set.
	Phone string `json:"phone,omitempty" db:"phone"`

	// EmailVerifiedAt is when the user proved control of Email.
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty" db:"email_verified_at"`

	// PhoneVerifiedAt is when the user proved control of Phone.
	PhoneVerifiedAt *time.Time `json:"phone_verified_at,omitempty" db:"phone_verified_at"`

	// IsActive is false until every verification required by the chosen
	// signup path has completed.
	IsActive bool `json:"is_active" db:"is_active"`

	// TOTPEnabled indicates that sign-in requires an authenticator code.
	TOTPEnabled bool `json:"totp_enabled" db:"totp_enabled"`

	// TOTPSecret is the base32 shared secret, set once enrollment starts.
	TOTPSecret string `json:"-" db:"totp_secret"`

	// BackupCodes holds SHA-256 digests of the unused single-use backup
	// codes issued when TOTP was enabled.
	BackupCodes []string `json:"-" db:"backup_codes"`

	// OTPCodeHash is the hash of the pending SMS sign-in code, if any.
	OTPCodeHash string `json:"-" db:"otp_code_hash"`

	// OTPExpiresAt is when the pending SMS sign-in code stops being valid.
	OTPExpiresAt *time.Time `json:"-" db:"otp_expires_at"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PublicUser is the projection of a User that is safe to return to clients.
type PublicUser struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Public returns the client-safe projection of u.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Phone: u.Phone,
	}
}

// UserPatch lists the user fields to change in a partial update.
// Nil fields are left untouched.
type UserPatch struct {
	PasswordHash    *string
	EmailVerifiedAt *time.Time
	PhoneVerifiedAt *time.Time
	IsActive        *bool
	TOTPEnabled     *bool
	TOTPSecret      *string

	// BackupCodes replaces the stored digests when non-nil. An empty,
	// non-nil slice clears them.
	BackupCodes []string

	// OTP replaces the SMS sign-in slot when non-nil. A zero OTPSlot
	// clears it.
	OTP *OTPSlot
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.PasswordHash == nil &&
		p.EmailVerifiedAt == nil &&
		p.PhoneVerifiedAt == nil &&
		p.IsActive == nil &&
		p.TOTPEnabled == nil &&
		p.TOTPSecret == nil &&
		p.BackupCodes == nil &&
		p.OTP == nil
}

// OTPSlot is the single pending SMS sign-in code kept on a user record.
type OTPSlot struct {
	CodeHash  string
	ExpiresAt time.Time
}
