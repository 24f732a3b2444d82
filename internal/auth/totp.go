package auth

import (
	"bytes"
	"context"
	"image/png"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/shorttrack/apiserver/types"
)

const (
	totpPeriod = 30
	totpSkew   = 1
	qrSize     = 256
)

// TOTPSetup is what a client needs to enroll an authenticator app.
type TOTPSetup struct {
	OTPAuthURL string `json:"otpauthUrl"`
	QRPNG      []byte `json:"-"`
}

// SetupTOTP starts authenticator enrollment with a fresh secret. A pending
// secret is replaced, and TOTP stays off until EnableTOTP. Accounts that
// already have TOTP enabled are rejected.
func (a *Authority) SetupTOTP(ctx context.Context, userID int64) (TOTPSetup, error) {
	user, err := a.loadUser(ctx, userID)
	if err != nil {
		return TOTPSetup{}, err
	}
	if user.TOTPEnabled {
		return TOTPSetup{}, newError(KindConflict, FieldCode, "two-factor authentication is already enabled")
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      a.totpIssuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPSetup{}, internalError("failed to generate secret", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return TOTPSetup{}, internalError("failed to render QR code", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return TOTPSetup{}, internalError("failed to encode QR code", err)
	}

	if _, err := a.users.Update(ctx, userID, types.UserPatch{
		TOTPSecret:  ptr(key.Secret()),
		TOTPEnabled: ptr(false),
		BackupCodes: []string{},
	}); err != nil {
		return TOTPSetup{}, internalError("failed to store secret", err)
	}

	return TOTPSetup{OTPAuthURL: key.URL(), QRPNG: buf.Bytes()}, nil
}

// EnableTOTP turns on two-factor sign-in once code proves the app is set
// up, and returns the backup codes. They are only ever shown here.
func (a *Authority) EnableTOTP(ctx context.Context, userID int64, code string) ([]string, error) {
	var plain []string
	err := a.tx.WithTx(ctx, func(ctx context.Context) error {
		user, err := a.loadUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.TOTPEnabled {
			return newError(KindConflict, FieldCode, "two-factor authentication is already enabled")
		}
		if user.TOTPSecret == "" || !a.validTOTP(user.TOTPSecret, code) {
			return verificationError(FieldCode)
		}

		var digests []string
		plain, digests, err = backupCodes()
		if err != nil {
			return internalError("failed to generate backup codes", err)
		}
		if _, err := a.users.Update(ctx, userID, types.UserPatch{
			TOTPEnabled: ptr(true),
			BackupCodes: digests,
		}); err != nil {
			return internalError("failed to enable two-factor authentication", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plain, nil
}

func (a *Authority) validTOTP(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, a.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
