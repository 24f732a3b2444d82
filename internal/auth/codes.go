package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"time"

	"github.com/shorttrack/apiserver/internal/store"
	"github.com/shorttrack/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	emailCodeTTL   = 10 * time.Minute
	phoneCodeTTL   = 10 * time.Minute
	resetCodeTTL   = 10 * time.Minute
	magicLinkTTL   = 15 * time.Minute
	smsLoginTTL    = 10 * time.Minute
	resendThrottle = 60 * time.Second

	magicTokenLength = 32
	backupCodeCount  = 6
	backupCodeLength = 10
)

const (
	tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	// backupAlphabet leaves out 0, O, 1, I and L.
	backupAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
)

// numericCode returns a six-digit code in [100000, 999999].
func numericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return big.NewInt(0).Add(n, big.NewInt(100000)).String(), nil
}

// randomString draws length characters uniformly from alphabet.
func randomString(alphabet string, length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

func magicToken() (string, error) {
	return randomString(tokenAlphabet, magicTokenLength)
}

func backupCodes() (plain []string, digests []string, err error) {
	plain = make([]string, 0, backupCodeCount)
	digests = make([]string, 0, backupCodeCount)
	for len(plain) < backupCodeCount {
		code, err := randomString(backupAlphabet, backupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		plain = append(plain, code)
		digests = append(digests, digest(code))
	}
	return plain, digests, nil
}

// digest is the stored form of backup codes.
func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func (a *Authority) hashCode(code string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), a.hashCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func codeMatches(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

// codeRequest describes a verification code to issue.
type codeRequest struct {
	purpose  types.CodePurpose
	target   string
	ttl      time.Duration
	generate func() (string, error)
	throttle bool
}

// issueCode stores a fresh code for (purpose, target) and returns its
// plaintext. When throttled and a code for the same pair was created within
// the resend window, nothing is stored and issued is false.
func (a *Authority) issueCode(ctx context.Context, req codeRequest) (plaintext string, issued bool, err error) {
	now := a.now()

	if req.throttle {
		latest, err := a.codes.FindLatest(ctx, req.purpose, req.target)
		switch {
		case err == nil:
			if now.Sub(latest.CreatedAt) < resendThrottle {
				return "", false, nil
			}
		case errors.Is(err, store.ErrNotFound):
		default:
			return "", false, internalError("failed to check recent codes", err)
		}
	}

	plaintext, err = req.generate()
	if err != nil {
		return "", false, internalError("failed to generate code", err)
	}
	hashed, err := a.hashCode(plaintext)
	if err != nil {
		return "", false, internalError("failed to hash code", err)
	}

	if _, err := a.codes.Create(ctx, types.VerificationCode{
		Purpose:   req.purpose,
		Target:    req.target,
		CodeHash:  hashed,
		CreatedAt: now,
		ExpiresAt: now.Add(req.ttl),
	}); err != nil {
		return "", false, internalError("failed to store code", err)
	}
	return plaintext, true, nil
}

// redeemCode consumes the newest active code for (purpose, target) if it
// matches plaintext. Run it inside a transaction together with the change it
// authorizes.
func (a *Authority) redeemCode(ctx context.Context, purpose types.CodePurpose, target, plaintext, field string) error {
	if plaintext == "" {
		return verificationError(field)
	}
	now := a.now()

	code, err := a.codes.FindLatestActive(ctx, purpose, target, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return verificationError(field)
		}
		return internalError("failed to load code", err)
	}
	if !code.Usable(now) || !codeMatches(code.CodeHash, plaintext) {
		return verificationError(field)
	}

	if err := a.codes.MarkConsumed(ctx, code.ID, now); err != nil {
		if errors.Is(err, store.ErrAlreadyConsumed) || errors.Is(err, store.ErrNotFound) {
			return verificationError(field)
		}
		return internalError("failed to consume code", err)
	}
	return nil
}

func (a *Authority) loadUser(ctx context.Context, userID int64) (types.User, error) {
	user, err := a.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, newError(KindNotFound, FieldAccount, "user not found")
		}
		return types.User{}, internalError("failed to load user", err)
	}
	return user, nil
}

func ptr[T any](v T) *T {
	return &v
}
