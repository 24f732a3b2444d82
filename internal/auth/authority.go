// Package auth implements the credential and verification authority: every
// sign-up, sign-in, and proof-of-control decision in ShortTrack.
//
// The authority keeps no state between calls. Users and verification codes
// live behind UserStore and CodeStore, messages leave through Gateway, and
// session credentials come from TokenIssuer.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shorttrack/apiserver/internal/delivery"
	"github.com/shorttrack/apiserver/types"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// UserStore persists users. Lookups return store.ErrNotFound when nothing
// matches and writes return store.ErrConflict on uniqueness violations.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (types.User, error)
	FindByEmail(ctx context.Context, email string) (types.User, error)
	FindByPhone(ctx context.Context, phone string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, id int64, patch types.UserPatch) (types.User, error)
	ConsumeBackupCode(ctx context.Context, id int64, digest string) error
	ClearOTP(ctx context.Context, id int64, codeHash string) error
}

// CodeStore persists verification codes. MarkConsumed must fail with
// store.ErrAlreadyConsumed when the code was already consumed.
type CodeStore interface {
	Create(ctx context.Context, code types.VerificationCode) (types.VerificationCode, error)
	FindLatest(ctx context.Context, purpose types.CodePurpose, target string) (types.VerificationCode, error)
	FindLatestActive(ctx context.Context, purpose types.CodePurpose, target string, now time.Time) (types.VerificationCode, error)
	MarkConsumed(ctx context.Context, id uuid.UUID, now time.Time) error
}

// TxRunner runs fn atomically. Store calls made with the context passed to
// fn take part in the transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Gateway delivers messages. An undelivered receipt with a nil error means
// the channel is not configured.
type Gateway interface {
	SendEmail(ctx context.Context, to, subject, html string) (delivery.Receipt, error)
	SendSMS(ctx context.Context, to, body string) (delivery.Receipt, error)
}

// TokenIssuer signs and verifies session credentials.
type TokenIssuer interface {
	Issue(userID int64) (string, error)
	Verify(token string) (int64, error)
}

// Options tune an Authority. Zero values select the defaults.
type Options struct {
	// PublicBase is the externally reachable origin used in magic links.
	PublicBase string

	// TOTPIssuer labels enrollments in authenticator apps.
	TOTPIssuer string

	// HashCost is the bcrypt cost for passwords and codes.
	HashCost int

	// Now returns the current time.
	Now func() time.Time

	Logger *log.Entry
}

// Authority owns all authentication decisions.
type Authority struct {
	users      UserStore
	codes      CodeStore
	tx         TxRunner
	gateway    Gateway
	tokens     TokenIssuer
	publicBase string
	totpIssuer string
	hashCost   int
	now        func() time.Time
	log        *log.Entry
}

// New constructs an Authority over its collaborators.
func New(users UserStore, codes CodeStore, tx TxRunner, gateway Gateway, tokens TokenIssuer, opts Options) *Authority {
	a := &Authority{
		users:      users,
		codes:      codes,
		tx:         tx,
		gateway:    gateway,
		tokens:     tokens,
		publicBase: opts.PublicBase,
		totpIssuer: opts.TOTPIssuer,
		hashCost:   opts.HashCost,
		now:        opts.Now,
		log:        opts.Logger,
	}
	if a.totpIssuer == "" {
		a.totpIssuer = "ShortTrack"
	}
	if a.hashCost == 0 {
		a.hashCost = bcrypt.DefaultCost
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.log == nil {
		a.log = log.WithField("component", "auth")
	}
	return a
}

// Session is the result of every successful sign-in.
type Session struct {
	Token string           `json:"token"`
	User  types.PublicUser `json:"user"`
}

// Dispatch reports what happened to a code the authority tried to send.
// Code holds the plaintext only when the channel is not configured.
type Dispatch struct {
	Code string `json:"code,omitempty"`
}

// Authenticate resolves a session token to its user id.
func (a *Authority) Authenticate(token string) (int64, error) {
	userID, err := a.tokens.Verify(token)
	if err != nil {
		return 0, &Error{Kind: KindUnauthorized, Field: FieldToken, Message: "invalid session token", Err: err}
	}
	return userID, nil
}

// Me returns the client-safe projection of the user.
func (a *Authority) Me(ctx context.Context, userID int64) (types.PublicUser, error) {
	user, err := a.loadUser(ctx, userID)
	if err != nil {
		return types.PublicUser{}, err
	}
	return user.Public(), nil
}

func (a *Authority) session(user types.User) (Session, error) {
	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, internalError("failed to create token", err)
	}
	return Session{Token: token, User: user.Public()}, nil
}

func (a *Authority) hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), a.hashCost)
	if err != nil {
		return "", internalError("failed to hash password", err)
	}
	return string(hashed), nil
}

// dispatch turns a send outcome into a Dispatch. A configured channel
// that fails is an internal error.
func (a *Authority) dispatch(receipt delivery.Receipt, err error, plaintext, what string) (Dispatch, error) {
	if err != nil {
		a.log.WithError(err).Errorf("failed to deliver %s", what)
		return Dispatch{}, internalError("failed to deliver "+what, err)
	}
	if receipt.Delivered {
		return Dispatch{}, nil
	}
	a.log.Debugf("%s delivery not configured, returning plaintext to caller", what)
	return Dispatch{Code: plaintext}, nil
}
