package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shorttrack/apiserver/internal/delivery"
	"github.com/shorttrack/apiserver/internal/store"
	"github.com/shorttrack/apiserver/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type txKey struct{}

// memStore keeps users and codes in memory. Transactions are serialized and
// roll back to a snapshot on error.
type memStore struct {
	txMu sync.Mutex

	mu     sync.Mutex
	nextID int64
	users  map[int64]types.User
	codes  []types.VerificationCode
}

func newMemStore() *memStore {
	return &memStore{users: make(map[int64]types.User)}
}

type memSnapshot struct {
	nextID int64
	users  map[int64]types.User
	codes  []types.VerificationCode
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make(map[int64]types.User, len(s.users))
	for id, u := range s.users {
		users[id] = cloneUser(u)
	}
	return memSnapshot{
		nextID: s.nextID,
		users:  users,
		codes:  append([]types.VerificationCode(nil), s.codes...),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.users = snap.users
	s.codes = snap.codes
}

func cloneUser(u types.User) types.User {
	if u.BackupCodes != nil {
		u.BackupCodes = append([]string{}, u.BackupCodes...)
	}
	return u
}

func (s *memStore) FindByID(_ context.Context, id int64) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *memStore) FindByEmail(_ context.Context, email string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (s *memStore) FindByPhone(_ context.Context, phone string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone != "" && u.Phone == phone {
			return cloneUser(u), nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (s *memStore) Create(_ context.Context, user types.User) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email || (user.Phone != "" && u.Phone == user.Phone) {
			return types.User{}, store.ErrConflict
		}
	}
	s.nextID++
	user.ID = s.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (s *memStore) Update(_ context.Context, id int64, patch types.UserPatch) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	if patch.EmailVerifiedAt != nil {
		u.EmailVerifiedAt = patch.EmailVerifiedAt
	}
	if patch.PhoneVerifiedAt != nil {
		u.PhoneVerifiedAt = patch.PhoneVerifiedAt
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}
	if patch.TOTPEnabled != nil {
		u.TOTPEnabled = *patch.TOTPEnabled
	}
	if patch.TOTPSecret != nil {
		u.TOTPSecret = *patch.TOTPSecret
	}
	if patch.BackupCodes != nil {
		u.BackupCodes = append([]string{}, patch.BackupCodes...)
	}
	if patch.OTP != nil {
		u.OTPCodeHash = patch.OTP.CodeHash
		if patch.OTP.CodeHash == "" {
			u.OTPExpiresAt = nil
		} else {
			expires := patch.OTP.ExpiresAt
			u.OTPExpiresAt = &expires
		}
	}
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return cloneUser(u), nil
}

func (s *memStore) ConsumeBackupCode(_ context.Context, id int64, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	for i, c := range u.BackupCodes {
		if c == digest {
			u.BackupCodes = append(append([]string{}, u.BackupCodes[:i]...), u.BackupCodes[i+1:]...)
			s.users[id] = u
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *memStore) ClearOTP(_ context.Context, id int64, codeHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.OTPCodeHash == "" || u.OTPCodeHash != codeHash {
		return store.ErrNotFound
	}
	u.OTPCodeHash = ""
	u.OTPExpiresAt = nil
	s.users[id] = u
	return nil
}

// codeStore adapts memStore to CodeStore; the method names clash with the
// user methods.
type codeStore struct{ s *memStore }

func (c codeStore) Create(_ context.Context, code types.VerificationCode) (types.VerificationCode, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}
	c.s.codes = append(c.s.codes, code)
	return code, nil
}

func (c codeStore) FindLatest(_ context.Context, purpose types.CodePurpose, target string) (types.VerificationCode, error) {
	return c.latest(func(v types.VerificationCode) bool {
		return v.Purpose == purpose && v.Target == target
	})
}

func (c codeStore) FindLatestActive(_ context.Context, purpose types.CodePurpose, target string, now time.Time) (types.VerificationCode, error) {
	return c.latest(func(v types.VerificationCode) bool {
		return v.Purpose == purpose && v.Target == target && v.Usable(now)
	})
}

func (c codeStore) latest(match func(types.VerificationCode) bool) (types.VerificationCode, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var (
		found types.VerificationCode
		ok    bool
	)
	for _, v := range c.s.codes {
		if match(v) && (!ok || !v.CreatedAt.Before(found.CreatedAt)) {
			found, ok = v, true
		}
	}
	if !ok {
		return types.VerificationCode{}, store.ErrNotFound
	}
	return found, nil
}

func (c codeStore) MarkConsumed(_ context.Context, id uuid.UUID, now time.Time) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for i, v := range c.s.codes {
		if v.ID != id {
			continue
		}
		if v.ConsumedAt != nil {
			return store.ErrAlreadyConsumed
		}
		consumed := now
		c.s.codes[i].ConsumedAt = &consumed
		return nil
	}
	return store.ErrNotFound
}

func (s *memStore) codeCount(purpose types.CodePurpose, target string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.codes {
		if v.Purpose == purpose && v.Target == target {
			n++
		}
	}
	return n
}

func (s *memStore) mustUser(t *testing.T, email string) types.User {
	t.Helper()
	u, err := s.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}

// fakeGateway records messages. With delivered false it behaves like an
// unconfigured channel.
type fakeGateway struct {
	mu        sync.Mutex
	delivered bool
	err       error
	emails    []delivery.Email
	sms       []delivery.SMS
}

func (g *fakeGateway) SendEmail(_ context.Context, to, subject, html string) (delivery.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return delivery.Receipt{}, g.err
	}
	g.emails = append(g.emails, delivery.Email{To: to, Subject: subject, HTML: html})
	return delivery.Receipt{Delivered: g.delivered}, nil
}

func (g *fakeGateway) SendSMS(_ context.Context, to, body string) (delivery.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return delivery.Receipt{}, g.err
	}
	g.sms = append(g.sms, delivery.SMS{To: to, Body: body})
	return delivery.Receipt{Delivered: g.delivered}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	auth    *Authority
	store   *memStore
	gateway *fakeGateway
	clock   *fakeClock
	tokens  *JWTIssuer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := newMemStore()
	gw := &fakeGateway{}
	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)}
	tokens := NewJWTIssuer("test-secret", DefaultTokenTTL)

	a := New(s, codeStore{s}, s, gw, tokens, Options{
		PublicBase: "https://sho.rt",
		HashCost:   bcrypt.MinCost,
		Now:        clock.Now,
	})
	return &harness{auth: a, store: s, gateway: gw, clock: clock, tokens: tokens}
}

// seedUser stores a user whose password is "secret1".
func (h *harness) seedUser(t *testing.T, user types.User) types.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	user.PasswordHash = string(hash)
	if user.Name == "" {
		user.Name = "Test User"
	}
	created, err := h.store.Create(context.Background(), user)
	require.NoError(t, err)
	return created
}

// register runs the email code and registration steps.
func (h *harness) register(t *testing.T, in RegisterInput) RegisterResult {
	t.Helper()
	ctx := context.Background()
	sent, err := h.auth.RequestEmailCode(ctx, in.Email)
	require.NoError(t, err)
	require.NotEmpty(t, sent.Code)
	in.EmailCode = sent.Code

	res, err := h.auth.Register(ctx, in)
	require.NoError(t, err)
	return res
}

func requireKind(t *testing.T, err error, kind Kind, field string) {
	t.Helper()
	require.Error(t, err)
	var authErr *Error
	require.True(t, errors.As(err, &authErr), "expected *auth.Error, got %T: %v", err, err)
	require.Equal(t, kind, authErr.Kind, authErr.Error())
	if field != "" {
		require.Equal(t, field, authErr.Field)
	}
}
