package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/auth"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/challenge"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/crypto"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
)

// ---------------------------------------------------------------------------
// In-memory stores
// ---------------------------------------------------------------------------

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[int64]*models.User
	nextID int64
	err    error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[int64]*models.User), nextID: 1}
}

func (f *fakeUsers) add(u *models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = f.nextID
	f.nextID++
	cp := *u
	f.byID[u.ID] = &cp
	return u
}

func (f *fakeUsers) get(id int64) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (f *fakeUsers) CreateUser(_ context.Context, u *models.User) error {
	if f.err != nil {
		return f.err
	}
	f.add(u)
	return nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.get(id), nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) update(id int64, fn func(u *models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return errors.New("no such user")
	}
	fn(u)
	return nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id int64, name, email string, clear bool) error {
	return f.update(id, func(u *models.User) {
		u.Name, u.Email = name, email
		if clear {
			u.EmailVerifiedAt = nil
		}
	})
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	return f.update(id, func(u *models.User) { u.Password = hash })
}

func (f *fakeUsers) MarkEmailVerified(_ context.Context, id int64, at time.Time) error {
	return f.update(id, func(u *models.User) { u.EmailVerifiedAt = &at })
}

func (f *fakeUsers) SetTwoFactorSecret(_ context.Context, id int64, secret string) error {
	return f.update(id, func(u *models.User) {
		u.TwoFactorSecret = &secret
		u.TwoFactorConfirmedAt = nil
	})
}

func (f *fakeUsers) ConfirmTwoFactor(_ context.Context, id int64, codes string, at time.Time) error {
	return f.update(id, func(u *models.User) {
		u.TwoFactorRecoveryCodes = &codes
		u.TwoFactorConfirmedAt = &at
	})
}

func (f *fakeUsers) SetRecoveryCodes(_ context.Context, id int64, codes string) error {
	return f.update(id, func(u *models.User) { u.TwoFactorRecoveryCodes = &codes })
}

func (f *fakeUsers) SwapRecoveryCodes(_ context.Context, id int64, previous *string, next string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	cur := u.TwoFactorRecoveryCodes
	if (cur == nil) != (previous == nil) || (cur != nil && *cur != *previous) {
		return false, nil
	}
	u.TwoFactorRecoveryCodes = &next
	return true, nil
}

func (f *fakeUsers) DisableTwoFactor(_ context.Context, id int64) error {
	return f.update(id, func(u *models.User) {
		u.TwoFactorSecret = nil
		u.TwoFactorRecoveryCodes = nil
		u.TwoFactorConfirmedAt = nil
	})
}

type fakeTokens struct {
	mu     sync.Mutex
	tokens map[string]*models.APIToken
	nextID int64
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{tokens: make(map[string]*models.APIToken), nextID: 1}
}

func (f *fakeTokens) CreateToken(_ context.Context, t *models.APIToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = f.nextID
	f.nextID++
	f.tokens[t.Token] = t
	return nil
}

func (f *fakeTokens) DeleteByHash(_ context.Context, hash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[hash]; !ok {
		return 0, nil
	}
	delete(f.tokens, hash)
	return 1, nil
}

func (f *fakeTokens) DeleteByUser(_ context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, t := range f.tokens {
		if t.UserID == userID {
			delete(f.tokens, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

type resetRow struct {
	hash string
	at   time.Time
}

type fakeResets struct {
	mu   sync.Mutex
	rows map[string]resetRow
}

func newFakeResets() *fakeResets { return &fakeResets{rows: make(map[string]resetRow)} }

func (f *fakeResets) PutToken(_ context.Context, email, hash string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[email] = resetRow{hash: hash, at: at}
	return nil
}

func (f *fakeResets) GetToken(_ context.Context, email string) (string, time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[email]
	return r.hash, r.at, ok, nil
}

func (f *fakeResets) DeleteToken(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, email)
	return nil
}

// ---------------------------------------------------------------------------
// TOTP double
// ---------------------------------------------------------------------------

// fakeTOTP accepts exactly one code per secret.
type fakeTOTP struct {
	secret string
	code   string
}

func (f *fakeTOTP) GenerateSecret() (string, error) { return f.secret, nil }

func (f *fakeTOTP) Verify(secret, code string) bool {
	return secret == f.secret && code == f.code
}

func (f *fakeTOTP) EnrollmentURI(secret, label string) (string, error) {
	return "otpauth://totp/EMS:" + label + "?secret=" + secret + "&issuer=EMS", nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

const (
	testSecret   = "JBSWY3DPEHPK3PXP"
	testCode     = "123456"
	testPassword = "password123"
)

type fixture struct {
	users      *fakeUsers
	tokens     *fakeTokens
	resets     *fakeResets
	challenges *challenge.MemoryStore
	cipher     *crypto.SecretCipher
	totp       *fakeTOTP
	auth       *AuthService
	twoFactor  *TwoFactorService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cipher, err := crypto.NewSecretCipher(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatal(err)
	}
	store := challenge.NewMemoryStore(time.Hour)
	t.Cleanup(store.Stop)

	f := &fixture{
		users:      newFakeUsers(),
		tokens:     newFakeTokens(),
		resets:     newFakeResets(),
		challenges: store,
		cipher:     cipher,
		totp:       &fakeTOTP{secret: testSecret, code: testCode},
	}
	f.auth = NewAuthService(f.users, f.tokens, f.resets, store, AuthServiceConfig{BcryptCost: 4})
	f.twoFactor = NewTwoFactorService(f.users, f.auth, store, f.totp, cipher)
	return f
}

// addUser stores a user with testPassword.
func (f *fixture) addUser(t *testing.T, email string) *models.User {
	t.Helper()
	hash, err := auth.HashPassword(testPassword, 4)
	if err != nil {
		t.Fatal(err)
	}
	return f.users.add(&models.User{Name: "Test", Email: email, Password: hash, Role: models.RoleCustomer, Status: "active"})
}

// addEnrolledUser stores a user with confirmed 2FA and the given recovery codes.
func (f *fixture) addEnrolledUser(t *testing.T, email string, codes []string) *models.User {
	t.Helper()
	u := f.addUser(t, email)
	secret, _ := f.cipher.Encrypt(testSecret)
	plain, _ := auth.EncodeRecoveryCodes(codes)
	sealed, _ := f.cipher.Encrypt(plain)
	now := time.Now()
	_ = f.users.update(u.ID, func(stored *models.User) {
		stored.TwoFactorSecret = &secret
		stored.TwoFactorRecoveryCodes = &sealed
		stored.TwoFactorConfirmedAt = &now
	})
	return f.users.get(u.ID)
}

func (f *fixture) storedCodes(t *testing.T, id int64) []string {
	t.Helper()
	u := f.users.get(id)
	if u.TwoFactorRecoveryCodes == nil {
		return nil
	}
	plain, err := f.cipher.Decrypt(*u.TwoFactorRecoveryCodes)
	if err != nil {
		t.Fatal(err)
	}
	codes, err := auth.DecodeRecoveryCodes(plain)
	if err != nil {
		t.Fatal(err)
	}
	return codes
}
