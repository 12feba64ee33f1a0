package services

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
)

func loginForChallenge(t *testing.T, f *fixture, email string) string {
	t.Helper()
	res, err := f.auth.Login(context.Background(), email, testPassword)
	require.NoError(t, err)
	require.True(t, res.RequiresTwoFactor())
	return res.ChallengeToken
}

// ---------------------------------------------------------------------------
// Challenge
// ---------------------------------------------------------------------------

func TestChallenge_CorrectCodeIssuesToken(t *testing.T) {
	f := newFixture(t)
	u := f.addEnrolledUser(t, "ops@example.com", []string{"AAAA-1111"})
	token := loginForChallenge(t, f, "ops@example.com")

	user, issued, err := f.twoFactor.Challenge(context.Background(), ChallengeInput{ChallengeToken: token, Code: testCode})
	require.NoError(t, err)
	assert.Equal(t, u.ID, user.ID)
	require.NotNil(t, issued)
	assert.Len(t, issued.Raw, 64)
	assert.Equal(t, 1, f.tokens.count())
}

func TestChallenge_WrongThenRightIsExpired(t *testing.T) {
	f := newFixture(t)
	f.addEnrolledUser(t, "ops@example.com", nil)
	token := loginForChallenge(t, f, "ops@example.com")
	ctx := context.Background()

	_, _, err := f.twoFactor.Challenge(ctx, ChallengeInput{ChallengeToken: token, Code: "000000"})
	assert.ErrorIs(t, err, ErrInvalidTwoFactorResponse)

	_, _, err = f.twoFactor.Challenge(ctx, ChallengeInput{ChallengeToken: token, Code: testCode})
	assert.ErrorIs(t, err, ErrChallengeExpired, "consumed challenge must not re-evaluate the code")
	assert.Equal(t, 0, f.tokens.count())
}

func TestChallenge_SuccessConsumesChallenge(t *testing.T) {
	f := newFixture(t)
	f.addEnrolledUser(t, "ops@example.com", nil)
	token := loginForChallenge(t, f, "ops@example.com")
	ctx := context.Background()

	_, _, err := f.twoFactor.Challenge(ctx, ChallengeInput{ChallengeToken: token, Code: testCode})
	require.NoError(t, err)
	_, _, err = f.twoFactor.Challenge(ctx, ChallengeInput{ChallengeToken: token, Code: testCode})
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestChallenge_EmptySubmissionKeepsChallenge(t *testing.T) {
	f := newFixture(t)
	f.addEnrolledUser(t, "ops@example.com", nil)
	token := loginForChallenge(t, f, "ops@example.com")
	ctx := context.Background()

	_, _, err := f.twoFactor.Challenge(ctx, ChallengeInput{ChallengeToken: token, Code: "  "})
	assert.ErrorIs(t, err, ErrMissingTwoFactorResponse)

	_, _, err = f.twoFactor.Challenge(ctx, ChallengeInput{ChallengeToken: token, Code: testCode})
	assert.NoError(t, err, "a validation failure must not consume the challenge")
}

func TestChallenge_UnknownToken(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.twoFactor.Challenge(context.Background(), ChallengeInput{ChallengeToken: "nope", Code: testCode})
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestChallenge_UserDeleted(t *testing.T) {
	f := newFixture(t)
	u := f.addEnrolledUser(t, "ops@example.com", nil)
	token := loginForChallenge(t, f, "ops@example.com")

	f.users.mu.Lock()
	delete(f.users.byID, u.ID)
	f.users.mu.Unlock()

	_, _, err := f.twoFactor.Challenge(context.Background(), ChallengeInput{ChallengeToken: token, Code: testCode})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestChallenge_UserSuspendedAfterLogin(t *testing.T) {
	f := newFixture(t)
	u := f.addEnrolledUser(t, "ops@example.com", nil)
	token := loginForChallenge(t, f, "ops@example.com")
	require.NoError(t, f.users.update(u.ID, func(stored *models.User) { stored.IsSuspended = true }))

	user, issued, err := f.twoFactor.Challenge(context.Background(), ChallengeInput{ChallengeToken: token, Code: testCode})
	assert.ErrorIs(t, err, ErrAccountSuspended)
	assert.Nil(t, user)
	assert.Nil(t, issued)
	assert.Equal(t, 0, f.tokens.count())
}

func TestChallenge_CodeTakesPrecedence(t *testing.T) {
	f := newFixture(t)
	u := f.addEnrolledUser(t, "ops@example.com", []string{"AAAA-1111"})
	token := loginForChallenge(t, f, "ops@example.com")

	_, _, err := f.twoFactor.Challenge(context.Background(), ChallengeInput{
		ChallengeToken: token,
		Code:           "000000",
		RecoveryCode:   "AAAA-1111",
	})
	assert.ErrorIs(t, err, ErrInvalidTwoFactorResponse)
	assert.Equal(t, []string{"AAAA-1111"}, f.storedCodes(t, u.ID), "recovery code must not be spent")
}

func TestChallenge_ConcurrentSubmissionsSucceedOnce(t *testing.T) {
	f := newFixture(t)
	f.addEnrolledUser(t, "ops@example.com", nil)
	token := loginForChallenge(t, f, "ops@example.com")

	var wins, expired int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.twoFactor.Challenge(context.Background(), ChallengeInput{ChallengeToken: token, Code: testCode})
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case err == ErrChallengeExpired:
				atomic.AddInt32(&expired, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(15), expired)
}

// ---------------------------------------------------------------------------
// Recovery codes
// ---------------------------------------------------------------------------

func TestChallenge_RecoveryCodeIsSingleUse(t *testing.T) {
	f := newFixture(t)
	u := f.addEnrolledUser(t, "ops@example.com", []string{"AAAA-1111", "BBBB-2222"})
	ctx := context.Background()

	token := loginForChallenge(t, f, "ops@example.com")
	_, issued, err := f.twoFactor.Challenge(ctx, ChallengeInput{ChallengeToken: token, RecoveryCode: "aaaa-1111"})
	require.NoError(t, err)
	require.NotNil(t, issued)
	assert.Equal(t, []string{"BBBB-2222"}, f.storedCodes(t, u.ID))

	token = loginForChallenge(t, f, "ops@example.com")
	_, _, err = f.twoFactor.Challenge(ctx, ChallengeInput{ChallengeToken: token, RecoveryCode: "AAAA-1111"})
	assert.ErrorIs(t, err, ErrInvalidTwoFactorResponse)
}

func TestSpendRecoveryCode_LostRace(t *testing.T) {
	f := newFixture(t)
	u := f.addEnrolledUser(t, "ops@example.com", []string{"AAAA-1111", "BBBB-2222"})
	stale := f.users.get(u.ID)

	// Another request spends a code first, changing the stored ciphertext.
	ok, err := f.twoFactor.spendRecoveryCode(context.Background(), f.users.get(u.ID), "BBBB-2222")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.twoFactor.spendRecoveryCode(context.Background(), stale, "AAAA-1111")
	require.NoError(t, err)
	assert.False(t, ok, "write based on a stale read must not land")
	assert.Equal(t, []string{"AAAA-1111"}, f.storedCodes(t, u.ID))
}

func TestSpendRecoveryCode_ConcurrentSameCode(t *testing.T) {
	f := newFixture(t)
	u := f.addEnrolledUser(t, "ops@example.com", []string{"AAAA-1111", "BBBB-2222"})

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		snapshot := f.users.get(u.ID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := f.twoFactor.spendRecoveryCode(context.Background(), snapshot, "AAAA-1111"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

// ---------------------------------------------------------------------------
// Enrollment
// ---------------------------------------------------------------------------

func TestSetupConfirmRegenerateDisable(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "ops@example.com")
	ctx := context.Background()

	setup, err := f.twoFactor.Setup(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, testSecret, setup.Secret)
	assert.True(t, strings.HasPrefix(setup.OTPAuthURL, "otpauth://totp/"))
	assert.True(t, strings.HasPrefix(setup.QRURL, qrCodeBaseURL))
	assert.NotContains(t, setup.QRURL[len(qrCodeBaseURL):], "://", "otpauth url is query-escaped")

	u = f.users.get(u.ID)
	require.NotNil(t, u.TwoFactorSecret)
	assert.NotEqual(t, testSecret, *u.TwoFactorSecret, "secret is stored encrypted")
	assert.False(t, u.TwoFactorEnabled())

	_, err = f.twoFactor.RegenerateRecoveryCodes(ctx, u)
	assert.ErrorIs(t, err, ErrTwoFactorNotEnabled)

	_, err = f.twoFactor.Confirm(ctx, u, "000000")
	assert.ErrorIs(t, err, ErrInvalidTwoFactorCode)

	codes, err := f.twoFactor.Confirm(ctx, u, testCode)
	require.NoError(t, err)
	assert.Len(t, codes, 8)
	u = f.users.get(u.ID)
	assert.True(t, u.TwoFactorEnabled())
	assert.Equal(t, codes, f.storedCodes(t, u.ID))

	fresh, err := f.twoFactor.RegenerateRecoveryCodes(ctx, u)
	require.NoError(t, err)
	assert.Len(t, fresh, 8)
	assert.NotEqual(t, codes, fresh)
	assert.Equal(t, fresh, f.storedCodes(t, u.ID))

	require.NoError(t, f.twoFactor.Disable(ctx, u))
	u = f.users.get(u.ID)
	assert.Nil(t, u.TwoFactorSecret)
	assert.Nil(t, u.TwoFactorRecoveryCodes)
	assert.Nil(t, u.TwoFactorConfirmedAt)
}

func TestConfirm_WithoutSetup(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "ops@example.com")
	_, err := f.twoFactor.Confirm(context.Background(), u, testCode)
	assert.ErrorIs(t, err, ErrInvalidTwoFactorCode)
}
