package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/auth"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/challenge"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/crypto"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/telemetry"
)

const qrCodeBaseURL = "https://api.qrserver.com/v1/create-qr-code/?size=240x240&data="

// TokenIssuer creates bearer tokens once a login has fully succeeded.
type TokenIssuer interface {
	IssueToken(ctx context.Context, user *models.User, name string) (*IssuedToken, error)
}

// ChallengeInput is one submission against a pending two-factor challenge.
// Code wins when both Code and RecoveryCode are set.
type ChallengeInput struct {
	ChallengeToken string
	Code           string
	RecoveryCode   string
}

// SetupResult is returned when enrollment starts.
type SetupResult struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRURL      string `json:"qr_url"`
}

// TwoFactorService drives enrollment and the login challenge.
type TwoFactorService struct {
	users      UserStore
	issuer     TokenIssuer
	challenges challenge.Store
	totp       auth.TOTPProvider
	cipher     crypto.ReversibleCipher
	now        func() time.Time
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(users UserStore, issuer TokenIssuer, challenges challenge.Store, totp auth.TOTPProvider, cipher crypto.ReversibleCipher) *TwoFactorService {
	return &TwoFactorService{
		users:      users,
		issuer:     issuer,
		challenges: challenges,
		totp:       totp,
		cipher:     cipher,
		now:        time.Now,
	}
}

// Challenge consumes the challenge and, when the code or recovery code is
// valid, issues a bearer token. The challenge is gone after this call
// whatever the outcome.
func (s *TwoFactorService) Challenge(ctx context.Context, in ChallengeInput) (*models.User, *IssuedToken, error) {
	code := strings.TrimSpace(in.Code)
	recovery := strings.TrimSpace(in.RecoveryCode)
	if code == "" && recovery == "" {
		return nil, nil, ErrMissingTwoFactorResponse
	}

	value, ok, err := s.challenges.Take(ctx, challenge.TwoFactorPrefix+in.ChallengeToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read two-factor challenge: %w", err)
	}
	if !ok {
		telemetry.AuthAttemptsTotal.WithLabelValues("two_factor_challenge", "expired").Inc()
		return nil, nil, ErrChallengeExpired
	}

	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, nil, ErrChallengeExpired
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		telemetry.AuthAttemptsTotal.WithLabelValues("two_factor_challenge", "user_not_found").Inc()
		return nil, nil, ErrUserNotFound
	}
	if user.IsSuspended {
		telemetry.AuthAttemptsTotal.WithLabelValues("two_factor_challenge", "suspended").Inc()
		return nil, nil, ErrAccountSuspended
	}

	var verified bool
	if code != "" {
		verified = s.verifyCode(user, code)
	} else {
		verified, err = s.spendRecoveryCode(ctx, user, recovery)
		if err != nil {
			return nil, nil, err
		}
	}
	if !verified {
		telemetry.AuthAttemptsTotal.WithLabelValues("two_factor_challenge", "invalid_response").Inc()
		return nil, nil, ErrInvalidTwoFactorResponse
	}

	issued, err := s.issuer.IssueToken(ctx, user, DefaultTokenName)
	if err != nil {
		return nil, nil, err
	}
	telemetry.AuthAttemptsTotal.WithLabelValues("two_factor_challenge", "success").Inc()
	return user, issued, nil
}

func (s *TwoFactorService) verifyCode(user *models.User, code string) bool {
	if user.TwoFactorSecret == nil || *user.TwoFactorSecret == "" {
		return false
	}
	secret, err := s.cipher.Decrypt(*user.TwoFactorSecret)
	if err != nil {
		slog.Warn("failed to decrypt two-factor secret", "user_id", user.ID, "error", err)
		return false
	}
	return s.totp.Verify(secret, code)
}

// spendRecoveryCode removes submitted from the user's stored set. The write
// only lands if the stored ciphertext is still the one that was read, so two
// concurrent spends of the same code cannot both succeed.
func (s *TwoFactorService) spendRecoveryCode(ctx context.Context, user *models.User, submitted string) (bool, error) {
	if user.TwoFactorRecoveryCodes == nil || *user.TwoFactorRecoveryCodes == "" {
		return false, nil
	}
	plain, err := s.cipher.Decrypt(*user.TwoFactorRecoveryCodes)
	if err != nil {
		slog.Warn("failed to decrypt recovery codes", "user_id", user.ID, "error", err)
		return false, nil
	}
	codes, err := auth.DecodeRecoveryCodes(plain)
	if err != nil {
		slog.Warn("stored recovery codes are malformed", "user_id", user.ID, "error", err)
		return false, nil
	}

	remaining, ok := auth.SpendRecoveryCode(codes, submitted)
	if !ok {
		return false, nil
	}
	next, err := s.sealCodes(remaining)
	if err != nil {
		return false, err
	}
	swapped, err := s.users.SwapRecoveryCodes(ctx, user.ID, user.TwoFactorRecoveryCodes, next)
	if err != nil {
		return false, fmt.Errorf("failed to store recovery codes: %w", err)
	}
	if !swapped {
		slog.Warn("recovery code spend lost a concurrent update", "user_id", user.ID)
		return false, nil
	}
	user.TwoFactorRecoveryCodes = &next
	return true, nil
}

func (s *TwoFactorService) sealCodes(codes []string) (string, error) {
	plain, err := auth.EncodeRecoveryCodes(codes)
	if err != nil {
		return "", err
	}
	sealed, err := s.cipher.Encrypt(plain)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt recovery codes: %w", err)
	}
	return sealed, nil
}

// Setup starts enrollment with a fresh secret. Any earlier confirmation is
// dropped until Confirm succeeds again.
func (s *TwoFactorService) Setup(ctx context.Context, user *models.User) (*SetupResult, error) {
	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	sealed, err := s.cipher.Encrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt two-factor secret: %w", err)
	}
	if err := s.users.SetTwoFactorSecret(ctx, user.ID, sealed); err != nil {
		return nil, fmt.Errorf("failed to store two-factor secret: %w", err)
	}

	uri, err := s.totp.EnrollmentURI(secret, user.Email)
	if err != nil {
		return nil, err
	}
	return &SetupResult{
		Secret:     secret,
		OTPAuthURL: uri,
		QRURL:      qrCodeBaseURL + url.QueryEscape(uri),
	}, nil
}

// Confirm checks code against the pending secret, marks enrollment confirmed
// and returns a new set of recovery codes.
func (s *TwoFactorService) Confirm(ctx context.Context, user *models.User, code string) ([]string, error) {
	if !s.verifyCode(user, strings.TrimSpace(code)) {
		return nil, ErrInvalidTwoFactorCode
	}

	codes, err := auth.GenerateRecoveryCodes()
	if err != nil {
		return nil, err
	}
	sealed, err := s.sealCodes(codes)
	if err != nil {
		return nil, err
	}
	if err := s.users.ConfirmTwoFactor(ctx, user.ID, sealed, s.now()); err != nil {
		return nil, fmt.Errorf("failed to confirm two-factor: %w", err)
	}
	return codes, nil
}

// RegenerateRecoveryCodes replaces the recovery code set of an enrolled user.
func (s *TwoFactorService) RegenerateRecoveryCodes(ctx context.Context, user *models.User) ([]string, error) {
	if user.TwoFactorConfirmedAt == nil {
		return nil, ErrTwoFactorNotEnabled
	}
	codes, err := auth.GenerateRecoveryCodes()
	if err != nil {
		return nil, err
	}
	sealed, err := s.sealCodes(codes)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetRecoveryCodes(ctx, user.ID, sealed); err != nil {
		return nil, fmt.Errorf("failed to store recovery codes: %w", err)
	}
	return codes, nil
}

// Disable removes the secret, recovery codes and confirmation.
func (s *TwoFactorService) Disable(ctx context.Context, user *models.User) error {
	if err := s.users.DisableTwoFactor(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}
	return nil
}
