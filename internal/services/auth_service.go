// Package services implements the account and two-factor business logic that
// coordinates repositories, the challenge store and the crypto primitives.
// Handlers stay thin: they validate input, call a service, and map the
// returned sentinel errors to HTTP responses.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/auth"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/challenge"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/telemetry"
)

const (
	// DefaultTokenName labels tokens issued by password or 2FA login.
	DefaultTokenName = "api-token"

	passwordResetTTL = 60 * time.Minute
)

// AuthServiceConfig carries the lifetimes and hashing cost.
type AuthServiceConfig struct {
	TokenTTL        time.Duration
	ChallengeTTL    time.Duration
	VerificationTTL time.Duration
	BcryptCost      int
}

// IssuedToken is a freshly created bearer token. Raw is shown to the caller
// once and never stored.
type IssuedToken struct {
	Raw       string
	ExpiresAt time.Time
	Token     *models.APIToken
}

// LoginResult is either an issued token or a pending two-factor challenge.
type LoginResult struct {
	User           *models.User
	Token          *IssuedToken
	ChallengeToken string
}

// RequiresTwoFactor reports whether login stopped at the challenge step.
func (r *LoginResult) RequiresTwoFactor() bool {
	return r.ChallengeToken != ""
}

// AuthService handles password login, token issuance and account maintenance.
type AuthService struct {
	users      UserStore
	tokens     TokenStore
	resets     ResetStore
	challenges challenge.Store
	cfg        AuthServiceConfig
	now        func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(users UserStore, tokens TokenStore, resets ResetStore, challenges challenge.Store, cfg AuthServiceConfig) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 10 * time.Minute
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = 60 * time.Minute
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		resets:     resets,
		challenges: challenges,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Login verifies email and password. Users with confirmed two-factor
// enrollment get a challenge token instead of a bearer token. Suspended
// users get neither.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !auth.CheckPassword(user.Password, password) {
		telemetry.AuthAttemptsTotal.WithLabelValues("login", "invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}
	if user.IsSuspended {
		telemetry.AuthAttemptsTotal.WithLabelValues("login", "suspended").Inc()
		return nil, ErrAccountSuspended
	}

	if user.TwoFactorEnabled() {
		challengeToken, err := auth.GenerateToken()
		if err != nil {
			return nil, err
		}
		key := challenge.TwoFactorPrefix + challengeToken
		if err := s.challenges.Put(ctx, key, strconv.FormatInt(user.ID, 10), s.cfg.ChallengeTTL); err != nil {
			return nil, fmt.Errorf("failed to store two-factor challenge: %w", err)
		}
		telemetry.AuthAttemptsTotal.WithLabelValues("login", "challenge_issued").Inc()
		return &LoginResult{User: user, ChallengeToken: challengeToken}, nil
	}

	issued, err := s.IssueToken(ctx, user, DefaultTokenName)
	if err != nil {
		return nil, err
	}
	telemetry.AuthAttemptsTotal.WithLabelValues("login", "success").Inc()
	return &LoginResult{User: user, Token: issued}, nil
}

// IssueToken creates a bearer token for user that expires after the
// configured token TTL. Only the sha256 digest is persisted.
func (s *AuthService) IssueToken(ctx context.Context, user *models.User, name string) (*IssuedToken, error) {
	raw, digest, err := auth.IssueToken()
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.cfg.TokenTTL)
	token := &models.APIToken{
		UserID:    user.ID,
		Name:      name,
		Token:     digest,
		ExpiresAt: &expiresAt,
	}
	if err := s.tokens.CreateToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store api token: %w", err)
	}
	return &IssuedToken{Raw: raw, ExpiresAt: expiresAt, Token: token}, nil
}

// Logout revokes the presented bearer token.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	if _, err := s.tokens.DeleteByHash(ctx, auth.HashToken(rawToken)); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// RegisterInput is the self-service registration payload.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates a customer account in status "new".
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.TrimSpace(in.Email)
	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Password: hash,
		Role:     models.RoleCustomer,
		Status:   "new",
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// UpdateProfile changes name and email. Changing the email clears its
// verification.
func (s *AuthService) UpdateProfile(ctx context.Context, user *models.User, name, email string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		name = user.Name
	}
	if email == "" {
		email = user.Email
	}

	emailChanged := !strings.EqualFold(email, user.Email)
	if emailChanged {
		other, err := s.users.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
		if other != nil && other.ID != user.ID {
			return nil, ErrEmailTaken
		}
	}

	if err := s.users.UpdateProfile(ctx, user.ID, name, email, emailChanged); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	updated, err := s.users.GetUserByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrUserNotFound
	}
	return updated, nil
}

// UpdatePassword verifies the current password, stores the new one and
// revokes every token of the user.
func (s *AuthService) UpdatePassword(ctx context.Context, user *models.User, current, next string) error {
	if !auth.CheckPassword(user.Password, current) {
		return ErrCurrentPasswordInvalid
	}
	return s.setPassword(ctx, user.ID, next)
}

func (s *AuthService) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := auth.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	revoked, err := s.tokens.DeleteByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}
	slog.Info("password changed, tokens revoked", "user_id", userID, "revoked", revoked)
	return nil
}

// ForgotPassword creates a reset token for email. found is false, with no
// error, when no account uses that address.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (resetToken string, found bool, err error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", false, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return "", false, nil
	}

	resetToken, err = auth.GenerateToken()
	if err != nil {
		return "", false, err
	}
	hash, err := auth.HashPassword(resetToken, s.cfg.BcryptCost)
	if err != nil {
		return "", false, err
	}
	if err := s.resets.PutToken(ctx, user.Email, hash, s.now()); err != nil {
		return "", false, fmt.Errorf("failed to store reset token: %w", err)
	}
	return resetToken, true, nil
}

// ResetPassword consumes a reset token and sets a new password.
func (s *AuthService) ResetPassword(ctx context.Context, email, token, password string) error {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	hash, createdAt, found, err := s.resets.GetToken(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("failed to load reset token: %w", err)
	}
	if !found || s.now().Sub(createdAt) > passwordResetTTL || !auth.CheckPassword(hash, token) {
		return ErrInvalidResetToken
	}

	if err := s.setPassword(ctx, user.ID, password); err != nil {
		return err
	}
	if err := s.resets.DeleteToken(ctx, user.Email); err != nil {
		return fmt.Errorf("failed to delete reset token: %w", err)
	}
	return nil
}

// SendEmailVerification stores a single-use verification token for user.
// alreadyVerified is true, and no token is created, when the email is
// verified already.
func (s *AuthService) SendEmailVerification(ctx context.Context, user *models.User) (token string, alreadyVerified bool, err error) {
	if user.EmailVerifiedAt != nil {
		return "", true, nil
	}
	token, err = auth.GenerateToken()
	if err != nil {
		return "", false, err
	}
	key := challenge.EmailVerificationPrefix + token
	if err := s.challenges.Put(ctx, key, strconv.FormatInt(user.ID, 10), s.cfg.VerificationTTL); err != nil {
		return "", false, fmt.Errorf("failed to store verification token: %w", err)
	}
	return token, false, nil
}

// VerifyEmail consumes a verification token and marks the email verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidVerificationToken
	}
	value, ok, err := s.challenges.Take(ctx, challenge.EmailVerificationPrefix+token)
	if err != nil {
		return nil, fmt.Errorf("failed to read verification token: %w", err)
	}
	if !ok {
		return nil, ErrInvalidVerificationToken
	}
	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, ErrInvalidVerificationToken
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	now := s.now()
	if err := s.users.MarkEmailVerified(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}
	user.EmailVerifiedAt = &now
	return user, nil
}
