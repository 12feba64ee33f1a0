package services

import (
	"context"
	"time"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
)

// UserStore is the subset of repositories.UserRepository the services use.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID int64, name, email string, clearVerification bool) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID int64, at time.Time) error
	SetTwoFactorSecret(ctx context.Context, userID int64, encryptedSecret string) error
	ConfirmTwoFactor(ctx context.Context, userID int64, encryptedCodes string, at time.Time) error
	SetRecoveryCodes(ctx context.Context, userID int64, encryptedCodes string) error
	SwapRecoveryCodes(ctx context.Context, userID int64, previous *string, next string) (bool, error)
	DisableTwoFactor(ctx context.Context, userID int64) error
}

// TokenStore is the subset of repositories.APITokenRepository the services use.
type TokenStore interface {
	CreateToken(ctx context.Context, token *models.APIToken) error
	DeleteByHash(ctx context.Context, tokenHash string) (int64, error)
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

// ResetStore is the subset of repositories.PasswordResetRepository the services use.
type ResetStore interface {
	PutToken(ctx context.Context, email, tokenHash string, at time.Time) error
	GetToken(ctx context.Context, email string) (tokenHash string, createdAt time.Time, found bool, err error)
	DeleteToken(ctx context.Context, email string) error
}
