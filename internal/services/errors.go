package services

import "errors"

// Authentication and account errors. Handlers map these to HTTP responses
// with errors.Is.
var (
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrAccountSuspended         = errors.New("account is suspended")
	ErrChallengeExpired         = errors.New("two-factor challenge expired")
	ErrInvalidTwoFactorResponse = errors.New("invalid two-factor authentication response")
	ErrMissingTwoFactorResponse = errors.New("code or recovery code required")
	ErrInvalidTwoFactorCode     = errors.New("invalid two-factor code")
	ErrTwoFactorNotEnabled      = errors.New("two-factor authentication is not enabled")
	ErrUserNotFound             = errors.New("user not found")
	ErrCurrentPasswordInvalid   = errors.New("current password is invalid")
	ErrEmailTaken               = errors.New("email has already been taken")
	ErrInvalidVerificationToken = errors.New("invalid or expired verification token")
	ErrInvalidResetToken        = errors.New("invalid or expired password reset token")
)
