// Package accounts implements the /auth endpoints: password login, the
// two-factor challenge, registration and self-service account maintenance.
package accounts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/api/httputil"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/auth"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/middleware"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/services"
)

// AuthHandlers handles login, registration and account maintenance.
type AuthHandlers struct {
	auth      *services.AuthService
	twoFactor *services.TwoFactorService
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(authService *services.AuthService, twoFactor *services.TwoFactorService) *AuthHandlers {
	return &AuthHandlers{auth: authService, twoFactor: twoFactor}
}

// LoginRequest is the password login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest is the self-service registration payload.
type RegisterRequest struct {
	Name                 string `json:"name" binding:"required,max=255"`
	Email                string `json:"email" binding:"required,email,max=255"`
	Password             string `json:"password" binding:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required,eqfield=Password"`
}

// ProfileRequest updates the caller's name and email.
type ProfileRequest struct {
	Name  string `json:"name" binding:"required,max=255"`
	Email string `json:"email" binding:"required,email,max=255"`
}

// PasswordRequest changes the caller's password.
type PasswordRequest struct {
	CurrentPassword      string `json:"current_password" binding:"required"`
	Password             string `json:"password" binding:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required,eqfield=Password"`
}

// ForgotPasswordRequest asks for a reset token.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest consumes a reset token.
type ResetPasswordRequest struct {
	Token                string `json:"token" binding:"required"`
	Email                string `json:"email" binding:"required,email"`
	Password             string `json:"password" binding:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required,eqfield=Password"`
}

// VerifyEmailRequest consumes an email verification token.
type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// tokenResponse is the body returned whenever a bearer token is issued.
func tokenResponse(user *models.User, issued *services.IssuedToken) gin.H {
	return gin.H{
		"user":             user,
		"token":            issued.Raw,
		"token_expires_at": issued.ExpiresAt,
		"meta":             gin.H{"token_type": "Bearer"},
	}
}

// @Summary      Log in
// @Description  Verifies email and password. Accounts with two-factor enrollment receive a challenge token instead of a bearer token.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "user, token, token_expires_at or requires_two_factor, challenge_token"
// @Failure      403  {object}  map[string]interface{}  "Account suspended"
// @Failure      422  {object}  map[string]interface{}  "Invalid credentials"
// @Failure      429  {object}  map[string]interface{}  "Too many requests"
// @Router       /api/v1/auth/login [post]
// LoginHandler handles password login
// POST /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if !httputil.BindJSON(c, &req) {
			return
		}

		result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
		if errors.Is(err, services.ErrInvalidCredentials) {
			httputil.Message(c, http.StatusUnprocessableEntity, "Invalid credentials")
			return
		}
		if errors.Is(err, services.ErrAccountSuspended) {
			httputil.Message(c, http.StatusForbidden, "Account is suspended.")
			return
		}
		if err != nil {
			httputil.ServerError(c, "auth.login", err)
			return
		}

		if result.RequiresTwoFactor() {
			c.JSON(http.StatusOK, gin.H{
				"requires_two_factor": true,
				"challenge_token":     result.ChallengeToken,
				"message":             "Two-factor authentication required.",
			})
			return
		}
		c.JSON(http.StatusOK, tokenResponse(result.User, result.Token))
	}
}

// @Summary      Register
// @Description  Creates a customer account.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  RegisterRequest  true  "Account details"
// @Success      201  {object}  map[string]interface{}  "user"
// @Failure      422  {object}  map[string]interface{}  "Validation failed or email taken"
// @Router       /api/v1/auth/register [post]
// RegisterHandler creates a customer account
// POST /api/v1/auth/register
func (h *AuthHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if !httputil.BindJSON(c, &req) {
			return
		}

		user, err := h.auth.Register(c.Request.Context(), services.RegisterInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
		})
		if errors.Is(err, services.ErrEmailTaken) {
			httputil.Message(c, http.StatusUnprocessableEntity, "The email has already been taken.")
			return
		}
		if err != nil {
			httputil.ServerError(c, "auth.register", err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"user": user})
	}
}

// @Summary      Current user
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user"
// @Failure      401  {object}  map[string]interface{}  "Authentication required"
// @Router       /api/v1/auth/me [get]
// MeHandler returns the resolved caller
// GET /api/v1/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": middleware.CurrentUser(c)})
	}
}

// @Summary      Log out
// @Description  Revokes the bearer token used for this request.
// @Tags         Auth
// @Security     Bearer
// @Success      204
// @Failure      401  {object}  map[string]interface{}  "Authentication required"
// @Router       /api/v1/auth/logout [post]
// LogoutHandler revokes the presented bearer token. Callers resolved by the
// user id header have no token to revoke.
// POST /api/v1/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err == nil {
			if err := h.auth.Logout(c.Request.Context(), raw); err != nil {
				httputil.ServerError(c, "auth.logout", err)
				return
			}
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Update profile
// @Description  Changes name and email. A new email clears its verification.
// @Tags         Auth
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  ProfileRequest  true  "Profile fields"
// @Success      200  {object}  map[string]interface{}  "message, user"
// @Failure      422  {object}  map[string]interface{}  "Validation failed or email taken"
// @Router       /api/v1/auth/profile [put]
// UpdateProfileHandler changes the caller's name and email
// PUT /api/v1/auth/profile
func (h *AuthHandlers) UpdateProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProfileRequest
		if !httputil.BindJSON(c, &req) {
			return
		}

		user, err := h.auth.UpdateProfile(c.Request.Context(), middleware.CurrentUser(c), req.Name, req.Email)
		switch {
		case errors.Is(err, services.ErrEmailTaken):
			httputil.Message(c, http.StatusUnprocessableEntity, "The email has already been taken.")
			return
		case errors.Is(err, services.ErrUserNotFound):
			httputil.Message(c, http.StatusNotFound, "User not found.")
			return
		case err != nil:
			httputil.ServerError(c, "auth.profile", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Profile updated successfully.",
			"user":    user,
		})
	}
}

// @Summary      Change password
// @Description  Verifies the current password, stores the new one and revokes every token of the caller.
// @Tags         Auth
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  PasswordRequest  true  "Current and new password"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      422  {object}  map[string]interface{}  "Current password is invalid"
// @Router       /api/v1/auth/password [put]
// UpdatePasswordHandler changes the caller's password and revokes every
// token the caller holds, including the one used for this request.
// PUT /api/v1/auth/password
func (h *AuthHandlers) UpdatePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PasswordRequest
		if !httputil.BindJSON(c, &req) {
			return
		}

		err := h.auth.UpdatePassword(c.Request.Context(), middleware.CurrentUser(c), req.CurrentPassword, req.Password)
		if errors.Is(err, services.ErrCurrentPasswordInvalid) {
			httputil.Message(c, http.StatusUnprocessableEntity, "Current password is invalid.")
			return
		}
		if err != nil {
			httputil.ServerError(c, "auth.password", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully. Please login again."})
	}
}

// @Summary      Forgot password
// @Description  Generates a password reset token. Unknown addresses get the same generic answer without a token.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  ForgotPasswordRequest  true  "Email"
// @Success      200  {object}  map[string]interface{}  "message, reset_token"
// @Router       /api/v1/auth/forgot-password [post]
// ForgotPasswordHandler issues a reset token
// POST /api/v1/auth/forgot-password
func (h *AuthHandlers) ForgotPasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ForgotPasswordRequest
		if !httputil.BindJSON(c, &req) {
			return
		}

		token, found, err := h.auth.ForgotPassword(c.Request.Context(), req.Email)
		if err != nil {
			httputil.ServerError(c, "auth.forgot_password", err)
			return
		}
		if !found {
			c.JSON(http.StatusOK, gin.H{
				"message": "If your email exists in our system, a reset link has been generated.",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":     "Password reset token generated.",
			"reset_token": token,
		})
	}
}

// @Summary      Reset password
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  ResetPasswordRequest  true  "Reset token and new password"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      422  {object}  map[string]interface{}  "Unknown email or invalid token"
// @Failure      429  {object}  map[string]interface{}  "Too many requests"
// @Router       /api/v1/auth/reset-password [post]
// ResetPasswordHandler consumes a reset token and sets a new password
// POST /api/v1/auth/reset-password
func (h *AuthHandlers) ResetPasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResetPasswordRequest
		if !httputil.BindJSON(c, &req) {
			return
		}

		err := h.auth.ResetPassword(c.Request.Context(), req.Email, req.Token, req.Password)
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			httputil.Message(c, http.StatusUnprocessableEntity, "We can't find a user with that email address.")
			return
		case errors.Is(err, services.ErrInvalidResetToken):
			httputil.Message(c, http.StatusUnprocessableEntity, "This password reset token is invalid.")
			return
		case err != nil:
			httputil.ServerError(c, "auth.reset_password", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Password has been reset."})
	}
}

// @Summary      Send email verification
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message, verification_token"
// @Failure      401  {object}  map[string]interface{}  "Authentication required"
// @Router       /api/v1/auth/email/verification-notification [post]
// SendVerificationHandler issues an email verification token for the caller
// POST /api/v1/auth/email/verification-notification
func (h *AuthHandlers) SendVerificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, verified, err := h.auth.SendEmailVerification(c.Request.Context(), middleware.CurrentUser(c))
		if err != nil {
			httputil.ServerError(c, "auth.verification_notification", err)
			return
		}
		if verified {
			c.JSON(http.StatusOK, gin.H{"message": "Email already verified."})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":            "Verification token generated.",
			"verification_token": token,
		})
	}
}

// @Summary      Verify email
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  VerifyEmailRequest  true  "Verification token"
// @Success      200  {object}  map[string]interface{}  "message, user"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      422  {object}  map[string]interface{}  "Invalid or expired token"
// @Router       /api/v1/auth/email/verify [post]
// VerifyEmailHandler consumes a verification token
// POST /api/v1/auth/email/verify
func (h *AuthHandlers) VerifyEmailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyEmailRequest
		if !httputil.BindJSON(c, &req) {
			return
		}

		user, err := h.auth.VerifyEmail(c.Request.Context(), req.Token)
		switch {
		case errors.Is(err, services.ErrInvalidVerificationToken):
			httputil.Message(c, http.StatusUnprocessableEntity, "Invalid or expired verification token.")
			return
		case errors.Is(err, services.ErrUserNotFound):
			httputil.Message(c, http.StatusNotFound, "User not found.")
			return
		case err != nil:
			httputil.ServerError(c, "auth.verify_email", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Email verified successfully.",
			"user":    user,
		})
	}
}
