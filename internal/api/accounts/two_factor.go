package accounts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/api/httputil"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/middleware"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/services"
)

// ChallengeRequest answers a pending two-factor challenge. Code takes
// precedence when both Code and RecoveryCode are present.
type ChallengeRequest struct {
	ChallengeToken string `json:"challenge_token" binding:"required"`
	Code           string `json:"code" binding:"omitempty,len=6,numeric"`
	RecoveryCode   string `json:"recovery_code" binding:"omitempty,max=64"`
}

// ConfirmRequest confirms enrollment with a code from the authenticator.
type ConfirmRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// @Summary      Answer two-factor challenge
// @Description  Consumes the challenge token issued by login. A challenge accepts exactly one submission; a second submission is rejected as expired.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  ChallengeRequest  true  "Challenge answer"
// @Success      200  {object}  map[string]interface{}  "user, token, token_expires_at"
// @Failure      403  {object}  map[string]interface{}  "Account suspended"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      422  {object}  map[string]interface{}  "Expired challenge or invalid response"
// @Router       /api/v1/auth/2fa/challenge [post]
// TwoFactorChallengeHandler completes a two-factor login
// POST /api/v1/auth/2fa/challenge
func (h *AuthHandlers) TwoFactorChallengeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChallengeRequest
		if !httputil.BindJSON(c, &req) {
			return
		}

		user, issued, err := h.twoFactor.Challenge(c.Request.Context(), services.ChallengeInput{
			ChallengeToken: req.ChallengeToken,
			Code:           req.Code,
			RecoveryCode:   req.RecoveryCode,
		})
		switch {
		case errors.Is(err, services.ErrMissingTwoFactorResponse):
			httputil.Message(c, http.StatusUnprocessableEntity, "Provide code or recovery_code.")
			return
		case errors.Is(err, services.ErrChallengeExpired):
			httputil.Message(c, http.StatusUnprocessableEntity, "2FA challenge expired.")
			return
		case errors.Is(err, services.ErrUserNotFound):
			httputil.Message(c, http.StatusNotFound, "User not found.")
			return
		case errors.Is(err, services.ErrAccountSuspended):
			httputil.Message(c, http.StatusForbidden, "Account is suspended.")
			return
		case errors.Is(err, services.ErrInvalidTwoFactorResponse):
			httputil.Message(c, http.StatusUnprocessableEntity, "Invalid two-factor authentication response.")
			return
		case err != nil:
			httputil.ServerError(c, "auth.two_factor_challenge", err)
			return
		}
		c.JSON(http.StatusOK, tokenResponse(user, issued))
	}
}

// @Summary      Start two-factor enrollment
// @Description  Generates a new secret. Enrollment stays unconfirmed until /2fa/confirm succeeds.
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  services.SetupResult
// @Failure      401  {object}  map[string]interface{}  "Authentication required"
// @Router       /api/v1/auth/2fa/setup [post]
// TwoFactorSetupHandler starts enrollment
// POST /api/v1/auth/2fa/setup
func (h *AuthHandlers) TwoFactorSetupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.twoFactor.Setup(c.Request.Context(), middleware.CurrentUser(c))
		if err != nil {
			httputil.ServerError(c, "auth.two_factor_setup", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// @Summary      Confirm two-factor enrollment
// @Tags         Auth
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  ConfirmRequest  true  "Code from the authenticator"
// @Success      200  {object}  map[string]interface{}  "message, recovery_codes"
// @Failure      422  {object}  map[string]interface{}  "Invalid two-factor code"
// @Router       /api/v1/auth/2fa/confirm [post]
// TwoFactorConfirmHandler confirms enrollment and returns recovery codes
// POST /api/v1/auth/2fa/confirm
func (h *AuthHandlers) TwoFactorConfirmHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConfirmRequest
		if !httputil.BindJSON(c, &req) {
			return
		}

		codes, err := h.twoFactor.Confirm(c.Request.Context(), middleware.CurrentUser(c), req.Code)
		if errors.Is(err, services.ErrInvalidTwoFactorCode) {
			httputil.Message(c, http.StatusUnprocessableEntity, "Invalid two-factor code.")
			return
		}
		if err != nil {
			httputil.ServerError(c, "auth.two_factor_confirm", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":        "Two-factor authentication enabled.",
			"recovery_codes": codes,
		})
	}
}

// @Summary      Regenerate recovery codes
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "recovery_codes"
// @Failure      422  {object}  map[string]interface{}  "Two-factor authentication is not enabled"
// @Router       /api/v1/auth/2fa/recovery-codes/regenerate [post]
// RegenerateRecoveryCodesHandler replaces the caller's recovery codes
// POST /api/v1/auth/2fa/recovery-codes/regenerate
func (h *AuthHandlers) RegenerateRecoveryCodesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		codes, err := h.twoFactor.RegenerateRecoveryCodes(c.Request.Context(), middleware.CurrentUser(c))
		if errors.Is(err, services.ErrTwoFactorNotEnabled) {
			httputil.Message(c, http.StatusUnprocessableEntity, "Two-factor authentication is not enabled.")
			return
		}
		if err != nil {
			httputil.ServerError(c, "auth.recovery_codes", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"recovery_codes": codes})
	}
}

// @Summary      Disable two-factor authentication
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      401  {object}  map[string]interface{}  "Authentication required"
// @Router       /api/v1/auth/2fa [delete]
// TwoFactorDisableHandler removes the caller's enrollment
// DELETE /api/v1/auth/2fa
func (h *AuthHandlers) TwoFactorDisableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.twoFactor.Disable(c.Request.Context(), middleware.CurrentUser(c)); err != nil {
			httputil.ServerError(c, "auth.two_factor_disable", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Two-factor authentication disabled."})
	}
}
