// internal/handlers/auth/auth_handler.go
package auth

import (
	"net/http"

	"chakula-service/internal/domain/auth"
	sessiondom "chakula-service/internal/domain/session"
	"chakula-service/internal/middleware"
	xerrors "chakula-service/internal/pkg/errors"
	"chakula-service/internal/pkg/response"
	authUsecase "chakula-service/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *authUsecase.Service
	logger      *zap.Logger
}

func NewAuthHandler(authService *authUsecase.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// ========== Login ==========

// Login handles email/password login (public endpoint)
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	dev := deviceInfo(c, req.DeviceID, req.DeviceName, req.DeviceType)

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password, dev)
	if err != nil {
		h.logger.Warn("login rejected",
			zap.String("email", req.Email),
			zap.String("ip", dev.IPAddress),
			zap.Error(err),
		)
		respondServiceError(c, err)
		return
	}

	if result.StepUpRequired {
		response.ErrorCode(c, http.StatusForbidden, xerrors.CodeStepUpRequired,
			"additional verification required; a code has been sent to your email")
		return
	}

	response.Success(c, http.StatusOK, "login successful", result.Tokens)
}

// FederatedLogin handles logins already verified by an identity provider.
func (h *AuthHandler) FederatedLogin(c *gin.Context) {
	var req auth.FederatedLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	dev := deviceInfo(c, req.DeviceID, req.DeviceName, req.DeviceType)

	result, err := h.authService.FederatedLogin(c.Request.Context(), req.Provider, req.Email, req.FullName, dev)
	if err != nil {
		h.logger.Warn("federated login rejected",
			zap.String("email", req.Email),
			zap.String("provider", req.Provider),
			zap.Error(err),
		)
		respondServiceError(c, err)
		return
	}

	if result.StepUpRequired {
		response.ErrorCode(c, http.StatusForbidden, xerrors.CodeStepUpRequired,
			"additional verification required; a code has been sent to your email")
		return
	}

	response.Success(c, http.StatusOK, "login successful", result.Tokens)
}

// ========== Refresh ==========

// Refresh rotates a refresh token into a fresh pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	dev := deviceInfo(c, req.DeviceID, req.DeviceName, req.DeviceType)

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken, dev)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "token refreshed", pair)
}

// ========== Step-up verification ==========

// VerifyStepUp completes a step-up-gated login with a one-time code.
func (h *AuthHandler) VerifyStepUp(c *gin.Context) {
	var req auth.StepUpVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	dev := deviceInfo(c, "", "", "")

	result, err := h.authService.VerifyStepUp(c.Request.Context(), req.Email, req.Password, req.Code, dev)
	if err != nil {
		h.logger.Warn("step-up verification rejected",
			zap.String("email", req.Email),
			zap.Error(err),
		)
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "verification successful", result.Tokens)
}

// ResendStepUpCode issues a replacement verification code.
func (h *AuthHandler) ResendStepUpCode(c *gin.Context) {
	var req auth.StepUpResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	dev := deviceInfo(c, "", "", "")

	if err := h.authService.ResendStepUpCode(c.Request.Context(), req.Email, req.Password, dev); err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "verification code sent", nil)
}

// ========== Logout ==========

// Logout ends the calling session (requires auth)
func (h *AuthHandler) Logout(c *gin.Context) {
	p := middleware.MustGetPrincipal(c)
	token, _ := middleware.GetAccessToken(c)

	if err := h.authService.Logout(c.Request.Context(), p, token); err != nil {
		h.logger.Error("logout failed",
			zap.Int64("subject_id", p.SubjectID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "logout failed", err)
		return
	}

	response.Success(c, http.StatusOK, "logout successful", nil)
}

// LogoutAll ends every session of the subject (requires auth)
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	p := middleware.MustGetPrincipal(c)

	count, err := h.authService.LogoutAll(c.Request.Context(), p)
	if err != nil {
		h.logger.Error("logout all failed",
			zap.Int64("subject_id", p.SubjectID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "logout failed", err)
		return
	}

	response.Success(c, http.StatusOK, "all sessions logged out", gin.H{"sessions_revoked": count})
}

// respondServiceError maps auth service errors onto statuses and machine
// codes. Password failures stay deliberately vague.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case xerrors.Is(err, xerrors.ErrRateLimited):
		response.ErrorCode(c, http.StatusTooManyRequests, xerrors.CodeRateLimited, "too many attempts, try again later")
	case xerrors.Is(err, xerrors.ErrUnauthorized):
		response.ErrorCode(c, http.StatusUnauthorized, xerrors.CodeUnauthenticated, "invalid email or password")
	case xerrors.Is(err, xerrors.ErrAccountInactive):
		response.ErrorCode(c, http.StatusForbidden, xerrors.CodeAccountInactive, "account inactive")
	case xerrors.Is(err, xerrors.ErrAccountSuspended):
		response.ErrorCode(c, http.StatusForbidden, xerrors.CodeAccountSuspended, "account suspended")
	case xerrors.Is(err, xerrors.ErrInvalidRefreshToken):
		response.ErrorCode(c, http.StatusUnauthorized, xerrors.CodeInvalidRefresh, "invalid refresh token")
	case xerrors.Is(err, xerrors.ErrRefreshTokenExpired):
		response.ErrorCode(c, http.StatusUnauthorized, xerrors.CodeRefreshExpired, "refresh token expired, sign in again")
	case xerrors.Is(err, xerrors.ErrVerificationFailed):
		response.ErrorCode(c, http.StatusUnauthorized, xerrors.CodeVerificationFailed, "incorrect verification code")
	case xerrors.Is(err, xerrors.ErrMaxAttemptsExceeded):
		response.ErrorCode(c, http.StatusForbidden, xerrors.CodeMaxAttemptsExceeded, "too many incorrect codes, request a new one")
	case xerrors.Is(err, xerrors.ErrNoVerificationPending):
		response.ErrorCode(c, http.StatusBadRequest, xerrors.CodeNoPendingChallenge, "no verification pending")
	case xerrors.Is(err, xerrors.ErrCodeDeliveryFailed):
		response.ErrorCode(c, http.StatusBadGateway, xerrors.CodeDeliveryFailed, "could not deliver verification code")
	default:
		response.Error(c, http.StatusInternalServerError, "request failed", nil)
	}
}

// deviceInfo combines client-reported device fields with what the request
// itself reveals.
func deviceInfo(c *gin.Context, deviceID, deviceName, deviceType string) sessiondom.DeviceInfo {
	return sessiondom.DeviceInfo{
		DeviceID:   deviceID,
		DeviceName: deviceName,
		DeviceType: deviceType,
		UserAgent:  c.GetHeader("User-Agent"),
		IPAddress:  c.ClientIP(),
		Country:    c.GetHeader("X-Geo-Country"),
		City:       c.GetHeader("X-Geo-City"),
	}
}
