// internal/handlers/session/session_handler.go
package session

import (
	"net/http"

	sessiondom "chakula-service/internal/domain/session"
	"chakula-service/internal/middleware"
	xerrors "chakula-service/internal/pkg/errors"
	"chakula-service/internal/pkg/response"
	sessionsvc "chakula-service/internal/service/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SessionHandler struct {
	store  *sessionsvc.Store
	logger *zap.Logger
}

func NewSessionHandler(store *sessionsvc.Store, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		store:  store,
		logger: logger,
	}
}

// List returns the caller's live sessions, the current one flagged.
func (h *SessionHandler) List(c *gin.Context) {
	p := middleware.MustGetPrincipal(c)

	infos, err := h.store.List(c.Request.Context(), p.SubjectID, p.SessionID)
	if err != nil {
		h.logger.Error("failed to list sessions",
			zap.Int64("subject_id", p.SubjectID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "failed to list sessions", err)
		return
	}

	response.Success(c, http.StatusOK, "sessions retrieved", gin.H{"sessions": infos})
}

// Revoke ends one of the caller's sessions by id. Revoking the current
// session is allowed and behaves like a logout for that device.
func (h *SessionHandler) Revoke(c *gin.Context) {
	p := middleware.MustGetPrincipal(c)
	sessionID := c.Param("id")

	reason := sessiondom.RevokeReasonUserLogout
	var req sessiondom.RevokeRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.Reason != "" {
		reason = sessiondom.RevokeReason(req.Reason)
		if !reason.Valid() {
			response.Error(c, http.StatusBadRequest, "unknown revoke reason", nil)
			return
		}
	}

	err := h.store.Revoke(c.Request.Context(), p.SubjectID, sessionID, reason)
	switch {
	case xerrors.Is(err, xerrors.ErrNotFound):
		response.NotFound(c, "session not found")
	case xerrors.Is(err, xerrors.ErrForbidden):
		response.Forbidden(c, "not your session")
	case err != nil:
		h.logger.Error("failed to revoke session",
			zap.Int64("subject_id", p.SubjectID),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "failed to revoke session", err)
	default:
		response.Success(c, http.StatusOK, "session revoked", nil)
	}
}
