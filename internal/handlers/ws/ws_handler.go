// internal/handlers/ws/ws_handler.go
package ws

import (
	"net/http"

	"chakula-service/internal/middleware"
	"chakula-service/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The gateway enforces origin policy for browser clients.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub    *notify.Hub
	logger *zap.Logger
}

func NewWSHandler(hub *notify.Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		logger: logger,
	}
}

// Connect upgrades an authenticated request and binds the connection to the
// caller's session so it can receive force-logout and alert pushes.
func (h *WSHandler) Connect(c *gin.Context) {
	p := middleware.MustGetPrincipal(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.Int64("subject_id", p.SubjectID),
			zap.Error(err),
		)
		return
	}

	h.hub.Attach(conn, p.SubjectID, p.SessionID)
}
