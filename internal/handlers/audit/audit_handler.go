// internal/handlers/audit/audit_handler.go
package audit

import (
	"net/http"
	"strconv"
	"time"

	auditdom "chakula-service/internal/domain/audit"
	"chakula-service/internal/pkg/response"
	auditsvc "chakula-service/internal/service/audit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuditHandler struct {
	ledger *auditsvc.Ledger
	logger *zap.Logger
}

func NewAuditHandler(ledger *auditsvc.Ledger, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		ledger: ledger,
		logger: logger,
	}
}

// Query serves the admin ledger view. Filters arrive as query parameters;
// timestamps are RFC 3339.
func (h *AuditHandler) Query(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid filter", err)
		return
	}

	entries, err := h.ledger.Query(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit ledger", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to query audit log", err)
		return
	}

	response.Success(c, http.StatusOK, "audit entries retrieved", gin.H{"entries": entries})
}

func parseFilter(c *gin.Context) (auditdom.QueryFilter, error) {
	var f auditdom.QueryFilter

	if v := c.Query("subject_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, err
		}
		f.SubjectID = &id
	}
	f.EventType = auditdom.EventType(c.Query("event_type"))
	f.RiskLevel = auditdom.RiskLevel(c.Query("risk_level"))

	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.Since = &t
	}
	if v := c.Query("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.Until = &t
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.Offset = n
	}

	return f, nil
}
