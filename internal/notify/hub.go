// internal/notify/hub.go
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is the envelope pushed to connected clients.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventForceLogout   = "force_logout"
	EventSecurityAlert = "security_alert"
)

// Hub tracks live websocket connections per subject and pushes security
// events to them. Delivery is best effort: a subject with no connection
// simply misses the push, the authoritative state lives in storage.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.subjectID] == nil {
		h.clients[c.subjectID] = make(map[*Client]struct{})
	}
	h.clients[c.subjectID][c] = struct{}{}
	h.logger.Debug("websocket client connected",
		zap.Int64("subject_id", c.subjectID),
		zap.String("session_id", c.sessionID))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[c.subjectID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
			if len(set) == 0 {
				delete(h.clients, c.subjectID)
			}
		}
	}
}

// ForceLogout tells a subject's devices to drop their credentials. An empty
// sessionID targets every connection of the subject.
func (h *Hub) ForceLogout(subjectID int64, sessionID, reason string) {
	h.push(subjectID, sessionID, Event{
		Type:      EventForceLogout,
		SessionID: sessionID,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// SecurityAlert pushes an informational warning to all of a subject's
// connections.
func (h *Hub) SecurityAlert(subjectID int64, message string) {
	h.push(subjectID, "", Event{
		Type:      EventSecurityAlert,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func (h *Hub) push(subjectID int64, sessionID string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal notify event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[subjectID] {
		if sessionID != "" && c.sessionID != sessionID {
			continue
		}
		select {
		case c.send <- payload:
		default:
			// Slow consumer; drop the event rather than block the caller.
			h.logger.Warn("dropping notify event for slow client",
				zap.Int64("subject_id", subjectID))
		}
	}
}
