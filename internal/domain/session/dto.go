// internal/domain/session/dto.go
package session

import "time"

// Info is the public view of a session returned by the sessions endpoint.
// Token hashes are never exposed.
type Info struct {
	ID             string    `json:"id"`
	DeviceID       string    `json:"device_id,omitempty"`
	DeviceName     string    `json:"device_name,omitempty"`
	DeviceType     string    `json:"device_type,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	IPAddress      string    `json:"ip_address,omitempty"`
	Country        string    `json:"country,omitempty"`
	City           string    `json:"city,omitempty"`
	IssuedAt       time.Time `json:"issued_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Current        bool      `json:"current"`
}

// NewInfo builds the public view of a session. currentID marks the session
// belonging to the calling credential.
func NewInfo(s *Session, currentID string) Info {
	return Info{
		ID:             s.ID,
		DeviceID:       s.DeviceID.String,
		DeviceName:     s.DeviceName.String,
		DeviceType:     s.DeviceType.String,
		UserAgent:      s.UserAgent.String,
		IPAddress:      s.IPAddress.String,
		Country:        s.Country.String,
		City:           s.City.String,
		IssuedAt:       s.IssuedAt,
		LastActivityAt: s.LastActivityAt,
		Current:        s.ID == currentID,
	}
}

// RevokeRequest revokes a single session with a reason from the closed enum.
type RevokeRequest struct {
	Reason string `json:"reason"`
}
