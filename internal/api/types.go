package api

import (
	"time"

	"github.com/hanifka/lentera/domain/entities"
)

// ObserverAuthRequest represents the request payload for observer authentication
type ObserverAuthRequest struct {
	ObserverID string `json:"observer_id" validate:"required"`
	AccessKey  string `json:"access_key" validate:"required"`
}

// ObserverAuthResponse represents the response payload for observer authentication
type ObserverAuthResponse struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	ObserverID string    `json:"observer_id"`
}

// AdminAuthRequest represents the request payload for admin authentication
type AdminAuthRequest struct {
	ObserverID string `json:"observer_id" validate:"required"`
	AccessKey  string `json:"access_key" validate:"required"`
}

// SessionStatusResponse reports the live session's current state
type SessionStatusResponse struct {
	State     string                `json:"state"`
	SessionID string                `json:"session_id,omitempty"`
	Speaking  bool                  `json:"speaking"`
	Quality   entities.QualityState `json:"quality"`
	Observers int                   `json:"observers"`
}

// SendTextRequest carries a typed user turn into the live session
type SendTextRequest struct {
	Text string `json:"text" validate:"required"`
}

// SwitchCameraRequest selects a different camera device mid-session
type SwitchCameraRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
}

// SessionSummary is the list-view projection of a saved session
type SessionSummary struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Preview   string    `json:"preview"`
	Summary   string    `json:"summary,omitempty"`
	Messages  int       `json:"message_count"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
