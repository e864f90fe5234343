package console

import (
	"time"

	"github.com/chaz8081/quizlink/internal/roster"
)

// --- Request DTOs ---

// StartDiscoveryRequest is the request body for POST /discovery/start
type StartDiscoveryRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

// SubmitAnswerRequest is the request body for POST /answer
type SubmitAnswerRequest struct {
	Answer *string `json:"answer" binding:"required"`
}

// --- Response DTOs ---

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned from GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Radio     string    `json:"radio"`
	Timestamp time.Time `json:"timestamp"`
}

// ListPlayersResponse is returned from GET /players
type ListPlayersResponse struct {
	Players []roster.Peer `json:"players"`
	Count   int           `json:"count"`
}

// HostStatusResponse is returned from GET /status on the host
type HostStatusResponse struct {
	Radio       string `json:"radio"`
	Discovering bool   `json:"discovering"`
	Players     int    `json:"players"`
	Answered    int    `json:"answered"`
}

// StartDiscoveryResponse is returned from POST /discovery/start
type StartDiscoveryResponse struct {
	Status          string    `json:"status"`
	ExpiresAt       time.Time `json:"expires_at"`
	DurationSeconds int       `json:"duration_seconds"`
}

// StatusResponse is returned from simple state-changing endpoints
type StatusResponse struct {
	Status string `json:"status"`
}

// PlayerStatusResponse is returned from GET /status on a player
type PlayerStatusResponse struct {
	Radio       string `json:"radio"`
	Advertising bool   `json:"advertising"`
	Identity    string `json:"identity"`
	Answer      string `json:"answer"`
}
