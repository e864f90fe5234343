package mcp

import "github.com/chaz8081/quizlink/internal/roster"

// GetStatusOutput is the output for the get_status tool
type GetStatusOutput struct {
	Radio       string `json:"radio"`
	Discovering bool   `json:"discovering"`
	Players     int    `json:"players"`
	Answered    int    `json:"answered"`
}

// ListPlayersOutput is the output for the list_players tool
type ListPlayersOutput struct {
	Players []roster.Peer `json:"players"`
	Count   int           `json:"count"`
}

// StartDiscoveryOutput is the output for the start_discovery tool
type StartDiscoveryOutput struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	DurationSeconds int    `json:"duration_seconds"`
}

// ActionOutput is the output for tools that only acknowledge
type ActionOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
