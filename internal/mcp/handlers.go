package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// MaxDiscoverySeconds bounds the discovery window a tool call may request.
const MaxDiscoverySeconds = 600

func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	players := s.host.Players()
	answered := 0
	for _, p := range players {
		if p.Answer != nil && *p.Answer != "" {
			answered++
		}
	}

	out := GetStatusOutput{
		Radio:       s.host.Availability().String(),
		Discovering: s.host.Discovering(),
		Players:     len(players),
		Answered:    answered,
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleListPlayers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	players := s.host.Players()
	out := ListPlayersOutput{
		Players: players,
		Count:   len(players),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleStartDiscovery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d := s.defaultDuration
	if raw, ok := request.GetArguments()["duration_seconds"]; ok {
		secs, ok := raw.(float64)
		if !ok || secs < 0 || secs > MaxDiscoverySeconds {
			return mcp.NewToolResultError("duration_seconds must be a number between 0 and 600"), nil
		}
		if secs > 0 {
			d = time.Duration(secs * float64(time.Second))
		}
	}

	s.host.StartDiscovery(d)

	msg := fmt.Sprintf("Discovering players for %s", d)
	if !s.host.Availability().IsAvailable() {
		msg = fmt.Sprintf("Discovery requested for %s; waiting for the radio (%s)", d, s.host.Availability())
	}
	out := StartDiscoveryOutput{
		Success:         true,
		Message:         msg,
		DurationSeconds: int(d / time.Second),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleStopDiscovery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.host.StopDiscovery()
	return mcp.NewToolResultText(formatJSON(ActionOutput{
		Success: true,
		Message: "Discovery stopped",
	})), nil
}

func (s *Server) handleResetAnswers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.host.ResetAnswers()
	return mcp.NewToolResultText(formatJSON(ActionOutput{
		Success: true,
		Message: "All answers cleared",
	})), nil
}

func formatJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response: %s"}`, err)
	}
	return string(b)
}
