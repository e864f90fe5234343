// Package mcp exposes the quiz host to MCP clients over stdio, so an
// assistant can open discovery windows and read the roster.
package mcp

import (
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/chaz8081/quizlink/internal/ble"
	"github.com/chaz8081/quizlink/internal/roster"
)

// Host is the part of the central engine the tools drive.
type Host interface {
	StartDiscovery(d time.Duration)
	StopDiscovery()
	ResetAnswers()
	Discovering() bool
	Players() []roster.Peer
	Availability() ble.Availability
}

// Server wraps the MCP server with the quiz host tools
type Server struct {
	mcpServer       *server.MCPServer
	host            Host
	defaultDuration time.Duration
}

// NewServer creates a new MCP server for the quiz host
func NewServer(host Host, defaultDuration time.Duration, version string) *Server {
	s := &Server{
		host:            host,
		defaultDuration: defaultDuration,
	}

	s.mcpServer = server.NewMCPServer(
		"quizlink",
		version,
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// ServeStdio starts the MCP server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
