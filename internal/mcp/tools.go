package mcp

import "github.com/mark3labs/mcp-go/mcp"

// registerTools registers all MCP tools with the server
func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("get_status",
			mcp.WithDescription("Report radio availability, whether discovery is running, and how many players have answered"),
		),
		s.handleGetStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_players",
			mcp.WithDescription("List the quiz players currently known to the host with their identity and answer"),
		),
		s.handleListPlayers,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("start_discovery",
			mcp.WithDescription("Open a discovery window so nearby quiz players are found and connected"),
			mcp.WithNumber("duration_seconds",
				mcp.Description("How long the discovery window stays open in seconds (default from config, max 600)"),
			),
		),
		s.handleStartDiscovery,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("stop_discovery",
			mcp.WithDescription("Close the discovery window; connected players stay in the roster"),
		),
		s.handleStopDiscovery,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("reset_answers",
			mcp.WithDescription("Clear every player's answer before the next question"),
		),
		s.handleResetAnswers,
	)
}
