package console

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaz8081/quizlink/internal/ble"
	"github.com/chaz8081/quizlink/internal/roster"
)

// MaxDiscoverySeconds bounds the discovery window a console client may request.
const MaxDiscoverySeconds = 600

// Host is the part of the central engine the console drives.
type Host interface {
	StartDiscovery(d time.Duration)
	StopDiscovery()
	ResetAnswers()
	Discovering() bool
	Roster() *roster.Roster
	Availability() ble.Availability
}

// HostHandler serves the quiz host endpoints.
type HostHandler struct {
	host            Host
	defaultDuration time.Duration
	heartbeat       time.Duration
}

// NewHostHandler creates a host handler. defaultDuration is used when a
// discovery request does not name one.
func NewHostHandler(host Host, defaultDuration time.Duration) *HostHandler {
	return &HostHandler{
		host:            host,
		defaultDuration: defaultDuration,
		heartbeat:       30 * time.Second,
	}
}

// Health handles GET /health
func (h *HostHandler) Health(c *gin.Context) {
	health(c, h.host.Availability())
}

// Status handles GET /api/v1/status
func (h *HostHandler) Status(c *gin.Context) {
	players := h.host.Roster().Snapshot()
	answered := 0
	for _, p := range players {
		if p.Answer != nil && *p.Answer != "" {
			answered++
		}
	}
	c.JSON(http.StatusOK, HostStatusResponse{
		Radio:       h.host.Availability().String(),
		Discovering: h.host.Discovering(),
		Players:     len(players),
		Answered:    answered,
	})
}

// ListPlayers handles GET /api/v1/players
func (h *HostHandler) ListPlayers(c *gin.Context) {
	players := h.host.Roster().Snapshot()
	c.JSON(http.StatusOK, ListPlayersResponse{
		Players: players,
		Count:   len(players),
	})
}

// StartDiscovery handles POST /api/v1/discovery/start
func (h *HostHandler) StartDiscovery(c *gin.Context) {
	var req StartDiscoveryRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
			return
		}
	}

	if req.DurationSeconds < 0 || req.DurationSeconds > MaxDiscoverySeconds {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_duration",
			Message: "duration_seconds must be between 0 and 600",
		})
		return
	}

	d := time.Duration(req.DurationSeconds) * time.Second
	if d == 0 {
		d = h.defaultDuration
	}
	h.host.StartDiscovery(d)

	status := "discovering"
	if !h.host.Availability().IsAvailable() {
		status = "waiting_for_radio"
	}
	c.JSON(http.StatusOK, StartDiscoveryResponse{
		Status:          status,
		ExpiresAt:       time.Now().Add(d),
		DurationSeconds: int(d / time.Second),
	})
}

// StopDiscovery handles POST /api/v1/discovery/stop
func (h *HostHandler) StopDiscovery(c *gin.Context) {
	h.host.StopDiscovery()
	c.JSON(http.StatusOK, StatusResponse{Status: "stopped"})
}

// ResetAnswers handles POST /api/v1/answers/reset
func (h *HostHandler) ResetAnswers(c *gin.Context) {
	h.host.ResetAnswers()
	c.JSON(http.StatusOK, StatusResponse{Status: "answers_reset"})
}

// Events handles GET /api/v1/players/events (SSE stream of roster snapshots)
func (h *HostHandler) Events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// Roster observers run on the engine goroutine; only the newest
	// snapshot is kept for a slow client.
	updates := make(chan []roster.Peer, 1)
	cancel := h.host.Roster().OnChange(func(players []roster.Peer) {
		for {
			select {
			case updates <- players:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	})
	defer cancel()

	sendSSEEvent(c.Writer, "roster", h.host.Roster().Snapshot())
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			return

		case players := <-updates:
			sendSSEEvent(c.Writer, "roster", players)
			c.Writer.Flush()

		case <-ticker.C:
			sendSSEEvent(c.Writer, "heartbeat", map[string]any{
				"timestamp": time.Now(),
			})
			c.Writer.Flush()
		}
	}
}

func health(c *gin.Context, a ble.Availability) {
	status, code := "healthy", http.StatusOK
	if !a.IsAvailable() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{
		Status:    status,
		Radio:     a.String(),
		Timestamp: time.Now(),
	})
}

// sendSSEEvent writes an SSE event to the response
func sendSSEEvent(w io.Writer, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	io.WriteString(w, "event: "+eventType+"\n")
	io.WriteString(w, "data: "+string(jsonData)+"\n\n")
}
