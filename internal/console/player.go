package console

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaz8081/quizlink/internal/ble"
	"github.com/chaz8081/quizlink/internal/ble/protocol"
)

// Player is the part of the peripheral engine the console drives.
type Player interface {
	Start()
	Stop()
	SubmitAnswer(text string)
	Answer() string
	Identity() string
	Advertising() bool
	Availability() ble.Availability
}

// PlayerHandler serves the quiz player endpoints.
type PlayerHandler struct {
	player Player
}

// NewPlayerHandler creates a player handler.
func NewPlayerHandler(player Player) *PlayerHandler {
	return &PlayerHandler{player: player}
}

// Health handles GET /health
func (h *PlayerHandler) Health(c *gin.Context) {
	health(c, h.player.Availability())
}

// Status handles GET /api/v1/status
func (h *PlayerHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, PlayerStatusResponse{
		Radio:       h.player.Availability().String(),
		Advertising: h.player.Advertising(),
		Identity:    h.player.Identity(),
		Answer:      h.player.Answer(),
	})
}

// SubmitAnswer handles POST /api/v1/answer
func (h *PlayerHandler) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	if len(*req.Answer) > protocol.MaxValueBytes {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "answer_too_long",
			Message: "answer must be at most 512 bytes",
		})
		return
	}

	h.player.SubmitAnswer(*req.Answer)
	c.JSON(http.StatusOK, StatusResponse{Status: "published"})
}

// StartAdvertising handles POST /api/v1/advertising/start
func (h *PlayerHandler) StartAdvertising(c *gin.Context) {
	h.player.Start()
	c.JSON(http.StatusOK, StatusResponse{Status: "advertising_requested"})
}

// StopAdvertising handles POST /api/v1/advertising/stop
func (h *PlayerHandler) StopAdvertising(c *gin.Context) {
	h.player.Stop()
	c.JSON(http.StatusOK, StatusResponse{Status: "stopped"})
}
