// Package console exposes the quiz host and quiz player engines over a small
// HTTP API for operators and scoreboards.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Router holds the Gin engine serving one console.
type Router struct {
	engine *gin.Engine
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	SetupMiddleware(engine)
	return engine
}

// NewHostRouter creates the quiz host console.
func NewHostRouter(host Host, defaultDuration time.Duration) *Router {
	r := &Router{engine: newEngine()}

	h := NewHostHandler(host, defaultDuration)
	r.engine.GET("/health", h.Health)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/health", h.Health)
		v1.GET("/status", h.Status)

		players := v1.Group("/players")
		{
			players.GET("", h.ListPlayers)
			players.GET("/events", h.Events)
		}

		discovery := v1.Group("/discovery")
		{
			discovery.POST("/start", h.StartDiscovery)
			discovery.POST("/stop", h.StopDiscovery)
		}

		v1.POST("/answers/reset", h.ResetAnswers)
	}
	return r
}

// NewPlayerRouter creates the quiz player console.
func NewPlayerRouter(player Player) *Router {
	r := &Router{engine: newEngine()}

	h := NewPlayerHandler(player)
	r.engine.GET("/health", h.Health)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/health", h.Health)
		v1.GET("/status", h.Status)
		v1.POST("/answer", h.SubmitAnswer)

		adv := v1.Group("/advertising")
		{
			adv.POST("/start", h.StartAdvertising)
			adv.POST("/stop", h.StopAdvertising)
		}
	}
	return r
}

// Handler returns the router as an http.Handler.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func (r *Router) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("console: listen %s: %w", addr, err)
	}
	slog.Info("[console] listening", "addr", ln.Addr())
	return r.serve(ctx, ln)
}

func (r *Router) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           r.engine,
		ReadHeaderTimeout: 5 * time.Second,
		// Request contexts end with ctx so open event streams let Shutdown finish.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("console: serve %s: %w", ln.Addr(), err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("console: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("console: serve %s: %w", ln.Addr(), err)
	}
	return nil
}
