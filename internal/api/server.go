// Package api provides the status HTTP server and live WebSocket feed.
//
// It exposes bridge health, the heating zones' current state, and a
// WebSocket that relays bus messages to dashboards.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Session state is only read on the session loop: handlers post a
// snapshot request and wait for it.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/sensor2mqtt/internal/heating"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/sensor2mqtt/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// loopTimeout bounds how long a request waits for the session loop.
const loopTimeout = 2 * time.Second

// Loop is the part of the session controller the server reads from.
// *session.Controller satisfies it.
type Loop interface {
	Host() string
	State() session.State
	Post(fn func())
}

// ZoneSource reports heating zone state. Status is called on the loop.
// *heating.Coordinator satisfies it.
type ZoneSource interface {
	Status() []heating.ZoneStatus
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Loop    Loop
	Zones   ZoneSource // optional; /zones returns 404 without it
	Version string
}

// Server is the status HTTP server.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	loop    Loop
	zones   ZoneSource
	version string
	server  *http.Server
	hub     *Hub
	cancel  context.CancelFunc

	loopTimeout time.Duration
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called, but its Hub can
// be registered as a session handler straight away.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Loop == nil {
		return nil, fmt.Errorf("session loop is required")
	}

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		loop:    deps.Loop,
		zones:   deps.Zones,
		version: deps.Version,
		hub:     NewHub(deps.WS, deps.Logger),

		loopTimeout: loopTimeout,
	}, nil
}

// Hub returns the WebSocket hub. Register it with the session to relay
// bus traffic.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router. Start serves it; tests can use it directly.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in the background.
//
// Returns:
//   - error: If the listener cannot be opened (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// Cleanup closes the server. It lets the server sit in the session's
// cleanup set.
func (s *Server) Cleanup(context.Context) error {
	return s.Close()
}

// onLoop runs fn on the session loop and waits for it.
func (s *Server) onLoop(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, s.loopTimeout)
	defer cancel()

	done := make(chan struct{})
	s.loop.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
