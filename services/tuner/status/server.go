// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/omariosc/autotuning-cuda/services/tuner/telemetry"
)

// Config holds status server settings.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:8321".
	Addr string

	// ShutdownTimeout bounds graceful shutdown. Defaults to 5s.
	ShutdownTimeout time.Duration
}

// Server exposes a Tracker over HTTP.
//
// Endpoints:
//
//	GET /healthz          liveness probe
//	GET /metrics          Prometheus scrape (404 when disabled)
//	GET /v1/tuner/status  current snapshot
//	GET /v1/tuner/results finished records
//	GET /v1/tuner/ws      websocket event stream
//
// Thread Safety: Safe for concurrent use.
type Server struct {
	cfg      Config
	tracker  *Tracker
	logger   *slog.Logger
	engine   *gin.Engine
	http     *http.Server
	upgrader websocket.Upgrader
	addr     string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger. Defaults to slog.Default().
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer builds the server and its routes.
//
// Outputs:
//   - *Server: Not listening yet; call Start.
//   - error: ErrNilTracker or ErrMissingAddr.
func NewServer(cfg Config, tracker *Tracker, opts ...ServerOption) (*Server, error) {
	if tracker == nil {
		return nil, ErrNilTracker
	}
	if cfg.Addr == "" {
		return nil, ErrMissingAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		tracker: tracker,
		logger:  slog.Default(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "status"))

	// The run's own console output is the primary surface; gin's
	// per-request logging would interleave with it.
	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(otelgin.Middleware("flamingo-status"))

	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/metrics", s.handleMetrics)
	s.engine.GET("/v1/tuner/status", s.handleStatus)
	s.engine.GET("/v1/tuner/results", s.handleResults)
	s.engine.GET("/v1/tuner/ws", s.handleWS)

	s.http = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the route handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	return s.addr
}

// Start binds the listener and serves until ctx is cancelled.
//
// Description:
//
//	Serving happens on background goroutines; Start returns once the
//	listener is bound so the caller learns the real port (Addr) even
//	with ":0". Cancelling ctx begins a graceful shutdown bounded by
//	ShutdownTimeout; live websockets are closed by it.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("binding status server to %s: %w", s.cfg.Addr, err)
	}
	s.addr = ln.Addr().String()

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shCtx); err != nil {
			s.logger.Warn("status server shutdown", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("status server listening", slog.String("addr", s.addr))
	return nil
}

// Shutdown stops the server explicitly.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ==============================================================================
// HANDLERS
// ==============================================================================

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleMetrics(c *gin.Context) {
	handler := telemetry.MetricsHandler()
	if handler == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "prometheus exporter not enabled"})
		return
	}
	handler.ServeHTTP(c.Writer, c.Request)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleResults(c *gin.Context) {
	records := s.tracker.Records()
	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) handleWS(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()
	s.logger.Debug("websocket client connected")

	events, cancel := s.tracker.Subscribe()
	defer cancel()

	// Greet with the current snapshot so a late client starts in sync.
	if err := ws.WriteJSON(gin.H{"type": "snapshot", "status": s.tracker.Snapshot()}); err != nil {
		return
	}

	// Drain client frames so pings work and disconnects surface.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-disconnected:
			s.logger.Debug("websocket client disconnected")
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}
