// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the pipeline over HTTP. Progress events stream to
// the caller as server-sent events; the transport only adapts the progress
// channel to wire bytes, the pipeline knows nothing about HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/pdiddy/retrieval-engine/internal/pipeline"
	"github.com/pdiddy/retrieval-engine/internal/progress"
	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// Server serves search requests over HTTP with SSE progress streaming.
type Server struct {
	echo    *echo.Echo
	orch    *pipeline.Orchestrator
	logger  *zap.Logger
	cfg     types.ServerConfig
	metrics *Metrics
	mirror  progress.Emitter

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewServer wires the HTTP surface around an orchestrator. mirror may be
// nil; when set (e.g. a NATS publisher) every progress event is also sent
// there.
func NewServer(orch *pipeline.Orchestrator, cfg types.ServerConfig, mirror progress.Emitter, logger *zap.Logger) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		echo:    e,
		orch:    orch,
		logger:  logger,
		cfg:     cfg,
		metrics: NewMetrics(),
		mirror:  mirror,
		active:  make(map[string]context.CancelFunc),
	}

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	v1 := e.Group("/api/v1")
	v1.POST("/searches", s.handleSearch)
	v1.DELETE("/searches/:id", s.handleCancel)

	return s, nil
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops the listener and cancels all in-flight searches.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.active {
		cancel()
	}
	s.mu.Unlock()
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleSearch runs one search and streams its events as SSE. The stream
// carries the three iteration event kinds followed by a final "result"
// event with the complete document set and stop decision.
func (s *Server) handleSearch(c echo.Context) error {
	var req types.SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Query == "" || req.TargetCount <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "query and a positive targetCount are required")
	}
	req.SearchID = uuid.NewString()

	// Client disconnect cancels the request context, which cancels the
	// search; an explicit DELETE does the same through the registry.
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	s.register(req.SearchID, cancel)
	defer s.unregister(req.SearchID)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	emitter := progress.NewChannelEmitter(16)
	emit := progress.Emitter(emitter)
	if s.mirror != nil {
		emit = progress.Multi(emitter, s.mirror)
	}

	started := time.Now()
	type outcome struct {
		res *types.SearchResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.orch.Run(ctx, req, emit)
		emitter.Close()
		done <- outcome{res, err}
	}()

	for ev := range emitter.Events() {
		if err := writeSSE(resp, string(ev.Kind), ev); err != nil {
			// Writer is gone; the context cancellation unwinds the search.
			cancel()
		}
	}

	out := <-done
	if out.err != nil {
		s.logger.Error("search failed", zap.String("search_id", req.SearchID), zap.Error(out.err))
		// The stream already started; a terminal error event is the only
		// way left to tell the caller. Never leave a silent hang.
		writeSSE(resp, "error", map[string]string{"error": out.err.Error()})
		return nil
	}

	s.metrics.ObserveSearch(out.res, time.Since(started))
	writeSSE(resp, "result", out.res)
	return nil
}

// handleCancel cancels an in-flight search by ID. Cancelling an unknown or
// already-finished search is a 404.
func (s *Server) handleCancel(c echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	cancel, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no active search with that id")
	}
	cancel()
	s.logger.Info("search cancelled by caller", zap.String("search_id", id))
	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancelling", "searchId": id})
}

func (s *Server) register(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.active[id] = cancel
	s.mu.Unlock()
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

func writeSSE(resp *echo.Response, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	resp.Flush()
	return nil
}
