package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chromegate/prerender/internal/config"
	"github.com/chromegate/prerender/internal/coordinator"
	"github.com/chromegate/prerender/internal/types"
)

// Server is the gateway's HTTP front door: it owns nothing but routing and
// response mapping, delegating every render to a Coordinator.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	httpServer *http.Server
	startTime  time.Time
	mux        *http.ServeMux
}

// New creates a Server wired to coord and ready to Start.
func New(cfg *config.Config, coord *coordinator.Coordinator, logger *zap.Logger) *Server {
	s := &Server{
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
		mux:       http.NewServeMux(),
	}

	render := NewRenderHandler(coord, logger)
	s.setupRoutes(render)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.mux,
		ReadTimeout:  cfg.Render.Timeout + 5*time.Second,
		WriteTimeout: cfg.Render.Timeout + 5*time.Second,
	}

	return s
}

// setupRoutes registers the health endpoint and every render route spec §6
// names: the bare GET /{url} (HTML) and its format-prefixed siblings. Go's
// ServeMux prefers the most specific pattern, so the prefixed routes take
// priority over the catch-all default.
func (s *Server) setupRoutes(render *RenderHandler) {
	s.mux.HandleFunc("GET /health", s.healthHandler)

	s.mux.HandleFunc("GET /html/{path...}", render.Handler(types.FormatHTML))
	s.mux.HandleFunc("GET /mhtml/{path...}", render.Handler(types.FormatMHTML))
	s.mux.HandleFunc("GET /pdf/{path...}", render.Handler(types.FormatPDF))
	s.mux.HandleFunc("GET /png/{path...}", render.Handler(types.FormatPNG))
	s.mux.HandleFunc("GET /jpeg/{path...}", render.Handler(types.FormatJPEG))
	s.mux.HandleFunc("GET /{path...}", render.Handler(types.FormatHTML))
}

// Start begins listening for HTTP requests; it blocks until the server
// stops, returning http.ErrServerClosed on a clean Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime in seconds.
func (s *Server) Uptime() int64 {
	return int64(time.Since(s.startTime).Seconds())
}
