package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/adapters/web/handlers"
	"github.com/lcalzada-xor/nethealth/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/nethealth/internal/adapters/web/websocket"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Pipeline is what the HTTP surface needs from the monitor.
type Pipeline interface {
	handlers.PipelineReader
	handlers.ConfigReader
}

// Options carries the optional collaborators of the server.
type Options struct {
	Auth        middleware.TokenValidator // nil disables authentication
	Storage     ports.Storage
	Cache       ports.SnapshotCache
	Persistence handlers.PersistenceToggle
	Reports     handlers.ReportGenerator
	Exporter    handlers.ReportExporter
	// AllowedOrigins lists the websocket origins accepted besides same-origin.
	AllowedOrigins []string
	// StaleAfter marks the pipeline not ready when the last snapshot is older.
	StaleAfter time.Duration
	// ReportLimit caps report and export requests per client per minute.
	ReportLimit int
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	Addr      string
	Auth      middleware.TokenValidator
	WSManager *websocket.WSManager

	SnapshotHandler *handlers.SnapshotHandler
	ExportHandler   *handlers.ExportHandler
	ReportHandler   *handlers.ReportHandler
	ConfigHandler   *handlers.ConfigHandler
	HealthHandler   *handlers.HealthHandler

	reportLimiter *middleware.RateLimiter
	srv           *http.Server
}

// NewServer creates a new web server.
func NewServer(addr string, pipeline Pipeline, opts Options) *Server {
	limit := opts.ReportLimit
	if limit <= 0 {
		limit = 10
	}

	s := &Server{
		Addr:            addr,
		Auth:            opts.Auth,
		WSManager:       websocket.NewWSManager(pipeline, opts.AllowedOrigins),
		SnapshotHandler: handlers.NewSnapshotHandler(pipeline, opts.Storage, opts.Cache),
		ExportHandler:   handlers.NewExportHandler(pipeline),
		ConfigHandler:   handlers.NewConfigHandler(pipeline, opts.Persistence),
		HealthHandler:   handlers.NewHealthHandler(pipeline, opts.StaleAfter),
		reportLimiter:   middleware.NewRateLimiter(limit, time.Minute),
	}
	if opts.Reports != nil && opts.Exporter != nil {
		s.ReportHandler = handlers.NewReportHandler(opts.Reports, opts.Exporter)
	}
	return s
}

// Handler returns the instrumented route tree.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(SetupRoutes(s), "nethealth-server")
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.reportLimiter.StartCleanup(ctx)

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("[WEB] Server shutting down...")
		s.WSManager.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WEB] Shutdown error: %v", err)
		}
	}()

	log.Printf("[WEB] Listening on %s", ln.Addr())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
