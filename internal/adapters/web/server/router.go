package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/lcalzada-xor/nethealth/internal/adapters/web/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes builds the route tree. Probes and /metrics stay public; the
// API and the websocket require a token when authentication is enabled.
func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.HealthHandler.HandleLive).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.HealthHandler.HandleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	protect := func(h http.Handler) http.Handler { return h }
	if s.Auth != nil {
		protect = middleware.AuthMiddleware(s.Auth)
	}

	r.Handle("/ws", protect(http.HandlerFunc(s.WSManager.HandleWebSocket)))

	api := r.PathPrefix("/api").Subrouter()
	api.Use(mux.MiddlewareFunc(protect))

	api.HandleFunc("/snapshot", s.SnapshotHandler.HandleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.SnapshotHandler.HandleStats).Methods(http.MethodGet)
	api.HandleFunc("/history/{metric}", s.SnapshotHandler.HandleHistory).Methods(http.MethodGet)
	api.HandleFunc("/topology", s.SnapshotHandler.HandleTopology).Methods(http.MethodGet)
	api.HandleFunc("/devices", s.SnapshotHandler.HandleDevices).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.SnapshotHandler.HandleAlerts).Methods(http.MethodGet)
	api.HandleFunc("/samples", s.SnapshotHandler.HandleSamples).Methods(http.MethodGet)

	api.HandleFunc("/config", s.ConfigHandler.HandleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config/persistence", s.ConfigHandler.HandleTogglePersistence).Methods(http.MethodPost)

	limited := middleware.RateLimitMiddleware(s.reportLimiter)
	api.Handle("/export", limited(http.HandlerFunc(s.ExportHandler.HandleExport))).Methods(http.MethodGet)
	if s.ReportHandler != nil {
		api.Handle("/report", limited(http.HandlerFunc(s.ReportHandler.HandleReport))).Methods(http.MethodGet)
	}

	return r
}
