package handlers

import (
	"net/http"
	"strconv"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/services/monitor"
)

// ConfigReader exposes the effective pipeline configuration.
type ConfigReader interface {
	Config() monitor.Config
}

// PersistenceToggle switches history persistence at runtime.
type PersistenceToggle interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
}

// ConfigHandler handles configuration settings
type ConfigHandler struct {
	Config      ConfigReader
	Persistence PersistenceToggle // optional
}

// NewConfigHandler creates a new ConfigHandler
func NewConfigHandler(cfg ConfigReader, persistence PersistenceToggle) *ConfigHandler {
	return &ConfigHandler{Config: cfg, Persistence: persistence}
}

type configResponse struct {
	SamplingPeriodMs   int64         `json:"samplingPeriodMs"`
	MaxPoints          int           `json:"maxPoints"`
	CooldownCycles     int           `json:"cooldownCycles"`
	Rules              []domain.Rule `json:"rules"`
	PersistenceEnabled bool          `json:"persistenceEnabled"`
}

// HandleGetConfig returns current configuration
func (h *ConfigHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.Config.Config()
	resp := configResponse{
		SamplingPeriodMs: cfg.SamplingPeriod.Milliseconds(),
		MaxPoints:        cfg.MaxPoints,
		CooldownCycles:   cfg.CooldownCycles,
		Rules:            cfg.Rules,
	}
	if resp.Rules == nil {
		resp.Rules = []domain.Rule{}
	}
	if h.Persistence != nil {
		resp.PersistenceEnabled = h.Persistence.IsEnabled()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleTogglePersistence toggles data persistence with ?enabled=true|false.
func (h *ConfigHandler) HandleTogglePersistence(w http.ResponseWriter, r *http.Request) {
	if h.Persistence == nil {
		writeError(w, http.StatusServiceUnavailable, "history storage disabled")
		return
	}

	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "enabled must be true or false")
		return
	}
	h.Persistence.SetEnabled(enabled)

	writeJSON(w, http.StatusOK, map[string]any{"status": "persistence_updated", "enabled": enabled})
}
