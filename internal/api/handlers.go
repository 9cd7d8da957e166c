package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"uptimizer/internal/auth"
	"uptimizer/internal/checker"
	"uptimizer/internal/config"
	"uptimizer/internal/models"
	"uptimizer/internal/state"
	"uptimizer/internal/stats"
	"uptimizer/internal/storage"
)

// Handlers holds dependencies for the API handlers.
type Handlers struct {
	state    *state.State
	store    storage.HistoryStore
	stats    *stats.Aggregator
	runner   *checker.Runner
	verifier auth.Verifier
	cfg      *config.Config
	cfgPath  string
	logger   *zap.Logger

	// cfgMu serializes config file writes and reloads. h.cfg itself is
	// read-only after construction; each save marshals a fresh Config
	// built from live state, so handlers never share a mutable struct.
	cfgMu sync.Mutex
}

// NewHandlers creates a Handlers struct.
func NewHandlers(st *state.State, store storage.HistoryStore, agg *stats.Aggregator,
	runner *checker.Runner, verifier auth.Verifier, cfg *config.Config, cfgPath string,
	logger *zap.Logger) *Handlers {
	return &Handlers{
		state:    st,
		store:    store,
		stats:    agg,
		runner:   runner,
		verifier: verifier,
		cfg:      cfg,
		cfgPath:  cfgPath,
		logger:   logger,
	}
}

// Healthz is a simple liveness endpoint.
func (h *Handlers) Healthz(c *gin.Context) {
	c.Status(http.StatusOK)
}

// Status returns every client's live status snapshot.
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"clients":      h.state.AllStatuses(),
		"last_updated": h.state.LastUpdated(),
	})
}

// ListClients returns the configured clients. API tokens are never
// serialized.
func (h *Handlers) ListClients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clients": h.state.Clients()})
}

// ClientStatus is the status-export endpoint a peer's remote fetcher
// calls. It sits behind RequireClientToken.
func (h *Handlers) ClientStatus(c *gin.Context) {
	snapshot, err := h.state.ClientStatus(c.Param("client_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// IssueToken mints a client API token for linking.
func (h *Handlers) IssueToken(c *gin.Context) {
	clientID := c.Param("client_id")
	if _, err := h.state.ClientStatus(clientID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
		return
	}
	token, err := h.verifier.IssueToken(clientID)
	if err != nil {
		h.logger.Error("token issuance failed", zap.String("client_id", clientID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"client_id": clientID, "token": token})
}

// Statistics returns the 24h uptime percentage for every local
// endpoint.
func (h *Handlers) Statistics(c *gin.Context) {
	ids := h.state.LocalEndpointIDs()
	if len(ids) == 0 {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	out := make(map[string]gin.H, len(ids))
	for _, id := range ids {
		pct, err := h.stats.UptimePct24h(c.Request.Context(), id)
		switch {
		case err == nil:
			out[id] = gin.H{"uptime_percentage_24h": pct}
		case errors.Is(err, stats.ErrNoData):
			out[id] = gin.H{"uptime_percentage_24h": nil, "error": err.Error()}
		case errors.Is(err, storage.ErrUnavailable):
			out[id] = gin.H{"uptime_percentage_24h": nil, "error": "history store unavailable"}
		default:
			h.logger.Error("stats calculation failed", zap.String("endpoint_id", id), zap.Error(err))
			out[id] = gin.H{"uptime_percentage_24h": nil, "error": "calculation error"}
		}
	}
	c.JSON(http.StatusOK, out)
}

// History returns the raw sample series for one endpoint over a named
// period.
func (h *Handlers) History(c *gin.Context) {
	endpointID := c.Param("endpoint_id")
	if !h.state.HasEndpoint(endpointID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown endpoint id", "data": []models.HistoryPoint{}})
		return
	}
	end := time.Now().UTC()
	var start time.Time
	period := c.DefaultQuery("period", "24h")
	switch period {
	case "1h":
		start = end.Add(-time.Hour)
	case "7d":
		start = end.Add(-7 * 24 * time.Hour)
	default:
		period = "24h"
		start = end.Add(-24 * time.Hour)
	}
	points, err := h.stats.History(c.Request.Context(), endpointID, start, end)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store unavailable", "data": []models.HistoryPoint{}})
			return
		}
		h.logger.Error("history fetch failed", zap.String("endpoint_id", endpointID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history fetch error", "data": []models.HistoryPoint{}})
		return
	}
	if points == nil {
		points = []models.HistoryPoint{}
	}
	c.JSON(http.StatusOK, gin.H{"period": period, "data": points})
}

// HistoryEndpointIDs lists every endpoint id ever recorded, for
// administrative purge workflows.
func (h *Handlers) HistoryEndpointIDs(c *gin.Context) {
	ids, err := h.store.DistinctEndpointIDs(c.Request.Context())
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list endpoint ids"})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"endpoint_ids": ids})
}

// PurgeHistory deletes all history for one endpoint id.
func (h *Handlers) PurgeHistory(c *gin.Context) {
	endpointID := c.Param("endpoint_id")
	purged, err := h.runner.PurgeHistory(c.Request.Context(), endpointID)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store unavailable"})
			return
		}
		h.logger.Error("history purge failed", zap.String("endpoint_id", endpointID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "purge failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"endpoint_id": endpointID, "purged": purged})
}

type endpointRequest struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	Group           string `json:"group"`
	IntervalSeconds *int   `json:"check_interval_seconds"`
	TimeoutSeconds  *int   `json:"check_timeout_seconds"`
}

func (r endpointRequest) validate() error {
	if r.Name == "" || r.URL == "" {
		return errors.New("missing required fields: name, url")
	}
	if r.IntervalSeconds != nil && *r.IntervalSeconds < models.MinCheckInterval {
		return errors.New("check_interval_seconds must be >= 5")
	}
	if r.TimeoutSeconds != nil && *r.TimeoutSeconds < models.MinCheckTimeout {
		return errors.New("check_timeout_seconds must be >= 1")
	}
	return nil
}

func (r endpointRequest) toEndpoint(id string) models.Endpoint {
	group := r.Group
	if group == "" {
		group = config.DefaultGroup
	}
	return models.Endpoint{
		ID:              id,
		Name:            r.Name,
		URL:             r.URL,
		Group:           group,
		IntervalSeconds: r.IntervalSeconds,
		TimeoutSeconds:  r.TimeoutSeconds,
	}
}

// AddEndpoint creates a new endpoint under a local client.
func (h *Handlers) AddEndpoint(c *gin.Context) {
	clientID := c.Param("client_id")
	var req endpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request must be JSON"})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ep := req.toEndpoint(config.GenerateEndpointID())
	if err := h.state.AddEndpoint(clientID, ep); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
		return
	}
	if err := h.saveConfig(); err != nil {
		// Roll the in-memory add back so state and file stay in step.
		_ = h.state.RemoveEndpoint(clientID, ep.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save configuration file"})
		return
	}
	c.JSON(http.StatusCreated, ep)
}

// UpdateEndpoint edits an existing endpoint.
func (h *Handlers) UpdateEndpoint(c *gin.Context) {
	clientID := c.Param("client_id")
	endpointID := c.Param("endpoint_id")
	var req endpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request must be JSON"})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ep := req.toEndpoint(endpointID)
	if err := h.state.UpdateEndpoint(clientID, ep); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err := h.saveConfig(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save configuration file"})
		return
	}
	c.JSON(http.StatusOK, ep)
}

// DeleteEndpoint removes an endpoint. History is kept; purging it is a
// separate explicit operation.
func (h *Handlers) DeleteEndpoint(c *gin.Context) {
	clientID := c.Param("client_id")
	endpointID := c.Param("endpoint_id")
	if err := h.state.RemoveEndpoint(clientID, endpointID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err := h.saveConfig(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save configuration file"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "endpoint deleted"})
}

// GetSettings returns the current global settings.
func (h *Handlers) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"settings": h.state.Settings()})
}

// UpdateSettings replaces the global check parameters. The scheduler
// re-reads the interval every tick, so the change takes effect without
// a restart.
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var req models.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request must be JSON"})
		return
	}
	if req.CheckIntervalSeconds < models.MinCheckInterval {
		c.JSON(http.StatusBadRequest, gin.H{"error": "check_interval_seconds must be >= 5"})
		return
	}
	if req.CheckTimeoutSeconds < models.MinCheckTimeout {
		c.JSON(http.StatusBadRequest, gin.H{"error": "check_timeout_seconds must be >= 1"})
		return
	}
	prev := h.state.Settings()
	h.state.SetSettings(req)
	if err := h.saveConfig(); err != nil {
		h.state.SetSettings(prev)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save configuration file"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": req})
}

// ReloadConfig re-reads the config file, rebuilds live state and runs
// one synchronous check cycle over the new configuration.
func (h *Handlers) ReloadConfig(c *gin.Context) {
	h.cfgMu.Lock()
	cfg, err := config.Load(h.cfgPath)
	if err != nil {
		h.cfgMu.Unlock()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.state.Replace(cfg.Settings, cfg.Clients)
	h.cfgMu.Unlock()

	h.runner.RunCycle(context.Background())
	c.JSON(http.StatusOK, gin.H{"message": "configuration reloaded", "clients": len(cfg.Clients)})
}

// saveConfig writes the live configuration back to disk. A fresh
// Config is marshaled per call; only the static sections come from the
// construction-time config.
func (h *Handlers) saveConfig() error {
	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()
	cfg := &config.Config{
		Server:   h.cfg.Server,
		Database: h.cfg.Database,
		Auth:     h.cfg.Auth,
		Settings: h.state.Settings(),
		Clients:  h.state.Clients(),
	}
	if err := cfg.Save(h.cfgPath); err != nil {
		h.logger.Error("config save failed", zap.Error(err))
		return err
	}
	return nil
}
