// Package api exposes the bridge's local status endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opengate/bridge/internal/common/logger"
)

// Sources provides the live values the status endpoint reports. Nil
// functions report as unavailable rather than panicking.
type Sources struct {
	DeliveryMode   string
	TransportState func() string
	ActiveSpawns   func() int
	BusConnected   func() bool
}

// Handler serves the status API.
type Handler struct {
	sources Sources
	started time.Time
	logger  *logger.Logger
}

// NewHandler creates a status API handler.
func NewHandler(sources Sources, log *logger.Logger) *Handler {
	return &Handler{
		sources: sources,
		started: time.Now(),
		logger:  log,
	}
}

// HealthCheck reports process liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status reports the bridge's runtime state.
func (h *Handler) Status(c *gin.Context) {
	resp := gin.H{
		"delivery_mode":  h.sources.DeliveryMode,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	}
	if h.sources.TransportState != nil {
		resp["transport_state"] = h.sources.TransportState()
	}
	if h.sources.ActiveSpawns != nil {
		resp["active_spawns"] = h.sources.ActiveSpawns()
	}
	if h.sources.BusConnected != nil {
		resp["bus_connected"] = h.sources.BusConnected()
	}
	c.JSON(http.StatusOK, resp)
}
