package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status" jsonschema:"required,enum=ok,enum=degraded"`
	Database string `json:"database" jsonschema:"required"`
}

// Health reports whether the store is reachable.
func (h *Handler) Health(c *gin.Context) {
	response := HealthResponse{Status: "ok", Database: "connected"}

	if err := h.Store.Ping(c.Request.Context()); err != nil {
		h.Logger.Warn().Err(err).Msg("Health check failed")
		response.Status = "degraded"
		response.Database = "disconnected"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}
