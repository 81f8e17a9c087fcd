package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/homai-gateway/internal/command"
	"github.com/urmzd/homai-gateway/pkg/api/types"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	hub      *command.Hub
	managers int
}

// NewHealthHandler creates a new health handler; managers is how many
// technology managers the gateway composed at startup.
func NewHealthHandler(hub *command.Hub, managers int) *HealthHandler {
	return &HealthHandler{hub: hub, managers: managers}
}

// Health handles GET /health
// @Summary      Health check
// @Description  Returns the health status of the gateway
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.HealthResponse  "Service is healthy"
// @Failure      503  {object}  types.HealthResponse  "No technology manager is running"
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	status := "healthy"
	httpStatus := http.StatusOK

	if h.managers == 0 {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, types.HealthResponse{
		Status:    status,
		Managers:  h.managers,
		Devices:   len(h.hub.Descriptions()),
		Timestamp: time.Now(),
	})
}
