package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/homai-gateway/internal/command"
	"github.com/urmzd/homai-gateway/pkg/api/types"
)

// DiscoveryHandler handles device discovery endpoints
type DiscoveryHandler struct {
	hub        *command.Hub
	dispatcher *command.Dispatcher
	works      []command.AsyncWork
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(hub *command.Hub, dispatcher *command.Dispatcher) *DiscoveryHandler {
	return &DiscoveryHandler{hub: hub, dispatcher: dispatcher}
}

// StartDiscovery handles POST /discovery/start
// @Summary      Start device discovery
// @Description  Opens a listen window on every technology manager
// @Tags         discovery
// @Accept       json
// @Produce      json
// @Param        request  body      types.StartDiscoveryRequest  false  "Discovery duration (default 120 seconds, max 600)"
// @Success      200      {object}  types.StartDiscoveryResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid duration"
// @Failure      500      {object}  types.ErrorResponse  "No manager could start discovery"
// @Router       /discovery/start [post]
func (h *DiscoveryHandler) StartDiscovery(c *gin.Context) {
	var req types.StartDiscoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.DurationSeconds = 120
	}
	if req.DurationSeconds <= 0 {
		req.DurationSeconds = 120
	}
	if req.DurationSeconds > 600 {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_duration",
			Message: "Duration cannot exceed 600 seconds",
		})
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	works, err := h.dispatcher.StartDiscovery(c.Request.Context(), duration)
	if len(works) == 0 && err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   "discovery_failed",
			Message: err.Error(),
		})
		return
	}
	h.works = works

	c.JSON(http.StatusOK, types.StartDiscoveryResponse{
		Status:          "listening",
		ExpiresAt:       time.Now().Add(duration),
		DurationSeconds: req.DurationSeconds,
		Managers:        len(works),
	})
}

// StopDiscovery handles POST /discovery/stop
// @Summary      Stop device discovery
// @Description  Cancels any listen windows opened by the last start
// @Tags         discovery
// @Produce      json
// @Success      200  {object}  types.StopDiscoveryResponse
// @Router       /discovery/stop [post]
func (h *DiscoveryHandler) StopDiscovery(c *gin.Context) {
	for _, work := range h.works {
		work.Cancel()
	}
	h.works = nil

	c.JSON(http.StatusOK, types.StopDiscoveryResponse{Status: "stopped"})
}

// Events handles GET /discovery/events (SSE stream)
// @Summary      Subscribe to gateway events
// @Description  Server-Sent Events stream of new_device and sample notifications
// @Tags         discovery
// @Produce      text/event-stream
// @Success      200  {string}  string  "SSE event stream"
// @Router       /discovery/events [get]
func (h *DiscoveryHandler) Events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	eventChan := h.hub.Subscribe()
	defer h.hub.Unsubscribe(eventChan)

	sendSSEEvent(c.Writer, "connected", map[string]any{
		"timestamp": time.Now(),
		"message":   "Connected to gateway event stream",
	})
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			sendSSEEvent(c.Writer, event.Type, map[string]any{
				"type":      event.Type,
				"device":    event.Device.String(),
				"timestamp": event.Timestamp,
			})
			c.Writer.Flush()

		case <-ticker.C:
			sendSSEEvent(c.Writer, "heartbeat", map[string]any{
				"timestamp": time.Now(),
			})
			c.Writer.Flush()
		}
	}
}

// sendSSEEvent writes an SSE event to the response
func sendSSEEvent(w io.Writer, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	io.WriteString(w, "event: "+eventType+"\n")
	io.WriteString(w, "data: "+string(jsonData)+"\n\n")
}
