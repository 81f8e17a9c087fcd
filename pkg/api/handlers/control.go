package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/homai-gateway/internal/beeeon"
	"github.com/urmzd/homai-gateway/internal/command"
	"github.com/urmzd/homai-gateway/internal/schema"
	"github.com/urmzd/homai-gateway/pkg/api/types"
)

// ControlHandler handles device state control endpoints
type ControlHandler struct {
	hub        *command.Hub
	dispatcher *command.Dispatcher
	validator  *schema.Validator
}

// NewControlHandler creates a new control handler
func NewControlHandler(hub *command.Hub, dispatcher *command.Dispatcher, validator *schema.Validator) *ControlHandler {
	return &ControlHandler{hub: hub, dispatcher: dispatcher, validator: validator}
}

// GetState handles GET /devices/:id/state
// @Summary      Get device state
// @Description  Returns the last known module values of a device
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Device id (technology:hex)"
// @Success      200  {object}  types.StateResponse
// @Failure      400  {object}  types.ErrorResponse  "Malformed device id"
// @Failure      404  {object}  types.ErrorResponse  "Device not found or no state yet"
// @Router       /devices/{id}/state [get]
func (h *ControlHandler) GetState(c *gin.Context) {
	id, ok := parseDeviceID(c)
	if !ok {
		return
	}

	if _, ok := h.hub.Description(id); !ok {
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "not_found",
			Message: "Device not found",
		})
		return
	}

	state, ok := h.hub.State(id)
	if !ok {
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "no_state",
			Message: "Device has not reported any values yet",
		})
		return
	}

	c.JSON(http.StatusOK, types.StateResponse{
		Device:    id.String(),
		State:     stateView(state),
		Timestamp: time.Now(),
	})
}

// SetState handles POST /devices/:id/state
// @Summary      Set device state
// @Description  Writes module values, validated against the schema generated from the device's module list
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id       path      string  true  "Device id (technology:hex)"
// @Param        request  body      object  true  "Module values to write, keyed by module ordinal"
// @Success      200      {object}  types.StateResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request or validation failure"
// @Failure      404      {object}  types.ErrorResponse  "Device not found"
// @Failure      504      {object}  types.ErrorResponse  "Write timed out"
// @Router       /devices/{id}/state [post]
func (h *ControlHandler) SetState(c *gin.Context) {
	id, ok := parseDeviceID(c)
	if !ok {
		return
	}

	var req map[string]any
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
		return
	}

	desc, ok := h.hub.Description(id)
	if !ok {
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "not_found",
			Message: "Device not found",
		})
		return
	}

	if err := h.validator.Validate(schema.ForModules(desc.Modules), req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	const setValueTimeout = 15 * time.Second

	applied := make(map[string]any, len(req))
	for key, raw := range req {
		module, err := strconv.Atoi(key)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{
				Error:   "invalid_request",
				Message: "module keys must be ordinals",
			})
			return
		}
		value, ok := raw.(float64)
		if !ok {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{
				Error:   "invalid_request",
				Message: "module values must be numbers",
			})
			return
		}

		work, err := h.dispatcher.StartSetValue(c.Request.Context(), command.DeviceSetValueCommand{
			ID:      id,
			Module:  beeeon.ModuleID(module),
			Value:   value,
			Timeout: setValueTimeout,
		})
		if err != nil {
			h.setValueError(c, err)
			return
		}

		done, err := work.TryJoin(c.Request.Context(), setValueTimeout)
		if !done {
			c.JSON(http.StatusGatewayTimeout, types.ErrorResponse{
				Error:   "timeout",
				Message: "Write did not complete in time",
			})
			return
		}
		if err != nil {
			h.setValueError(c, err)
			return
		}
		applied[key] = value
	}

	c.JSON(http.StatusOK, types.StateResponse{
		Device:    id.String(),
		State:     applied,
		Timestamp: time.Now(),
	})
}

func (h *ControlHandler) setValueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, beeeon.ErrNotFound):
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "not_found",
			Message: "Device not found",
		})
	case errors.Is(err, beeeon.ErrInvalidArgument), errors.Is(err, beeeon.ErrUnsupported):
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "not_controllable",
			Message: err.Error(),
		})
	case errors.Is(err, beeeon.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, types.ErrorResponse{
			Error:   "timeout",
			Message: err.Error(),
		})
	case errors.Is(err, beeeon.ErrNotConnected):
		c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{
			Error:   "not_connected",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   "manager_error",
			Message: err.Error(),
		})
	}
}
