package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/homai-gateway/internal/beeeon"
	"github.com/urmzd/homai-gateway/internal/command"
	"github.com/urmzd/homai-gateway/internal/schema"
	"github.com/urmzd/homai-gateway/pkg/api/types"
)

// DevicesHandler handles device listing, accept and unpair endpoints.
type DevicesHandler struct {
	hub        *command.Hub
	dispatcher *command.Dispatcher
}

// NewDevicesHandler creates a new devices handler
func NewDevicesHandler(hub *command.Hub, dispatcher *command.Dispatcher) *DevicesHandler {
	return &DevicesHandler{hub: hub, dispatcher: dispatcher}
}

func (h *DevicesHandler) deviceView(desc beeeon.DeviceDescription) types.DeviceWithState {
	view := types.DeviceWithState{
		ID:          desc.DeviceID.String(),
		Technology:  desc.DeviceID.Prefix().String(),
		Vendor:      desc.Vendor,
		Product:     desc.Product,
		Paired:      h.dispatcher.Paired(desc.DeviceID),
		StateSchema: schema.ForModules(desc.Modules),
	}

	for i, m := range desc.Modules {
		info := types.ModuleInfo{ID: i, Type: m.Type.String()}
		for _, a := range m.Attributes {
			info.Attributes = append(info.Attributes, string(a))
		}
		view.Modules = append(view.Modules, info)
	}

	if state, ok := h.hub.State(desc.DeviceID); ok {
		view.State = stateView(state)
	}
	if at, ok := h.hub.LastSeen(desc.DeviceID); ok {
		view.LastSeen = &at
	}
	return view
}

func stateView(state map[beeeon.ModuleID]float64) map[string]any {
	out := make(map[string]any, len(state))
	for module, value := range state {
		out[strconv.Itoa(int(module))] = value
	}
	return out
}

// ListDevices handles GET /devices
// @Summary      List all devices
// @Description  Returns every device any technology manager has seen, paired or not
// @Tags         devices
// @Produce      json
// @Success      200  {object}  types.ListDevicesResponse
// @Router       /devices [get]
func (h *DevicesHandler) ListDevices(c *gin.Context) {
	descs := h.hub.Descriptions()
	sort.Slice(descs, func(i, j int) bool { return descs[i].DeviceID < descs[j].DeviceID })

	result := make([]types.DeviceWithState, 0, len(descs))
	for _, desc := range descs {
		result = append(result, h.deviceView(desc))
	}

	c.JSON(http.StatusOK, types.ListDevicesResponse{
		Devices: result,
		Count:   len(result),
	})
}

func parseDeviceID(c *gin.Context) (beeeon.DeviceID, bool) {
	id, err := beeeon.ParseDeviceID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_device_id",
			Message: err.Error(),
		})
		return 0, false
	}
	return id, true
}

// GetDevice handles GET /devices/:id
// @Summary      Get device details
// @Description  Returns details for one device by its gateway id
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Device id (technology:hex)"
// @Success      200  {object}  types.DeviceResponse
// @Failure      400  {object}  types.ErrorResponse  "Malformed device id"
// @Failure      404  {object}  types.ErrorResponse  "Device not found"
// @Router       /devices/{id} [get]
func (h *DevicesHandler) GetDevice(c *gin.Context) {
	id, ok := parseDeviceID(c)
	if !ok {
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

	c.JSON(http.StatusOK, types.DeviceResponse{Device: h.deviceView(desc)})
}

// AcceptDevice handles POST /devices/:id/accept
// @Summary      Accept a discovered device
// @Description  Confirms a discovered device; the owning manager marks it paired and starts shipping its samples
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Device id (technology:hex)"
// @Success      200  {object}  types.AcceptDeviceResponse
// @Failure      400  {object}  types.ErrorResponse  "Malformed device id"
// @Failure      404  {object}  types.ErrorResponse  "Device not found"
// @Router       /devices/{id}/accept [post]
func (h *DevicesHandler) AcceptDevice(c *gin.Context) {
	id, ok := parseDeviceID(c)
	if !ok {
		return
	}

	err := h.dispatcher.HandleAccept(c.Request.Context(), command.DeviceAcceptCommand{ID: id})
	if err != nil {
		if errors.Is(err, beeeon.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.ErrorResponse{
				Error:   "not_found",
				Message: "Device not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   "manager_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, types.AcceptDeviceResponse{Device: id.String(), Paired: true})
}

// RemoveDevice handles DELETE /devices/:id
// @Summary      Unpair a device
// @Description  Issues an unpair to the owning technology manager, waits for completion and reports which ids were actually released
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Device id (technology:hex)"
// @Success      200  {object}  types.RemoveDeviceResponse
// @Failure      400  {object}  types.ErrorResponse  "Malformed device id"
// @Failure      404  {object}  types.ErrorResponse  "Device not found"
// @Failure      504  {object}  types.ErrorResponse  "Unpair timed out"
// @Router       /devices/{id} [delete]
func (h *DevicesHandler) RemoveDevice(c *gin.Context) {
	id, ok := parseDeviceID(c)
	if !ok {
		return
	}

	const unpairTimeout = 30 * time.Second

	work, err := h.dispatcher.StartUnpair(c.Request.Context(), id, unpairTimeout)
	if err != nil {
		if errors.Is(err, beeeon.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.ErrorResponse{
				Error:   "not_found",
				Message: "Device not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   "manager_error",
			Message: err.Error(),
		})
		return
	}

	done, err := work.TryJoin(c.Request.Context(), unpairTimeout)
	if !done {
		c.JSON(http.StatusGatewayTimeout, types.ErrorResponse{
			Error:   "timeout",
			Message: "Unpair did not complete in time",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   "manager_error",
			Message: err.Error(),
		})
		return
	}

	unpaired := make([]string, 0)
	for _, released := range work.Outcome().Unpaired {
		unpaired = append(unpaired, released.String())
	}

	c.JSON(http.StatusOK, types.RemoveDeviceResponse{
		Device:   id.String(),
		Unpaired: unpaired,
	})
}
