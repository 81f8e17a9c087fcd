package types

import (
	"encoding/json"
	"time"
)

// --- Request DTOs ---

// StartDiscoveryRequest is the request body for POST /discovery/start
type StartDiscoveryRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

// --- Response DTOs ---

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned from GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Managers  int       `json:"managers"`
	Devices   int       `json:"devices"`
	Timestamp time.Time `json:"timestamp"`
}

// ModuleInfo describes one channel of a device
type ModuleInfo struct {
	ID         int      `json:"id"`
	Type       string   `json:"type"`
	Attributes []string `json:"attributes,omitempty"`
}

// DeviceWithState combines a device description with its last known state
type DeviceWithState struct {
	ID          string          `json:"id"`
	Technology  string          `json:"technology"`
	Vendor      string          `json:"vendor,omitempty"`
	Product     string          `json:"product,omitempty"`
	Paired      bool            `json:"paired"`
	Modules     []ModuleInfo    `json:"modules"`
	StateSchema json.RawMessage `json:"state_schema,omitempty"`
	State       map[string]any  `json:"state,omitempty"`
	LastSeen    *time.Time      `json:"last_seen,omitempty"`
}

// ListDevicesResponse is returned from GET /devices
type ListDevicesResponse struct {
	Devices []DeviceWithState `json:"devices"`
	Count   int               `json:"count"`
}

// DeviceResponse is returned from GET /devices/:id
type DeviceResponse struct {
	Device DeviceWithState `json:"device"`
}

// StateResponse is returned from GET/POST /devices/:id/state
type StateResponse struct {
	Device    string         `json:"device"`
	State     map[string]any `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
}

// StartDiscoveryResponse is returned from POST /discovery/start
type StartDiscoveryResponse struct {
	Status          string    `json:"status"`
	ExpiresAt       time.Time `json:"expires_at"`
	DurationSeconds int       `json:"duration_seconds"`
	Managers        int       `json:"managers"`
}

// StopDiscoveryResponse is returned from POST /discovery/stop
type StopDiscoveryResponse struct {
	Status string `json:"status"`
}

// AcceptDeviceResponse is returned from POST /devices/:id/accept
type AcceptDeviceResponse struct {
	Device string `json:"device"`
	Paired bool   `json:"paired"`
}

// RemoveDeviceResponse is returned from DELETE /devices/:id. Unpaired
// lists the ids the technology actually released, which for Z-Wave
// exclusion may be empty (nothing left the network in time) or differ
// from the requested id.
type RemoveDeviceResponse struct {
	Device   string   `json:"device"`
	Unpaired []string `json:"unpaired"`
}
