package command

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-gateway/internal/beeeon"
)

// DeviceEvent is the gateway-local notification fanned out to event
// subscribers (the SSE stream, primarily) whenever a sample or a device
// description passes through the hub.
type DeviceEvent struct {
	Type      string
	Device    beeeon.DeviceID
	Timestamp time.Time
}

// Hub sits between the technology managers and the real Distributor: it
// forwards everything downstream, remembers the latest description and
// module values per device for the HTTP surface, and fans out
// DeviceEvents to subscribers. It is itself a Distributor, so managers
// need no knowledge of it.
type Hub struct {
	next []Distributor

	mu     sync.RWMutex
	descs  map[beeeon.DeviceID]beeeon.DeviceDescription
	state  map[beeeon.DeviceID]map[beeeon.ModuleID]float64
	seenAt map[beeeon.DeviceID]time.Time

	subMu sync.Mutex
	subs  map[chan DeviceEvent]struct{}
}

// NewHub builds a hub forwarding to next (each may be nil-free; pass the
// logging distributor at minimum).
func NewHub(next ...Distributor) *Hub {
	return &Hub{
		next:   next,
		descs:  make(map[beeeon.DeviceID]beeeon.DeviceDescription),
		state:  make(map[beeeon.DeviceID]map[beeeon.ModuleID]float64),
		seenAt: make(map[beeeon.DeviceID]time.Time),
		subs:   make(map[chan DeviceEvent]struct{}),
	}
}

func (h *Hub) ShipSample(ctx context.Context, data beeeon.SensorData) error {
	h.mu.Lock()
	modules, ok := h.state[data.DeviceID]
	if !ok {
		modules = make(map[beeeon.ModuleID]float64)
		h.state[data.DeviceID] = modules
	}
	for _, v := range data.Values {
		if v.Present {
			modules[v.Module] = v.Value
		}
	}
	h.seenAt[data.DeviceID] = data.Timestamp
	h.mu.Unlock()

	h.publish(DeviceEvent{Type: "sample", Device: data.DeviceID, Timestamp: data.Timestamp})

	var lastErr error
	for _, d := range h.next {
		if err := d.ShipSample(ctx, data); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (h *Hub) ShipNewDevice(ctx context.Context, desc beeeon.DeviceDescription) error {
	h.mu.Lock()
	h.descs[desc.DeviceID] = desc
	h.seenAt[desc.DeviceID] = time.Now()
	h.mu.Unlock()

	h.publish(DeviceEvent{Type: "new_device", Device: desc.DeviceID, Timestamp: time.Now()})

	var lastErr error
	for _, d := range h.next {
		if err := d.ShipNewDevice(ctx, desc); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Subscribe registers a new event channel. The channel is buffered;
// events are dropped (with a log) rather than blocking a manager loop on
// a slow consumer.
func (h *Hub) Subscribe() chan DeviceEvent {
	ch := make(chan DeviceEvent, 16)
	h.subMu.Lock()
	h.subs[ch] = struct{}{}
	h.subMu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan DeviceEvent) {
	h.subMu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.subMu.Unlock()
}

func (h *Hub) publish(event DeviceEvent) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			log.Debug().Str("device", event.Device.String()).Msg("hub: dropping event for slow subscriber")
		}
	}
}

// Description returns the latest description seen for id.
func (h *Hub) Description(id beeeon.DeviceID) (beeeon.DeviceDescription, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	desc, ok := h.descs[id]
	return desc, ok
}

// Descriptions snapshots every known description.
func (h *Hub) Descriptions() []beeeon.DeviceDescription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]beeeon.DeviceDescription, 0, len(h.descs))
	for _, desc := range h.descs {
		out = append(out, desc)
	}
	return out
}

// State returns the last known module values for id.
func (h *Hub) State(id beeeon.DeviceID) (map[beeeon.ModuleID]float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	modules, ok := h.state[id]
	if !ok {
		return nil, false
	}
	out := make(map[beeeon.ModuleID]float64, len(modules))
	for m, v := range modules {
		out[m] = v
	}
	return out, true
}

// LastSeen returns when id last produced a sample or description.
func (h *Hub) LastSeen(id beeeon.DeviceID) (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	at, ok := h.seenAt[id]
	return at, ok
}
