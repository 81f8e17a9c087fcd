package zwave

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-gateway/internal/beeeon"
	"github.com/urmzd/homai-gateway/internal/command"
	"github.com/urmzd/homai-gateway/internal/syncutil"
)

// wrappedDevice is everything the manager keeps about one resolved
// Z-Wave node: the node itself and the mapper resolved for it. Only
// nodes with a resolved mapper are stored.
type wrappedDevice struct {
	node   *Node
	mapper Mapper
}

// Manager is the Z-Wave device manager: it keeps a devices map keyed by
// BeeeOn id and a zwaveNodes map keyed by Identity, polls Network for
// events, resolves a Mapper as soon as a node carries enough information
// to do so, and ships samples/new_device dispatches through the shared
// Distributor contract. A node with no resolvable mapper is skipped
// until the library delivers an update with more detail.
type Manager struct {
	network  Network
	registry Registry
	dist     command.Distributor
	paired   *command.PairedSet

	mu         sync.Mutex
	devices    map[beeeon.DeviceID]*wrappedDevice
	zwaveNodes map[Identity]beeeon.DeviceID

	// recentlyUnpaired collects the ids dropped by remove_node events;
	// StartUnpair drains it into its result so callers learn what the
	// network actually excluded.
	recentlyUnpairedMu sync.Mutex
	recentlyUnpaired   map[beeeon.DeviceID]struct{}

	// removeDone releases the unpair wait when the library reports the
	// remove-node mode finished.
	removeDone *syncutil.Event

	dispatchMu    sync.Mutex
	dispatchUntil time.Time

	pollTimeout time.Duration

	stopOnce   sync.Once
	stopped    chan struct{}
	stopCtx    context.Context
	stopCancel context.CancelFunc
	loopWG     sync.WaitGroup
}

// NewManager starts the manager's poll loop against an already-running
// Network. Callers own network's lifecycle; Stop only interrupts polling.
func NewManager(network Network, registry Registry, dist command.Distributor) *Manager {
	m := &Manager{
		network:          network,
		registry:         registry,
		dist:             dist,
		paired:           command.NewPairedSet(),
		devices:          make(map[beeeon.DeviceID]*wrappedDevice),
		zwaveNodes:       make(map[Identity]beeeon.DeviceID),
		recentlyUnpaired: make(map[beeeon.DeviceID]struct{}),
		removeDone:       syncutil.NewEvent(),
		pollTimeout:      time.Second,
		stopped:          make(chan struct{}),
	}
	m.stopCtx, m.stopCancel = context.WithCancel(context.Background())
	m.loopWG.Add(1)
	go m.pollLoop()
	return m
}

func (m *Manager) pollLoop() {
	defer m.loopWG.Done()

	ctx := context.Background()
	for {
		select {
		case <-m.stopped:
			return
		default:
		}

		event, err := m.network.PollEvent(ctx, m.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("zwave: poll event failed")
			continue
		}

		m.handleEvent(event)
	}
}

func (m *Manager) handleEvent(e Event) {
	switch e.Kind {
	case EventNone, EventReady, EventInclusionStart, EventInclusionDone, EventRemoveNodeStart:
		// no device-level effect
	case EventNewNode, EventUpdateNode:
		if e.Node != nil {
			m.updateNode(e.Node)
		}
	case EventRemoveNode:
		if e.Node != nil {
			m.removeNode(e.Node.ID)
		}
	case EventRemoveNodeDone:
		if e.Node != nil {
			m.removeNode(e.Node.ID)
		}
		m.removeDone.Set()
	case EventValue:
		if e.Value != nil {
			m.handleValue(*e.Value)
		}
	}
}

// updateNode resolves (or re-resolves) a Mapper for the node's current
// state. A node is "working" only once a Mapper is resolved; until then
// it produces no samples or dispatches.
func (m *Manager) updateNode(node *Node) {
	mapper, err := m.registry.Resolve(node)
	if err != nil {
		log.Error().Err(err).Stringer("node", node.ID).Msg("zwave: mapper resolution failed")
		return
	}
	if mapper == nil {
		log.Debug().Stringer("node", node.ID).Msg("zwave: no mapper resolved yet")
		return
	}

	id := mapper.BuildID()

	m.mu.Lock()
	_, existed := m.devices[id]
	m.devices[id] = &wrappedDevice{node: node, mapper: mapper}
	m.zwaveNodes[node.ID] = id
	m.mu.Unlock()

	if !existed {
		m.maybeDispatch(id, mapper)
	}
}

// removeNode drops a departed node from both maps and records its id in
// recentlyUnpaired for the next StartUnpair drain.
func (m *Manager) removeNode(nodeID Identity) {
	m.mu.Lock()
	id, ok := m.zwaveNodes[nodeID]
	if ok {
		delete(m.zwaveNodes, nodeID)
		delete(m.devices, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	m.paired.Remove(id)

	m.recentlyUnpairedMu.Lock()
	m.recentlyUnpaired[id] = struct{}{}
	m.recentlyUnpairedMu.Unlock()
}

// drainRecentlyUnpaired empties the cache and returns its contents.
func (m *Manager) drainRecentlyUnpaired() []beeeon.DeviceID {
	m.recentlyUnpairedMu.Lock()
	defer m.recentlyUnpairedMu.Unlock()

	out := make([]beeeon.DeviceID, 0, len(m.recentlyUnpaired))
	for id := range m.recentlyUnpaired {
		out = append(out, id)
	}
	m.recentlyUnpaired = make(map[beeeon.DeviceID]struct{})
	return out
}

func (m *Manager) handleValue(v Value) {
	m.mu.Lock()
	id, ok := m.zwaveNodes[v.Node]
	var mapper Mapper
	if ok {
		mapper = m.devices[id].mapper
	}
	m.mu.Unlock()

	if !ok || mapper == nil {
		return
	}
	if !m.paired.Contains(id) {
		return
	}

	sv, err := mapper.Convert(v)
	if err != nil {
		log.Debug().Err(err).Stringer("value", v).Msg("zwave: value not recognized by mapper")
		return
	}

	data := beeeon.SensorData{DeviceID: id, Timestamp: time.Now(), Values: []beeeon.SensorValue{sv}}
	if err := m.dist.ShipSample(context.Background(), data); err != nil {
		log.Error().Err(err).Msg("zwave: ship sample failed")
	}
}

func (m *Manager) maybeDispatch(id beeeon.DeviceID, mapper Mapper) {
	m.dispatchMu.Lock()
	open := time.Now().Before(m.dispatchUntil)
	m.dispatchMu.Unlock()
	if !open {
		return
	}

	desc := beeeon.DeviceDescription{
		DeviceID:    id,
		Vendor:      "Z-Wave",
		Product:     mapper.Product(),
		Modules:     mapper.Types(),
		RefreshTime: beeeon.RefreshEvery(30 * time.Minute),
	}
	if err := m.dist.ShipNewDevice(context.Background(), desc); err != nil {
		log.Error().Err(err).Msg("zwave: ship new_device failed")
	}
}

// --- command.DeviceManager ---

func (m *Manager) Accept(cmd command.Command) bool {
	return command.Accepts(beeeon.PrefixZWave, cmd)
}

func (m *Manager) Paired(id beeeon.DeviceID) bool {
	return m.paired.Contains(id)
}

func (m *Manager) HandleAccept(_ context.Context, cmd command.DeviceAcceptCommand) error {
	m.mu.Lock()
	_, ok := m.devices[cmd.ID]
	m.mu.Unlock()
	if !ok {
		return beeeon.ErrNotFound
	}
	m.paired.Add(cmd.ID)
	return nil
}

// StartDiscovery opens the network's inclusion mode for duration and a
// dispatch window matching it: any node resolved while the window is open
// is reported as a new device.
func (m *Manager) StartDiscovery(_ context.Context, duration time.Duration) (command.AsyncWork, error) {
	if err := m.network.StartInclusion(); err != nil {
		return nil, err
	}

	m.dispatchMu.Lock()
	m.dispatchUntil = time.Now().Add(duration)
	m.dispatchMu.Unlock()

	work, complete := command.NewAsyncWork(func() {
		if err := m.network.CancelInclusion(); err != nil {
			log.Error().Err(err).Msg("zwave: cancel inclusion failed")
		}
	})
	go func() {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-m.stopped:
		}
		if err := m.network.CancelInclusion(); err != nil {
			log.Error().Err(err).Msg("zwave: cancel inclusion after timeout failed")
		}
		complete(command.Ok())
	}()
	return work, nil
}

// StartUnpair removes the device from the paired set and opens the
// network's remove-node mode, waiting for a remove_node_done event or the
// timeout, whichever is first. The result carries the ids drained from
// recentlyUnpaired, which is what the network actually excluded; the
// requested id only appears there once its remove_node event arrived.
func (m *Manager) StartUnpair(_ context.Context, id beeeon.DeviceID, timeout time.Duration) (command.AsyncWork, error) {
	m.mu.Lock()
	_, ok := m.devices[id]
	m.mu.Unlock()
	if !ok {
		return nil, beeeon.ErrNotFound
	}

	m.paired.Remove(id)
	m.removeDone.Reset()

	if err := m.network.StartRemoveNode(); err != nil {
		return nil, err
	}

	work, complete := command.NewAsyncWork(func() {
		if err := m.network.CancelRemoveNode(); err != nil {
			log.Error().Err(err).Msg("zwave: cancel remove-node failed")
		}
	})
	go func() {
		if !m.removeDone.Wait(m.stopCtx, timeout) {
			log.Debug().Str("device", id.String()).Msg("zwave: remove-node mode timed out")
		}
		if err := m.network.CancelRemoveNode(); err != nil {
			log.Error().Err(err).Msg("zwave: cancel remove-node failed")
		}
		complete(command.Unpaired(m.drainRecentlyUnpaired()...))
	}()
	return work, nil
}

func (m *Manager) StartSetValue(_ context.Context, cmd command.DeviceSetValueCommand) (command.AsyncWork, error) {
	m.mu.Lock()
	dev, ok := m.devices[cmd.ID]
	m.mu.Unlock()
	if !ok {
		return nil, beeeon.ErrNotFound
	}

	v, err := dev.mapper.ConvertBack(cmd.Module, cmd.Value)
	if err != nil {
		return nil, err
	}
	v.Node = dev.node.ID

	work, complete := command.NewAsyncWork(nil)
	go func() {
		if err := m.network.PostValue(v); err != nil {
			complete(command.Fail(err))
			return
		}
		complete(command.Ok())
	}()
	return work, nil
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopped)
		m.stopCancel()
		m.network.Interrupt()
	})
	m.loopWG.Wait()
}

var _ command.DeviceManager = (*Manager)(nil)
