package jablotron

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-gateway/internal/beeeon"
	"github.com/urmzd/homai-gateway/internal/command"
)

const slotCount = 32

// device bundles what the manager knows about one paired or cached
// Jablotron gadget. slot is -1 until the address is found in the
// dongle's pairing table.
type device struct {
	slot    int
	address uint32
	info    Info
}

// Manager is the Jablotron device manager: it owns a Controller, the
// slot table, and a polling goroutine turning reports into shipped
// samples.
type Manager struct {
	controller *Controller
	dist       command.Distributor
	paired     *command.PairedSet

	mu      sync.Mutex
	devices map[beeeon.DeviceID]*device
	slots   [slotCount]uint32 // 0 means empty

	dispatchMu    sync.Mutex
	dispatchUntil time.Time

	stopOnce sync.Once
	stopped  chan struct{}
	loopWG   sync.WaitGroup
}

func deviceID(address uint32) beeeon.DeviceID {
	return beeeon.NewDeviceID(beeeon.PrefixJablotron, uint64(address))
}

// NewManager wraps an already-probed Controller. The caller is expected to
// have opened portPath via Open() first and to call Stop() on shutdown.
func NewManager(controller *Controller, dist command.Distributor) *Manager {
	m := &Manager{
		controller: controller,
		dist:       dist,
		paired:     command.NewPairedSet(),
		devices:    make(map[beeeon.DeviceID]*device),
		stopped:    make(chan struct{}),
	}
	m.syncSlots()
	m.loopWG.Add(1)
	go m.pollLoop()
	return m
}

// syncSlots reads the dongle's pairing table so gadgets enrolled in a
// previous run are known (and addressable for unpair) before their first
// report arrives. Read failures leave the slot unknown; the next report
// still registers the device.
func (m *Manager) syncSlots() {
	ctx := context.Background()

	for i := 0; i < slotCount; i++ {
		address, err := m.controller.ReadSlot(ctx, i, 2*time.Second)
		if err != nil {
			log.Warn().Err(err).Int("slot", i).Msg("jablotron: reading slot failed")
			continue
		}
		if address == 0 {
			continue
		}

		m.mu.Lock()
		m.slots[i] = address
		primary := PrimaryAddress(address)
		info := Resolve(primary)
		if info.Kind != KindNone {
			m.devices[deviceID(primary)] = &device{slot: i, address: primary, info: info}
		}
		m.mu.Unlock()

		if info.Kind == KindNone {
			log.Warn().Uint32("address", address).Int("slot", i).Msg("jablotron: slot holds an unrecognized address")
		}
	}

	m.mu.Lock()
	occupied := 0
	for _, address := range m.slots {
		if address != 0 {
			occupied++
		}
	}
	m.mu.Unlock()
	log.Info().Int("occupied", occupied).Int("total", slotCount).Msg("jablotron: slot table synchronized")
}

// pollLoop continuously pulls reports and, for any report whose address
// falls into a known gadget range, ships the parsed sample when the device
// is paired. Failures are logged and the loop continues; one bad report
// must not take the technology down.
func (m *Manager) pollLoop() {
	defer m.loopWG.Done()

	ctx := context.Background()
	for {
		select {
		case <-m.stopped:
			return
		default:
		}

		report, err := m.controller.PollReport(ctx, -1)
		if err != nil {
			log.Error().Err(err).Msg("jablotron: poll report failed")
			continue
		}
		if report.Invalid() {
			continue
		}

		m.handleReport(report)
	}
}

func (m *Manager) handleReport(report Report) {
	primary := PrimaryAddress(report.Address)
	info := Resolve(primary)
	if info.Kind == KindNone {
		log.Debug().Uint32("address", report.Address).Msg("jablotron: report from unrecognized address")
		return
	}

	id := deviceID(primary)

	m.mu.Lock()
	_, known := m.devices[id]
	if !known {
		m.devices[id] = &device{slot: -1, address: primary, info: info}
	}
	m.mu.Unlock()

	if !known {
		m.maybeDispatch(id, info)
	}

	values, err := info.Parse(report)
	if err != nil {
		log.Warn().Err(err).Uint32("address", report.Address).Msg("jablotron: parse failed, dropping sample")
		return
	}

	if !m.paired.Contains(id) {
		return
	}

	data := beeeon.SensorData{DeviceID: id, Timestamp: time.Now(), Values: values}
	if !data.HasValues() {
		return
	}
	if err := m.dist.ShipSample(context.Background(), data); err != nil {
		log.Error().Err(err).Msg("jablotron: ship sample failed")
	}
}

// maybeDispatch ships a DeviceDescription for a newly recognized gadget
// when a discovery window is open; outside the window it is silently
// cached.
func (m *Manager) maybeDispatch(id beeeon.DeviceID, info Info) {
	m.dispatchMu.Lock()
	open := time.Now().Before(m.dispatchUntil)
	m.dispatchMu.Unlock()
	if !open {
		return
	}

	desc := beeeon.DeviceDescription{
		DeviceID:    id,
		Vendor:      "Jablotron",
		Product:     info.Kind.Name(),
		Modules:     info.Modules,
		RefreshTime: info.RefreshTime,
	}
	if err := m.dist.ShipNewDevice(context.Background(), desc); err != nil {
		log.Error().Err(err).Msg("jablotron: ship new_device failed")
	}
}

// --- command.DeviceManager ---

func (m *Manager) Accept(cmd command.Command) bool {
	return command.Accepts(beeeon.PrefixJablotron, cmd)
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

// StartDiscovery opens a dispatch window: any gadget recognized from a
// report arriving before the window closes gets a new_device dispatch.
// Jablotron pairing itself happens out of band (slot programming via a
// physical enroll sequence); this only controls whether recognition is
// reported.
func (m *Manager) StartDiscovery(_ context.Context, duration time.Duration) (command.AsyncWork, error) {
	m.dispatchMu.Lock()
	m.dispatchUntil = time.Now().Add(duration)
	m.dispatchMu.Unlock()

	work, complete := command.NewAsyncWork(nil)
	go func() {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-m.stopped:
		}
		complete(command.Ok())
	}()
	return work, nil
}

func (m *Manager) StartUnpair(_ context.Context, id beeeon.DeviceID, _ time.Duration) (command.AsyncWork, error) {
	m.mu.Lock()
	dev, ok := m.devices[id]
	m.mu.Unlock()
	if !ok {
		return nil, beeeon.ErrNotFound
	}

	m.paired.Remove(id)

	work, complete := command.NewAsyncWork(nil)
	go func() {
		if dev.slot >= 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.controller.UnregisterSlot(ctx, dev.slot, 5*time.Second); err != nil {
				complete(command.Fail(err))
				return
			}
			m.mu.Lock()
			m.slots[dev.slot] = 0
			m.mu.Unlock()
		}
		complete(command.Unpaired(id))
	}()
	return work, nil
}

// StartSetValue only supports the AC-88 relay's on/off module at module
// id 0; every other gadget and module, including the JA-80L's on/off
// module, is refused with ErrUnsupported.
func (m *Manager) StartSetValue(_ context.Context, cmd command.DeviceSetValueCommand) (command.AsyncWork, error) {
	m.mu.Lock()
	dev, ok := m.devices[cmd.ID]
	m.mu.Unlock()
	if !ok {
		return nil, beeeon.ErrNotFound
	}
	if dev.info.Kind != KindAC88 || cmd.Module != 0 {
		return nil, beeeon.ErrUnsupported
	}

	work, complete := command.NewAsyncWork(nil)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cmd.Timeout)
		defer cancel()
		err := m.controller.SendTX(ctx, cmd.Value != 0, false, false, BeepNone, cmd.Timeout)
		if err != nil {
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
	})
	m.loopWG.Wait()
	m.controller.Stop()
}

var _ command.DeviceManager = (*Manager)(nil)
