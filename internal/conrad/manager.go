package conrad

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-gateway/internal/beeeon"
	"github.com/urmzd/homai-gateway/internal/command"
)

const defaultRequestTimeout = 10 * time.Second

// Options configures the manager's two ZMQ endpoints published by the
// external conrad-interface bridge.
type Options struct {
	// CmdEndpoint is the REQ/REP command channel (pair/unpair).
	CmdEndpoint string
	// EventEndpoint is the SUB event stream.
	EventEndpoint string
	// RequestTimeout bounds one REQ/REP exchange.
	RequestTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	return o
}

// Manager is the Conrad device manager: a ZMQ SUB
// loop ingesting bridge events, a REQ/REP command channel for pairing,
// and optionally a FHEM client whose synthesized events feed the same
// message path and whose telnet channel carries set-value requests.
type Manager struct {
	opts   Options
	dist   command.Distributor
	paired *command.PairedSet
	fhem   *FHEMClient

	mu      sync.Mutex
	devices map[beeeon.DeviceID]*Device

	ctx    context.Context
	cancel context.CancelFunc
	loopWG sync.WaitGroup

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewManager starts the SUB loop and, when fhem is non-nil, a second
// loop draining the FHEM client's synthesized events into the same
// processing path. fhem's lifecycle is owned by the manager from here on.
func NewManager(opts Options, dist command.Distributor, fhem *FHEMClient) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:    opts.withDefaults(),
		dist:    dist,
		paired:  command.NewPairedSet(),
		fhem:    fhem,
		devices: make(map[beeeon.DeviceID]*Device),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}

	m.loopWG.Add(1)
	go m.subLoop()

	if fhem != nil {
		fhem.Start()
		m.loopWG.Add(1)
		go m.fhemLoop()
	}

	return m
}

// subLoop ingests the bridge's SUB stream. Receive failures other than
// cancellation are logged and retried after a short pause.
func (m *Manager) subLoop() {
	defer m.loopWG.Done()
	log.Info().Str("endpoint", m.opts.EventEndpoint).Msg("starting Conrad device manager")
	defer log.Info().Msg("stopping Conrad device manager")

	sub := zmq4.NewSub(m.ctx)
	defer sub.Close()

	if err := sub.Dial(m.opts.EventEndpoint); err != nil {
		log.Error().Err(err).Str("endpoint", m.opts.EventEndpoint).Msg("conrad: event endpoint dial failed")
		return
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		log.Error().Err(err).Msg("conrad: subscribe failed")
		return
	}

	for {
		msg, err := sub.Recv()
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("conrad: event receive failed")
			select {
			case <-m.stopped:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := m.processMessage(msg.Bytes()); err != nil {
			log.Warn().Err(err).Msg("conrad: processing bridge message failed")
		}
	}
}

// fhemLoop drains synthesized FHEM events into the same message path the
// ZMQ stream uses.
func (m *Manager) fhemLoop() {
	defer m.loopWG.Done()

	for {
		select {
		case <-m.stopped:
			return
		default:
		}

		event, err := m.fhem.Receive(m.ctx, -1)
		if err != nil {
			return
		}
		if err := m.processMessage(event); err != nil {
			log.Warn().Err(err).Msg("conrad: processing fhem event failed")
		}
	}
}

func (m *Manager) processMessage(data []byte) error {
	event, err := ParseEvent(data)
	if err != nil {
		return err
	}

	id, err := event.DeviceID()
	if err != nil {
		return err
	}

	log.Debug().Str("event", event.Name).Str("device", id.String()).Msg("conrad: bridge event")

	switch event.Name {
	case "new_device":
		_, err := m.findOrCreate(id, event.Type)
		return err

	case "message":
		dev, err := m.findOrCreate(id, event.Type)
		if err != nil {
			return err
		}

		data, err := dev.ParseMessage(event)
		if err != nil {
			return err
		}

		if !m.paired.Contains(id) {
			return nil
		}
		if !data.HasValues() {
			return nil
		}
		data.Timestamp = time.Now()
		if err := m.dist.ShipSample(context.Background(), data); err != nil {
			log.Error().Err(err).Msg("conrad: ship sample failed")
		}
		return nil

	case "rcv_cnt", "snd_cnt":
		// statistics only, no sample to ship
		return nil

	default:
		return fmt.Errorf("%w: unknown bridge event %q", beeeon.ErrIllegalState, event.Name)
	}
}

// findOrCreate returns the known device or registers a new one of the
// given bridge type, dispatching its description.
func (m *Manager) findOrCreate(id beeeon.DeviceID, typ string) (*Device, error) {
	m.mu.Lock()
	dev, ok := m.devices[id]
	m.mu.Unlock()
	if ok {
		return dev, nil
	}

	dev, err := NewDevice(id, typ)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.devices[id] = dev
	m.mu.Unlock()

	if err := m.dist.ShipNewDevice(context.Background(), dev.Description()); err != nil {
		log.Error().Err(err).Msg("conrad: ship new_device failed")
	}
	return dev, nil
}

// sendCmdRequest performs one REQ/REP exchange on the command channel.
// A fresh socket per request keeps the strict REQ state machine trivial.
func (m *Manager) sendCmdRequest(request map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.opts.RequestTimeout)
	defer cancel()

	req := zmq4.NewReq(ctx)
	defer req.Close()

	if err := req.Dial(m.opts.CmdEndpoint); err != nil {
		return nil, fmt.Errorf("%w: conrad command dial: %v", beeeon.ErrIO, err)
	}
	if err := req.Send(zmq4.NewMsg(payload)); err != nil {
		return nil, fmt.Errorf("%w: conrad command send: %v", beeeon.ErrIO, err)
	}

	reply, err := req.Recv()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: conrad command reply", beeeon.ErrTimeout)
		}
		return nil, fmt.Errorf("%w: conrad command receive: %v", beeeon.ErrIO, err)
	}

	var response map[string]any
	if err := json.Unmarshal(reply.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("%w: malformed command reply: %v", beeeon.ErrProtocol, err)
	}
	return response, nil
}

// --- command.DeviceManager ---

func (m *Manager) Accept(cmd command.Command) bool {
	return command.Accepts(beeeon.PrefixConrad, cmd)
}

func (m *Manager) Paired(id beeeon.DeviceID) bool {
	return m.paired.Contains(id)
}

func (m *Manager) HandleAccept(_ context.Context, cmd command.DeviceAcceptCommand) error {
	m.mu.Lock()
	_, ok := m.devices[cmd.ID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: accept: %s", beeeon.ErrNotFound, cmd.ID)
	}
	m.paired.Add(cmd.ID)
	return nil
}

// StartDiscovery asks the bridge to enter pairing mode for duration.
func (m *Manager) StartDiscovery(_ context.Context, duration time.Duration) (command.AsyncWork, error) {
	work, complete := command.NewAsyncWork(nil)
	go func() {
		_, err := m.sendCmdRequest(map[string]any{
			"cmd":  "pair",
			"tout": fmt.Sprintf("%d", int(duration.Seconds())),
		})
		if err != nil {
			complete(command.Fail(err))
			return
		}
		complete(command.Ok())
	}()
	return work, nil
}

// StartUnpair tells the bridge to forget the device and drops it from
// the paired set and the device map.
func (m *Manager) StartUnpair(_ context.Context, id beeeon.DeviceID, _ time.Duration) (command.AsyncWork, error) {
	if !m.paired.Contains(id) {
		log.Warn().Str("device", id.String()).Msg("conrad: unpairing device that is not paired")
		work, complete := command.NewAsyncWork(nil)
		complete(command.Ok())
		return work, nil
	}

	m.paired.Remove(id)
	m.mu.Lock()
	delete(m.devices, id)
	m.mu.Unlock()

	work, complete := command.NewAsyncWork(nil)
	go func() {
		_, err := m.sendCmdRequest(map[string]any{
			"cmd":    "unpair",
			"device": FHEMDeviceID(id),
		})
		if err != nil {
			complete(command.Fail(err))
			return
		}
		complete(command.Unpaired(id))
	}()
	return work, nil
}

// StartSetValue routes a write to the FHEM telnet channel; only devices
// with a controllable module support it.
func (m *Manager) StartSetValue(_ context.Context, cmd command.DeviceSetValueCommand) (command.AsyncWork, error) {
	m.mu.Lock()
	dev, ok := m.devices[cmd.ID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: set-value: %s", beeeon.ErrNotFound, cmd.ID)
	}
	if m.fhem == nil {
		return nil, fmt.Errorf("%w: no FHEM channel configured for set-value", beeeon.ErrNotConnected)
	}

	request, err := dev.ModifyStateRequest(cmd.Module, cmd.Value)
	if err != nil {
		return nil, err
	}

	work, complete := command.NewAsyncWork(nil)
	go func() {
		if err := m.fhem.SendRequest(request); err != nil {
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
		m.cancel()
		if m.fhem != nil {
			m.fhem.Stop()
		}
	})
	m.loopWG.Wait()
}

var _ command.DeviceManager = (*Manager)(nil)
