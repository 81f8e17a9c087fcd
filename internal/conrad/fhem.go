package conrad

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-gateway/internal/beeeon"
	"github.com/urmzd/homai-gateway/internal/syncutil"
)

const (
	defaultFHEMAddress    = "127.0.0.1:7072"
	defaultFHEMRefresh    = 5 * time.Second
	defaultFHEMRecvWait   = 2 * time.Second
	defaultFHEMReconnect  = 5 * time.Second
	defaultFHEMQueueLimit = 1024

	fhemChunkSize = 1024
)

var (
	fhemDeviceRe  = regexp.MustCompile(`^status_(HM_[A-Za-z0-9]+)$`)
	fhemChannelRe = regexp.MustCompile(`^channel_[0-9]+$`)
)

// FHEMOptions configures the telnet poller; zero values fall back to the
// defaults above.
type FHEMOptions struct {
	Address        string
	RefreshTime    time.Duration
	ReceiveTimeout time.Duration
	ReconnectTime  time.Duration
	QueueLimit     int
}

func (o FHEMOptions) withDefaults() FHEMOptions {
	if o.Address == "" {
		o.Address = defaultFHEMAddress
	}
	if o.RefreshTime <= 0 {
		o.RefreshTime = defaultFHEMRefresh
	}
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = defaultFHEMRecvWait
	}
	if o.ReconnectTime <= 0 {
		o.ReconnectTime = defaultFHEMReconnect
	}
	if o.QueueLimit <= 0 {
		o.QueueLimit = defaultFHEMQueueLimit
	}
	return o
}

// fhemDeviceInfo is the per-device statistics snapshot diffed each poll
// cycle to synthesize events.
type fhemDeviceInfo struct {
	dev     string
	protRcv uint32
	protSnd uint32
	lastRcv time.Time
}

// fhemConn is one telnet-like connection to a FHEM server: a command per
// line, a JSON object back.
type fhemConn interface {
	Exec(cmd string) (map[string]any, error)
	Send(cmd string) error
	Close() error
}

// FHEMClient polls a FHEM server over its telnet port, diffs per-device
// statistics against the previous cycle and synthesizes JSON events in
// the same shape the ZMQ bridge emits. Consumers drain them via Receive.
type FHEMClient struct {
	opts FHEMOptions

	queueMu sync.Mutex
	queue   [][]byte
	signal  *syncutil.Event

	infos map[string]fhemDeviceInfo

	stopOnce sync.Once
	stopped  chan struct{}
	loopWG   sync.WaitGroup
}

func NewFHEMClient(opts FHEMOptions) *FHEMClient {
	return &FHEMClient{
		opts:    opts.withDefaults(),
		signal:  syncutil.NewEvent(),
		infos:   make(map[string]fhemDeviceInfo),
		stopped: make(chan struct{}),
	}
}

// Start launches the poller loop.
func (c *FHEMClient) Start() {
	c.loopWG.Add(1)
	go c.run()
}

func (c *FHEMClient) run() {
	defer c.loopWG.Done()
	log.Info().Str("address", c.opts.Address).Msg("starting FHEM client")

	var conn fhemConn
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
		log.Info().Msg("stopping FHEM client")
	}()

	for {
		select {
		case <-c.stopped:
			return
		default:
		}

		if conn == nil {
			var err error
			conn, err = c.dial()
			if err != nil {
				log.Warn().Err(err).Str("address", c.opts.Address).Msg("fhem: connect failed, will retry")
				if !c.sleep(c.opts.ReconnectTime) {
					return
				}
				continue
			}
		}

		if err := c.cycle(conn); err != nil {
			log.Error().Err(err).Msg("fhem: poll cycle failed")
			_ = conn.Close()
			conn = nil
		}

		if !c.sleep(c.opts.RefreshTime) {
			return
		}
	}
}

// sleep waits d or until stop, reporting whether the loop should go on.
func (c *FHEMClient) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.stopped:
		return false
	}
}

func (c *FHEMClient) dial() (fhemConn, error) {
	conn, err := net.DialTimeout("tcp", c.opts.Address, c.opts.ReceiveTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: fhem dial: %v", beeeon.ErrIO, err)
	}
	return &tcpFHEMConn{conn: conn, timeout: c.opts.ReceiveTimeout}, nil
}

// SendRequest sends one fire-and-forget command over a fresh connection,
// used by the set-value path ("set HM_XXXXXX_Sw on").
func (c *FHEMClient) SendRequest(request string) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Send(request)
}

// cycle performs one poll: enumerate HomeMatic devices, then diff each
// against the cached statistics. Per-device failures are logged and do
// not abort the cycle.
func (c *FHEMClient) cycle(conn fhemConn) error {
	devices, err := c.retrieveHomeMaticDevices(conn)
	if err != nil {
		return err
	}

	for _, device := range devices {
		if err := c.processDevice(conn, device); err != nil {
			log.Warn().Err(err).Str("device", device).Msg("fhem: processing device failed")
		}
	}
	return nil
}

// retrieveHomeMaticDevices extracts device names from the ActionDetector
// readings: every key of the form status_(HM_xxxxxx) names one device.
func (c *FHEMClient) retrieveHomeMaticDevices(conn fhemConn) ([]string, error) {
	msg, err := conn.Exec("jsonlist2 ActionDetector")
	if err != nil {
		return nil, err
	}

	first, err := firstResult(msg)
	if err != nil {
		return nil, err
	}
	readings, _ := first["Readings"].(map[string]any)

	var devices []string
	for key := range readings {
		if m := fhemDeviceRe.FindStringSubmatch(key); m != nil {
			devices = append(devices, m[1])
		}
	}
	return devices, nil
}

func (c *FHEMClient) processDevice(conn fhemConn, device string) error {
	msg, err := conn.Exec("jsonlist2 " + device)
	if err != nil {
		return err
	}
	first, err := firstResult(msg)
	if err != nil {
		return err
	}

	internals, _ := first["Internals"].(map[string]any)
	attributes, _ := first["Attributes"].(map[string]any)
	if internals == nil || attributes == nil {
		return fmt.Errorf("%w: jsonlist2 %s lacks Internals/Attributes", beeeon.ErrProtocol, device)
	}

	info, err := assembleDeviceInfo(device, internals)
	if err != nil {
		return err
	}

	subType, _ := attributes["subType"].(string)
	model, _ := attributes["model"].(string)
	serial, _ := attributes["serialNr"].(string)

	prev, known := c.infos[device]
	if !known {
		c.infos[device] = info
		c.pushEvent(map[string]any{
			"event":  "new_device",
			"dev":    device,
			"model":  model,
			"type":   subType,
			"serial": serial,
		})
		log.Info().Str("device", device).Msg("fhem: new_device event")
		return nil
	}

	if prev.protRcv < info.protRcv {
		prev.protRcv = info.protRcv
		c.pushEvent(map[string]any{"event": "rcv_cnt", "dev": device})
		log.Info().Str("device", device).Msg("fhem: rcv_cnt event")
	}

	if prev.protSnd < info.protSnd {
		prev.protSnd = info.protSnd
		c.pushEvent(map[string]any{"event": "snd_cnt", "dev": device})
		log.Info().Str("device", device).Msg("fhem: snd_cnt event")
	}

	if prev.lastRcv.Before(info.lastRcv) {
		prev.lastRcv = info.lastRcv

		raw, _ := internals["CUL_0_RAWMSG"].(string)
		raw, _, _ = strings.Cut(raw, ":")

		rssiStr, _ := internals["CUL_0_RSSI"].(string)
		rssi, _ := strconv.ParseFloat(rssiStr, 64)

		channels, err := c.retrieveChannelsState(conn, internals)
		if err != nil {
			return err
		}

		c.pushEvent(map[string]any{
			"event":    "message",
			"dev":      device,
			"model":    model,
			"type":     subType,
			"serial":   serial,
			"raw":      raw,
			"rssi":     rssi,
			"channels": channels,
		})
		log.Info().Str("device", device).Msg("fhem: message event")
	}

	c.infos[device] = prev
	return nil
}

// retrieveChannelsState collects the Main state plus one entry per
// channel_N internal, each channel resolved by one extra query.
func (c *FHEMClient) retrieveChannelsState(conn fhemConn, internals map[string]any) (map[string]string, error) {
	channels := make(map[string]string)
	if state, ok := internals["STATE"].(string); ok {
		channels["Main"] = state
	}

	for key, value := range internals {
		if !fhemChannelRe.MatchString(key) {
			continue
		}
		full, ok := value.(string)
		if !ok {
			continue
		}

		parts := strings.Split(full, "_")
		name := parts[len(parts)-1]

		state, err := c.retrieveChannelState(conn, full)
		if err != nil {
			return nil, err
		}
		channels[name] = state
	}
	return channels, nil
}

func (c *FHEMClient) retrieveChannelState(conn fhemConn, channel string) (string, error) {
	msg, err := conn.Exec("jsonlist2 " + channel)
	if err != nil {
		return "", err
	}
	first, err := firstResult(msg)
	if err != nil {
		return "", err
	}
	internals, _ := first["Internals"].(map[string]any)
	state, _ := internals["STATE"].(string)
	return state, nil
}

// assembleDeviceInfo extracts the statistic counters from a device's
// Internals: protRcv/protSnd are "N <timestamp>" strings, protLastRcv is
// a local timestamp.
func assembleDeviceInfo(device string, internals map[string]any) (fhemDeviceInfo, error) {
	lastRcvStr, _ := internals["protLastRcv"].(string)
	lastRcv, err := time.ParseInLocation("2006-01-02 15:04:05", lastRcvStr, time.Local)
	if err != nil {
		return fhemDeviceInfo{}, fmt.Errorf("%w: malformed protLastRcv %q", beeeon.ErrProtocol, lastRcvStr)
	}

	info := fhemDeviceInfo{dev: device, lastRcv: lastRcv}
	info.protRcv = counterPrefix(internals, "protRcv")
	info.protSnd = counterPrefix(internals, "protSnd")
	return info, nil
}

func counterPrefix(internals map[string]any, key string) uint32 {
	s, ok := internals[key].(string)
	if !ok {
		return 0
	}
	s, _, _ = strings.Cut(s, " ")
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

func firstResult(msg map[string]any) (map[string]any, error) {
	results, _ := msg["Results"].([]any)
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: empty Results array", beeeon.ErrProtocol)
	}
	first, ok := results[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: malformed Results array", beeeon.ErrProtocol)
	}
	return first, nil
}

// pushEvent appends a synthesized event to the bounded FIFO, dropping the
// oldest entry when full.
func (c *FHEMClient) pushEvent(event map[string]any) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("fhem: marshaling event failed")
		return
	}

	c.queueMu.Lock()
	if len(c.queue) >= c.opts.QueueLimit {
		c.queue = c.queue[1:]
		log.Warn().Msg("fhem: event queue full, dropping oldest")
	}
	c.queue = append(c.queue, data)
	c.signal.Set()
	c.queueMu.Unlock()
}

// Receive returns the oldest synthesized event. A negative timeout blocks
// indefinitely, zero is non-blocking, anything else waits up to timeout.
func (c *FHEMClient) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		c.queueMu.Lock()
		if len(c.queue) > 0 {
			event := c.queue[0]
			c.queue = c.queue[1:]
			c.queueMu.Unlock()
			return event, nil
		}
		c.signal.Reset()
		c.queueMu.Unlock()

		select {
		case <-c.stopped:
			return nil, beeeon.ErrCancelled
		default:
		}

		remaining := time.Duration(-1)
		if timeout >= 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return nil, beeeon.ErrTimeout
			}
			if remaining < time.Millisecond {
				remaining = time.Millisecond
			}
		}

		if !c.signal.Wait(ctx, remaining) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if timeout >= 0 && time.Now().After(deadline) {
				return nil, beeeon.ErrTimeout
			}
		}
	}
}

// Stop terminates the poll loop and wakes blocked Receive callers.
func (c *FHEMClient) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopped)
		c.signal.Set()
	})
	c.loopWG.Wait()
}

// tcpFHEMConn is the production fhemConn: one command per line, the
// response read in fixed-size chunks until a short read.
type tcpFHEMConn struct {
	conn    net.Conn
	timeout time.Duration
}

func (t *tcpFHEMConn) Send(cmd string) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
		return fmt.Errorf("%w: fhem send: %v", beeeon.ErrIO, err)
	}
	if _, err := t.conn.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("%w: fhem send: %v", beeeon.ErrIO, err)
	}
	return nil
}

func (t *tcpFHEMConn) Exec(cmd string) (map[string]any, error) {
	if err := t.Send(cmd); err != nil {
		return nil, err
	}

	var complete []byte
	buf := make([]byte, fhemChunkSize)
	for {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
			return nil, fmt.Errorf("%w: fhem receive: %v", beeeon.ErrIO, err)
		}
		n, err := t.conn.Read(buf)
		if n > 0 {
			complete = append(complete, buf[:n]...)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: fhem receive: %v", beeeon.ErrIO, err)
		}
		if n < fhemChunkSize {
			break
		}
	}

	var msg map[string]any
	if err := json.Unmarshal(complete, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed fhem response: %v", beeeon.ErrProtocol, err)
	}
	return msg, nil
}

func (t *tcpFHEMConn) Close() error {
	return t.conn.Close()
}
