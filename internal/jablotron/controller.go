package jablotron

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-gateway/internal/beeeon"
	"github.com/urmzd/homai-gateway/internal/serialport"
	"github.com/urmzd/homai-gateway/internal/syncutil"
)

const (
	baudRate = 57600

	escByte = 0x1b
	lfByte  = '\n'

	defaultProbeTimeout  = 500 * time.Millisecond
	defaultProbeAttempts = 5
	defaultIOReadTimeout = 200 * time.Millisecond
	defaultIOErrorSleep  = 2 * time.Second
)

var (
	versionLineRe = regexp.MustCompile(`^[A-Z ]+V\d\.\d( [A-Z]+)?$`)
	reportLineRe  = regexp.MustCompile(`^\[(\d{8})\] (\S+) (.+)$`)
)

// Options configures timeouts the controller uses; zero values fall back to
// the defaults above.
type Options struct {
	ProbeTimeout  time.Duration
	ProbeAttempts int
	IOReadTimeout time.Duration
	IOErrorSleep  time.Duration
}

func (o Options) withDefaults() Options {
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = defaultProbeTimeout
	}
	if o.ProbeAttempts <= 0 {
		o.ProbeAttempts = defaultProbeAttempts
	}
	if o.IOReadTimeout <= 0 {
		o.IOReadTimeout = defaultIOReadTimeout
	}
	if o.IOErrorSleep <= 0 {
		o.IOErrorSleep = defaultIOErrorSleep
	}
	return o
}

// Controller owns a serial port connected to a Jablotron OASiS dongle: it
// probes the port, then runs a reader loop demultiplexing the line-framed
// stream into a response queue (command replies) and a report queue
// (unsolicited sensor data).
type Controller struct {
	opts Options
	port *serialport.Port

	// commandMu serializes Command() calls: at most one request is ever in
	// flight.
	commandMu sync.Mutex

	queueMu       sync.Mutex
	responses     []string
	reports       []Report
	responseEvent *syncutil.Event
	reportEvent   *syncutil.Event

	stopOnce sync.Once
	stopped  chan struct{}
	readerWG sync.WaitGroup
}

// Open probes portPath and, on success, starts the reader loop.
func Open(portPath string, opts Options) (*Controller, error) {
	opts = opts.withDefaults()

	port, err := serialport.Open(portPath, serialport.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, err
	}

	c := &Controller{
		opts:          opts,
		port:          port,
		stopped:       make(chan struct{}),
		responseEvent: syncutil.NewEvent(),
		reportEvent:   syncutil.NewEvent(),
	}

	if err := port.Flush(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("jablotron: flush: %w", err)
	}

	if err := c.probe(); err != nil {
		_ = port.Close()
		return nil, err
	}

	c.readerWG.Add(1)
	go c.readLoop()

	return c, nil
}

// probe drops the dongle's welcome line if present, then sends WHO AM I?
// and waits up to ProbeAttempts chunks for a recognizable version line.
func (c *Controller) probe() error {
	_ = c.port.SetReadTimeout(c.opts.ProbeTimeout)

	// best-effort: the dongle may or may not greet us on open
	buf := make([]byte, 256)
	_, _ = c.port.Read(buf)

	if err := c.writeFramed("WHO AM I?"); err != nil {
		return err
	}

	var acc bytes.Buffer
	for i := 0; i < c.opts.ProbeAttempts; i++ {
		n, err := c.port.Read(buf)
		if err != nil {
			return fmt.Errorf("%w: probe read: %v", beeeon.ErrIO, err)
		}
		acc.Write(buf[:n])

		for _, line := range strings.Split(acc.String(), "\n") {
			line = strings.TrimSpace(line)
			if versionLineRe.MatchString(line) {
				log.Info().Str("version", line).Msg("jablotron dongle identified")
				return nil
			}
		}
	}

	return fmt.Errorf("%w: jablotron probe did not see a version line", beeeon.ErrTimeout)
}

func (c *Controller) writeFramed(request string) error {
	frame := append([]byte{escByte}, []byte(request)...)
	frame = append(frame, lfByte)
	_, err := c.port.Write(frame)
	if err != nil {
		return fmt.Errorf("%w: write: %v", beeeon.ErrIO, err)
	}
	return nil
}

// readLoop is the sole owner of the serial port past probe time. It
// accumulates bytes until an LF ... LF frame is extracted, then classifies
// it as either a report or a command response.
func (c *Controller) readLoop() {
	defer c.readerWG.Done()
	defer log.Debug().Msg("jablotron reader loop exiting")

	_ = c.port.SetReadTimeout(c.opts.IOReadTimeout)

	var acc bytes.Buffer
	buf := make([]byte, 256)

	for {
		select {
		case <-c.stopped:
			return
		default:
		}

		n, err := c.port.Read(buf)
		if err != nil {
			log.Error().Err(err).Msg("jablotron read error, backing off")
			time.Sleep(c.opts.IOErrorSleep)
			continue
		}
		if n == 0 {
			continue // transient timeout, not an error
		}

		acc.Write(buf[:n])
		c.drainFrames(&acc)
	}
}

// drainFrames extracts every complete LF ... LF message currently buffered
// in acc and dispatches each to the report or response queue.
func (c *Controller) drainFrames(acc *bytes.Buffer) {
	for {
		data := acc.Bytes()
		first := bytes.IndexByte(data, lfByte)
		if first < 0 {
			return
		}
		second := bytes.IndexByte(data[first+1:], lfByte)
		if second < 0 {
			return
		}
		message := string(data[first+1 : first+1+second])
		acc.Next(first + 1 + second + 1)

		if message == "" {
			continue
		}
		c.dispatch(message)
	}
}

func (c *Controller) dispatch(message string) {
	if m := reportLineRe.FindStringSubmatch(message); m != nil {
		addr, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			log.Warn().Str("message", message).Msg("jablotron: malformed report address")
			return
		}
		report := Report{Address: uint32(addr), Type: m[2], Data: m[3]}

		c.queueMu.Lock()
		c.reports = append(c.reports, report)
		c.reportEvent.Set()
		c.queueMu.Unlock()
		return
	}

	c.queueMu.Lock()
	c.responses = append(c.responses, message)
	c.responseEvent.Set()
	c.queueMu.Unlock()
}

// roundTimeout normalizes wait durations: a negative duration means block
// forever, anything under 1ms is rounded up to 1ms to avoid a spurious
// zero-timeout busy spin.
func roundTimeout(d time.Duration) time.Duration {
	if d < 0 {
		return d
	}
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

// Command serializes exclusive access to the dongle, drains any stale
// responses, writes request and waits for the most recent response. Only
// one request is ever in flight; older pending responses are discarded.
func (c *Controller) Command(ctx context.Context, request string, timeout time.Duration) (string, error) {
	c.commandMu.Lock()
	defer c.commandMu.Unlock()

	timeout = roundTimeout(timeout)

	c.queueMu.Lock()
	c.responses = c.responses[:0]
	c.queueMu.Unlock()

	if err := c.writeFramed(request); err != nil {
		return "", err
	}

	return c.waitForResponse(ctx, timeout)
}

func (c *Controller) waitForResponse(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.Now()
	if timeout >= 0 {
		deadline = deadline.Add(timeout)
	}

	for {
		c.queueMu.Lock()
		if len(c.responses) > 0 {
			resp := c.responses[len(c.responses)-1]
			c.responses = c.responses[:0]
			c.queueMu.Unlock()
			return resp, nil
		}
		c.responseEvent.Reset()
		c.queueMu.Unlock()

		select {
		case <-c.stopped:
			return "", beeeon.ErrCancelled
		default:
		}

		remaining := time.Duration(-1)
		if timeout >= 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return "", beeeon.ErrTimeout
			}
		}

		if !c.responseEvent.Wait(ctx, remaining) {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if timeout >= 0 && time.Now().After(deadline) {
				return "", beeeon.ErrTimeout
			}
		}
	}
}

func expectOK(resp string, err error) error {
	if err != nil {
		return err
	}
	switch resp {
	case "OK":
		return nil
	case "ERROR":
		return fmt.Errorf("%w: dongle returned ERROR", beeeon.ErrProtocol)
	default:
		return fmt.Errorf("%w: unexpected response %q", beeeon.ErrIllegalState, resp)
	}
}

// ReadSlot queries slot i and returns its address, or 0 if the slot is
// empty (wire form "--------").
func (c *Controller) ReadSlot(ctx context.Context, i int, timeout time.Duration) (uint32, error) {
	resp, err := c.Command(ctx, fmt.Sprintf("GET SLOT:%02d", i), timeout)
	if err != nil {
		return 0, err
	}

	var gotSlot int
	var addrField string
	if _, err := fmt.Sscanf(resp, "SLOT:%d [%8s]", &gotSlot, &addrField); err != nil {
		return 0, fmt.Errorf("%w: malformed slot response %q", beeeon.ErrProtocol, resp)
	}
	if gotSlot != i {
		return 0, fmt.Errorf("%w: echoed slot %d != requested %d", beeeon.ErrProtocol, gotSlot, i)
	}
	addrField = strings.TrimSuffix(addrField, "]")
	if addrField == "--------" {
		return 0, nil
	}
	addr, err := strconv.ParseUint(addrField, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed slot address %q", beeeon.ErrProtocol, addrField)
	}
	return uint32(addr), nil
}

// RegisterSlot assigns address to slot i.
func (c *Controller) RegisterSlot(ctx context.Context, i int, address uint32, timeout time.Duration) error {
	resp, err := c.Command(ctx, fmt.Sprintf("SET SLOT:%02d [%08d]", i, address), timeout)
	return expectOK(resp, err)
}

// UnregisterSlot clears slot i.
func (c *Controller) UnregisterSlot(ctx context.Context, i int, timeout time.Duration) error {
	resp, err := c.Command(ctx, fmt.Sprintf("SET SLOT:%02d [--------]", i), timeout)
	return expectOK(resp, err)
}

// EraseSlots clears the entire pairing table.
func (c *Controller) EraseSlots(ctx context.Context, timeout time.Duration) error {
	resp, err := c.Command(ctx, "ERASE ALL SLOTS", timeout)
	return expectOK(resp, err)
}

// Beep names the TX broadcast's beep pattern.
type Beep string

const (
	BeepNone Beep = "NONE"
	BeepSlow Beep = "SLOW"
	BeepFast Beep = "FAST"
)

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SendTX broadcasts a status packet.
func (c *Controller) SendTX(ctx context.Context, pgx, pgy, alarm bool, beep Beep, timeout time.Duration) error {
	req := fmt.Sprintf("TX ENROLL:0 PGX:%d PGY:%d ALARM:%d BEEP:%s",
		bit(pgx), bit(pgy), bit(alarm), beep)
	resp, err := c.Command(ctx, req, timeout)
	return expectOK(resp, err)
}

// SendEnroll broadcasts an enroll packet.
func (c *Controller) SendEnroll(ctx context.Context, timeout time.Duration) error {
	req := "TX ENROLL:1 PGX:0 PGY:0 ALARM:0 BEEP:NONE"
	resp, err := c.Command(ctx, req, timeout)
	return expectOK(resp, err)
}

// PollReport pops the oldest report, blocking until one arrives or timeout
// elapses (negative blocks indefinitely). On timeout it returns the
// sentinel invalid report.
func (c *Controller) PollReport(ctx context.Context, timeout time.Duration) (Report, error) {
	timeout = roundTimeout(timeout)
	deadline := time.Now()
	if timeout >= 0 {
		deadline = deadline.Add(timeout)
	}

	for {
		c.queueMu.Lock()
		if len(c.reports) > 0 {
			report := c.reports[0]
			c.reports = c.reports[1:]
			c.queueMu.Unlock()
			return report, nil
		}
		c.reportEvent.Reset()
		c.queueMu.Unlock()

		select {
		case <-c.stopped:
			return Report{}, nil
		default:
		}

		remaining := time.Duration(-1)
		if timeout >= 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return Report{}, nil
			}
		}

		if !c.reportEvent.Wait(ctx, remaining) {
			if ctx.Err() != nil {
				return Report{}, ctx.Err()
			}
			if timeout >= 0 && time.Now().After(deadline) {
				return Report{}, nil
			}
		}
	}
}

// Stop signals the reader loop and any blocked command/poll callers to wake
// up, then closes the serial port. Safe to call more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopped)
		c.responseEvent.Set()
		c.reportEvent.Set()
		_ = c.port.Close()
	})
	c.readerWG.Wait()
}
