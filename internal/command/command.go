// Package command defines the seam between the server-facing command
// dispatcher and the technology-specific device managers (Jablotron,
// Z-Wave, Conrad), plus the seam to the distributor that ships samples
// back out.
//
// The remote-server transport behind both seams is a deployment concern.
// What lives here is the contract every device manager implements, so a
// transport can be wired in without touching manager code.
package command

import (
	"context"
	"time"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

// Command is the common shape of everything a dispatcher can hand to a
// device manager.
type Command interface {
	// TargetDeviceID returns the device a command addresses, if any.
	// GatewayListenCommand has none (ok is false).
	TargetDeviceID() (id beeeon.DeviceID, ok bool)
}

// GatewayListenCommand asks every manager to accept new devices for the
// given duration.
type GatewayListenCommand struct {
	Duration time.Duration
}

func (GatewayListenCommand) TargetDeviceID() (beeeon.DeviceID, bool) { return 0, false }

// DeviceAcceptCommand confirms the server accepted a previously dispatched
// DeviceDescription; the manager now considers the device paired.
type DeviceAcceptCommand struct {
	ID beeeon.DeviceID
}

func (c DeviceAcceptCommand) TargetDeviceID() (beeeon.DeviceID, bool) { return c.ID, true }

// DeviceUnpairCommand asks the owning manager to stop being responsible for
// a device and tear it down technology-side.
type DeviceUnpairCommand struct {
	ID      beeeon.DeviceID
	Timeout time.Duration
}

func (c DeviceUnpairCommand) TargetDeviceID() (beeeon.DeviceID, bool) { return c.ID, true }

// DeviceSetValueCommand asks the owning manager to write a value to one
// module of a device.
type DeviceSetValueCommand struct {
	ID      beeeon.DeviceID
	Module  beeeon.ModuleID
	Value   float64
	Timeout time.Duration
}

func (c DeviceSetValueCommand) TargetDeviceID() (beeeon.DeviceID, bool) { return c.ID, true }

// Result carries a command's outcome back to the dispatcher. Unpaired is
// filled by unpair operations: the ids the technology actually released,
// which for Z-Wave exclusion may differ from the id the command named.
type Result struct {
	Success  bool
	Err      error
	Unpaired []beeeon.DeviceID
}

func Ok() Result { return Result{Success: true} }

func Fail(err error) Result {
	return Result{Success: false, Err: err}
}

// Unpaired builds the successful outcome of an unpair operation.
func Unpaired(ids ...beeeon.DeviceID) Result {
	return Result{Success: true, Unpaired: ids}
}

// AsyncWork is a one-shot completion handle returned by long-running manager
// operations (discovery, unpair, set-value): a latch a caller can await
// without blocking the command handler forever.
type AsyncWork interface {
	// TryJoin blocks until the work completes or timeout elapses, whichever
	// is first. A non-positive timeout blocks indefinitely.
	TryJoin(ctx context.Context, timeout time.Duration) (ok bool, err error)
	// Cancel requests early termination; completion still has to be
	// observed via TryJoin.
	Cancel()
	// Outcome returns the completed Result. Only valid after TryJoin
	// reported completion; before that it returns the zero Result.
	Outcome() Result
}

// latch is the shared AsyncWork implementation: a channel closed exactly
// once, carrying the result observed by every waiter.
type latch struct {
	done   chan struct{}
	result *Result
	cancel func()
}

// NewAsyncWork creates an AsyncWork and the completion function its owner
// calls exactly once when the underlying operation finishes.
func NewAsyncWork(onCancel func()) (AsyncWork, func(Result)) {
	l := &latch{done: make(chan struct{}), cancel: onCancel}
	complete := func(r Result) {
		if l.result != nil {
			return
		}
		l.result = &r
		close(l.done)
	}
	return l, complete
}

func (l *latch) TryJoin(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		select {
		case <-l.done:
			return true, l.result.Err
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.done:
		return true, l.result.Err
	case <-timer.C:
		return false, beeeon.ErrTimeout
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (l *latch) Cancel() {
	if l.cancel != nil {
		l.cancel()
	}
}

func (l *latch) Outcome() Result {
	select {
	case <-l.done:
		return *l.result
	default:
		return Result{}
	}
}

// DeviceManager is the common shape every technology-specific manager
// (Jablotron, Z-Wave, Conrad) implements.
type DeviceManager interface {
	// Accept reports whether this manager handles cmd: either cmd targets a
	// device with this manager's technology prefix, or cmd is a
	// GatewayListenCommand (every manager accepts those).
	Accept(cmd Command) bool

	HandleAccept(ctx context.Context, cmd DeviceAcceptCommand) error
	StartDiscovery(ctx context.Context, duration time.Duration) (AsyncWork, error)
	StartUnpair(ctx context.Context, id beeeon.DeviceID, timeout time.Duration) (AsyncWork, error)
	StartSetValue(ctx context.Context, cmd DeviceSetValueCommand) (AsyncWork, error)

	// Paired reports whether this manager currently considers id paired.
	Paired(id beeeon.DeviceID) bool

	// Stop releases any blocking reads/waits and drains pending work.
	Stop()
}

// Accepts is the shared Accept() logic: a manager accepts a command if it
// is a GatewayListenCommand, or if the command targets a device carrying
// this manager's technology prefix.
func Accepts(prefix beeeon.Prefix, cmd Command) bool {
	id, ok := cmd.TargetDeviceID()
	if !ok {
		return true
	}
	return id.Prefix() == prefix
}
