package zwave

import (
	"context"
	"sync"
	"time"

	"github.com/urmzd/homai-gateway/internal/syncutil"
)

// EventKind tags a Network event.
type EventKind int

const (
	EventNone EventKind = iota
	EventNewNode
	EventUpdateNode
	EventRemoveNode
	EventValue
	EventInclusionStart
	EventInclusionDone
	EventRemoveNodeStart
	EventRemoveNodeDone
	EventReady
)

// Event is one item in the network's FIFO.
type Event struct {
	Kind  EventKind
	Node  *Node  // set for NewNode/UpdateNode/RemoveNode
	Value *Value // set for Value
}

// Network presents the underlying Z-Wave library as a cooperative event
// stream. The library itself stays opaque; implementations translate
// library callbacks into the FIFO this interface exposes.
type Network interface {
	// PollEvent blocks until an event is available or timeout elapses
	// (negative blocks indefinitely), returning EventNone on timeout.
	PollEvent(ctx context.Context, timeout time.Duration) (Event, error)

	StartInclusion() error
	CancelInclusion() error
	StartRemoveNode() error
	CancelRemoveNode() error

	// Interrupt enqueues a sentinel none event to wake a blocked poller.
	Interrupt()

	// PostValue writes a value back to the network; may fail with
	// ErrUnsupported.
	PostValue(v Value) error
}

// FIFO is the queue + signal pair shared by every Network implementation:
// it preserves library-delivered order and lets PollEvent block with a
// timeout. Embed it in a concrete Network (e.g. one backed by a real
// OpenZWave binding) and call Notify from library callbacks.
type FIFO struct {
	mu     sync.Mutex
	events []Event
	signal *syncutil.Event
}

func NewFIFO() *FIFO {
	return &FIFO{signal: syncutil.NewEvent()}
}

// Notify appends an event, preserving call order.
func (f *FIFO) Notify(e Event) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.signal.Set()
	f.mu.Unlock()
}

// Interrupt pushes a sentinel none event to wake a blocked poller.
func (f *FIFO) Interrupt() {
	f.Notify(Event{Kind: EventNone})
}

// Poll pops the oldest event, blocking until one arrives or timeout elapses
// (negative blocks indefinitely; sub-millisecond waits round up to 1ms).
func (f *FIFO) Poll(ctx context.Context, timeout time.Duration) (Event, error) {
	timeout = roundTimeout(timeout)
	deadline := time.Now()
	if timeout >= 0 {
		deadline = deadline.Add(timeout)
	}

	for {
		f.mu.Lock()
		if len(f.events) > 0 {
			e := f.events[0]
			f.events = f.events[1:]
			f.mu.Unlock()
			return e, nil
		}
		f.signal.Reset()
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{Kind: EventNone}, ctx.Err()
		default:
		}

		remaining := time.Duration(-1)
		if timeout >= 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return Event{Kind: EventNone}, nil
			}
		}

		if !f.signal.Wait(ctx, remaining) {
			if ctx.Err() != nil {
				return Event{Kind: EventNone}, ctx.Err()
			}
			if timeout >= 0 && time.Now().After(deadline) {
				return Event{Kind: EventNone}, nil
			}
		}
	}
}

func roundTimeout(d time.Duration) time.Duration {
	if d < 0 {
		return d
	}
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}
