// Package syncutil provides the small blocking-wait primitive that recurs
// across every protocol core in this gateway: the Jablotron controller's
// request/report queues, the Z-Wave network's event FIFO and the FHEM
// client's event queue all pair a mutex-guarded queue with a signal a
// blocked consumer can wait on with a timeout.
package syncutil

import (
	"context"
	"sync"
	"time"
)

// Event is a manual-reset signal: Set() wakes every current and future
// Wait() until the next Reset(). It exists because sync.Cond has no timed
// wait, and every caller here needs one.
type Event struct {
	mu sync.Mutex
	ch chan struct{}
}

func NewEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

// Set wakes any blocked waiters. Idempotent.
func (e *Event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.ch:
		// already set
	default:
		close(e.ch)
	}
}

// Reset arms the event again for the next Wait.
func (e *Event) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.ch:
		e.ch = make(chan struct{})
	default:
	}
}

func (e *Event) current() chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch
}

// Wait blocks until Set(), ctx cancellation, or timeout elapses, whichever
// comes first. A negative timeout blocks indefinitely (modulo ctx). Returns
// true if the event was observed set.
func (e *Event) Wait(ctx context.Context, timeout time.Duration) bool {
	ch := e.current()

	select {
	case <-ch:
		return true
	default:
	}

	if timeout < 0 {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
