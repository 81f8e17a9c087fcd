package syncutil

import (
	"context"
	"testing"
	"time"
)

func TestWaitReturnsOnSet(t *testing.T) {
	e := NewEvent()

	go func() {
		time.Sleep(10 * time.Millisecond)
		e.Set()
	}()

	if !e.Wait(context.Background(), time.Second) {
		t.Error("Wait should observe Set")
	}
}

func TestWaitTimesOut(t *testing.T) {
	e := NewEvent()

	start := time.Now()
	if e.Wait(context.Background(), 30*time.Millisecond) {
		t.Error("Wait should time out")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Wait returned early")
	}
}

func TestSetIsSticky(t *testing.T) {
	e := NewEvent()
	e.Set()
	e.Set() // idempotent

	if !e.Wait(context.Background(), 0) {
		t.Error("a set event satisfies Wait immediately")
	}
	if !e.Wait(context.Background(), 0) {
		t.Error("the event stays set until Reset")
	}
}

func TestResetArmsAgain(t *testing.T) {
	e := NewEvent()
	e.Set()
	e.Reset()

	if e.Wait(context.Background(), 10*time.Millisecond) {
		t.Error("Wait after Reset should block again")
	}

	e.Set()
	if !e.Wait(context.Background(), time.Second) {
		t.Error("Set after Reset should wake waiters")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	e := NewEvent()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if e.Wait(ctx, -1) {
		t.Error("cancelled wait should report false")
	}
}
