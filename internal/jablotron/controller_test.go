package jablotron

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/urmzd/homai-gateway/internal/beeeon"
	"github.com/urmzd/homai-gateway/internal/syncutil"
)

// newTestController builds a controller with queues and events wired but
// no serial port; only the framing/dispatch internals are exercised.
func newTestController() *Controller {
	return &Controller{
		opts:          Options{}.withDefaults(),
		stopped:       make(chan struct{}),
		responseEvent: syncutil.NewEvent(),
		reportEvent:   syncutil.NewEvent(),
	}
}

func TestDrainFramesSplitsMessages(t *testing.T) {
	c := newTestController()

	var acc bytes.Buffer
	acc.WriteString("\nOK\n\n[26214400] JA-81M SENSOR LB:0 ACT:1\n")
	c.drainFrames(&acc)

	if len(c.responses) != 1 || c.responses[0] != "OK" {
		t.Errorf("responses = %v", c.responses)
	}
	if len(c.reports) != 1 {
		t.Fatalf("reports = %v", c.reports)
	}
	r := c.reports[0]
	if r.Address != 26214400 || r.Type != "JA-81M" || r.Data != "SENSOR LB:0 ACT:1" {
		t.Errorf("report = %+v", r)
	}
}

func TestDrainFramesKeepsPartialTail(t *testing.T) {
	c := newTestController()

	var acc bytes.Buffer
	acc.WriteString("\nSLOT:01 [--------]\n\nSLOT:0")
	c.drainFrames(&acc)

	if len(c.responses) != 1 {
		t.Fatalf("responses = %v", c.responses)
	}
	if acc.String() != "\nSLOT:0" {
		t.Errorf("tail = %q, want the unfinished frame kept", acc.String())
	}

	acc.WriteString("2 [12345678]\n")
	c.drainFrames(&acc)
	if len(c.responses) != 2 || c.responses[1] != "SLOT:02 [12345678]" {
		t.Errorf("responses = %v", c.responses)
	}
}

func TestVersionLineRegex(t *testing.T) {
	for _, ok := range []string{"TURRIS DONGLE V1.4", "JABLOTRON DONGLE V9.9 OK"} {
		if !versionLineRe.MatchString(ok) {
			t.Errorf("%q should match the version pattern", ok)
		}
	}
	for _, bad := range []string{"OK", "ERROR", "[26214400] JA-81M SENSOR", "dongle v1.4"} {
		if versionLineRe.MatchString(bad) {
			t.Errorf("%q should not match the version pattern", bad)
		}
	}
}

func TestExpectOK(t *testing.T) {
	if err := expectOK("OK", nil); err != nil {
		t.Errorf("OK: %v", err)
	}
	if err := expectOK("ERROR", nil); !errors.Is(err, beeeon.ErrProtocol) {
		t.Errorf("ERROR: %v, want protocol error", err)
	}
	if err := expectOK("SLOT:01 [--------]", nil); !errors.Is(err, beeeon.ErrIllegalState) {
		t.Errorf("unexpected response: %v, want illegal state", err)
	}
	sentinel := errors.New("io down")
	if err := expectOK("", sentinel); !errors.Is(err, sentinel) {
		t.Errorf("prior error should pass through, got %v", err)
	}
}

func TestRoundTimeout(t *testing.T) {
	if got := roundTimeout(-1); got != -1 {
		t.Errorf("negative stays negative, got %v", got)
	}
	if got := roundTimeout(0); got != time.Millisecond {
		t.Errorf("zero rounds up to 1ms, got %v", got)
	}
	if got := roundTimeout(200 * time.Microsecond); got != time.Millisecond {
		t.Errorf("sub-millisecond rounds up, got %v", got)
	}
	if got := roundTimeout(5 * time.Second); got != 5*time.Second {
		t.Errorf("larger timeouts pass through, got %v", got)
	}
}

func TestDispatchMalformedReportAddressGoesToResponses(t *testing.T) {
	c := newTestController()

	// 8-digit frame with a non-numeric address does not match the report
	// pattern and lands in the response queue instead
	c.dispatch("[1234567a] JA-81M SENSOR")
	if len(c.reports) != 0 {
		t.Errorf("reports = %v", c.reports)
	}
	if len(c.responses) != 1 {
		t.Errorf("responses = %v", c.responses)
	}
}
