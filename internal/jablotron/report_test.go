package jablotron

import (
	"errors"
	"testing"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

func TestReportHas(t *testing.T) {
	r := Report{Address: 1, Type: "JA-81M", Data: "SENSOR LB:0 ACT:1"}

	if !r.Has("SENSOR", false) {
		t.Error("bare keyword SENSOR should be found")
	}
	if r.Has("LB", false) {
		t.Error("LB:0 is not a bare keyword")
	}
	if !r.Has("LB", true) {
		t.Error("LB:0 should be found as keyword:value")
	}
	if r.Has("TAMPER", false) || r.Has("TAMPER", true) {
		t.Error("TAMPER is absent")
	}
}

func TestReportGet(t *testing.T) {
	r := Report{Data: "ACT:1 LB:0 BLACKOUT:7"}

	if got, err := r.Get("ACT"); err != nil || got != 1 {
		t.Errorf("Get(ACT) = (%d,%v)", got, err)
	}
	if got, err := r.Get("BLACKOUT"); err != nil || got != 7 {
		t.Errorf("Get(BLACKOUT) = (%d,%v)", got, err)
	}
	if _, err := r.Get("MISSING"); !errors.Is(err, beeeon.ErrNotFound) {
		t.Errorf("Get(MISSING) err = %v, want not found", err)
	}

	// non-integer value is not found either
	bad := Report{Data: "ACT:high"}
	if _, err := bad.Get("ACT"); !errors.Is(err, beeeon.ErrNotFound) {
		t.Errorf("Get of non-integer = %v, want not found", err)
	}

	// has(k, true) implies get(k) succeeds
	for _, k := range []string{"ACT", "LB", "BLACKOUT"} {
		if !r.Has(k, true) {
			t.Errorf("Has(%s, true) should hold", k)
		}
		if _, err := r.Get(k); err != nil {
			t.Errorf("Get(%s) should succeed when Has holds: %v", k, err)
		}
	}
}

func TestReportTemperature(t *testing.T) {
	r := Report{Data: "SET:21.5°C INT:-3.0°C LB:0"}

	if got, err := r.Temperature("SET"); err != nil || got != 21.5 {
		t.Errorf("Temperature(SET) = (%v,%v)", got, err)
	}
	if got, err := r.Temperature("INT"); err != nil || got != -3.0 {
		t.Errorf("Temperature(INT) = (%v,%v)", got, err)
	}
	if _, err := r.Temperature("MISSING"); !errors.Is(err, beeeon.ErrNotFound) {
		t.Errorf("Temperature(MISSING) err = %v, want not found", err)
	}

	// a plain number without the degree suffix is not a temperature
	bad := Report{Data: "SET:21.5"}
	if _, err := bad.Temperature("SET"); !errors.Is(err, beeeon.ErrNotFound) {
		t.Errorf("Temperature without °C = %v, want not found", err)
	}
}

func TestReportBattery(t *testing.T) {
	if got := (Report{Data: "LB:0"}).Battery(); got != 100 {
		t.Errorf("LB:0 battery = %v, want 100", got)
	}
	if got := (Report{Data: "LB:1"}).Battery(); got != 5 {
		t.Errorf("LB:1 battery = %v, want 5", got)
	}
	if got := (Report{Data: "ACT:1"}).Battery(); got != 100 {
		t.Errorf("absent LB battery = %v, want 100", got)
	}
}

func TestReportInvalidSentinel(t *testing.T) {
	if !(Report{}).Invalid() {
		t.Error("zero report is the invalid sentinel")
	}
	if (Report{Address: 0x1a0000}).Invalid() {
		t.Error("addressed report is valid")
	}
}
