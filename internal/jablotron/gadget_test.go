package jablotron

import (
	"errors"
	"testing"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

func TestRC86KPrimarySecondary(t *testing.T) {
	cases := []struct {
		name    string
		fn      func(uint32) uint32
		in, out uint32
	}{
		{"primary of primary", PrimaryAddress, 8388608, 8388608},
		{"primary of secondary", PrimaryAddress, 9437184, 8388608},
		{"secondary of primary", SecondaryAddress, 8388608, 9437184},
		{"secondary of secondary", SecondaryAddress, 9437184, 9437184},
	}
	for _, tc := range cases {
		if got := tc.fn(tc.in); got != tc.out {
			t.Errorf("%s: f(%d) = %d, want %d", tc.name, tc.in, got, tc.out)
		}
	}
}

func TestPrimaryOfSecondaryIsInvolution(t *testing.T) {
	for _, primary := range []uint32{rc86kFirst, rc86kFirst + 1234, rc86kLast} {
		if got := PrimaryAddress(SecondaryAddress(primary)); got != primary {
			t.Errorf("primary(secondary(%d)) = %d", primary, got)
		}
	}
	// addresses outside the RC-86K ranges pass through both untouched
	for _, other := range []uint32{0x1a0000, 0x240000, 0xcf0001} {
		if PrimaryAddress(other) != other || SecondaryAddress(other) != other {
			t.Errorf("address %#x should be untouched", other)
		}
	}
}

func TestResolveByRange(t *testing.T) {
	cases := []struct {
		address uint32
		kind    Kind
	}{
		{0x1a0000, KindJA81M},
		{0x180000, KindJA81M},
		{0x1bffff, KindJA81M},
		{0x1c0000, KindJA83M},
		{0x640123, KindJA83P},
		{0x760000, KindJA85ST},
		{0x7f0000, KindJA82SH},
		{0x580000, KindJA80L},
		{0xcf1234, KindAC88},
		{0x240001, KindTP82N},
		{rc86kFirst, KindRC86K},
		{rc86kSecondaryFirst + 5, KindRC86K}, // secondary normalizes to primary
		{0x000001, KindNone},
	}
	for _, tc := range cases {
		info := Resolve(tc.address)
		if info.Kind != tc.kind {
			t.Errorf("Resolve(%#x).Kind = %v, want %v", tc.address, info.Kind, tc.kind)
		}
		if tc.kind != KindNone && !info.Valid() {
			t.Errorf("Resolve(%#x) should be valid", tc.address)
		}
	}
}

func findValue(values []beeeon.SensorValue, module beeeon.ModuleID) (float64, bool) {
	for _, v := range values {
		if v.Module == module && v.Present {
			return v.Value, true
		}
	}
	return 0, false
}

func TestJA81MReport(t *testing.T) {
	report := Report{Address: 0x1a0000, Type: "JA-81M", Data: "SENSOR LB:0 ACT:1"}
	info := Resolve(report.Address)
	if info.Kind != KindJA81M {
		t.Fatalf("resolved %v", info.Kind)
	}

	values, err := info.Parse(report)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if v, ok := findValue(values, 0); !ok || v != 1 {
		t.Errorf("module 0 = (%v,%v), want ACT=1", v, ok)
	}
	if _, ok := findValue(values, 1); ok {
		t.Error("module 1 should be absent without TAMPER")
	}
	if v, ok := findValue(values, 2); !ok || v != 100 {
		t.Errorf("module 2 = (%v,%v), want battery 100", v, ok)
	}
}

func TestJA81MTamperLowBattery(t *testing.T) {
	report := Report{Address: 0x1a0000, Type: "JA-81M", Data: "TAMPER LB:1 ACT:1"}
	values, err := Resolve(report.Address).Parse(report)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if _, ok := findValue(values, 0); ok {
		t.Error("module 0 should be absent without SENSOR")
	}
	if v, ok := findValue(values, 1); !ok || v != 1 {
		t.Errorf("module 1 = (%v,%v), want tamper ACT=1", v, ok)
	}
	if v, _ := findValue(values, 2); v != 5 {
		t.Errorf("module 2 = %v, want battery 5", v)
	}
}

func TestTP82NReport(t *testing.T) {
	report := Report{Address: 0x240000, Type: "TP-82N", Data: "SET:21.5°C INT:23.0°C LB:0"}
	values, err := Resolve(report.Address).Parse(report)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if v, ok := findValue(values, 0); !ok || v != 23.0 {
		t.Errorf("module 0 = (%v,%v), want INT 23.0", v, ok)
	}
	if v, ok := findValue(values, 1); !ok || v != 21.5 {
		t.Errorf("module 1 = (%v,%v), want SET 21.5", v, ok)
	}
	if v, _ := findValue(values, 2); v != 100 {
		t.Errorf("module 2 = %v, want battery 100", v)
	}
}

func TestRC86KReport(t *testing.T) {
	// primary address arms module 0
	report := Report{Address: rc86kFirst, Type: "RC-86K", Data: "ARM:1 LB:0"}
	values, err := Resolve(report.Address).Parse(report)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v, ok := findValue(values, 0); !ok || v != 1 {
		t.Errorf("primary arm: module 0 = (%v,%v)", v, ok)
	}

	// secondary address reports on module 1
	report = Report{Address: rc86kSecondaryFirst, Type: "RC-86K", Data: "ARM:0 LB:0"}
	values, err = Resolve(report.Address).Parse(report)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v, ok := findValue(values, 1); !ok || v != 0 {
		t.Errorf("secondary arm: module 1 = (%v,%v)", v, ok)
	}
	if _, ok := findValue(values, 0); ok {
		t.Error("secondary address must not report on module 0")
	}

	// PANIC raises module 2 instead of an arm value
	report = Report{Address: rc86kFirst, Type: "RC-86K", Data: "PANIC LB:1"}
	values, err = Resolve(report.Address).Parse(report)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v, ok := findValue(values, 2); !ok || v != 1 {
		t.Errorf("panic: module 2 = (%v,%v)", v, ok)
	}
	if v, _ := findValue(values, 3); v != 5 {
		t.Errorf("panic battery = %v, want 5", v)
	}
}

func TestJA80LFlagsAreIndependent(t *testing.T) {
	// BUTTON and TAMPER checked independently: both may fire in one payload
	report := Report{Address: 0x580000, Type: "JA-80L", Data: "BUTTON TAMPER BLACKOUT:0"}
	values, err := Resolve(report.Address).Parse(report)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := findValue(values, 0); !ok {
		t.Error("BUTTON should set module 0")
	}
	if _, ok := findValue(values, 1); !ok {
		t.Error("TAMPER should set module 1")
	}
}

func TestAC88Relay(t *testing.T) {
	report := Report{Address: 0xcf0000, Type: "AC-88", Data: "RELAY:1"}
	values, err := Resolve(report.Address).Parse(report)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v, ok := findValue(values, 0); !ok || v != 1 {
		t.Errorf("module 0 = (%v,%v), want relay 1", v, ok)
	}
}

func TestParseUnresolvedFails(t *testing.T) {
	info := Resolve(0x000001)
	if _, err := info.Parse(Report{Address: 1, Type: "???", Data: "X"}); err == nil {
		t.Error("parsing an unresolved gadget should fail")
	}
}

func TestParseMissingRequiredValueFails(t *testing.T) {
	cases := []Report{
		{Address: 0xcf0000, Type: "AC-88", Data: "BUTTON"},              // no RELAY
		{Address: 0x580000, Type: "JA-80L", Data: "BUTTON"},             // no BLACKOUT
		{Address: 0x1a0000, Type: "JA-81M", Data: "SENSOR LB:0"},        // SENSOR without ACT
		{Address: 0x640000, Type: "JA-83P", Data: "TAMPER LB:0"},        // TAMPER without ACT
		{Address: rc86kFirst, Type: "RC-86K", Data: "LB:0"},             // no ARM, no PANIC
		{Address: 0x240000, Type: "TP-82N", Data: "INT:23.0 LB:0"},      // missing °C suffix
	}
	for _, report := range cases {
		info := Resolve(report.Address)
		if _, err := info.Parse(report); !errors.Is(err, beeeon.ErrNotFound) {
			t.Errorf("%s %q: err = %v, want not found", report.Type, report.Data, err)
		}
	}
}
