package beeeon

import (
	"errors"
	"testing"
)

func TestDeviceIDRoundtrip(t *testing.T) {
	cases := []DeviceID{
		NewDeviceID(PrefixJablotron, 0x1a0000),
		NewDeviceID(PrefixZWave, 0xff0102030407),
		NewDeviceID(PrefixConrad, 0x38d649),
		NewDeviceID(PrefixVPT, 1),
	}
	for _, id := range cases {
		parsed, err := ParseDeviceID(id.String())
		if err != nil {
			t.Errorf("ParseDeviceID(%q): %v", id.String(), err)
			continue
		}
		if parsed != id {
			t.Errorf("roundtrip of %q produced %q", id, parsed)
		}
	}
}

func TestDeviceIDPacking(t *testing.T) {
	id := NewDeviceID(PrefixZWave, 0x0102030405)
	if id.Prefix() != PrefixZWave {
		t.Errorf("prefix = %v", id.Prefix())
	}
	if id.Local() != 0x0102030405 {
		t.Errorf("local = %#x", id.Local())
	}

	// locals are masked to 56 bits
	overflow := NewDeviceID(PrefixJablotron, 0xFF00000000000001)
	if overflow.Prefix() != PrefixJablotron {
		t.Errorf("overflowing local corrupted the prefix: %v", overflow.Prefix())
	}
	if overflow.Local() != 1 {
		t.Errorf("local = %#x, want the masked value", overflow.Local())
	}
}

func TestParseDeviceIDRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "jablotron", "unknown:01", "zwave:zz", "zwave:ffffffffffffffff"} {
		if _, err := ParseDeviceID(s); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ParseDeviceID(%q) = %v, want invalid argument", s, err)
		}
	}
}

func TestSensorDataHasValues(t *testing.T) {
	if (SensorData{}).HasValues() {
		t.Error("empty sample has no values")
	}
	data := SensorData{Values: []SensorValue{Value(0, 1)}}
	if !data.HasValues() {
		t.Error("sample with one value should ship")
	}
}
