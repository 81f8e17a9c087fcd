package schema

import (
	"testing"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

func powerMeterModules() []beeeon.Module {
	return []beeeon.Module{
		{Type: beeeon.TypeFrequency},
		{Type: beeeon.TypeCurrent},
		{Type: beeeon.TypePower},
		{Type: beeeon.TypeVoltage},
		{Type: beeeon.TypeOnOff, Attributes: []beeeon.Attribute{beeeon.AttrControllable}},
		{Type: beeeon.TypeRSSI},
	}
}

func TestValidateAcceptsControllableWrite(t *testing.T) {
	v := NewValidator()
	doc := ForModules(powerMeterModules())

	if err := v.Validate(doc, map[string]any{"4": 1.0}); err != nil {
		t.Errorf("write to controllable module rejected: %v", err)
	}
}

func TestValidateRejectsReadOnlyModule(t *testing.T) {
	v := NewValidator()
	doc := ForModules(powerMeterModules())

	if err := v.Validate(doc, map[string]any{"0": 50.0}); err == nil {
		t.Error("write to read-only module should be rejected")
	}
	if err := v.Validate(doc, map[string]any{"9": 1.0}); err == nil {
		t.Error("write to nonexistent module should be rejected")
	}
	if err := v.Validate(doc, map[string]any{"4": "on"}); err == nil {
		t.Error("non-numeric value should be rejected")
	}
	if err := v.Validate(doc, map[string]any{}); err == nil {
		t.Error("empty payload should be rejected")
	}
}

func TestValidateEmptySchemaPasses(t *testing.T) {
	v := NewValidator()
	if err := v.Validate(nil, map[string]any{"anything": true}); err != nil {
		t.Errorf("nil schema should not validate: %v", err)
	}
}

func TestBareOnOffIsControllable(t *testing.T) {
	doc := ForModules([]beeeon.Module{{Type: beeeon.TypeOnOff}})
	v := NewValidator()
	if err := v.Validate(doc, map[string]any{"0": 1.0}); err != nil {
		t.Errorf("bare on_off module should accept writes: %v", err)
	}
}
