package zwave

import (
	"testing"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

func TestGenericMapperOrdersByStableCCOrder(t *testing.T) {
	node := NewNode(Identity{Home: 0x01020304, Node: 7}, false)
	node.Product = "Unknown Multisensor"
	node.Add(CommandClass{ID: ccSensorMultilevel, Index: 0x01}) // temperature
	node.Add(CommandClass{ID: ccBattery})                       // battery

	m := newGenericMapper(node)

	types := m.Types()
	if len(types) != 2 {
		t.Fatalf("expected 2 modules, got %d: %+v", len(types), types)
	}
	if types[0].Type != beeeon.TypeBattery || types[1].Type != beeeon.TypeTemperature {
		t.Fatalf("expected [battery, temperature] order, got %+v", types)
	}

	if m.Product() != "Unknown Multisensor (generic)" {
		t.Fatalf("expected product suffixed with (generic), got %q", m.Product())
	}
}

func TestGenericMapperMangledID(t *testing.T) {
	node := NewNode(Identity{Home: 0x01020304, Node: 7}, false)
	node.Add(CommandClass{ID: ccBattery})

	m := newGenericMapper(node)
	id := m.BuildID()

	topByte := byte(id.Local() >> 48)
	if topByte != 0xFF {
		t.Fatalf("expected mangled top byte 0xff, got %#x", topByte)
	}
	if id.Prefix().String() != "zwave" {
		t.Fatalf("expected zwave prefix, got %s", id.Prefix())
	}
}

func TestGenericRegistryRequiresQueriedNode(t *testing.T) {
	node := NewNode(Identity{Home: 1, Node: 2}, false)
	node.Add(CommandClass{ID: ccBattery})

	r := NewGenericRegistry()

	m, err := r.Resolve(node)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m != nil {
		t.Fatal("a not-yet-queried node must not resolve a mapper")
	}

	node.Queried = true
	m, err = r.Resolve(node)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m == nil {
		t.Fatal("a queried node must resolve the generic mapper")
	}
}

func TestGenericMapperConvert(t *testing.T) {
	node := NewNode(Identity{Home: 1, Node: 1}, false)
	node.Add(CommandClass{ID: ccBattery})
	node.Add(CommandClass{ID: ccSensorMultilevel, Index: 0x01})

	m := newGenericMapper(node)

	battery, err := m.Convert(Value{CommandClass: CommandClass{ID: ccBattery}, RawValue: "55"})
	if err != nil || battery.Module != 0 || battery.Value != 55 {
		t.Fatalf("unexpected battery conversion: %+v, %v", battery, err)
	}

	temp, err := m.Convert(Value{CommandClass: CommandClass{ID: ccSensorMultilevel, Index: 0x01}, RawValue: "19", Unit: "C"})
	if err != nil || temp.Module != 1 || temp.Value != 19 {
		t.Fatalf("unexpected temperature conversion: %+v, %v", temp, err)
	}

	if _, err := m.Convert(Value{CommandClass: CommandClass{ID: ccAlarm, Index: 0x07}}); err == nil {
		t.Fatalf("expected error: this node never exposed an alarm command class")
	}
}

func TestGenericMapperDoorPolarityInverted(t *testing.T) {
	node := NewNode(Identity{Home: 1, Node: 2}, false)
	node.Add(CommandClass{ID: ccSensorBinary, Index: 0x0A})
	node.Add(CommandClass{ID: ccSwitchBinary})

	m := newGenericMapper(node)

	// door/window: true on the wire means closed, module reads 0
	door, err := m.Convert(Value{CommandClass: CommandClass{ID: ccSensorBinary, Index: 0x0A}, RawValue: "true"})
	if err != nil || door.Value != 0 {
		t.Fatalf("closed door should read 0: %+v, %v", door, err)
	}
	door, err = m.Convert(Value{CommandClass: CommandClass{ID: ccSensorBinary, Index: 0x0A}, RawValue: "false"})
	if err != nil || door.Value != 1 {
		t.Fatalf("open door should read 1: %+v, %v", door, err)
	}

	// plain switch keeps non-inverted polarity
	sw, err := m.Convert(Value{CommandClass: CommandClass{ID: ccSwitchBinary}, RawValue: "true"})
	if err != nil || sw.Value != 1 {
		t.Fatalf("switch on should read 1: %+v, %v", sw, err)
	}
}

func TestGenericMapperBasicIsUnknownType(t *testing.T) {
	node := NewNode(Identity{Home: 1, Node: 3}, false)
	node.Add(CommandClass{ID: ccBasic})

	m := newGenericMapper(node)
	types := m.Types()
	if len(types) != 1 || types[0].Type != beeeon.TypeUnknown {
		t.Fatalf("basic command class should map to unknown, got %+v", types)
	}
}
