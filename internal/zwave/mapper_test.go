package zwave

import "testing"

func TestZW100MapperConvert(t *testing.T) {
	id := Identity{Home: 0x12345678, Node: 4}
	m := &zw100Mapper{base: base{id: id, product: "ZW100 MultiSensor 6"}}

	temp, err := m.Convert(Value{CommandClass: CommandClass{ID: ccSensorMultilevel, Index: 0x01}, RawValue: "21.5", Unit: "C"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if temp.Module != 1 || temp.Value != 21.5 {
		t.Fatalf("unexpected temperature value: %+v", temp)
	}

	battery, err := m.Convert(Value{CommandClass: CommandClass{ID: ccBattery}, RawValue: "87"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if battery.Module != 0 || battery.Value != 87 {
		t.Fatalf("unexpected battery value: %+v", battery)
	}

	if _, err := m.Convert(Value{CommandClass: CommandClass{ID: 0xFE}}); err == nil {
		t.Fatalf("expected error for unrecognized value")
	}
}

func TestFGK101MapperBuildID(t *testing.T) {
	id := Identity{Home: 0xAABBCCDD, Node: 9}
	m := &fgk101Mapper{base: base{id: id, product: "FGK-101"}}

	got := m.BuildID()
	want := uint64(id.Home)<<8 | uint64(id.Node)
	if got.Local() != want {
		t.Fatalf("BuildID local = %x, want %x", got.Local(), want)
	}
	if got.Prefix().String() != "zwave" {
		t.Fatalf("BuildID prefix = %s, want zwave", got.Prefix())
	}

	open, err := m.Convert(Value{CommandClass: CommandClass{ID: ccSensorBinary}, RawValue: "true"})
	if err != nil || open.Module != 1 || open.Value != 1 {
		t.Fatalf("unexpected open/close conversion: %+v, %v", open, err)
	}
}

func TestDC23ZWMapperDoorEvents(t *testing.T) {
	m := &dc23zwMapper{base: base{id: Identity{Home: 1, Node: 2}, product: "DC23ZW"}}

	open, err := m.Convert(Value{CommandClass: CommandClass{ID: ccAlarm, Index: 6}, RawValue: "22"})
	if err != nil || open.Module != 2 || open.Value != 1 {
		t.Fatalf("expected door open, got %+v, %v", open, err)
	}

	closed, err := m.Convert(Value{CommandClass: CommandClass{ID: ccAlarm, Index: 6}, RawValue: "23"})
	if err != nil || closed.Module != 2 || closed.Value != 0 {
		t.Fatalf("expected door closed, got %+v, %v", closed, err)
	}
}

func TestSpecificRegistryResolvesByVendorProduct(t *testing.T) {
	r := NewSpecificRegistry()

	node := NewNode(Identity{Home: 1, Node: 3}, false)
	node.VendorID = 0x0086
	node.ProductID = 0x0002
	node.Product = "ZW100"

	m, err := r.Resolve(node)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil {
		t.Fatalf("expected a resolved mapper")
	}
	if _, ok := m.(*zw100Mapper); !ok {
		t.Fatalf("expected *zw100Mapper, got %T", m)
	}

	unknown := NewNode(Identity{Home: 1, Node: 4}, false)
	unknown.VendorID = 0xFFFF
	unknown.ProductID = 0xFFFF
	m, err = r.Resolve(unknown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Fatalf("expected no mapper for unknown vendor/product, got %T", m)
	}
}

func TestCompositeRegistryPrefersSpecificOverGeneric(t *testing.T) {
	r := NewCompositeRegistry(NewSpecificRegistry(), NewGenericRegistry())

	node := NewNode(Identity{Home: 1, Node: 3}, false)
	node.VendorID = 0x0086
	node.ProductID = 0x0002
	node.Product = "ZW100"

	m, err := r.Resolve(node)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.(*zw100Mapper); !ok {
		t.Fatalf("composite registry should have resolved the specific mapper, got %T", m)
	}

	unknown := NewNode(Identity{Home: 1, Node: 5}, false)
	unknown.Queried = true
	unknown.Add(CommandClass{ID: ccBattery})
	m, err = r.Resolve(unknown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.(*genericMapper); !ok {
		t.Fatalf("composite registry should fall back to generic mapper, got %T", m)
	}
}
