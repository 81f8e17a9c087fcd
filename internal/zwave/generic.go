package zwave

import "github.com/urmzd/homai-gateway/internal/beeeon"

// ccKey is the (command class, index) pair the generic mapper uses to
// decide which BeeeOn module type a value belongs to.
type ccKey struct {
	id    uint8
	index uint8
}

// ccMapping is the generic fallback's CC_MAPPING table: it assigns a
// BeeeOn ModuleType to every (command class, index) pair the mapper
// knows how to interpret without any vendor-specific knowledge.
var ccMapping = map[ccKey]beeeon.ModuleType{
	{ccBattery, 0}:              beeeon.TypeBattery,
	{ccSensorMultilevel, 0x01}:  beeeon.TypeTemperature,
	{ccSensorMultilevel, 0x03}:  beeeon.TypeLuminance,
	{ccSensorMultilevel, 0x05}:  beeeon.TypeHumidity,
	{ccSensorMultilevel, 0x04}:  beeeon.TypePower,
	{ccSensorMultilevel, 0x08}:  beeeon.TypePower,
	{ccSensorMultilevel, 0x0F}:  beeeon.TypeVoltage,
	{ccSensorMultilevel, 0x10}:  beeeon.TypeCurrent,
	{ccSensorMultilevel, 0x11}:  beeeon.TypePower,
	{ccSensorMultilevel, 0x1B}:  beeeon.TypeUltraviolet,
	{ccSensorBinary, 0x0A}:      beeeon.TypeOpenClose,
	{ccSensorBinary, 0x0C}:      beeeon.TypeMotion,
	{ccSwitchBinary, 0}:         beeeon.TypeOnOff,
	{ccBasic, 0}:                beeeon.TypeUnknown,
	{ccAlarm, 0x07}:             beeeon.TypeSecurityAlert,
}

// ccOrder fixes the stable, append-only ordering the generic mapper
// assigns BeeeOn module ids in: the position of a key in this slice is
// the module id any value resolving to that key gets. New keys must only
// ever be appended, never inserted, or every already-paired generic
// device's module ids would shift.
var ccOrder = []ccKey{
	{ccBattery, 0},
	{ccSensorMultilevel, 0x01},
	{ccSensorMultilevel, 0x03},
	{ccSensorMultilevel, 0x05},
	{ccSensorMultilevel, 0x04},
	{ccSensorMultilevel, 0x08},
	{ccSensorMultilevel, 0x0F},
	{ccSensorMultilevel, 0x10},
	{ccSensorMultilevel, 0x11},
	{ccSensorMultilevel, 0x1B},
	{ccSensorBinary, 0x0A},
	{ccSensorBinary, 0x0C},
	{ccSwitchBinary, 0},
	{ccBasic, 0},
	{ccAlarm, 0x07},
}

func init() {
	if len(ccOrder) != len(ccMapping) {
		panic("zwave: ccOrder and ccMapping must describe the same key set")
	}
	for _, k := range ccOrder {
		if _, ok := ccMapping[k]; !ok {
			panic("zwave: ccOrder references a key missing from ccMapping")
		}
	}
}

// idMangleBits is OR-ed into bits 48-55 of the local id, the byte just
// below the technology prefix and above the 40-bit home/node value, to
// guarantee a generic-mapper device id never collides with a specific
// mapper's id for the same node (a later firmware update resolving a
// Specific mapper gets a different BeeeOn id than the generic one did).
const idMangleBits = 0xFF

// genericMapper is the fallback used whenever no SpecificRegistry entry
// matches a node: it derives the device's module list purely from which
// (command class, index) pairs the node exposes, in ccOrder's stable
// order, and mangles the device id so it never aliases a specific
// mapper's id for the same physical node.
type genericMapper struct {
	id      Identity
	product string
	types   []beeeon.Module
	keys    []ccKey
}

func newGenericMapper(node *Node) *genericMapper {
	present := make(map[ccKey]bool)
	for _, cc := range node.CommandClasses() {
		k := ccKey{cc.ID, cc.Index}
		if _, ok := ccMapping[k]; ok {
			present[k] = true
		}
	}

	m := &genericMapper{id: node.ID, product: node.Product + " (generic)"}
	for _, k := range ccOrder {
		if present[k] {
			m.keys = append(m.keys, k)
			m.types = append(m.types, beeeon.Module{Type: ccMapping[k]})
		}
	}
	return m
}

func (m *genericMapper) BuildID() beeeon.DeviceID {
	local := uint64(m.id.Home)<<8 | uint64(m.id.Node)
	local |= uint64(idMangleBits) << 48
	return beeeon.NewDeviceID(beeeon.PrefixZWave, local)
}

func (m *genericMapper) Product() string { return m.product }

func (m *genericMapper) Types() []beeeon.Module { return m.types }

func (m *genericMapper) FindType(module beeeon.ModuleID) (beeeon.Module, bool) {
	return findTypeIn(m.types, module)
}

func (m *genericMapper) Convert(v Value) (beeeon.SensorValue, error) {
	key := ccKey{v.CommandClass.ID, v.CommandClass.Index}
	for i, k := range m.keys {
		if k != key {
			continue
		}
		switch k {
		case ccKey{ccSensorMultilevel, 0x01}:
			f, err := v.AsCelsius()
			return module(beeeon.ModuleID(i), f, err)
		case ccKey{ccSensorMultilevel, 0x03}:
			f, err := v.AsLuminance()
			return module(beeeon.ModuleID(i), f, err)
		case ccKey{ccSensorBinary, 0x0A}:
			// door/window class: true on the wire means closed
			b, err := v.AsBool()
			return module(beeeon.ModuleID(i), boolToFloat(!b), err)
		case ccKey{ccSensorBinary, 0x0C}, ccKey{ccSwitchBinary, 0}:
			b, err := v.AsBool()
			return module(beeeon.ModuleID(i), boolToFloat(b), err)
		default:
			f, err := v.AsDouble()
			return module(beeeon.ModuleID(i), f, err)
		}
	}
	return beeeon.SensorValue{}, unrecognizedValue(v)
}

func (m *genericMapper) ConvertBack(beeeon.ModuleID, float64) (Value, error) {
	return Value{}, beeeon.ErrUnsupported
}

// GenericRegistry resolves any fully-queried node to a generic mapper
// built purely from its currently-known command classes. A node still
// being interrogated resolves to nil: its command-class set is not yet
// trustworthy, and a premature module list would be frozen into the
// dispatched device. Must be the last child in a CompositeRegistry.
type GenericRegistry struct{}

func NewGenericRegistry() *GenericRegistry { return &GenericRegistry{} }

func (GenericRegistry) Resolve(node *Node) (Mapper, error) {
	if !node.Queried {
		return nil, nil
	}
	return newGenericMapper(node), nil
}

var _ Mapper = (*genericMapper)(nil)
var _ Registry = (*GenericRegistry)(nil)
