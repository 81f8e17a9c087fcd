package zwave

import (
	"fmt"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

// Mapper translates one Z-Wave node into a BeeeOn device: its module
// layout and the value conversions between the two worlds. The
// embeddable base implements the defaults (BuildID from home/node,
// Product, and ConvertBack returning ErrUnsupported); concrete mappers
// embed it and add Types, Convert and a FindType that looks modules up by
// ordinal position via findTypeIn.
type Mapper interface {
	BuildID() beeeon.DeviceID
	Product() string
	Types() []beeeon.Module
	FindType(module beeeon.ModuleID) (beeeon.Module, bool)
	Convert(v Value) (beeeon.SensorValue, error)
	// ConvertBack turns a module write into a Value to post to the
	// network. Most mappers are sensor-only and return ErrUnsupported.
	ConvertBack(module beeeon.ModuleID, value float64) (Value, error)
}

// base implements the common Mapper plumbing every concrete mapper
// embeds: identity-derived BuildID, Product, and the default "no reverse
// conversion" ConvertBack.
type base struct {
	id      Identity
	product string
}

func (b base) BuildID() beeeon.DeviceID {
	return beeeon.NewDeviceID(beeeon.PrefixZWave, uint64(b.id.Home)<<8|uint64(b.id.Node))
}

func (b base) Product() string { return b.product }

func (b base) ConvertBack(beeeon.ModuleID, float64) (Value, error) {
	return Value{}, beeeon.ErrUnsupported
}

// findTypeIn is shared by every mapper's FindType: BeeeOn module ids are
// just the ordinal position in Types().
func findTypeIn(types []beeeon.Module, module beeeon.ModuleID) (beeeon.Module, bool) {
	i := int(module)
	if i < 0 || i >= len(types) {
		return beeeon.Module{}, false
	}
	return types[i], true
}

// Registry resolves a Mapper for a Z-Wave node, or nil if none applies.
type Registry interface {
	Resolve(node *Node) (Mapper, error)
}

// CompositeRegistry tries child registries in order and returns the first
// non-nil resolution. Specific registries must precede the generic one so
// device ids do not flip between specific and generic across a firmware
// upgrade.
type CompositeRegistry struct {
	children []Registry
}

func NewCompositeRegistry(children ...Registry) *CompositeRegistry {
	return &CompositeRegistry{children: children}
}

func (c *CompositeRegistry) Resolve(node *Node) (Mapper, error) {
	for _, child := range c.children {
		m, err := child.Resolve(node)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}
	return nil, nil
}

// --- Specific registry -----------------------------------------------

// vendorProduct is the (vendorID, productID) key a specific registry
// matches exactly.
type vendorProduct struct {
	vendor  uint16
	product uint16
}

type mapperFactory func(id Identity, product string) Mapper

// SpecificRegistry resolves an exact (vendor, product) match to a named
// Mapper family with built-in knowledge of that product's module layout
// (Aeotec, Fibaro, Climax, ST02L1).
type SpecificRegistry struct {
	specs map[vendorProduct]mapperFactory
}

func NewSpecificRegistry() *SpecificRegistry {
	r := &SpecificRegistry{specs: make(map[vendorProduct]mapperFactory)}
	r.registerAeotec()
	r.registerFibaro()
	r.registerClimax()
	r.registerST02L1()
	return r
}

func (r *SpecificRegistry) register(vendor, product uint16, f mapperFactory) {
	r.specs[vendorProduct{vendor, product}] = f
}

func (r *SpecificRegistry) Resolve(node *Node) (Mapper, error) {
	f, ok := r.specs[vendorProduct{node.VendorID, node.ProductID}]
	if !ok {
		return nil, nil
	}
	return f(node.ID, node.Product), nil
}

// --- Aeotec ZW100 MultiSensor 6 ---------------------------------------

func (r *SpecificRegistry) registerAeotec() {
	r.register(0x0086, 0x0002, func(id Identity, product string) Mapper {
		return &zw100Mapper{base: base{id: id, product: product}}
	})
}

var zw100Types = []beeeon.Module{
	{Type: beeeon.TypeBattery},
	{Type: beeeon.TypeTemperature, Attributes: []beeeon.Attribute{beeeon.AttrInner}},
	{Type: beeeon.TypeLuminance, Attributes: []beeeon.Attribute{beeeon.AttrInner}},
	{Type: beeeon.TypeHumidity},
	{Type: beeeon.TypeUltraviolet},
	{Type: beeeon.TypeShake},
}

type zw100Mapper struct{ base }

func (m *zw100Mapper) Types() []beeeon.Module { return zw100Types }
func (m *zw100Mapper) FindType(module beeeon.ModuleID) (beeeon.Module, bool) {
	return findTypeIn(zw100Types, module)
}

func (m *zw100Mapper) Convert(v Value) (beeeon.SensorValue, error) {
	switch v.CommandClass.ID {
	case ccBattery:
		f, err := v.AsDouble()
		return module(0, f, err)

	case ccSensorMultilevel:
		switch v.CommandClass.Index {
		case 0x01:
			f, err := v.AsCelsius()
			return module(1, f, err)
		case 0x03:
			f, err := v.AsLuminance()
			return module(2, f, err)
		case 0x05:
			f, err := v.AsDouble()
			return module(3, f, err)
		case 0x1B:
			f, err := v.AsDouble()
			return module(4, f, err)
		}

	case ccAlarm:
		n, err := v.AsInt(true)
		if err == nil && n == 0x03 {
			return beeeon.Value(5, 1), nil
		}
	}

	return beeeon.SensorValue{}, unrecognizedValue(v)
}

// --- Fibaro FGK101 door sensor / FGSD002 smoke detector ----------------

func (r *SpecificRegistry) registerFibaro() {
	r.register(0x010f, 0x0700, func(id Identity, product string) Mapper {
		return &fgk101Mapper{base: base{id: id, product: product}}
	})
	r.register(0x010f, 0x0d02, func(id Identity, product string) Mapper {
		return &fgsd002Mapper{base: base{id: id, product: product}}
	})
}

var fgk101Types = []beeeon.Module{
	{Type: beeeon.TypeBattery},
	{Type: beeeon.TypeOpenClose},
}

type fgk101Mapper struct{ base }

func (m *fgk101Mapper) Types() []beeeon.Module { return fgk101Types }
func (m *fgk101Mapper) FindType(module beeeon.ModuleID) (beeeon.Module, bool) {
	return findTypeIn(fgk101Types, module)
}

func (m *fgk101Mapper) Convert(v Value) (beeeon.SensorValue, error) {
	switch v.CommandClass.ID {
	case ccBattery:
		f, err := v.AsDouble()
		return module(0, f, err)
	case ccSensorBinary:
		b, err := v.AsBool()
		return module(1, boolToFloat(b), err)
	}
	return beeeon.SensorValue{}, unrecognizedValue(v)
}

var fgsd002Types = []beeeon.Module{
	{Type: beeeon.TypeBattery},
	{Type: beeeon.TypeTemperature},
	{Type: beeeon.TypeSecurityAlert},
	{Type: beeeon.TypeSmoke},
	{Type: beeeon.TypeHeat},
}

type fgsd002Mapper struct{ base }

func (m *fgsd002Mapper) Types() []beeeon.Module { return fgsd002Types }
func (m *fgsd002Mapper) FindType(module beeeon.ModuleID) (beeeon.Module, bool) {
	return findTypeIn(fgsd002Types, module)
}

func (m *fgsd002Mapper) Convert(v Value) (beeeon.SensorValue, error) {
	switch v.CommandClass.ID {
	case ccBattery:
		f, err := v.AsDouble()
		return module(0, f, err)
	case ccSensorMultilevel:
		f, err := v.AsCelsius()
		return module(1, f, err)
	case ccAlarm:
		n, err := v.AsInt(true)
		if err != nil {
			break
		}
		noEvent := n == 254
		switch v.CommandClass.Index {
		case 0x01: // smoke
			return module(3, boolToFloat(!noEvent), nil)
		case 0x04: // heat
			return module(4, boolToFloat(!noEvent), nil)
		case 0x07: // tampering
			return module(2, boolToFloat(!noEvent), nil)
		}
	}
	return beeeon.SensorValue{}, unrecognizedValue(v)
}

// --- Climax DC23ZW door/tamper sensor ----------------------------------

func (r *SpecificRegistry) registerClimax() {
	r.register(0x0131, 0x0003, func(id Identity, product string) Mapper {
		return &dc23zwMapper{base: base{id: id, product: product}}
	})
}

var dc23zwTypes = []beeeon.Module{
	{Type: beeeon.TypeBattery},
	{Type: beeeon.TypeSecurityAlert},
	{Type: beeeon.TypeOpenClose},
}

type dc23zwMapper struct{ base }

func (m *dc23zwMapper) Types() []beeeon.Module { return dc23zwTypes }
func (m *dc23zwMapper) FindType(module beeeon.ModuleID) (beeeon.Module, bool) {
	return findTypeIn(dc23zwTypes, module)
}

func (m *dc23zwMapper) Convert(v Value) (beeeon.SensorValue, error) {
	switch v.CommandClass.ID {
	case ccBattery:
		f, err := v.AsDouble()
		return module(0, f, err)
	case ccAlarm:
		if v.CommandClass.Index == 7 {
			n, err := v.AsInt(true)
			if err == nil {
				switch n {
				case 3:
					return beeeon.Value(1, 1), nil
				case 0:
					return beeeon.Value(1, 0), nil
				}
			}
		}
	}

	switch {
	case climaxDoorOpen(v):
		return beeeon.Value(2, 1), nil
	case climaxDoorClosed(v):
		return beeeon.Value(2, 0), nil
	}
	return beeeon.SensorValue{}, unrecognizedValue(v)
}

func climaxDoorOpen(v Value) bool {
	switch v.CommandClass.ID {
	case ccAlarm:
		if v.CommandClass.Index == 6 {
			n, err := v.AsInt(true)
			return err == nil && n == 22
		}
	case ccSensorBinary:
		if v.CommandClass.Index == 10 {
			b, err := v.AsBool()
			return err == nil && !b
		}
	}
	return false
}

func climaxDoorClosed(v Value) bool {
	switch v.CommandClass.ID {
	case ccAlarm:
		if v.CommandClass.Index == 6 {
			n, err := v.AsInt(true)
			return err == nil && n == 23
		}
	case ccSensorBinary:
		if v.CommandClass.Index == 10 {
			b, err := v.AsBool()
			return err == nil && b
		}
	}
	return false
}

// --- ST02L1 PCB family: 3-in-1, 3-in-1-pir, 4-in-1 ---------------------

func (r *SpecificRegistry) registerST02L1() {
	r.register(0x0060, 0x0001, func(id Identity, product string) Mapper {
		return newST02L1Mapper(id, product, st02l1Door)
	})
	r.register(0x0060, 0x0002, func(id Identity, product string) Mapper {
		return newST02L1Mapper(id, product, st02l1PIR)
	})
	r.register(0x0060, 0x0003, func(id Identity, product string) Mapper {
		return newST02L1Mapper(id, product, st02l14in1)
	})
}

type st02l1Variant int

const (
	st02l1Door st02l1Variant = iota
	st02l1PIR
	st02l14in1
)

var st02l13in1Types = []beeeon.Module{
	{Type: beeeon.TypeBattery},
	{Type: beeeon.TypeTemperature, Attributes: []beeeon.Attribute{beeeon.AttrInner}},
	{Type: beeeon.TypeLuminance, Attributes: []beeeon.Attribute{beeeon.AttrInner}},
	{Type: beeeon.TypeSecurityAlert},
	{Type: beeeon.TypeOpenClose}, // overwritten to TypeMotion for the PIR variant
}

var st02l14in1Types = []beeeon.Module{
	{Type: beeeon.TypeBattery},
	{Type: beeeon.TypeTemperature, Attributes: []beeeon.Attribute{beeeon.AttrInner}},
	{Type: beeeon.TypeLuminance, Attributes: []beeeon.Attribute{beeeon.AttrInner}},
	{Type: beeeon.TypeSecurityAlert},
	{Type: beeeon.TypeOpenClose},
	{Type: beeeon.TypeMotion},
}

type st02l1Mapper struct {
	base
	variant st02l1Variant
	types   []beeeon.Module
}

func newST02L1Mapper(id Identity, product string, variant st02l1Variant) *st02l1Mapper {
	m := &st02l1Mapper{base: base{id: id, product: product}, variant: variant}
	switch variant {
	case st02l14in1:
		m.types = st02l14in1Types
	case st02l1PIR:
		types := append([]beeeon.Module(nil), st02l13in1Types...)
		types[4] = beeeon.Module{Type: beeeon.TypeMotion}
		m.types = types
	default:
		m.types = st02l13in1Types
	}
	return m
}

func (m *st02l1Mapper) Types() []beeeon.Module { return m.types }
func (m *st02l1Mapper) FindType(module beeeon.ModuleID) (beeeon.Module, bool) {
	return findTypeIn(m.types, module)
}

func (m *st02l1Mapper) Convert(v Value) (beeeon.SensorValue, error) {
	if m.variant == st02l14in1 {
		switch {
		case climaxDoorOpen(v):
			return beeeon.Value(4, 1), nil
		case climaxDoorClosed(v):
			return beeeon.Value(4, 0), nil
		case st02l1MotionDetected(v):
			return beeeon.Value(5, 1), nil
		case st02l1MotionNotDetected(v):
			return beeeon.Value(5, 0), nil
		}
	} else if m.variant == st02l1PIR {
		switch {
		case st02l1MotionDetected(v):
			return beeeon.Value(4, 1), nil
		case st02l1MotionNotDetected(v):
			return beeeon.Value(4, 0), nil
		}
	} else {
		switch {
		case climaxDoorOpen(v):
			return beeeon.Value(4, 1), nil
		case climaxDoorClosed(v):
			return beeeon.Value(4, 0), nil
		}
	}

	return m.convertCommon(v)
}

// convertCommon handles the battery/temperature/luminance/tamper values
// shared by every ST02L1 variant.
func (m *st02l1Mapper) convertCommon(v Value) (beeeon.SensorValue, error) {
	switch v.CommandClass.ID {
	case ccBattery:
		f, err := v.AsDouble()
		return module(0, f, err)
	case ccSensorMultilevel:
		switch v.CommandClass.Index {
		case 0x01:
			f, err := v.AsCelsius()
			return module(1, f, err)
		case 0x03:
			f, err := v.AsLuminance()
			return module(2, f, err)
		}
	case ccAlarm:
		n, err := v.AsInt(true)
		if err == nil {
			if v.CommandClass.Index == 6 && n == 254 {
				return beeeon.Value(3, 1), nil
			}
			if v.CommandClass.Index == 7 && n == 3 {
				return beeeon.Value(3, 1), nil
			}
		}
	case ccSensorBinary:
		if v.CommandClass.Index == 0 || v.CommandClass.Index == 8 {
			b, err := v.AsBool()
			return module(3, boolToFloat(b), err)
		}
	}
	return beeeon.SensorValue{}, unrecognizedValue(v)
}

func st02l1MotionDetected(v Value) bool {
	switch v.CommandClass.ID {
	case ccAlarm:
		if v.CommandClass.Index == 7 {
			n, err := v.AsInt(true)
			return err == nil && n == 8
		}
	case ccSensorBinary:
		if v.CommandClass.Index == 12 {
			b, err := v.AsBool()
			return err == nil && b
		}
	}
	return false
}

func st02l1MotionNotDetected(v Value) bool {
	if v.CommandClass.ID == ccSensorBinary && v.CommandClass.Index == 12 {
		b, err := v.AsBool()
		return err == nil && !b
	}
	return false
}

// --- shared helpers -----------------------------------------------------

// Command class ids referenced by the specific mappers above.
const (
	ccBasic            uint8 = 0x20
	ccSwitchBinary     uint8 = 0x25
	ccSensorBinary     uint8 = 0x30
	ccSensorMultilevel uint8 = 0x31
	ccAlarm            uint8 = 0x71
	ccBattery          uint8 = 0x80
)

func module(id beeeon.ModuleID, value float64, err error) (beeeon.SensorValue, error) {
	if err != nil {
		return beeeon.SensorValue{}, err
	}
	return beeeon.Value(id, value), nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func unrecognizedValue(v Value) error {
	return fmt.Errorf("%w: unrecognized value %s", beeeon.ErrNotFound, v)
}
