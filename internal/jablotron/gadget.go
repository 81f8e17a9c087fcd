package jablotron

import (
	"fmt"
	"time"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

// Kind names a gadget family (AC-88, JA-80L, ... TP-82N).
type Kind int

const (
	KindNone Kind = iota
	KindAC88
	KindJA80L
	KindJA81M
	KindJA82SH
	KindJA83M
	KindJA83P
	KindJA85ST
	KindRC86K
	KindTP82N
)

func (k Kind) Name() string {
	switch k {
	case KindAC88:
		return "AC-88 (sensor)"
	case KindJA80L:
		return "JA-80L"
	case KindJA81M:
		return "JA-81M"
	case KindJA82SH:
		return "JA-82SH"
	case KindJA83M:
		return "JA-83M"
	case KindJA83P:
		return "JA-83P"
	case KindJA85ST:
		return "JA-85ST"
	case KindRC86K:
		return "RC-86K (dual)"
	case KindTP82N:
		return "TP-82N"
	default:
		return "<unknown>"
	}
}

// RC-86K occupies two adjacent address ranges (primary/secondary) separated
// by a fixed offset; a remote controller reports on the primary slot but
// the protocol leaves room for a secondary logical address too.
const (
	rc86kFirst = 0x800000
	rc86kLast  = 0x87ffff
	rc86kDiff  = 0x100000

	rc86kSecondaryFirst = rc86kFirst + rc86kDiff
	rc86kSecondaryLast  = rc86kLast + rc86kDiff
)

// Info is a static gadget table entry: an address range, the gadget kind it
// resolves to, its refresh policy and its ordered module list.
type Info struct {
	FirstAddress uint32
	LastAddress  uint32
	Kind         Kind
	RefreshTime  beeeon.RefreshTime
	Modules      []beeeon.Module
}

// Valid reports whether this entry denotes a real gadget (vs. the sentinel
// returned by Resolve on a miss).
func (i Info) Valid() bool {
	return i.FirstAddress < i.LastAddress
}

// Gadgets is the static, address-indexed device table. Entries are only
// ever appended over time; existing ranges and module layouts must not
// shift once devices carrying them are in the field.
var Gadgets = []Info{
	{0xcf0000, 0xcfffff, KindAC88, beeeon.RefreshDisabled, []beeeon.Module{
		{Type: beeeon.TypeOnOff},
	}},
	{0x580000, 0x59ffff, KindJA80L, beeeon.RefreshDisabled, []beeeon.Module{
		{Type: beeeon.TypeOnOff},
		{Type: beeeon.TypeSecurityAlert},
		{Type: beeeon.TypeSecurityAlert},
	}},
	{0x180000, 0x1bffff, KindJA81M, beeeon.RefreshEvery(9 * time.Minute), []beeeon.Module{
		{Type: beeeon.TypeOpenClose},
		{Type: beeeon.TypeSecurityAlert},
		{Type: beeeon.TypeBattery},
	}},
	{0x7f0000, 0x7fffff, KindJA82SH, beeeon.RefreshEvery(9 * time.Minute), []beeeon.Module{
		{Type: beeeon.TypeShake},
		{Type: beeeon.TypeSecurityAlert},
		{Type: beeeon.TypeBattery},
	}},
	{0x1c0000, 0x1dffff, KindJA83M, beeeon.RefreshEvery(9 * time.Minute), []beeeon.Module{
		{Type: beeeon.TypeOpenClose},
		{Type: beeeon.TypeSecurityAlert},
		{Type: beeeon.TypeBattery},
	}},
	{0x640000, 0x65ffff, KindJA83P, beeeon.RefreshEvery(9 * time.Minute), []beeeon.Module{
		{Type: beeeon.TypeMotion},
		{Type: beeeon.TypeSecurityAlert},
		{Type: beeeon.TypeBattery},
	}},
	{0x760000, 0x76ffff, KindJA85ST, beeeon.RefreshEvery(9 * time.Minute), []beeeon.Module{
		{Type: beeeon.TypeFire},
		{Type: beeeon.TypeSecurityAlert},
		{Type: beeeon.TypeBattery},
	}},
	{rc86kFirst, rc86kLast, KindRC86K, beeeon.RefreshDisabled, []beeeon.Module{
		{Type: beeeon.TypeOpenClose},
		{Type: beeeon.TypeOpenClose},
		{Type: beeeon.TypeSecurityAlert},
		{Type: beeeon.TypeBattery},
	}},
	{0x240000, 0x25ffff, KindTP82N, beeeon.RefreshDisabled, []beeeon.Module{
		{Type: beeeon.TypeTemperature, Attributes: []beeeon.Attribute{
			beeeon.AttrInner, beeeon.AttrManualOnly, beeeon.AttrControllable,
		}},
		{Type: beeeon.TypeTemperature, Attributes: []beeeon.Attribute{
			beeeon.AttrInner,
		}},
		{Type: beeeon.TypeBattery},
	}},
}

// Resolve picks the table entry whose [first,last] range contains address,
// first normalizing a secondary RC-86K address down to its primary.
func Resolve(address uint32) Info {
	primary := PrimaryAddress(address)

	for _, g := range Gadgets {
		if primary < g.FirstAddress || g.LastAddress < primary {
			continue
		}
		return g
	}

	return Info{Kind: KindNone}
}

// PrimaryAddress normalizes a possibly-secondary RC-86K address to its
// primary form; any other address is returned unchanged.
func PrimaryAddress(address uint32) uint32 {
	if rc86kSecondaryFirst <= address && address <= rc86kSecondaryLast {
		return address - rc86kDiff
	}
	return address
}

// SecondaryAddress computes the RC-86K secondary address paired with a
// primary one; any other address is returned unchanged.
func SecondaryAddress(address uint32) uint32 {
	if rc86kFirst <= address && address <= rc86kLast {
		return address + rc86kDiff
	}
	return address
}

// Parse decodes a report into an ordered list of sensor values at the fixed
// module slots documented for this gadget kind. A report missing a value
// its kind requires fails with ErrNotFound; the caller drops the sample.
func (i Info) Parse(r Report) ([]beeeon.SensorValue, error) {
	var values []beeeon.SensorValue

	switch i.Kind {
	case KindAC88:
		relay, err := r.Get("RELAY")
		if err != nil {
			return nil, err
		}
		values = append(values, beeeon.Value(0, float64(relay)))

	case KindJA80L:
		// BUTTON/TAMPER are checked independently, so both can fire in one
		// payload if the wire protocol ever sends that.
		if r.Has("BUTTON", false) {
			values = append(values, beeeon.Value(0, 1))
		}
		if r.Has("TAMPER", false) {
			values = append(values, beeeon.Value(1, 1))
		}
		blackout, err := r.Get("BLACKOUT")
		if err != nil {
			return nil, err
		}
		values = append(values, beeeon.Value(2, float64(blackout)))

	case KindJA81M, KindJA83M:
		if r.Has("SENSOR", false) {
			act, err := r.Get("ACT")
			if err != nil {
				return nil, err
			}
			values = append(values, beeeon.Value(0, float64(act)))
		}
		if r.Has("TAMPER", false) {
			act, err := r.Get("ACT")
			if err != nil {
				return nil, err
			}
			values = append(values, beeeon.Value(1, float64(act)))
		}
		values = append(values, beeeon.Value(2, r.Battery()))

	case KindJA82SH, KindJA83P, KindJA85ST:
		if r.Has("SENSOR", false) {
			values = append(values, beeeon.Value(0, 1))
		}
		if r.Has("TAMPER", false) {
			act, err := r.Get("ACT")
			if err != nil {
				return nil, err
			}
			values = append(values, beeeon.Value(1, float64(act)))
		}
		values = append(values, beeeon.Value(2, r.Battery()))

	case KindRC86K:
		if !r.Has("PANIC", false) {
			module := beeeon.ModuleID(1)
			if r.Address == PrimaryAddress(r.Address) {
				module = 0
			}
			arm, err := r.Get("ARM")
			if err != nil {
				return nil, err
			}
			values = append(values, beeeon.Value(module, float64(arm)))
		} else {
			values = append(values, beeeon.Value(2, 1))
		}
		values = append(values, beeeon.Value(3, r.Battery()))

	case KindTP82N:
		if r.Has("INT", true) {
			temperature, err := r.Temperature("INT")
			if err != nil {
				return nil, err
			}
			values = append(values, beeeon.Value(0, temperature))
		}
		if r.Has("SET", true) {
			temperature, err := r.Temperature("SET")
			if err != nil {
				return nil, err
			}
			values = append(values, beeeon.Value(1, temperature))
		}
		values = append(values, beeeon.Value(2, r.Battery()))

	case KindNone:
		return nil, fmt.Errorf("jablotron: cannot parse report for unresolved gadget")
	}

	return values, nil
}
