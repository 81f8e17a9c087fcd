// Package beeeon holds the technology-independent device model shared by
// every protocol core: device identity, module typing and the normalized
// sensor sample shape shipped to the distributor.
package beeeon

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Prefix identifies which technology owns a DeviceID.
type Prefix byte

const (
	PrefixJablotron Prefix = 0x01
	PrefixZWave     Prefix = 0x02
	PrefixConrad    Prefix = 0x03
	PrefixVPT       Prefix = 0x04
	PrefixPhilips   Prefix = 0x05
	PrefixIQRF      Prefix = 0x06
)

func (p Prefix) String() string {
	switch p {
	case PrefixJablotron:
		return "jablotron"
	case PrefixZWave:
		return "zwave"
	case PrefixConrad:
		return "conrad"
	case PrefixVPT:
		return "vpt"
	case PrefixPhilips:
		return "philips"
	case PrefixIQRF:
		return "iqrf"
	default:
		return "unknown"
	}
}

// DeviceID is a 64-bit opaque identity: the top byte names a technology,
// the remaining 56 bits are technology-local.
type DeviceID uint64

// NewDeviceID packs a prefix and a 56-bit local identity into a DeviceID.
// The local identity is masked to 56 bits; callers that need mangled
// (generic-mapper) ids apply that before calling this.
func NewDeviceID(prefix Prefix, local uint64) DeviceID {
	return DeviceID(uint64(prefix)<<56 | (local & 0x00FFFFFFFFFFFFFF))
}

// Prefix returns the technology that owns this id.
func (id DeviceID) Prefix() Prefix {
	return Prefix(id >> 56)
}

// Local returns the 56-bit technology-local identity.
func (id DeviceID) Local() uint64 {
	return uint64(id) & 0x00FFFFFFFFFFFFFF
}

func (id DeviceID) String() string {
	return fmt.Sprintf("%s:%014x", id.Prefix(), id.Local())
}

// ParseDeviceID is the inverse of String: "<technology>:<14 hex digits>".
func ParseDeviceID(s string) (DeviceID, error) {
	name, local, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("%w: malformed device id %q", ErrInvalidArgument, s)
	}

	var prefix Prefix
	switch name {
	case "jablotron":
		prefix = PrefixJablotron
	case "zwave":
		prefix = PrefixZWave
	case "conrad":
		prefix = PrefixConrad
	case "vpt":
		prefix = PrefixVPT
	case "philips":
		prefix = PrefixPhilips
	case "iqrf":
		prefix = PrefixIQRF
	default:
		return 0, fmt.Errorf("%w: unknown technology %q in device id", ErrInvalidArgument, name)
	}

	n, err := strconv.ParseUint(local, 16, 64)
	if err != nil || n > 0x00FFFFFFFFFFFFFF {
		return 0, fmt.Errorf("%w: malformed local identity %q in device id", ErrInvalidArgument, local)
	}
	return NewDeviceID(prefix, n), nil
}

// ModuleID names a sensor/actuator channel on a device.
type ModuleID uint16

// ModuleType is a closed enumeration of sensor/actuator kinds.
type ModuleType int

const (
	TypeUnknown ModuleType = iota
	TypeTemperature
	TypeHumidity
	TypeBattery
	TypeRSSI
	TypeOnOff
	TypeOpenClose
	TypeMotion
	TypeShake
	TypeFire
	TypeSecurityAlert
	TypeLuminance
	TypePower
	TypeVoltage
	TypeCurrent
	TypeFrequency
	TypeCO2
	TypePM25
	TypeNoise
	TypeUltraviolet
	TypeOpenRatio
	TypeHeat
	TypeSmoke
)

func (t ModuleType) String() string {
	switch t {
	case TypeTemperature:
		return "temperature"
	case TypeHumidity:
		return "humidity"
	case TypeBattery:
		return "battery"
	case TypeRSSI:
		return "rssi"
	case TypeOnOff:
		return "on_off"
	case TypeOpenClose:
		return "open_close"
	case TypeMotion:
		return "motion"
	case TypeShake:
		return "shake"
	case TypeFire:
		return "fire"
	case TypeSecurityAlert:
		return "security_alert"
	case TypeLuminance:
		return "luminance"
	case TypePower:
		return "power"
	case TypeVoltage:
		return "voltage"
	case TypeCurrent:
		return "current"
	case TypeFrequency:
		return "frequency"
	case TypeCO2:
		return "co2"
	case TypePM25:
		return "pm25"
	case TypeNoise:
		return "noise"
	case TypeUltraviolet:
		return "ultraviolet"
	case TypeOpenRatio:
		return "open_ratio"
	case TypeHeat:
		return "heat"
	case TypeSmoke:
		return "smoke"
	default:
		return "unknown"
	}
}

// Attribute is an open set of tags qualifying a ModuleType in a device's
// module list (e.g. a TP-82N exposes two temperature modules distinguished
// by AttrInner/AttrManualOnly/AttrControllable).
type Attribute string

const (
	AttrInner        Attribute = "inner"
	AttrOuter        Attribute = "outer"
	AttrControllable Attribute = "controllable"
	AttrManualOnly   Attribute = "manual_only"
)

// Module describes one entry in a device's ordered module list.
type Module struct {
	Type       ModuleType
	Attributes []Attribute
}

// RefreshTime controls how often a device is polled for a fresh reading.
type RefreshTime struct {
	// None means the device is event-driven and never actively polled.
	None bool
	// Disabled means the device is never refreshed at all, including the
	// first reading (valid for devices whose values only ever arrive
	// unsolicited).
	Disabled bool
	Period   time.Duration
}

var (
	RefreshNone     = RefreshTime{None: true}
	RefreshDisabled = RefreshTime{Disabled: true}
)

func RefreshEvery(d time.Duration) RefreshTime {
	return RefreshTime{Period: d}
}

// SensorValue is one (module, value) pair in a SensorData sample. Present
// is false when a module has no value to report this round (e.g. a
// not-yet-resolved conversion), in which case Value is meaningless.
type SensorValue struct {
	Module  ModuleID
	Value   float64
	Present bool
}

func Value(module ModuleID, value float64) SensorValue {
	return SensorValue{Module: module, Value: value, Present: true}
}

// SensorData is a normalized sample shipped to the distributor.
type SensorData struct {
	DeviceID  DeviceID
	Timestamp time.Time
	Values    []SensorValue
}

// HasValues reports whether the sample carries at least one value. A
// sample is shipped only if it carries at least one value and its device
// is paired; this is the first half of that check.
func (s SensorData) HasValues() bool {
	return len(s.Values) > 0
}

// DeviceDescription is dispatched to the server the first time a device is
// seen.
type DeviceDescription struct {
	DeviceID    DeviceID
	Vendor      string
	Product     string
	Modules     []Module
	RefreshTime RefreshTime
}
