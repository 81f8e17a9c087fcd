package conrad

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

// VendorName is reported in every Conrad device description.
const VendorName = "Conrad"

// Kind tags the supported HomeMatic device families. Each kind fixes a
// product name, a module layout and a message parser.
type Kind int

const (
	KindUnknown Kind = iota
	KindWirelessShutterContact
	KindPowerMeterSwitch
	KindRadiatorThermostat
)

// KindForType maps the bridge's type element to a device kind.
func KindForType(typ string) Kind {
	switch typ {
	case "threeStateSensor":
		return KindWirelessShutterContact
	case "powerMeter":
		return KindPowerMeterSwitch
	case "thermostat":
		return KindRadiatorThermostat
	default:
		return KindUnknown
	}
}

func (k Kind) Product() string {
	switch k {
	case KindWirelessShutterContact:
		return "HM-Sec-SC-2"
	case KindPowerMeterSwitch:
		return "HM-Es-PMSw1-PI"
	case KindRadiatorThermostat:
		return "HM-CC-RT-DN"
	default:
		return "<unknown>"
	}
}

// Module layouts are fixed per kind; ids are stable wire contract.
var (
	shutterContactModules = []beeeon.Module{
		{Type: beeeon.TypeOpenClose},
		{Type: beeeon.TypeRSSI},
	}
	powerMeterModules = []beeeon.Module{
		{Type: beeeon.TypeFrequency},
		{Type: beeeon.TypeCurrent},
		{Type: beeeon.TypePower},
		{Type: beeeon.TypeVoltage},
		{Type: beeeon.TypeOnOff, Attributes: []beeeon.Attribute{beeeon.AttrControllable}},
		{Type: beeeon.TypeRSSI},
	}
	thermostatModules = []beeeon.Module{
		{Type: beeeon.TypeTemperature},
		{Type: beeeon.TypeTemperature},
		{Type: beeeon.TypeOpenRatio},
		{Type: beeeon.TypeRSSI},
	}
)

func (k Kind) Modules() []beeeon.Module {
	switch k {
	case KindWirelessShutterContact:
		return shutterContactModules
	case KindPowerMeterSwitch:
		return powerMeterModules
	case KindRadiatorThermostat:
		return thermostatModules
	default:
		return nil
	}
}

// Device is one known HomeMatic device. Readings arrive unsolicited from
// the bridge, so the refresh policy is always disabled.
type Device struct {
	ID   beeeon.DeviceID
	Kind Kind
}

func NewDevice(id beeeon.DeviceID, typ string) (*Device, error) {
	kind := KindForType(typ)
	if kind == KindUnknown {
		return nil, fmt.Errorf("%w: unsupported device type %q", beeeon.ErrIllegalState, typ)
	}
	return &Device{ID: id, Kind: kind}, nil
}

func (d *Device) Description() beeeon.DeviceDescription {
	return beeeon.DeviceDescription{
		DeviceID:    d.ID,
		Vendor:      VendorName,
		Product:     d.Kind.Product(),
		Modules:     d.Kind.Modules(),
		RefreshTime: beeeon.RefreshDisabled,
	}
}

// powerMeterSwitch module slots
const (
	pmsFrequency beeeon.ModuleID = iota
	pmsCurrent
	pmsPower
	pmsVoltage
	pmsOnOff
	pmsRSSI
)

// radiatorThermostat module slots
const (
	rtCurrentTemperature beeeon.ModuleID = iota
	rtDesiredTemperature
	rtValvePosition
	rtRSSI
)

// wirelessShutterContact module slots
const (
	wscOpenClose beeeon.ModuleID = iota
	wscRSSI
)

var climaRe = regexp.MustCompile(`T: ([+-]?[0-9]+(\.[0-9]+)?) desired: ([+-]?[0-9]+(\.[0-9]+)?) valve: ([0-9]+)`)

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func number(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// ParseMessage turns a bridge message event into a sensor sample, using
// the fixed per-kind module slots.
func (d *Device) ParseMessage(e Event) (beeeon.SensorData, error) {
	switch d.Kind {
	case KindWirelessShutterContact:
		return d.parseShutterContact(e)
	case KindPowerMeterSwitch:
		return d.parsePowerMeter(e)
	case KindRadiatorThermostat:
		return d.parseThermostat(e)
	default:
		return beeeon.SensorData{}, fmt.Errorf("%w: device %s has no parser", beeeon.ErrIllegalState, d.ID)
	}
}

func (d *Device) parseShutterContact(e Event) (beeeon.SensorData, error) {
	data := beeeon.SensorData{DeviceID: d.ID}

	main, _ := e.Channel("Main")
	if main == "open" {
		data.Values = append(data.Values, beeeon.Value(wscOpenClose, 1))
	} else {
		data.Values = append(data.Values, beeeon.Value(wscOpenClose, 0))
	}
	data.Values = append(data.Values, beeeon.Value(wscRSSI, e.RSSI))

	return data, nil
}

func (d *Device) parsePowerMeter(e Event) (beeeon.SensorData, error) {
	data := beeeon.SensorData{DeviceID: d.ID}

	if s, ok := e.Channel("SenF"); ok && isNumber(s) {
		data.Values = append(data.Values, beeeon.Value(pmsFrequency, number(s)))
	}
	if s, ok := e.Channel("SenI"); ok && isNumber(s) {
		data.Values = append(data.Values, beeeon.Value(pmsCurrent, number(s)))
	}
	if s, ok := e.Channel("SenPwr"); ok && isNumber(s) {
		data.Values = append(data.Values, beeeon.Value(pmsPower, number(s)))
	}
	if s, ok := e.Channel("SenU"); ok && isNumber(s) {
		data.Values = append(data.Values, beeeon.Value(pmsVoltage, number(s)))
	}

	if s, _ := e.Channel("Sw"); s == "on" {
		data.Values = append(data.Values, beeeon.Value(pmsOnOff, 1))
	} else {
		data.Values = append(data.Values, beeeon.Value(pmsOnOff, 0))
	}
	data.Values = append(data.Values, beeeon.Value(pmsRSSI, e.RSSI))

	return data, nil
}

func (d *Device) parseThermostat(e Event) (beeeon.SensorData, error) {
	clima, ok := e.Channel("Clima")
	if !ok {
		return beeeon.SensorData{}, fmt.Errorf("%w: thermostat message has no Clima channel", beeeon.ErrIllegalState)
	}

	m := climaRe.FindStringSubmatch(clima)
	if m == nil {
		return beeeon.SensorData{}, fmt.Errorf("%w: cannot parse thermostat state %q", beeeon.ErrIllegalState, clima)
	}

	valve, err := strconv.ParseUint(m[5], 10, 32)
	if err != nil {
		return beeeon.SensorData{}, fmt.Errorf("%w: malformed valve position %q", beeeon.ErrProtocol, m[5])
	}

	data := beeeon.SensorData{DeviceID: d.ID}
	data.Values = append(data.Values,
		beeeon.Value(rtCurrentTemperature, number(m[1])),
		beeeon.Value(rtDesiredTemperature, number(m[3])),
		beeeon.Value(rtValvePosition, float64(valve)),
		beeeon.Value(rtRSSI, e.RSSI),
	)
	return data, nil
}

// ModifyStateRequest builds the FHEM telnet command that writes value to
// module. Only the power meter's switch module is controllable.
func (d *Device) ModifyStateRequest(module beeeon.ModuleID, value float64) (string, error) {
	if d.Kind != KindPowerMeterSwitch || module != pmsOnOff {
		return "", fmt.Errorf("%w: module %d of %s is not controllable",
			beeeon.ErrInvalidArgument, module, d.ID)
	}

	state := "off"
	if value >= 1 {
		state = "on"
	}
	return fmt.Sprintf("set %s_Sw %s", FHEMDeviceID(d.ID), state), nil
}
