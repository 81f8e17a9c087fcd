package jablotron

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

const (
	batteryHigh = 100.0
	batteryLow  = 5.0
)

// Report is an unsolicited sensor message: `[AAAAAAAA] TYPE DATA`. A zero
// Address marks the sentinel invalid report returned when PollReport times
// out.
type Report struct {
	Address uint32
	Type    string
	Data    string
}

// Invalid reports whether r is the timeout sentinel.
func (r Report) Invalid() bool {
	return r.Address == 0
}

// tokens splits Data on whitespace for has/get/temperature; it splits
// afresh on every call.
func (r Report) tokens() []string {
	return strings.Fields(r.Data)
}

// Has searches the whitespace-separated tokens of Data for a bare keyword
// ("TAMPER") or, when withValue is true, a "keyword:value" token ("LB:0").
func (r Report) Has(keyword string, withValue bool) bool {
	for _, tok := range r.tokens() {
		if !withValue {
			if tok == keyword {
				return true
			}
			continue
		}
		if name, _, ok := strings.Cut(tok, ":"); ok && name == keyword {
			return true
		}
	}
	return false
}

// Get requires keyword:<integer> and returns the integer; a missing or
// non-integer value is ErrNotFound.
func (r Report) Get(keyword string) (int, error) {
	for _, tok := range r.tokens() {
		name, val, ok := strings.Cut(tok, ":")
		if !ok || name != keyword {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%w: %s is not an integer in %q", beeeon.ErrNotFound, keyword, r.Data)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: no %s value in %q", beeeon.ErrNotFound, keyword, r.Data)
}

// Temperature requires keyword:NN.N°C (UTF-8 degree sign) and returns the
// decoded Celsius value; a missing or malformed value is ErrNotFound.
func (r Report) Temperature(keyword string) (float64, error) {
	for _, tok := range r.tokens() {
		name, val, ok := strings.Cut(tok, ":")
		if !ok || name != keyword {
			continue
		}
		trimmed := strings.TrimSuffix(val, "°C")
		if trimmed == val {
			return 0, fmt.Errorf("%w: %s lacks the °C suffix in %q", beeeon.ErrNotFound, keyword, r.Data)
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s is not a temperature in %q", beeeon.ErrNotFound, keyword, r.Data)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: no %s value in %q", beeeon.ErrNotFound, keyword, r.Data)
}

// Battery returns 100% or 5% depending on the LB (low-battery) flag: LB:0
// means battery is fine (100%), LB:1 means low (5%). Absent defaults to ok.
func (r Report) Battery() float64 {
	if n, err := r.Get("LB"); err == nil && n == 1 {
		return batteryLow
	}
	return batteryHigh
}

// Event is the gateway-internal wrapper pairing a freshly-resolved module
// list with the device id the report belongs to.
type Event struct {
	DeviceID beeeon.DeviceID
	Values   []beeeon.SensorValue
}
