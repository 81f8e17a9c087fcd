// Package zwave implements the Z-Wave node model, the polling network
// adapter, the mapper registry and the device manager. The underlying
// Z-Wave library is treated as opaque; this package only defines the
// Network interface a real OpenZWave binding would implement, plus the
// FIFO such a binding embeds to queue its callbacks.
package zwave

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Identity is a Z-Wave node's network-wide address: its home id and its
// locally-unique node id.
type Identity struct {
	Home uint32
	Node uint8
}

func (id Identity) String() string {
	return fmt.Sprintf("%08x:%d", id.Home, id.Node)
}

func (id Identity) Less(other Identity) bool {
	if id.Home != other.Home {
		return id.Home < other.Home
	}
	return id.Node < other.Node
}

// CommandClass names one application-layer message family a node exposes,
// at a particular value index/instance (a node can expose the same command
// class more than once, e.g. multiple Sensor Multilevel instances).
type CommandClass struct {
	ID       uint8
	Index    uint8
	Instance uint8
	Name     string
}

func (cc CommandClass) String() string {
	s := fmt.Sprintf("%d:%d", cc.ID, cc.Index)
	if cc.Instance != 0 {
		s += fmt.Sprintf("[%d]", cc.Instance)
	}
	if cc.Name != "" {
		s += fmt.Sprintf(" (%s)", cc.Name)
	}
	return s
}

func (cc CommandClass) Less(other CommandClass) bool {
	if cc.ID != other.ID {
		return cc.ID < other.ID
	}
	if cc.Index != other.Index {
		return cc.Index < other.Index
	}
	return cc.Instance < other.Instance
}

// Support flags, used by Node.ToInfoString.
const (
	SupportListening uint32 = 1 << iota
	SupportBeaming
	SupportRouting
	SupportSecurity
	SupportZWavePlus
)

// Node is a Z-Wave device as seen by the network adapter. It begins
// not-queried with only its Identity known; subsequent events from the
// library fill in vendor/product identity and the command-class set, and
// flip Queried once the library signals it has finished interrogating the
// node.
type Node struct {
	ID         Identity
	Controller bool
	Queried    bool

	Support uint32

	ProductID   uint16
	ProductType uint16
	Product     string

	VendorID uint16
	Vendor   string

	commandClasses map[CommandClass]struct{}
}

func NewNode(id Identity, controller bool) *Node {
	return &Node{ID: id, Controller: controller, commandClasses: make(map[CommandClass]struct{})}
}

// Add records a command class the node exposes.
func (n *Node) Add(cc CommandClass) {
	n.commandClasses[cc] = struct{}{}
}

// CommandClasses returns the set of command classes currently known.
func (n *Node) CommandClasses() []CommandClass {
	out := make([]CommandClass, 0, len(n.commandClasses))
	for cc := range n.commandClasses {
		out = append(out, cc)
	}
	return out
}

// Has reports whether the node has recorded any instance of command class
// id, regardless of index/instance.
func (n *Node) Has(id uint8) bool {
	for cc := range n.commandClasses {
		if cc.ID == id {
			return true
		}
	}
	return false
}

func (n *Node) String() string {
	return n.ID.String()
}

// ToInfoString renders a human-readable vendor/product summary with a
// bracketed [L/B/R/S/+/C] support-flag suffix.
func (n *Node) ToInfoString() string {
	product := n.Product
	if product == "" {
		product = "none"
	}
	vendor := n.Vendor
	if vendor == "" {
		vendor = "none"
	}

	repr := fmt.Sprintf("%s (%04x/%04x) %s", product, n.ProductID, n.ProductType, vendor)
	if n.VendorID != 0 {
		repr += fmt.Sprintf(" (%04x)", n.VendorID)
	}

	repr += " ["
	if n.Support&SupportListening != 0 {
		repr += "L"
	}
	if n.Support&SupportBeaming != 0 {
		repr += "B"
	}
	if n.Support&SupportRouting != 0 {
		repr += "R"
	}
	if n.Support&SupportSecurity != 0 {
		repr += "S"
	}
	if n.Support&SupportZWavePlus != 0 {
		repr += "+"
	}
	if n.Controller {
		repr += "C"
	}
	repr += "]"
	return repr
}

// Value is a single command-class reading: a stringly-typed value plus unit,
// exactly as the underlying library delivers it, with typed accessors that
// perform the documented unit conversions.
type Value struct {
	Node         Identity
	CommandClass CommandClass
	RawValue     string
	Unit         string
}

func (v Value) String() string {
	return fmt.Sprintf("%08x:%d %s %s [%s]", v.Node.Home, v.Node.Node, v.CommandClass, v.RawValue, v.Unit)
}

func (v Value) AsBool() (bool, error) {
	b, err := strconv.ParseBool(v.RawValue)
	if err != nil {
		return false, fmt.Errorf("zwave: not a bool: %q", v.RawValue)
	}
	return b, nil
}

func (v Value) AsHex32() (uint32, error) {
	n, err := strconv.ParseUint(v.RawValue, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("zwave: not hex: %q", v.RawValue)
	}
	return uint32(n), nil
}

func (v Value) AsDouble() (float64, error) {
	f, err := strconv.ParseFloat(v.RawValue, 64)
	if err != nil {
		return 0, fmt.Errorf("zwave: not a number: %q", v.RawValue)
	}
	return f, nil
}

// AsInt parses an integer value; if floor is true and the raw value is not
// a plain integer, it falls back to flooring the float parse instead of
// failing.
func (v Value) AsInt(floor bool) (int, error) {
	if n, err := strconv.Atoi(v.RawValue); err == nil {
		return n, nil
	}
	if !floor {
		return 0, fmt.Errorf("zwave: not an int: %q", v.RawValue)
	}
	f, err := strconv.ParseFloat(v.RawValue, 64)
	if err != nil {
		return 0, fmt.Errorf("zwave: not a number: %q", v.RawValue)
	}
	return int(math.Floor(f)), nil
}

func (v Value) AsCelsius() (float64, error) {
	f, err := strconv.ParseFloat(v.RawValue, 64)
	if err != nil {
		return 0, fmt.Errorf("zwave: not a number: %q", v.RawValue)
	}
	switch v.Unit {
	case "F":
		return (5.0 * (f - 32.0)) / 9.0, nil
	case "C":
		return f, nil
	default:
		return 0, fmt.Errorf("zwave: unrecognized temperature unit: %s", v.Unit)
	}
}

// AsLuminance converts percent to lux (100% treated as 1000 lux, linear
// below that) or passes lux through unchanged.
func (v Value) AsLuminance() (float64, error) {
	f, err := strconv.ParseFloat(v.RawValue, 64)
	if err != nil {
		return 0, fmt.Errorf("zwave: not a number: %q", v.RawValue)
	}
	switch v.Unit {
	case "%":
		if f >= 100.0 {
			return 1000.0, nil
		}
		return 10.0 * f, nil
	case "lux":
		return f, nil
	default:
		return 0, fmt.Errorf("zwave: unrecognized luminance unit: %s", v.Unit)
	}
}

func (v Value) AsPM25() (float64, error) {
	if !strings.EqualFold(v.Unit, "ug/m3") {
		return 0, fmt.Errorf("zwave: unrecognized PM2.5 unit: %s", v.Unit)
	}
	return v.AsDouble()
}

func (v Value) AsTime() (time.Duration, error) {
	n, err := strconv.ParseUint(v.RawValue, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("zwave: not an int: %q", v.RawValue)
	}
	if !strings.EqualFold(v.Unit, "seconds") {
		return 0, fmt.Errorf("zwave: unrecognized time unit: %s", v.Unit)
	}
	return time.Duration(n) * time.Second, nil
}

