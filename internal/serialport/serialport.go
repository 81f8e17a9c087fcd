// Package serialport is a scoped serial-port wrapper: open/close/read/
// write with a configurable timeout, guaranteed close on every exit
// path.
package serialport

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Mode configures the line discipline. Zero-value DataBits/Parity/StopBits
// fall back to 8N1.
type Mode struct {
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
}

func (m Mode) withDefaults() Mode {
	if m.DataBits == 0 {
		m.DataBits = 8
	}
	if m.StopBits == 0 {
		m.StopBits = serial.OneStopBit
	}
	return m
}

// Port is a scoped serial port: Open guarantees a matching Close path is
// always safe to call, and reads honor a per-call timeout.
type Port struct {
	port serial.Port
	mu   sync.Mutex
}

// Open opens portPath with the given mode. The caller owns the returned
// Port and must Close it; on any setup failure after the underlying device
// opened, Open closes it itself before returning the error.
func Open(portPath string, mode Mode) (*Port, error) {
	mode = mode.withDefaults()

	p, err := serial.Open(portPath, &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
		Parity:   mode.Parity,
		StopBits: mode.StopBits,
	})
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", portPath, err)
	}

	return &Port{port: p}, nil
}

// SetReadTimeout configures how long Read blocks for data before returning
// io.EOF-like zero bytes. A negative duration blocks indefinitely.
func (p *Port) SetReadTimeout(timeout time.Duration) error {
	if timeout < 0 {
		return p.port.SetReadTimeout(serial.NoTimeout)
	}
	return p.port.SetReadTimeout(timeout)
}

// Write writes data to the port. Writes are best-effort partial-accepted;
// callers retry on short writes themselves.
func (p *Port) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.Write(data)
}

// Read reads available bytes into buf, honoring whatever timeout was last
// set with SetReadTimeout. Returning (0, nil) on timeout (go.bug.st/serial's
// convention) is the caller's cue to treat this as a transient Timeout, not
// an error.
func (p *Port) Read(buf []byte) (int, error) {
	return p.port.Read(buf)
}

// Flush discards any buffered input and output.
func (p *Port) Flush() error {
	return p.port.ResetInputBuffer()
}

// Close closes the port. Safe to call more than once.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}
