package beeeon

import "errors"

// Error taxonomy shared by every protocol core. Callers match these
// sentinels with errors.Is; HTTP handlers map them onto status codes.
var (
	// ErrInvalidArgument marks user/config-level misuse: bad timeout, bad
	// address, bad module id, bad credential type. Never retried.
	ErrInvalidArgument = errors.New("beeeon: invalid argument")

	// ErrTimeout marks an I/O or queue wait that exceeded its deadline.
	ErrTimeout = errors.New("beeeon: timeout")

	// ErrIO marks a serial/telnet/TCP/ZMQ transport failure.
	ErrIO = errors.New("beeeon: i/o error")

	// ErrProtocol marks a response of the wrong shape, a bad checksum, a
	// mismatched echoed slot, or an explicit ERROR sentinel.
	ErrProtocol = errors.New("beeeon: protocol error")

	// ErrNotFound marks a requested keyword/value absent from a payload, or
	// a requested device absent from a manager's map.
	ErrNotFound = errors.New("beeeon: not found")

	// ErrIllegalState marks an impossible transition, such as a response
	// appearing in a queue when none was expected.
	ErrIllegalState = errors.New("beeeon: illegal state")

	// ErrCancelled marks a stop requested during a blocking wait.
	ErrCancelled = errors.New("beeeon: cancelled")

	// ErrNotConnected marks an operation attempted on a disconnected
	// transport (port closed, network not ready).
	ErrNotConnected = errors.New("beeeon: not connected")

	// ErrUnsupported marks an operation a given technology/mapper does not
	// implement (e.g. posting a value back to a read-only module).
	ErrUnsupported = errors.New("beeeon: unsupported")
)
