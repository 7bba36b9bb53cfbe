// Package transport defines the byte-stream source a Session reads COBS
// frames from. The two implementations are the real serial port
// (transport/serial.go) and an in-memory canned stream for tests
// (transport/memory.go).
package transport

import "time"

// Transport is a readable, closable byte source with a configurable read
// deadline. It is the decode pipeline's abstraction over a physical or
// simulated serial link.
type Transport interface {
	// Read behaves like io.Reader: it blocks up to the configured read
	// timeout and returns the number of bytes read.
	Read(buf []byte) (int, error)

	// SetReadTimeout adjusts the blocking read deadline. A negative
	// duration disables the timeout (block indefinitely).
	SetReadTimeout(timeout time.Duration)

	// Close releases the underlying resource. Read calls in progress
	// return an error after Close.
	Close() error
}
