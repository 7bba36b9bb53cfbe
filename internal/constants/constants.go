// Package constants holds protocol and policy constants shared across the
// decode pipeline.
package constants

import "time"

// Sentinel is the COBS frame delimiter byte emitted by the firmware.
const Sentinel byte = 0xA6

// Reserved log ids (16-bit variant). The high bit of the 16-bit frame
// header is the continuation flag; the remaining 15 bits are the log id,
// so these reserved values are themselves masked to 15 bits when compared.
const (
	ReservedOverrunID16 = 0x7FFF
	ReservedStartID16   = 0x7FFE
)

// Reserved log ids (8-bit variant), kept for artifacts built with a
// narrower log id width.
const (
	ReservedOverrunID8 = 0xFF
	ReservedStartID8   = 0xFE
)

// ContinuationBit16 marks a frame as a continuation of a previous log
// entry rather than the start of a new one.
const ContinuationBit16 = 0x8000

// LogIDMask16 isolates the id bits once the continuation bit is stripped.
const LogIDMask16 = 0x7FFF

// Default policy values. These are tunable knobs, not protocol constants;
// callers may override them via Config.
const (
	// DefaultPollInterval is how often the artifact watcher checks the
	// symbol file for changes.
	DefaultPollInterval = 1 * time.Second

	// DefaultReadTimeout bounds a single blocking serial read.
	DefaultReadTimeout = 1 * time.Second

	// DefaultReopenBackoff is the delay between serial port reopen
	// attempts after the port becomes unavailable.
	DefaultReopenBackoff = 2 * time.Second

	// DefaultMaxReopenAttempts bounds how many consecutive reopen
	// attempts are made before the caller is notified the port is gone.
	DefaultMaxReopenAttempts = 5

	// DefaultRingBufferCapacity is the number of LogEntry elements the
	// ring buffer retains.
	DefaultRingBufferCapacity = 100000

	// DefaultDispatchChannelCapacity is the dispatch channel's buffer
	// depth before the overflow policy engages.
	DefaultDispatchChannelCapacity = 5000

	// DefaultDisplayLevelThreshold is the minimum severity (0=most severe)
	// a line-mode consumer renders by default.
	DefaultDisplayLevelThreshold = 4

	// DefaultUIRedrawHz caps how often the UI boundary should redraw.
	DefaultUIRedrawHz = 20

	// MaxFrameSize is the size of the COBS reader's read buffer. Frame
	// length itself is not capped.
	MaxFrameSize = 11520
)

// TypeVectorSlots is the number of 4-bit type-code nibbles packed into a
// 32-bit type vector word.
const TypeVectorSlots = 8
