package ulogger

import (
	"encoding/binary"
	"os"

	"github.com/adarwoo/ulogger/internal/cobs"
	"github.com/adarwoo/ulogger/internal/constants"
	"github.com/adarwoo/ulogger/internal/symtab"
	"github.com/adarwoo/ulogger/transport"
)

// SyntheticLogSite re-exports symtab.SyntheticLogSite for callers building
// a test artifact without importing internal packages directly.
type SyntheticLogSite = symtab.SyntheticLogSite

// NewSyntheticArtifact writes a minimal valid ELF file at path carrying a
// .logs section built from sites, suitable for pointing Config.ArtifactPath
// at in a test without a real firmware build. stride is the fixed record
// size (must be at least as large as the widest site's encoded record).
func NewSyntheticArtifact(path string, sites []SyntheticLogSite, stride int) error {
	return os.WriteFile(path, symtab.BuildSyntheticELF(sites, stride), 0o644)
}

// EncodeFrame builds one on-wire frame for log id logID: a 16-bit header
// in byte order order (continuation bit set per continuation) followed by
// payload, COBS-encoded with the trailing sentinel. Feed the result to a
// MemoryTransport to drive a Session without a real serial port.
func EncodeFrame(logID uint16, continuation bool, payload []byte, order binary.ByteOrder) []byte {
	header := logID & constants.LogIDMask16
	if continuation {
		header |= constants.ContinuationBit16
	}
	raw := make([]byte, 2, 2+len(payload))
	order.PutUint16(raw, header)
	raw = append(raw, payload...)
	return cobs.Encode(raw)
}

// MemoryTransport re-exports transport.MemoryTransport so callers don't
// need a second import for the common test-only transport.
type MemoryTransport = transport.MemoryTransport

// NewMemoryTransport re-exports transport.NewMemory.
func NewMemoryTransport(data []byte) *MemoryTransport {
	return transport.NewMemory(data)
}
