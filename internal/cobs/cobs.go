// Package cobs implements Consistent Overhead Byte Stuffing encoding and
// decoding for frames delimited by the firmware's sentinel byte.
package cobs

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/adarwoo/ulogger/internal/constants"
)

// ErrMalformedFrame is returned when a frame's COBS structure is invalid
// (a group code points past the end of the frame, or the frame does not
// end with the sentinel).
var ErrMalformedFrame = errors.New("cobs: malformed frame")

// ErrShortFrame is returned for a frame too short to contain valid COBS
// structure (empty, or just the sentinel).
var ErrShortFrame = errors.New("cobs: short frame")

// Decode reverses COBS encoding on a single sentinel-delimited frame.
// frame must include the trailing sentinel byte; the decoded payload
// (with sentinel bytes reinserted where elided) is returned without any
// sentinel.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < 2 {
		return nil, ErrShortFrame
	}
	if frame[len(frame)-1] != constants.Sentinel {
		return nil, fmt.Errorf("%w: missing trailing sentinel", ErrMalformedFrame)
	}
	encoded := frame[:len(frame)-1]

	out := make([]byte, 0, len(encoded))
	i := 0
	for i < len(encoded) {
		code := int(encoded[i])
		if code == 0 {
			return nil, fmt.Errorf("%w: zero code byte at offset %d", ErrMalformedFrame, i)
		}
		i++
		copyLen := code - 1
		if i+copyLen > len(encoded) {
			return nil, fmt.Errorf("%w: group code %d overruns frame at offset %d", ErrMalformedFrame, code, i)
		}
		out = append(out, encoded[i:i+copyLen]...)
		i += copyLen
		if code != 0xFF && i < len(encoded) {
			out = append(out, constants.Sentinel)
		}
	}
	return out, nil
}

// Encode applies COBS encoding to payload and appends the trailing
// sentinel, producing a frame Decode can reverse. The firmware never runs
// this path (it only emits), but the CLI's synthetic test tooling
// (root testing.go) uses it to build canned frames without a real device.
func Encode(payload []byte) []byte {
	var out []byte
	code := byte(1)
	var block []byte
	flush := func() {
		out = append(out, code)
		out = append(out, block...)
		block = nil
		code = 1
	}
	for _, b := range payload {
		if b == constants.Sentinel {
			flush()
			continue
		}
		block = append(block, b)
		code++
		if code == 0xFF {
			flush()
		}
	}
	flush()
	out = append(out, constants.Sentinel)
	return out
}

// Reader splits a byte stream into sentinel-delimited frames and COBS
// decodes each one. It resynchronizes automatically: a malformed frame
// does not corrupt the reader's state for subsequent frames, since framing
// is entirely sentinel-delimited with no cross-frame dependency.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r in a read buffer of constants.MaxFrameSize bytes.
// ReadFrame does not cap the length of a frame.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, constants.MaxFrameSize)}
}

// ReadFrame reads up to and including the next sentinel byte and returns
// the COBS-decoded payload. It returns io.EOF when the underlying reader
// is exhausted with no further data, and ErrMalformedFrame/ErrShortFrame
// (wrapped) for a frame that fails to decode — callers should treat those
// as recoverable and continue reading.
func (r *Reader) ReadFrame() ([]byte, error) {
	raw, err := r.br.ReadBytes(constants.Sentinel)
	if err != nil {
		if errors.Is(err, io.EOF) && len(raw) == 0 {
			return nil, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: stream ended mid-frame", ErrShortFrame)
		}
		return nil, err
	}
	return Decode(raw)
}
