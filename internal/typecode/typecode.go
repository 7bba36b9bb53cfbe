// Package typecode decodes the firmware's argument type-code vectors and
// the fixed-width argument values they describe.
package typecode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/adarwoo/ulogger/internal/constants"
)

// Code identifies the wire type of a single logged argument.
type Code byte

const (
	None    Code = 0x0
	U8      Code = 0x1
	S8      Code = 0x2
	B8      Code = 0x3
	U16     Code = 0x4
	S16     Code = 0x5
	Ptr16   Code = 0x6
	U32     Code = 0x7
	S32     Code = 0x8
	Float32 Code = 0x9
	Str     Code = 0xA
)

func (c Code) String() string {
	switch c {
	case None:
		return "none"
	case U8:
		return "u8"
	case S8:
		return "s8"
	case B8:
		return "bool"
	case U16:
		return "u16"
	case S16:
		return "s16"
	case Ptr16:
		return "ptr16"
	case U32:
		return "u32"
	case S32:
		return "s32"
	case Float32:
		return "float32"
	case Str:
		return "string"
	default:
		return fmt.Sprintf("unknown(0x%x)", byte(c))
	}
}

// FixedWidth reports the on-wire byte width of fixed-size codes. Str has
// no fixed width (it is null-terminated) and returns 0, ok=false.
func (c Code) FixedWidth() (int, bool) {
	switch c {
	case U8, S8, B8:
		return 1, true
	case U16, S16, Ptr16:
		return 2, true
	case U32, S32, Float32:
		return 4, true
	default:
		return 0, false
	}
}

func validCode(c Code) bool {
	switch c {
	case None, U8, S8, B8, U16, S16, Ptr16, U32, S32, Float32, Str:
		return true
	default:
		return false
	}
}

// DecodeVector unpacks a 32-bit type vector into an ordered list of type
// codes. Codes are packed as 4-bit nibbles, low nibble first; decoding
// stops at the first None nibble (or after all slots are consumed).
func DecodeVector(word uint32) ([]Code, error) {
	codes := make([]Code, 0, constants.TypeVectorSlots)
	for i := 0; i < constants.TypeVectorSlots; i++ {
		nibble := Code((word >> (i * 4)) & 0xF)
		if nibble == None {
			break
		}
		if !validCode(nibble) {
			return nil, fmt.Errorf("typecode: unknown type code 0x%x at slot %d", byte(nibble), i)
		}
		codes = append(codes, nibble)
	}
	return codes, nil
}

// Value is a decoded argument value, holding exactly one of its fields
// depending on Code.
type Value struct {
	Code  Code
	U64   uint64
	I64   int64
	Bool  bool
	F32   float32
	Str   string
}

// Decode consumes one argument value of type c from the front of data,
// using order for every multi-byte fixed type except Float32, which is
// always little-endian on the wire regardless of artifact byte order.
// Str is not handled here: string accumulation spans frames and is the
// reassembler's responsibility.
func Decode(c Code, data []byte, order binary.ByteOrder) (Value, int, error) {
	width, fixed := c.FixedWidth()
	if !fixed {
		return Value{}, 0, fmt.Errorf("typecode: %s is not a fixed-width type", c)
	}
	if len(data) < width {
		return Value{}, 0, fmt.Errorf("typecode: need %d bytes for %s, have %d", width, c, len(data))
	}

	switch c {
	case U8:
		return Value{Code: c, U64: uint64(data[0])}, 1, nil
	case S8:
		return Value{Code: c, I64: int64(int8(data[0]))}, 1, nil
	case B8:
		return Value{Code: c, Bool: data[0] != 0}, 1, nil
	case U16:
		return Value{Code: c, U64: uint64(order.Uint16(data))}, 2, nil
	case S16:
		return Value{Code: c, I64: int64(int16(order.Uint16(data)))}, 2, nil
	case Ptr16:
		return Value{Code: c, U64: uint64(order.Uint16(data))}, 2, nil
	case U32:
		return Value{Code: c, U64: uint64(order.Uint32(data))}, 4, nil
	case S32:
		return Value{Code: c, I64: int64(int32(order.Uint32(data)))}, 4, nil
	case Float32:
		bits := binary.LittleEndian.Uint32(data)
		return Value{Code: c, F32: math.Float32frombits(bits)}, 4, nil
	default:
		return Value{}, 0, fmt.Errorf("typecode: unhandled fixed type %s", c)
	}
}
