package typecode

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVectorStopsAtNone(t *testing.T) {
	// slot0=U8, slot1=S32, slot2=None -> only two codes
	word := uint32(U8) | uint32(S32)<<4
	codes, err := DecodeVector(word)
	require.NoError(t, err)
	assert.Equal(t, []Code{U8, S32}, codes)
}

func TestDecodeVectorAllSlots(t *testing.T) {
	var word uint32
	order := []Code{U8, S8, B8, U16, S16, Ptr16, U32, S32}
	for i, c := range order {
		word |= uint32(c) << (i * 4)
	}
	codes, err := DecodeVector(word)
	require.NoError(t, err)
	assert.Equal(t, order, codes)
}

func TestDecodeVectorUnknownCode(t *testing.T) {
	word := uint32(0xB) // not a defined code
	_, err := DecodeVector(word)
	assert.Error(t, err)
}

func TestDecodeFixedTypesLittleEndian(t *testing.T) {
	v, n, err := Decode(U16, []byte{0x34, 0x12}, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(0x1234), v.U64)
}

func TestDecodeFixedTypesBigEndian(t *testing.T) {
	v, n, err := Decode(U32, []byte{0x00, 0x00, 0x01, 0x02}, binary.BigEndian)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, uint64(0x0102), v.U64)
}

func TestDecodeFloat32AlwaysLittleEndian(t *testing.T) {
	// 1.5f little-endian bytes, decode should ignore BigEndian order
	data := []byte{0x00, 0x00, 0xC0, 0x3F}
	v, n, err := Decode(Float32, data, binary.BigEndian)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.InDelta(t, 1.5, float64(v.F32), 0.0001)
}

func TestDecodeSignedNegative(t *testing.T) {
	v, _, err := Decode(S8, []byte{0xFF}, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v.I64)

	v, _, err = Decode(S16, []byte{0xFF, 0xFF}, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v.I64)
}

func TestDecodeBool(t *testing.T) {
	v, _, err := Decode(B8, []byte{0x01}, binary.LittleEndian)
	require.NoError(t, err)
	assert.True(t, v.Bool)

	v, _, err = Decode(B8, []byte{0x00}, binary.LittleEndian)
	require.NoError(t, err)
	assert.False(t, v.Bool)
}

func TestDecodeShortBuffer(t *testing.T) {
	_, _, err := Decode(U32, []byte{0x01, 0x02}, binary.LittleEndian)
	assert.Error(t, err)
}

func TestDecodeStringRejected(t *testing.T) {
	_, _, err := Decode(Str, []byte("hello"), binary.LittleEndian)
	assert.Error(t, err)
}
