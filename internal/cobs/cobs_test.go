package cobs

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01},
		{0x01, 0x02, 0x03},
		bytes.Repeat([]byte{0x41}, 300),
	}
	for _, payload := range cases {
		encoded := Encode(payload)
		decoded, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, payload, decoded)
	}
}

func TestEncodeEscapesSentinelByte(t *testing.T) {
	payload := []byte{0x01, 0xA6, 0x02}
	encoded := Encode(payload)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestDecodeMissingSentinel(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x41})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeZeroCodeByte(t *testing.T) {
	_, err := Decode([]byte{0x00, 0xA6})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeGroupOverrun(t *testing.T) {
	_, err := Decode([]byte{0x05, 0x01, 0xA6})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeShortFrame(t *testing.T) {
	_, err := Decode([]byte{0xA6})
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestReaderResynchronizesAfterMalformedFrame(t *testing.T) {
	good := Encode([]byte{0x01, 0x02})
	var stream []byte
	stream = append(stream, []byte{0x05, 0x01, 0xA6}...) // malformed
	stream = append(stream, good...)

	r := NewReader(bytes.NewReader(stream))

	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrMalformedFrame)

	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, frame)

	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}
