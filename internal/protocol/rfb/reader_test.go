package rfb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderPrimitives(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{
		0x42,
		0x12, 0x34,
		0x00, 0x01, 0x02, 0x03,
		0xFF, 0xFF, 0xFF, 0x11,
		0xAA, 0xBB,
	}))

	u8, err := r.U8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x42), u8)

	u16, err := r.U16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)

	u32, err := r.U32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00010203), u32)

	s32, err := r.S32()
	require.NoError(t, err)
	assert.Equal(t, int32(-239), s32)

	rest, err := r.Exact(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, rest)
}

func TestReaderShortReadIsTransportError(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x01}))

	_, err := r.U32()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportRead)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "read u32", te.Op)
}

func TestReaderExactEmptySource(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))

	_, err := r.Exact(8)
	assert.ErrorIs(t, err, ErrTransportRead)
}

func TestReaderSkip(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2, 3, 0x09}))

	require.NoError(t, r.Skip(3))
	b, err := r.U8()
	require.NoError(t, err)
	assert.Equal(t, uint8(9), b)

	assert.ErrorIs(t, r.Skip(1), ErrTransportRead)
}
