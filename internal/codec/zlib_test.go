package codec

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/protocol/rfb"
)

// deflate compresses a complete standalone zlib stream.
func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDecodeZlib(t *testing.T) {
	d := newTestDecoder(t)
	rect := rfb.Rectangle{Width: 2, Height: 2, EncodingType: rfb.EncodingZlib}

	raw := bytes.Join([][]byte{
		wirePixel(red), wirePixel(green),
		wirePixel(blue), wirePixel(red),
	}, nil)
	compressed := deflate(t, raw)

	u, err := d.Decode(wireReader(beU32(uint32(len(compressed))), compressed), rect)
	require.NoError(t, err)

	assert.Len(t, u.Pixels, rect.Area()*4)
	assert.Equal(t, red, colorAt(u, 0, 0))
	assert.Equal(t, green, colorAt(u, 1, 0))
	assert.Equal(t, blue, colorAt(u, 0, 1))
}

// Each Zlib rectangle is a standalone stream; two in a row must both decode
// from scratch.
func TestDecodeZlibFreshStreamPerRectangle(t *testing.T) {
	d := newTestDecoder(t)
	rect := rfb.Rectangle{Width: 1, Height: 1, EncodingType: rfb.EncodingZlib}

	for _, want := range []rfb.Color{red, green} {
		compressed := deflate(t, wirePixel(want))
		u, err := d.Decode(wireReader(beU32(uint32(len(compressed))), compressed), rect)
		require.NoError(t, err)
		assert.Equal(t, want, colorAt(u, 0, 0))
	}
}

func TestDecodeZlibCorruptStream(t *testing.T) {
	d := newTestDecoder(t)
	rect := rfb.Rectangle{Width: 1, Height: 1, EncodingType: rfb.EncodingZlib}

	garbage := []byte{0xde, 0xad, 0xbe, 0xef}
	_, err := d.Decode(wireReader(beU32(uint32(len(garbage))), garbage), rect)
	assert.ErrorIs(t, err, ErrDecoding)
}

func TestDecodeZlibTruncatedPayload(t *testing.T) {
	d := newTestDecoder(t)
	rect := rfb.Rectangle{Width: 1, Height: 1, EncodingType: rfb.EncodingZlib}

	_, err := d.Decode(wireReader(beU32(100)), rect)
	assert.ErrorIs(t, err, rfb.ErrTransportRead)
}
