package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/protocol/rfb"
)

func encodeJPEG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestDecodeJPEG(t *testing.T) {
	d := newTestDecoder(t)
	rect := rfb.Rectangle{Width: 16, Height: 16, EncodingType: rfb.EncodingJPEG}

	data := encodeJPEG(t, 16, 16, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	u, err := d.Decode(wireReader(beU32(uint32(len(data))), data), rect)
	require.NoError(t, err)

	assert.Equal(t, UpdatePixels, u.Kind)
	require.Len(t, u.Pixels, rect.Area()*4)

	// JPEG is lossy; a solid fill should still come back close.
	got := colorAt(u, 8, 8)
	assert.InDelta(t, 200, int(got.R), 12)
	assert.InDelta(t, 100, int(got.G), 12)
	assert.InDelta(t, 50, int(got.B), 12)
	assert.Equal(t, byte(255), alphaAt(u, 8, 8))
}

// A block-padded image larger than the rectangle is resized down to the
// declared dimensions.
func TestDecodeJPEGResizesMismatchedImage(t *testing.T) {
	d := newTestDecoder(t)
	rect := rfb.Rectangle{Width: 10, Height: 10, EncodingType: rfb.EncodingJPEG}

	data := encodeJPEG(t, 16, 16, color.RGBA{R: 30, G: 60, B: 90, A: 255})
	u, err := d.Decode(wireReader(beU32(uint32(len(data))), data), rect)
	require.NoError(t, err)

	require.Len(t, u.Pixels, rect.Area()*4)
	got := colorAt(u, 5, 5)
	assert.InDelta(t, 30, int(got.R), 12)
	assert.InDelta(t, 60, int(got.G), 12)
	assert.InDelta(t, 90, int(got.B), 12)
}

func TestDecodeJPEGInvalidData(t *testing.T) {
	d := newTestDecoder(t)
	rect := rfb.Rectangle{Width: 4, Height: 4, EncodingType: rfb.EncodingJPEG}

	garbage := []byte{0x00, 0x01, 0x02, 0x03}
	_, err := d.Decode(wireReader(beU32(uint32(len(garbage))), garbage), rect)
	assert.ErrorIs(t, err, ErrDecoding)
}
