package codec

import (
	"fmt"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/protocol/rfb"
)

// decodeCursor handles the Cursor pseudo-encoding: pixel data in the wire
// format followed by a 1-bit mask with rows padded to whole bytes. The mask
// rewrites only the alpha channel; RGB survives even where transparent.
func (d *Decoder) decodeCursor(r *rfb.Reader, rect rfb.Rectangle) (*Update, error) {
	width := int(rect.Width)
	height := int(rect.Height)

	raw, err := r.Exact(rect.Area() * d.format.BytesPerPixel())
	if err != nil {
		return nil, err
	}
	maskStride := (width + 7) / 8
	mask, err := r.Exact(maskStride * height)
	if err != nil {
		return nil, err
	}

	pixels := make([]byte, rect.Area()*4)
	if err := d.format.ConvertToRGBA(raw, rect.Area(), &d.colorMap, pixels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			bit := mask[y*maskStride+x/8] >> (7 - uint(x)%8) & 1
			alpha := byte(0)
			if bit == 1 {
				alpha = 255
			}
			pixels[(y*width+x)*4+3] = alpha
		}
	}

	return &Update{
		Kind:   UpdateCursor,
		X:      rect.X,
		Y:      rect.Y,
		Width:  rect.Width,
		Height: rect.Height,
		Pixels: pixels,
	}, nil
}
