package codec

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/protocol/rfb"
)

// decodeZlib inflates a length-prefixed rectangle through a fresh stream.
// Only ZRLE keeps its stream across rectangles; conflating the two corrupts
// every subsequent ZRLE tile.
func (d *Decoder) decodeZlib(r *rfb.Reader, rect rfb.Rectangle) (*Update, error) {
	compressedLen, err := r.U32()
	if err != nil {
		return nil, err
	}
	compressed, err := r.Exact(int(compressedLen))
	if err != nil {
		return nil, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", ErrDecoding, err)
	}
	defer zr.Close()

	raw := make([]byte, rect.Area()*d.format.BytesPerPixel())
	if _, err := io.ReadFull(zr, raw); err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", ErrDecoding, err)
	}

	pixels := make([]byte, rect.Area()*4)
	if err := d.format.ConvertToRGBA(raw, rect.Area(), &d.colorMap, pixels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	return pixelUpdate(rect, pixels), nil
}
