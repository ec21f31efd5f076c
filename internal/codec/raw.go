package codec

import (
	"fmt"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/protocol/rfb"
)

func (d *Decoder) decodeRaw(r *rfb.Reader, rect rfb.Rectangle) (*Update, error) {
	raw, err := r.Exact(rect.Area() * d.format.BytesPerPixel())
	if err != nil {
		return nil, err
	}

	pixels := make([]byte, rect.Area()*4)
	if err := d.format.ConvertToRGBA(raw, rect.Area(), &d.colorMap, pixels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	return pixelUpdate(rect, pixels), nil
}
