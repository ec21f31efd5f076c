package codec

import (
	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/protocol/rfb"
)

func (d *Decoder) decodeRRE(r *rfb.Reader, rect rfb.Rectangle) (*Update, error) {
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	background, err := d.readPixel(r)
	if err != nil {
		return nil, err
	}

	width := int(rect.Width)
	height := int(rect.Height)
	pixels := make([]byte, rect.Area()*4)
	fillRGBA(pixels, width, 0, 0, width, height, background)

	for i := uint32(0); i < count; i++ {
		foreground, err := d.readPixel(r)
		if err != nil {
			return nil, err
		}
		var sx, sy, sw, sh uint16
		if sx, err = r.U16(); err != nil {
			return nil, err
		}
		if sy, err = r.U16(); err != nil {
			return nil, err
		}
		if sw, err = r.U16(); err != nil {
			return nil, err
		}
		if sh, err = r.U16(); err != nil {
			return nil, err
		}

		x, y, w, h, clamped := clampBox(int(sx), int(sy), int(sw), int(sh), width, height)
		if clamped {
			d.notifyClamp(rect)
		}
		fillRGBA(pixels, width, x, y, w, h, foreground)
	}
	return pixelUpdate(rect, pixels), nil
}
