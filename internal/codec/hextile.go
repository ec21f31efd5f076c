package codec

import (
	"fmt"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/protocol/rfb"
)

const (
	hextileRaw                 = 1 << 0
	hextileBackgroundSpecified = 1 << 1
	hextileForegroundSpecified = 1 << 2
	hextileAnySubrects         = 1 << 3
	hextileSubrectsColoured    = 1 << 4

	hextileTileSize = 16
)

func (d *Decoder) decodeHextile(r *rfb.Reader, rect rfb.Rectangle) (*Update, error) {
	width := int(rect.Width)
	height := int(rect.Height)
	pixels := make([]byte, rect.Area()*4)

	// Background and foreground persist across tiles until a tile's flags
	// replace them.
	var background, foreground rfb.Color

	for tileY := 0; tileY < height; tileY += hextileTileSize {
		tileH := min(hextileTileSize, height-tileY)
		for tileX := 0; tileX < width; tileX += hextileTileSize {
			tileW := min(hextileTileSize, width-tileX)

			flags, err := r.U8()
			if err != nil {
				return nil, err
			}

			if flags&hextileRaw != 0 {
				if err := d.hextileRawTile(r, pixels, width, tileX, tileY, tileW, tileH); err != nil {
					return nil, err
				}
				continue
			}

			if flags&hextileBackgroundSpecified != 0 {
				if background, err = d.readPixel(r); err != nil {
					return nil, err
				}
			}
			fillRGBA(pixels, width, tileX, tileY, tileW, tileH, background)

			if flags&hextileForegroundSpecified != 0 {
				if foreground, err = d.readPixel(r); err != nil {
					return nil, err
				}
			}

			if flags&hextileAnySubrects == 0 {
				continue
			}

			count, err := r.U8()
			if err != nil {
				return nil, err
			}
			for i := 0; i < int(count); i++ {
				color := foreground
				if flags&hextileSubrectsColoured != 0 {
					if color, err = d.readPixel(r); err != nil {
						return nil, err
					}
				}
				xy, err := r.U8()
				if err != nil {
					return nil, err
				}
				wh, err := r.U8()
				if err != nil {
					return nil, err
				}

				sx := int(xy >> 4)
				sy := int(xy & 0x0F)
				sw := int(wh>>4) + 1
				sh := int(wh&0x0F) + 1

				sx, sy, sw, sh, clamped := clampBox(sx, sy, sw, sh, tileW, tileH)
				if clamped {
					d.notifyClamp(rect)
				}
				fillRGBA(pixels, width, tileX+sx, tileY+sy, sw, sh, color)
			}
		}
	}
	return pixelUpdate(rect, pixels), nil
}

// hextileRawTile reads a literal tile and converts it in place, row by row.
func (d *Decoder) hextileRawTile(r *rfb.Reader, pixels []byte, stride, tileX, tileY, tileW, tileH int) error {
	bpp := d.format.BytesPerPixel()
	raw, err := r.Exact(tileW * tileH * bpp)
	if err != nil {
		return err
	}
	for row := 0; row < tileH; row++ {
		src := raw[row*tileW*bpp : (row+1)*tileW*bpp]
		dst := pixels[((tileY+row)*stride+tileX)*4:]
		if err := d.format.ConvertToRGBA(src, tileW, &d.colorMap, dst); err != nil {
			return fmt.Errorf("%w: %v", ErrDecoding, err)
		}
	}
	return nil
}
