package codec

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/protocol/rfb"
)

const zrleTileSize = 64

// zrleStream is the incremental inflate handle for ZRLE. The server uses a
// single deflate stream for the whole connection: each rectangle's
// compressed chunk continues the previous one, and unconsumed input must
// carry over to the next call. Resetting this per rectangle is the classic
// ZRLE interoperability bug.
type zrleStream struct {
	compressed bytes.Buffer
	inflater   io.ReadCloser
}

// feed appends a rectangle's compressed chunk to the stream.
func (z *zrleStream) feed(chunk []byte) {
	z.compressed.Write(chunk)
}

// Read inflates from the accumulated stream. bytes.Buffer implements
// io.ByteReader, so flate never reads ahead of what has been fed.
func (z *zrleStream) Read(p []byte) (int, error) {
	if z.inflater == nil {
		zr, err := zlib.NewReader(&z.compressed)
		if err != nil {
			return 0, err
		}
		z.inflater = zr
	}
	return z.inflater.Read(p)
}

func (z *zrleStream) reset() {
	if z.inflater != nil {
		z.inflater.Close()
		z.inflater = nil
	}
	z.compressed.Reset()
}

func (d *Decoder) decodeZRLE(r *rfb.Reader, rect rfb.Rectangle) (*Update, error) {
	compressedLen, err := r.U32()
	if err != nil {
		return nil, err
	}
	chunk, err := r.Exact(int(compressedLen))
	if err != nil {
		return nil, err
	}
	d.zrle.feed(chunk)

	width := int(rect.Width)
	height := int(rect.Height)
	pixels := make([]byte, rect.Area()*4)

	for tileY := 0; tileY < height; tileY += zrleTileSize {
		tileH := min(zrleTileSize, height-tileY)
		for tileX := 0; tileX < width; tileX += zrleTileSize {
			tileW := min(zrleTileSize, width-tileX)
			if err := d.zrleTile(rect, pixels, width, tileX, tileY, tileW, tileH); err != nil {
				return nil, err
			}
		}
	}
	return pixelUpdate(rect, pixels), nil
}

func (d *Decoder) zrleTile(rect rfb.Rectangle, pixels []byte, stride, tileX, tileY, tileW, tileH int) error {
	sub, err := d.zrleByte()
	if err != nil {
		return err
	}

	switch {
	case sub == 0:
		// Raw: one CPIXEL per pixel, row-major.
		for y := 0; y < tileH; y++ {
			for x := 0; x < tileW; x++ {
				c, err := d.readCPixel()
				if err != nil {
					return err
				}
				setPixel(pixels, stride, tileX+x, tileY+y, c)
			}
		}
		return nil

	case sub == 1:
		c, err := d.readCPixel()
		if err != nil {
			return err
		}
		fillRGBA(pixels, stride, tileX, tileY, tileW, tileH, c)
		return nil

	case sub <= 16:
		return d.zrlePackedPalette(rect, pixels, stride, tileX, tileY, tileW, tileH, int(sub))

	case sub == 128:
		return d.zrlePlainRLE(pixels, stride, tileX, tileY, tileW, tileH)

	case sub >= 130:
		return d.zrlePaletteRLE(rect, pixels, stride, tileX, tileY, tileW, tileH, int(sub)-128)

	default:
		return fmt.Errorf("%w: ZRLE subencoding %d", ErrDecoding, sub)
	}
}

// zrlePackedPalette decodes a tile of palette indices packed at 1, 2 or 4
// bits per pixel. Each row starts at a byte boundary.
func (d *Decoder) zrlePackedPalette(rect rfb.Rectangle, pixels []byte, stride, tileX, tileY, tileW, tileH, paletteSize int) error {
	palette, err := d.readCPalette(paletteSize)
	if err != nil {
		return err
	}

	var bits int
	switch {
	case paletteSize <= 2:
		bits = 1
	case paletteSize <= 4:
		bits = 2
	default:
		bits = 4
	}
	mask := byte(1<<bits - 1)

	for y := 0; y < tileH; y++ {
		var acc byte
		var avail int
		for x := 0; x < tileW; x++ {
			if avail == 0 {
				if acc, err = d.zrleByte(); err != nil {
					return err
				}
				avail = 8
			}
			avail -= bits
			idx := int((acc >> avail) & mask)
			if idx >= len(palette) {
				idx = len(palette) - 1
				d.notifyClamp(rect)
			}
			setPixel(pixels, stride, tileX+x, tileY+y, palette[idx])
		}
	}
	return nil
}

// zrlePlainRLE decodes repeated (CPIXEL, run length) pairs in raster order.
func (d *Decoder) zrlePlainRLE(pixels []byte, stride, tileX, tileY, tileW, tileH int) error {
	total := tileW * tileH
	pos := 0
	for pos < total {
		c, err := d.readCPixel()
		if err != nil {
			return err
		}
		run, err := d.zrleRunLength()
		if err != nil {
			return err
		}
		for ; run > 0 && pos < total; run-- {
			setPixel(pixels, stride, tileX+pos%tileW, tileY+pos/tileW, c)
			pos++
		}
	}
	return nil
}

// zrlePaletteRLE decodes (index, optional run length) pairs; bit 7 of the
// index byte signals that a run length follows.
func (d *Decoder) zrlePaletteRLE(rect rfb.Rectangle, pixels []byte, stride, tileX, tileY, tileW, tileH, paletteSize int) error {
	palette, err := d.readCPalette(paletteSize)
	if err != nil {
		return err
	}

	total := tileW * tileH
	pos := 0
	for pos < total {
		b, err := d.zrleByte()
		if err != nil {
			return err
		}
		run := 1
		if b&0x80 != 0 {
			if run, err = d.zrleRunLength(); err != nil {
				return err
			}
		}
		idx := int(b & 0x7F)
		if idx >= len(palette) {
			idx = len(palette) - 1
			d.notifyClamp(rect)
		}
		for ; run > 0 && pos < total; run-- {
			setPixel(pixels, stride, tileX+pos%tileW, tileY+pos/tileW, palette[idx])
			pos++
		}
	}
	return nil
}

// cpixelLen is the wire size of a ZRLE compact pixel. A 32-bit true-color
// format with depth 24 or less sends 3 bytes per pixel instead of 4.
func (d *Decoder) cpixelLen() int {
	if d.format.BitsPerPixel == 32 && d.format.Depth <= 24 && d.format.TrueColor {
		return 3
	}
	return d.format.BytesPerPixel()
}

// readCPixel reads one compact pixel from the ZRLE stream. The 3-byte form
// is literal [R, G, B]; every other width decodes like a normal wire pixel.
func (d *Decoder) readCPixel() (rfb.Color, error) {
	n := d.cpixelLen()
	buf := d.scratch[:n]
	if _, err := io.ReadFull(&d.zrle, buf); err != nil {
		return rfb.Color{}, fmt.Errorf("%w: ZRLE stream: %v", ErrDecoding, err)
	}
	if n == 3 {
		return rfb.Color{R: buf[0], G: buf[1], B: buf[2]}, nil
	}
	red, green, blue := d.format.RGBA(buf, &d.colorMap)
	return rfb.Color{R: red, G: green, B: blue}, nil
}

func (d *Decoder) readCPalette(size int) ([]rfb.Color, error) {
	palette := make([]rfb.Color, size)
	for i := range palette {
		c, err := d.readCPixel()
		if err != nil {
			return nil, err
		}
		palette[i] = c
	}
	return palette, nil
}

func (d *Decoder) zrleByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(&d.zrle, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: ZRLE stream: %v", ErrDecoding, err)
	}
	return buf[0], nil
}

// zrleRunLength decodes a run length: each 0xFF byte adds 255, the final
// byte adds its value, and the run itself counts one more.
func (d *Decoder) zrleRunLength() (int, error) {
	run := 1
	for {
		b, err := d.zrleByte()
		if err != nil {
			return 0, err
		}
		run += int(b)
		if b != 0xFF {
			return run, nil
		}
	}
}
