package rfb

import (
	"encoding/binary"
	"fmt"
)

// Color is a single true-color entry with 8-bit channels.
type Color struct {
	R, G, B uint8
}

// ColorMap holds palette entries for non-true-color pixel formats, populated
// from SetColourMapEntries messages.
type ColorMap [256]Color

// PixelFormat describes how the server encodes a pixel on the wire, as
// negotiated in ServerInit or requested with SetPixelFormat.
type PixelFormat struct {
	BitsPerPixel uint8
	Depth        uint8
	BigEndian    bool
	TrueColor    bool
	RedMax       uint16
	GreenMax     uint16
	BlueMax      uint16
	RedShift     uint8
	GreenShift   uint8
	BlueShift    uint8
}

// DefaultPixelFormat is the 32-bit true-color format this client requests:
// little-endian 888 RGB in the low 24 bits.
var DefaultPixelFormat = PixelFormat{
	BitsPerPixel: 32,
	Depth:        24,
	BigEndian:    false,
	TrueColor:    true,
	RedMax:       255,
	GreenMax:     255,
	BlueMax:      255,
	RedShift:     16,
	GreenShift:   8,
	BlueShift:    0,
}

const pixelFormatLen = 16

// ParsePixelFormat parses the 16-byte PIXEL_FORMAT wire structure.
func ParsePixelFormat(b []byte) (PixelFormat, error) {
	if len(b) < pixelFormatLen {
		return PixelFormat{}, fmt.Errorf("rfb: pixel format needs %d bytes, have %d", pixelFormatLen, len(b))
	}

	pf := PixelFormat{
		BitsPerPixel: b[0],
		Depth:        b[1],
		BigEndian:    b[2] != 0,
		TrueColor:    b[3] != 0,
		RedMax:       binary.BigEndian.Uint16(b[4:6]),
		GreenMax:     binary.BigEndian.Uint16(b[6:8]),
		BlueMax:      binary.BigEndian.Uint16(b[8:10]),
		RedShift:     b[10],
		GreenShift:   b[11],
		BlueShift:    b[12],
		// b[13:16] padding
	}

	if err := pf.Validate(); err != nil {
		return PixelFormat{}, err
	}
	return pf, nil
}

// Bytes serializes the pixel format for a SetPixelFormat message.
func (pf PixelFormat) Bytes() [pixelFormatLen]byte {
	var b [pixelFormatLen]byte
	b[0] = pf.BitsPerPixel
	b[1] = pf.Depth
	if pf.BigEndian {
		b[2] = 1
	}
	if pf.TrueColor {
		b[3] = 1
	}
	binary.BigEndian.PutUint16(b[4:6], pf.RedMax)
	binary.BigEndian.PutUint16(b[6:8], pf.GreenMax)
	binary.BigEndian.PutUint16(b[8:10], pf.BlueMax)
	b[10] = pf.RedShift
	b[11] = pf.GreenShift
	b[12] = pf.BlueShift
	return b
}

// Validate checks the format against what this client can decode.
func (pf PixelFormat) Validate() error {
	switch pf.BitsPerPixel {
	case 8, 16, 32:
	default:
		return fmt.Errorf("rfb: unsupported bits-per-pixel %d", pf.BitsPerPixel)
	}
	if pf.Depth > pf.BitsPerPixel {
		return fmt.Errorf("rfb: depth %d exceeds bits-per-pixel %d", pf.Depth, pf.BitsPerPixel)
	}
	return nil
}

// BytesPerPixel returns the wire size of one pixel value.
func (pf PixelFormat) BytesPerPixel() int {
	return int(pf.BitsPerPixel) / 8
}

// pixelValue assembles the raw pixel integer honoring the format's byte order.
func (pf PixelFormat) pixelValue(raw []byte) uint32 {
	switch pf.BitsPerPixel {
	case 8:
		return uint32(raw[0])
	case 16:
		if pf.BigEndian {
			return uint32(binary.BigEndian.Uint16(raw))
		}
		return uint32(binary.LittleEndian.Uint16(raw))
	default:
		if pf.BigEndian {
			return binary.BigEndian.Uint32(raw)
		}
		return binary.LittleEndian.Uint32(raw)
	}
}

// scale expands a channel value with the given maximum to the 0-255 range.
func scale(v uint32, max uint16) uint8 {
	if max == 0 {
		return 0
	}
	return uint8(v * 255 / uint32(max))
}

// RGBA converts one wire pixel to 8-bit R, G, B. Non-true-color formats index
// the color map with the low byte of the pixel value.
func (pf PixelFormat) RGBA(raw []byte, cm *ColorMap) (r, g, b uint8) {
	v := pf.pixelValue(raw)

	if !pf.TrueColor {
		var c Color
		if cm != nil {
			c = cm[v&0xFF]
		}
		return c.R, c.G, c.B
	}

	r = scale((v>>pf.RedShift)&uint32(pf.RedMax), pf.RedMax)
	g = scale((v>>pf.GreenShift)&uint32(pf.GreenMax), pf.GreenMax)
	b = scale((v>>pf.BlueShift)&uint32(pf.BlueMax), pf.BlueMax)
	return r, g, b
}

// ConvertToRGBA bulk-converts count wire pixels from src into dst as RGBA8
// with alpha 255. dst must hold count*4 bytes.
func (pf PixelFormat) ConvertToRGBA(src []byte, count int, cm *ColorMap, dst []byte) error {
	bpp := pf.BytesPerPixel()
	if len(src) < count*bpp {
		return fmt.Errorf("rfb: pixel data needs %d bytes, have %d", count*bpp, len(src))
	}
	if len(dst) < count*4 {
		return fmt.Errorf("rfb: RGBA buffer needs %d bytes, have %d", count*4, len(dst))
	}

	for i := 0; i < count; i++ {
		r, g, b := pf.RGBA(src[i*bpp:(i+1)*bpp], cm)
		dst[i*4] = r
		dst[i*4+1] = g
		dst[i*4+2] = b
		dst[i*4+3] = 255
	}
	return nil
}
