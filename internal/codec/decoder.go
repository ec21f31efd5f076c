// Package codec decodes RFB framebuffer-update rectangles into RGBA8 pixel
// buffers. It covers the Raw, CopyRect, RRE, Hextile, Zlib, ZRLE and Apple
// JPEG encodings plus the Cursor and DesktopSize pseudo-encodings.
package codec

import (
	"errors"
	"fmt"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/protocol/rfb"
)

var (
	// ErrUnsupportedEncoding indicates a rectangle with an encoding id this
	// decoder does not implement. Fatal to the current update only.
	ErrUnsupportedEncoding = errors.New("codec: unsupported encoding")

	// ErrDecoding indicates rectangle data that cannot be decoded, such as
	// a corrupt deflate stream or an undecodable JPEG.
	ErrDecoding = errors.New("codec: decoding failed")
)

// UnsupportedEncodingError carries the offending encoding id. It matches
// ErrUnsupportedEncoding under errors.Is.
type UnsupportedEncodingError struct {
	Encoding int32
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("codec: unsupported encoding %d", e.Encoding)
}

func (e *UnsupportedEncodingError) Is(target error) bool {
	return target == ErrUnsupportedEncoding
}

// UpdateKind discriminates the variants of a decoded rectangle.
type UpdateKind int

const (
	// UpdatePixels carries a ready-to-composite RGBA region.
	UpdatePixels UpdateKind = iota
	// UpdateCopy instructs the caller to blit a region of its own
	// framebuffer from (SrcX, SrcY). The decoder never sees that buffer.
	UpdateCopy
	// UpdateCursor carries a new cursor shape with per-pixel alpha.
	UpdateCursor
	// UpdateResize announces a new desktop size. The caller resizes its
	// own pixel store.
	UpdateResize
)

// Update is one decoded rectangle. Pixels is row-major RGBA8 of exactly
// Width*Height*4 bytes for UpdatePixels and UpdateCursor, and nil otherwise.
// Ownership passes to the caller.
type Update struct {
	Kind          UpdateKind
	X, Y          uint16
	Width, Height uint16
	Pixels        []byte
	SrcX, SrcY    uint16
}

// Decoder turns framebuffer-update rectangles into Updates. One Decoder
// exists per connection and must not be used concurrently: the ZRLE stream
// state depends on rectangles arriving in wire order.
type Decoder struct {
	format   rfb.PixelFormat
	colorMap rfb.ColorMap
	zrle     zrleStream
	scratch  [4]byte

	// OnClamp, when set, is called whenever a subrect or palette index had
	// to be clamped into bounds. Malformed coordinates from the server are
	// tolerated, and this hook is the only place they become visible.
	OnClamp func(rect rfb.Rectangle)
}

// New returns a decoder for the given wire pixel format.
func New(format rfb.PixelFormat) (*Decoder, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{format: format}, nil
}

// SetPixelFormat switches the wire format between rectangles. The ZRLE
// stream is untouched: the server keeps one deflate stream per connection
// regardless of format changes.
func (d *Decoder) SetPixelFormat(format rfb.PixelFormat) error {
	if err := format.Validate(); err != nil {
		return err
	}
	d.format = format
	return nil
}

// PixelFormat returns the format currently in effect.
func (d *Decoder) PixelFormat() rfb.PixelFormat {
	return d.format
}

// SetColorMapEntries installs palette entries starting at firstColor, as
// delivered by a SetColourMapEntries message.
func (d *Decoder) SetColorMapEntries(firstColor uint16, colors []rfb.Color) {
	for i, c := range colors {
		idx := int(firstColor) + i
		if idx >= len(d.colorMap) {
			break
		}
		d.colorMap[idx] = c
	}
}

// Reset discards the ZRLE stream state. Call it only when the connection
// itself is being replaced.
func (d *Decoder) Reset() {
	d.zrle.reset()
}

// Decode consumes exactly the bytes rect's encoding requires from r and
// returns the decoded update.
func (d *Decoder) Decode(r *rfb.Reader, rect rfb.Rectangle) (*Update, error) {
	switch rect.EncodingType {
	case rfb.EncodingRaw:
		return d.decodeRaw(r, rect)
	case rfb.EncodingCopyRect:
		return d.decodeCopyRect(r, rect)
	case rfb.EncodingRRE:
		return d.decodeRRE(r, rect)
	case rfb.EncodingHextile:
		return d.decodeHextile(r, rect)
	case rfb.EncodingZlib:
		return d.decodeZlib(r, rect)
	case rfb.EncodingZRLE:
		return d.decodeZRLE(r, rect)
	case rfb.EncodingJPEG:
		return d.decodeJPEG(r, rect)
	case rfb.EncodingCursor:
		return d.decodeCursor(r, rect)
	case rfb.EncodingDesktopSize:
		return &Update{Kind: UpdateResize, Width: rect.Width, Height: rect.Height}, nil
	default:
		return nil, &UnsupportedEncodingError{Encoding: rect.EncodingType}
	}
}

func (d *Decoder) decodeCopyRect(r *rfb.Reader, rect rfb.Rectangle) (*Update, error) {
	srcX, err := r.U16()
	if err != nil {
		return nil, err
	}
	srcY, err := r.U16()
	if err != nil {
		return nil, err
	}
	return &Update{
		Kind:   UpdateCopy,
		X:      rect.X,
		Y:      rect.Y,
		Width:  rect.Width,
		Height: rect.Height,
		SrcX:   srcX,
		SrcY:   srcY,
	}, nil
}

func pixelUpdate(rect rfb.Rectangle, pixels []byte) *Update {
	return &Update{
		Kind:   UpdatePixels,
		X:      rect.X,
		Y:      rect.Y,
		Width:  rect.Width,
		Height: rect.Height,
		Pixels: pixels,
	}
}

// readPixel reads one wire pixel and converts it to 8-bit channels.
func (d *Decoder) readPixel(r *rfb.Reader) (rfb.Color, error) {
	buf := d.scratch[:d.format.BytesPerPixel()]
	if err := r.Full(buf); err != nil {
		return rfb.Color{}, err
	}
	red, green, blue := d.format.RGBA(buf, &d.colorMap)
	return rfb.Color{R: red, G: green, B: blue}, nil
}

func (d *Decoder) notifyClamp(rect rfb.Rectangle) {
	if d.OnClamp != nil {
		d.OnClamp(rect)
	}
}

// clampBox saturates a subrect into a width x height region. Inputs are
// non-negative; the returned box never extends past the bounds.
func clampBox(x, y, w, h, boundW, boundH int) (int, int, int, int, bool) {
	clamped := false
	if x > boundW {
		x, clamped = boundW, true
	}
	if y > boundH {
		y, clamped = boundH, true
	}
	if x+w > boundW {
		w, clamped = boundW-x, true
	}
	if y+h > boundH {
		h, clamped = boundH-y, true
	}
	return x, y, w, h, clamped
}

// fillRGBA writes a solid color over a region of a row-major RGBA buffer.
// stride is in pixels.
func fillRGBA(dst []byte, stride, x, y, w, h int, c rfb.Color) {
	for row := y; row < y+h; row++ {
		off := (row*stride + x) * 4
		for col := 0; col < w; col++ {
			dst[off] = c.R
			dst[off+1] = c.G
			dst[off+2] = c.B
			dst[off+3] = 255
			off += 4
		}
	}
}

func setPixel(dst []byte, stride, x, y int, c rfb.Color) {
	off := (y*stride + x) * 4
	dst[off] = c.R
	dst[off+1] = c.G
	dst[off+2] = c.B
	dst[off+3] = 255
}
