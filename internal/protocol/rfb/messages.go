// Package rfb implements the wire-level pieces of the Remote Framebuffer
// protocol (RFC 6143): transport primitives, pixel formats, and the message
// framing shared by the handshake and update paths.
package rfb

import (
	"encoding/binary"
	"fmt"
)

// Encoding type identifiers. Negative values are pseudo-encodings carrying
// state changes instead of pixel data.
const (
	EncodingRaw         int32 = 0
	EncodingCopyRect    int32 = 1
	EncodingRRE         int32 = 2
	EncodingHextile     int32 = 5
	EncodingZlib        int32 = 6
	EncodingTight       int32 = 7
	EncodingZRLE        int32 = 16
	EncodingJPEG        int32 = 21
	EncodingCursor      int32 = -239
	EncodingDesktopSize int32 = -223
)

// Server-to-client message types.
const (
	ServerFramebufferUpdate   uint8 = 0
	ServerSetColourMapEntries uint8 = 1
	ServerBell                uint8 = 2
	ServerCutText             uint8 = 3
)

// Client-to-server message types.
const (
	ClientSetPixelFormat           uint8 = 0
	ClientSetEncodings             uint8 = 2
	ClientFramebufferUpdateRequest uint8 = 3
	ClientKeyEvent                 uint8 = 4
	ClientPointerEvent             uint8 = 5
	ClientCutText                  uint8 = 6
)

// ProtocolVersion is the parsed RFB version banner.
type ProtocolVersion struct {
	Major int
	Minor int
}

// ParseProtocolVersion parses the 12-byte "RFB xxx.yyy\n" banner.
func ParseProtocolVersion(b []byte) (ProtocolVersion, error) {
	var v ProtocolVersion
	if len(b) != 12 {
		return v, fmt.Errorf("rfb: version banner must be 12 bytes, have %d", len(b))
	}
	if _, err := fmt.Sscanf(string(b), "RFB %03d.%03d\n", &v.Major, &v.Minor); err != nil {
		return v, fmt.Errorf("rfb: malformed version banner %q", b)
	}
	return v, nil
}

// Bytes renders the banner for sending back to the server.
func (v ProtocolVersion) Bytes() []byte {
	return []byte(fmt.Sprintf("RFB %03d.%03d\n", v.Major, v.Minor))
}

// AtLeast reports whether the version is >= major.minor.
func (v ProtocolVersion) AtLeast(major, minor int) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Rectangle is one framebuffer-update rectangle header.
type Rectangle struct {
	X, Y          uint16
	Width, Height uint16
	EncodingType  int32
}

// Area returns the pixel count of the rectangle.
func (rect Rectangle) Area() int {
	return int(rect.Width) * int(rect.Height)
}

// ReadRectangleHeader reads the 12-byte rectangle header preceding each
// encoded rectangle body.
func ReadRectangleHeader(r *Reader) (Rectangle, error) {
	var rect Rectangle
	var err error

	if rect.X, err = r.U16(); err != nil {
		return rect, err
	}
	if rect.Y, err = r.U16(); err != nil {
		return rect, err
	}
	if rect.Width, err = r.U16(); err != nil {
		return rect, err
	}
	if rect.Height, err = r.U16(); err != nil {
		return rect, err
	}
	if rect.EncodingType, err = r.S32(); err != nil {
		return rect, err
	}
	return rect, nil
}

// ServerInit is the message the server sends after ClientInit.
type ServerInit struct {
	Width       uint16
	Height      uint16
	PixelFormat PixelFormat
	Name        string
}

// ReadServerInit reads and parses the ServerInit message.
func ReadServerInit(r *Reader) (*ServerInit, error) {
	var si ServerInit
	var err error

	if si.Width, err = r.U16(); err != nil {
		return nil, err
	}
	if si.Height, err = r.U16(); err != nil {
		return nil, err
	}

	pfBytes, err := r.Exact(pixelFormatLen)
	if err != nil {
		return nil, err
	}
	if si.PixelFormat, err = ParsePixelFormat(pfBytes); err != nil {
		return nil, err
	}

	nameLen, err := r.U32()
	if err != nil {
		return nil, err
	}
	const maxNameLen = 4096
	if nameLen > maxNameLen {
		return nil, fmt.Errorf("rfb: desktop name length %d exceeds %d", nameLen, maxNameLen)
	}
	name, err := r.Exact(int(nameLen))
	if err != nil {
		return nil, err
	}
	si.Name = string(name)

	return &si, nil
}

// SetPixelFormatMessage encodes a SetPixelFormat client message.
func SetPixelFormatMessage(pf PixelFormat) []byte {
	msg := make([]byte, 4+pixelFormatLen)
	msg[0] = ClientSetPixelFormat
	// msg[1:4] padding
	pfBytes := pf.Bytes()
	copy(msg[4:], pfBytes[:])
	return msg
}

// SetEncodingsMessage encodes a SetEncodings client message. Order expresses
// preference, most preferred first.
func SetEncodingsMessage(encodings []int32) []byte {
	msg := make([]byte, 4+4*len(encodings))
	msg[0] = ClientSetEncodings
	// msg[1] padding
	binary.BigEndian.PutUint16(msg[2:4], uint16(len(encodings)))
	for i, enc := range encodings {
		binary.BigEndian.PutUint32(msg[4+i*4:], uint32(enc))
	}
	return msg
}

// FramebufferUpdateRequestMessage encodes an update request for the given
// region. Incremental requests only ask for changed areas.
func FramebufferUpdateRequestMessage(incremental bool, x, y, width, height uint16) []byte {
	msg := make([]byte, 10)
	msg[0] = ClientFramebufferUpdateRequest
	if incremental {
		msg[1] = 1
	}
	binary.BigEndian.PutUint16(msg[2:4], x)
	binary.BigEndian.PutUint16(msg[4:6], y)
	binary.BigEndian.PutUint16(msg[6:8], width)
	binary.BigEndian.PutUint16(msg[8:10], height)
	return msg
}

// KeyEventMessage encodes a KeyEvent client message. key is an X11 keysym.
func KeyEventMessage(down bool, key uint32) []byte {
	msg := make([]byte, 8)
	msg[0] = ClientKeyEvent
	if down {
		msg[1] = 1
	}
	// msg[2:4] padding
	binary.BigEndian.PutUint32(msg[4:8], key)
	return msg
}

// PointerEventMessage encodes a PointerEvent client message. buttonMask bit N
// is button N+1, pressed when set.
func PointerEventMessage(buttonMask uint8, x, y uint16) []byte {
	msg := make([]byte, 6)
	msg[0] = ClientPointerEvent
	msg[1] = buttonMask
	binary.BigEndian.PutUint16(msg[2:4], x)
	binary.BigEndian.PutUint16(msg[4:6], y)
	return msg
}

// ClientCutTextMessage encodes a ClientCutText message carrying Latin-1 text.
func ClientCutTextMessage(text string) []byte {
	msg := make([]byte, 8+len(text))
	msg[0] = ClientCutText
	// msg[1:4] padding
	binary.BigEndian.PutUint32(msg[4:8], uint32(len(text)))
	copy(msg[8:], text)
	return msg
}
