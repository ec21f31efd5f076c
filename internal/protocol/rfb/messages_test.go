package rfb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProtocolVersion(t *testing.T) {
	v, err := ParseProtocolVersion([]byte("RFB 003.008\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, v.Major)
	assert.Equal(t, 8, v.Minor)
	assert.True(t, v.AtLeast(3, 7))
	assert.True(t, v.AtLeast(3, 8))
	assert.False(t, v.AtLeast(4, 0))
	assert.Equal(t, []byte("RFB 003.008\n"), v.Bytes())

	v, err = ParseProtocolVersion([]byte("RFB 003.003\n"))
	require.NoError(t, err)
	assert.False(t, v.AtLeast(3, 7))

	_, err = ParseProtocolVersion([]byte("RFB 3.8\n"))
	assert.Error(t, err)

	_, err = ParseProtocolVersion([]byte("HTTP 001.001\n"))
	assert.Error(t, err)
}

func TestReadRectangleHeader(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{
		0x00, 0x0A, // x=10
		0x00, 0x14, // y=20
		0x00, 0x40, // w=64
		0x00, 0x30, // h=48
		0x00, 0x00, 0x00, 0x10, // ZRLE
	}))

	rect, err := ReadRectangleHeader(r)
	require.NoError(t, err)
	assert.Equal(t, Rectangle{X: 10, Y: 20, Width: 64, Height: 48, EncodingType: EncodingZRLE}, rect)
	assert.Equal(t, 64*48, rect.Area())
}

func TestReadRectangleHeaderShort(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x00, 0x0A, 0x00}))
	_, err := ReadRectangleHeader(r)
	assert.ErrorIs(t, err, ErrTransportRead)
}

func TestReadServerInit(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x04, 0x00}) // width 1024
	buf.Write([]byte{0x03, 0x00}) // height 768
	pf := DefaultPixelFormat.Bytes()
	buf.Write(pf[:])
	buf.Write([]byte{0x00, 0x00, 0x00, 0x04})
	buf.WriteString("mac1")

	si, err := ReadServerInit(NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, uint16(1024), si.Width)
	assert.Equal(t, uint16(768), si.Height)
	assert.Equal(t, DefaultPixelFormat, si.PixelFormat)
	assert.Equal(t, "mac1", si.Name)
}

func TestReadServerInitRejectsHugeName(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x10, 0x00, 0x10})
	pf := DefaultPixelFormat.Bytes()
	buf.Write(pf[:])
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	_, err := ReadServerInit(NewReader(&buf))
	assert.Error(t, err)
}

func TestSetEncodingsMessage(t *testing.T) {
	msg := SetEncodingsMessage([]int32{EncodingZRLE, EncodingRaw, EncodingCursor})

	require.Len(t, msg, 4+12)
	assert.Equal(t, ClientSetEncodings, msg[0])
	assert.Equal(t, []byte{0x00, 0x03}, msg[2:4])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x10}, msg[4:8])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, msg[8:12])
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0x11}, msg[12:16])
}

func TestFramebufferUpdateRequestMessage(t *testing.T) {
	msg := FramebufferUpdateRequestMessage(true, 1, 2, 640, 480)

	require.Len(t, msg, 10)
	assert.Equal(t, ClientFramebufferUpdateRequest, msg[0])
	assert.Equal(t, uint8(1), msg[1])
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x02, 0x02, 0x80, 0x01, 0xE0}, msg[2:])

	full := FramebufferUpdateRequestMessage(false, 0, 0, 640, 480)
	assert.Equal(t, uint8(0), full[1])
}

func TestInputEventMessages(t *testing.T) {
	key := KeyEventMessage(true, 0xFF0D) // Return keysym
	require.Len(t, key, 8)
	assert.Equal(t, ClientKeyEvent, key[0])
	assert.Equal(t, uint8(1), key[1])
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x0D}, key[4:])

	ptr := PointerEventMessage(0x01, 100, 200)
	require.Len(t, ptr, 6)
	assert.Equal(t, ClientPointerEvent, ptr[0])
	assert.Equal(t, uint8(0x01), ptr[1])
	assert.Equal(t, []byte{0x00, 0x64, 0x00, 0xC8}, ptr[2:])

	cut := ClientCutTextMessage("hi")
	require.Len(t, cut, 10)
	assert.Equal(t, ClientCutText, cut[0])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x02}, cut[4:8])
	assert.Equal(t, "hi", string(cut[8:]))
}

func TestSetPixelFormatMessage(t *testing.T) {
	msg := SetPixelFormatMessage(DefaultPixelFormat)

	require.Len(t, msg, 20)
	assert.Equal(t, ClientSetPixelFormat, msg[0])
	pf, err := ParsePixelFormat(msg[4:])
	require.NoError(t, err)
	assert.Equal(t, DefaultPixelFormat, pf)
}
