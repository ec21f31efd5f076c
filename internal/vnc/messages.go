package vnc

import (
	"fmt"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/codec"
	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/protocol/rfb"
)

// maxCutTextLen bounds server clipboard payloads.
const maxCutTextLen = 1 << 20

// RequestUpdate asks the server for the whole framebuffer. Incremental
// requests only fetch regions changed since the last update.
func (c *Client) RequestUpdate(incremental bool) error {
	return c.send(rfb.FramebufferUpdateRequestMessage(incremental, 0, 0, c.width, c.height))
}

// NextUpdates blocks until the next FramebufferUpdate message and returns
// its decoded rectangles in wire order. Colour map changes are applied to
// the decoder; Bell and ServerCutText invoke their handlers and the wait
// continues.
func (c *Client) NextUpdates() ([]*codec.Update, error) {
	for {
		msgType, err := c.r.U8()
		if err != nil {
			return nil, err
		}

		switch msgType {
		case rfb.ServerFramebufferUpdate:
			return c.readFramebufferUpdate()
		case rfb.ServerSetColourMapEntries:
			if err := c.readColourMapEntries(); err != nil {
				return nil, err
			}
		case rfb.ServerBell:
			if c.OnBell != nil {
				c.OnBell()
			}
		case rfb.ServerCutText:
			text, err := c.readCutText()
			if err != nil {
				return nil, err
			}
			if c.OnCutText != nil {
				c.OnCutText(text)
			}
		default:
			return nil, fmt.Errorf("vnc: unknown server message type %d", msgType)
		}
	}
}

func (c *Client) readFramebufferUpdate() ([]*codec.Update, error) {
	if err := c.r.Skip(1); err != nil {
		return nil, err
	}
	count, err := c.r.U16()
	if err != nil {
		return nil, err
	}

	updates := make([]*codec.Update, 0, count)
	for i := 0; i < int(count); i++ {
		rect, err := rfb.ReadRectangleHeader(c.r)
		if err != nil {
			return nil, err
		}
		u, err := c.decoder.Decode(c.r, rect)
		if err != nil {
			return nil, fmt.Errorf("rectangle %d/%d at (%d,%d): %w", i+1, count, rect.X, rect.Y, err)
		}
		if u.Kind == codec.UpdateResize {
			c.log.Info("desktop resized to %dx%d", u.Width, u.Height)
			c.width, c.height = u.Width, u.Height
		}
		updates = append(updates, u)
	}
	return updates, nil
}

func (c *Client) readColourMapEntries() error {
	if err := c.r.Skip(1); err != nil {
		return err
	}
	first, err := c.r.U16()
	if err != nil {
		return err
	}
	count, err := c.r.U16()
	if err != nil {
		return err
	}

	colors := make([]rfb.Color, count)
	for i := range colors {
		var channels [3]uint16
		for j := range channels {
			if channels[j], err = c.r.U16(); err != nil {
				return err
			}
		}
		// Colour map entries are 16 bits per channel on the wire.
		colors[i] = rfb.Color{
			R: uint8(channels[0] >> 8),
			G: uint8(channels[1] >> 8),
			B: uint8(channels[2] >> 8),
		}
	}
	c.decoder.SetColorMapEntries(first, colors)
	return nil
}

func (c *Client) readCutText() (string, error) {
	if err := c.r.Skip(3); err != nil {
		return "", err
	}
	length, err := c.r.U32()
	if err != nil {
		return "", err
	}
	if length > maxCutTextLen {
		return "", fmt.Errorf("vnc: cut text length %d exceeds %d", length, maxCutTextLen)
	}
	text, err := c.r.Exact(int(length))
	if err != nil {
		return "", err
	}
	return string(text), nil
}

// SendKeyEvent reports a key press or release. key is an X11 keysym.
func (c *Client) SendKeyEvent(down bool, key uint32) error {
	return c.send(rfb.KeyEventMessage(down, key))
}

// SendPointerEvent reports pointer position and button state. Bit N of
// buttonMask is button N+1.
func (c *Client) SendPointerEvent(buttonMask uint8, x, y uint16) error {
	return c.send(rfb.PointerEventMessage(buttonMask, x, y))
}

// SendCutText publishes clipboard text to the server.
func (c *Client) SendCutText(text string) error {
	return c.send(rfb.ClientCutTextMessage(text))
}
