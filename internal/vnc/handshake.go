package vnc

import (
	"encoding/binary"
	"fmt"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/auth"
	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/codec"
	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/protocol/rfb"
)

// defaultEncodings is the preference list sent after initialization, most
// preferred first. Pseudo-encodings come last; their position carries no
// preference.
var defaultEncodings = []int32{
	rfb.EncodingZRLE,
	rfb.EncodingHextile,
	rfb.EncodingZlib,
	rfb.EncodingRRE,
	rfb.EncodingJPEG,
	rfb.EncodingCopyRect,
	rfb.EncodingRaw,
	rfb.EncodingCursor,
	rfb.EncodingDesktopSize,
}

// Handshake drives the connection from the version banner through
// initialization. On return the server is streaming on request.
func (c *Client) Handshake() error {
	if err := c.negotiateVersion(); err != nil {
		return err
	}
	if err := c.negotiateSecurity(); err != nil {
		return err
	}
	if err := c.initialize(); err != nil {
		return err
	}
	c.log.Info("VNC session established with %q (%dx%d, protocol %s)",
		c.init.Name, c.width, c.height, c.version)
	return nil
}

func (c *Client) negotiateVersion() error {
	banner, err := c.r.Exact(12)
	if err != nil {
		return err
	}
	server, err := rfb.ParseProtocolVersion(banner)
	if err != nil {
		return err
	}
	if !server.AtLeast(3, 3) {
		return fmt.Errorf("vnc: unsupported protocol version %s", server)
	}

	// Answer with the highest version both sides speak, capped at 3.8.
	chosen := rfb.ProtocolVersion{Major: 3, Minor: 8}
	if !server.AtLeast(3, 8) {
		chosen.Minor = 3
		if server.AtLeast(3, 7) {
			chosen.Minor = 7
		}
	}
	c.version = chosen
	c.log.Debug("server speaks RFB %s, answering %s", server, chosen)
	return c.send(chosen.Bytes())
}

func (c *Client) negotiateSecurity() error {
	if c.version.AtLeast(3, 7) {
		return c.negotiateSecurityList()
	}
	return c.negotiateSecurityLegacy()
}

// negotiateSecurityLegacy covers RFB 3.3, where the server dictates a single
// security type as a u32 and no selection is sent back.
func (c *Client) negotiateSecurityLegacy() error {
	t, err := c.r.U32()
	if err != nil {
		return err
	}
	switch auth.SecurityType(t) {
	case auth.SecurityTypeInvalid:
		reason, err := c.readReason()
		if err != nil {
			return err
		}
		return &auth.FailedError{Status: 1, Reason: reason}
	case auth.SecurityTypeNone:
		// 3.3 sends no SecurityResult for type None.
		return nil
	case auth.SecurityTypeVNCAuth:
		return c.vncAuth()
	default:
		return fmt.Errorf("%w: server dictated security type %d on RFB 3.3",
			auth.ErrProtocolViolation, t)
	}
}

// negotiateSecurityList covers RFB 3.7 and 3.8, where the server offers a
// list and the client answers with one byte.
func (c *Client) negotiateSecurityList() error {
	count, err := c.r.U8()
	if err != nil {
		return err
	}
	if count == 0 {
		reason, err := c.readReason()
		if err != nil {
			return err
		}
		return &auth.FailedError{Status: 1, Reason: reason}
	}

	raw, err := c.r.Exact(int(count))
	if err != nil {
		return err
	}
	offered := make([]auth.SecurityType, len(raw))
	for i, b := range raw {
		offered[i] = auth.SecurityType(b)
	}

	selected, ok := auth.SelectSecurityType(offered)
	if !ok {
		return fmt.Errorf("%w: empty security type list", auth.ErrProtocolViolation)
	}
	switch selected {
	case auth.SecurityTypeNone, auth.SecurityTypeVNCAuth, auth.SecurityTypeAppleRemoteDesktop:
	default:
		return fmt.Errorf("vnc: cannot complete any offered security type %v", offered)
	}

	c.log.Debug("selected security type %s from %v", selected, offered)
	if err := c.send([]byte{byte(selected)}); err != nil {
		return err
	}

	switch selected {
	case auth.SecurityTypeNone:
		// 3.7 ends here; 3.8 still sends a SecurityResult.
		if !c.version.AtLeast(3, 8) {
			return nil
		}
		return c.readSecurityResult()
	case auth.SecurityTypeVNCAuth:
		return c.vncAuth()
	default:
		return c.ardAuth()
	}
}

func (c *Client) vncAuth() error {
	challenge, err := c.r.Exact(16)
	if err != nil {
		return err
	}
	response, err := auth.VNCAuthResponse(c.opts.Password, challenge)
	if err != nil {
		return err
	}
	if err := c.send(response); err != nil {
		return err
	}
	return c.readSecurityResult()
}

func (c *Client) ardAuth() error {
	header, err := c.r.Exact(4)
	if err != nil {
		return err
	}
	keyLen := int(binary.BigEndian.Uint16(header[2:4]))
	body, err := c.r.Exact(2 * keyLen)
	if err != nil {
		return err
	}

	params, err := auth.ParseARDServerParams(append(header, body...))
	if err != nil {
		return err
	}
	response, err := auth.ARDAuthenticate(params, c.opts.Username, c.opts.Password)
	if err != nil {
		return err
	}

	msg := make([]byte, 0, len(response.Ciphertext)+len(response.ClientPublicKey))
	msg = append(msg, response.Ciphertext[:]...)
	msg = append(msg, response.ClientPublicKey...)
	if err := c.send(msg); err != nil {
		return err
	}
	return c.readSecurityResult()
}

// readSecurityResult reads the SecurityResult message and maps it to an
// error. On RFB 3.8 a failure carries a reason string.
func (c *Client) readSecurityResult() error {
	result, err := c.r.Exact(4)
	if err != nil {
		return err
	}
	if binary.BigEndian.Uint32(result) == 1 && c.version.AtLeast(3, 8) {
		length, err := c.r.U32()
		if err != nil {
			return err
		}
		reason, err := c.r.Exact(int(length))
		if err != nil {
			return err
		}
		result = append(result, 0, 0, 0, 0)
		binary.BigEndian.PutUint32(result[4:8], length)
		result = append(result, reason...)
	}
	return auth.ParseSecurityResult(result)
}

// readReason reads a u32-length-prefixed failure reason.
func (c *Client) readReason() (string, error) {
	length, err := c.r.U32()
	if err != nil {
		return "", err
	}
	reason, err := c.r.Exact(int(length))
	if err != nil {
		return "", err
	}
	return string(reason), nil
}

func (c *Client) initialize() error {
	shared := byte(0)
	if c.opts.Shared {
		shared = 1
	}
	if err := c.send([]byte{shared}); err != nil {
		return err
	}

	init, err := rfb.ReadServerInit(c.r)
	if err != nil {
		return err
	}
	c.init = init
	c.width = init.Width
	c.height = init.Height

	// All decoding happens in our requested format, not the server's
	// native one.
	if c.decoder, err = codec.New(rfb.DefaultPixelFormat); err != nil {
		return err
	}
	if err := c.send(rfb.SetPixelFormatMessage(rfb.DefaultPixelFormat)); err != nil {
		return err
	}
	return c.send(rfb.SetEncodingsMessage(defaultEncodings))
}
