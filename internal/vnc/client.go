// Package vnc implements the client side of the RFB protocol: the version
// and security handshakes, framebuffer update streaming, and input events.
package vnc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/codec"
	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/logging"
	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/protocol/rfb"
)

const (
	defaultPort           = 5900
	defaultConnectTimeout = 5 * time.Second
	defaultBufferSize     = 65536
)

// Options configure one outbound VNC connection.
type Options struct {
	Host string
	Port int
	// Username is only consumed by Apple Remote Desktop authentication.
	Username string
	Password string
	// Shared requests that the server keep other clients connected.
	Shared         bool
	ConnectTimeout time.Duration
	BufferSize     int
}

func (o Options) address() string {
	port := o.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(o.Host, strconv.Itoa(port))
}

// Client is one live VNC connection. The update loop must run on a single
// goroutine; input senders may be called from others.
type Client struct {
	conn    net.Conn
	r       *rfb.Reader
	writeMu sync.Mutex
	opts    Options
	log     *logging.Logger

	version rfb.ProtocolVersion
	init    *rfb.ServerInit

	decoder       *codec.Decoder
	width, height uint16

	// OnBell and OnCutText observe out-of-band server messages seen while
	// waiting for framebuffer updates. Optional.
	OnBell    func()
	OnCutText func(text string)
}

// Dial connects to the server and returns an unhandshaken client.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	timeout := opts.ConnectTimeout
	if timeout == 0 {
		timeout = defaultConnectTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", opts.address())
	if err != nil {
		return nil, fmt.Errorf("vnc: dial %s: %w", opts.address(), err)
	}
	return NewClient(conn, opts), nil
}

// NewClient wraps an established connection. Useful for tests and tunneled
// transports.
func NewClient(conn net.Conn, opts Options) *Client {
	size := opts.BufferSize
	if size == 0 {
		size = defaultBufferSize
	}
	return &Client{
		conn: conn,
		r:    rfb.NewReader(bufio.NewReaderSize(conn, size)),
		opts: opts,
		log:  logging.Default(),
	}
}

// Close terminates the connection. Any blocked read fails with a transport
// error, which is also how callers cancel the update loop.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Version is the negotiated protocol version.
func (c *Client) Version() rfb.ProtocolVersion {
	return c.version
}

// DesktopName is the name the server announced in ServerInit.
func (c *Client) DesktopName() string {
	if c.init == nil {
		return ""
	}
	return c.init.Name
}

// Width is the current framebuffer width, tracking DesktopSize updates.
func (c *Client) Width() uint16 {
	return c.width
}

// Height is the current framebuffer height.
func (c *Client) Height() uint16 {
	return c.height
}

func (c *Client) send(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(msg); err != nil {
		return fmt.Errorf("vnc: write: %w", err)
	}
	return nil
}
