// Package handler bridges browser websocket connections to VNC servers:
// decoded framebuffer updates stream out as binary frames, input events
// stream back in.
package handler

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/codec"
	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/config"
	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/logging"
	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/vnc"
)

// Frame kinds in the binary update framing sent to the browser. Each frame
// is a 12-byte header (kind u8, pad u8, x, y, width, height, reserved u16,
// all big-endian) followed by the payload: RGBA pixels for pixel and cursor
// frames, srcX+srcY for copy frames, nothing for resize frames.
const (
	frameKindPixels byte = 0
	frameKindCopy   byte = 1
	frameKindCursor byte = 2
	frameKindResize byte = 3
)

// Input message types received from the browser.
const (
	inputKeyEvent     byte = 0
	inputPointerEvent byte = 1
	inputCutText      byte = 2
	inputRefresh      byte = 3
)

// vncSession is the slice of the VNC client the bridge needs. Narrowed so
// tests can substitute a fake.
type vncSession interface {
	NextUpdates() ([]*codec.Update, error)
	RequestUpdate(incremental bool) error
	SendKeyEvent(down bool, key uint32) error
	SendPointerEvent(buttonMask uint8, x, y uint16) error
	SendCutText(text string) error
	Close() error
}

type sessionInfo struct {
	width, height uint16
	name          string
}

// dialVNC is swapped out in tests.
var dialVNC = func(ctx context.Context, opts vnc.Options) (vncSession, sessionInfo, error) {
	client, err := vnc.Dial(ctx, opts)
	if err != nil {
		return nil, sessionInfo{}, err
	}
	if err := client.Handshake(); err != nil {
		client.Close()
		return nil, sessionInfo{}, err
	}
	info := sessionInfo{width: client.Width(), height: client.Height(), name: client.DesktopName()}
	return client, info, nil
}

// Connect upgrades the request to a websocket and proxies it to the VNC
// server named in the query parameters (host, port, user, password).
func Connect(w http.ResponseWriter, r *http.Request) {
	log := logging.Default()

	origin := r.Header.Get("Origin")
	if origin != "" && !isAllowedOrigin(origin) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	host := r.URL.Query().Get("host")
	if host == "" {
		http.Error(w, "host parameter is required", http.StatusBadRequest)
		return
	}
	port := 0
	if portStr := r.URL.Query().Get("port"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil || p < 1 || p > 65535 {
			http.Error(w, "invalid port parameter", http.StatusBadRequest)
			return
		}
		port = p
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || isAllowedOrigin(o)
		},
	}
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("upgrade websocket: %v", err)
		return
	}
	defer wsConn.Close()

	cfg := config.GetGlobalConfig()
	if cfg == nil {
		if cfg, err = config.Load(); err != nil {
			log.Error("load config: %v", err)
			return
		}
	}

	opts := vnc.Options{
		Host:           host,
		Port:           port,
		Username:       r.URL.Query().Get("user"),
		Password:       r.URL.Query().Get("password"),
		Shared:         cfg.VNC.Shared,
		ConnectTimeout: cfg.VNC.ConnectTimeout,
		BufferSize:     cfg.VNC.BufferSize,
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, info, err := dialVNC(ctx, opts)
	if err != nil {
		log.Error("vnc connect to %s: %v", host, err)
		writeCloseError(wsConn, err)
		return
	}
	defer session.Close()

	// Unblock the update pump's read when the browser side goes away.
	go func() {
		<-ctx.Done()
		session.Close()
	}()

	b := &bridge{ws: wsConn, session: session, log: log}
	if err := b.sendJSON(initMessage{
		Type:   "init",
		Width:  info.width,
		Height: info.height,
		Name:   info.name,
	}); err != nil {
		log.Error("send init: %v", err)
		return
	}
	if err := session.RequestUpdate(false); err != nil {
		log.Error("initial update request: %v", err)
		return
	}

	go b.wsToVNC(ctx, cancel)
	b.vncToWS(ctx)
}

type initMessage struct {
	Type   string `json:"type"`
	Width  uint16 `json:"width"`
	Height uint16 `json:"height"`
	Name   string `json:"name"`
}

type bridge struct {
	ws      *websocket.Conn
	wsMu    sync.Mutex
	session vncSession
	log     *logging.Logger
}

func (b *bridge) sendJSON(v interface{}) error {
	b.wsMu.Lock()
	defer b.wsMu.Unlock()
	return b.ws.WriteJSON(v)
}

func (b *bridge) sendBinary(data []byte) error {
	b.wsMu.Lock()
	defer b.wsMu.Unlock()
	return b.ws.WriteMessage(websocket.BinaryMessage, data)
}

// vncToWS pumps decoded updates to the browser until either side drops.
func (b *bridge) vncToWS(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := b.session.NextUpdates()
		if err != nil {
			if !isClosedError(err) {
				b.log.Error("get updates: %v", err)
			}
			return
		}

		for _, u := range updates {
			if err := b.sendBinary(updateFrame(u)); err != nil {
				if err != websocket.ErrCloseSent && !isClosedError(err) {
					b.log.Error("send update: %v", err)
				}
				return
			}
		}

		if err := b.session.RequestUpdate(true); err != nil {
			b.log.Error("request update: %v", err)
			return
		}
	}
}

// wsToVNC pumps browser input events to the VNC server.
func (b *bridge) wsToVNC(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := b.ws.ReadMessage()
		if err != nil {
			if err != io.EOF && !isClosedError(err) && !websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.log.Error("read input message: %v", err)
			}
			return
		}

		if err := b.handleInput(data); err != nil {
			b.log.Error("forward input: %v", err)
			return
		}
	}
}

func (b *bridge) handleInput(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case inputKeyEvent:
		if len(data) < 6 {
			return fmt.Errorf("handler: key event needs 6 bytes, have %d", len(data))
		}
		return b.session.SendKeyEvent(data[1] != 0, binary.BigEndian.Uint32(data[2:6]))
	case inputPointerEvent:
		if len(data) < 6 {
			return fmt.Errorf("handler: pointer event needs 6 bytes, have %d", len(data))
		}
		return b.session.SendPointerEvent(data[1],
			binary.BigEndian.Uint16(data[2:4]), binary.BigEndian.Uint16(data[4:6]))
	case inputCutText:
		return b.session.SendCutText(string(data[1:]))
	case inputRefresh:
		incremental := len(data) > 1 && data[1] != 0
		return b.session.RequestUpdate(incremental)
	default:
		return fmt.Errorf("handler: unknown input message type %d", data[0])
	}
}

// updateFrame serializes one decoded update into the wire framing.
func updateFrame(u *codec.Update) []byte {
	kind := frameKindPixels
	var payload []byte
	switch u.Kind {
	case codec.UpdateCopy:
		kind = frameKindCopy
		payload = make([]byte, 4)
		binary.BigEndian.PutUint16(payload[0:2], u.SrcX)
		binary.BigEndian.PutUint16(payload[2:4], u.SrcY)
	case codec.UpdateCursor:
		kind = frameKindCursor
		payload = u.Pixels
	case codec.UpdateResize:
		kind = frameKindResize
	default:
		payload = u.Pixels
	}

	frame := make([]byte, 12+len(payload))
	frame[0] = kind
	binary.BigEndian.PutUint16(frame[2:4], u.X)
	binary.BigEndian.PutUint16(frame[4:6], u.Y)
	binary.BigEndian.PutUint16(frame[6:8], u.Width)
	binary.BigEndian.PutUint16(frame[8:10], u.Height)
	copy(frame[12:], payload)
	return frame
}

func writeCloseError(wsConn *websocket.Conn, err error) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
	_ = wsConn.WriteMessage(websocket.CloseMessage, msg)
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}

func isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}

	normalized := strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://")
	normalized = strings.TrimSuffix(normalized, "/")

	allowed := os.Getenv("ALLOWED_ORIGINS")
	if allowed == "" {
		return true
	}

	if strings.HasPrefix(normalized, "localhost") || strings.HasPrefix(normalized, "127.0.0.1") {
		return true
	}

	for _, entry := range strings.Split(allowed, ",") {
		candidate := strings.TrimSpace(entry)
		if candidate == "" {
			continue
		}
		if candidate == origin || candidate == normalized {
			return true
		}
		if strings.TrimPrefix(candidate, "http://") == normalized || strings.TrimPrefix(candidate, "https://") == normalized {
			return true
		}
	}

	return false
}
