package handler

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/codec"
	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/vnc"
)

// fakeSession stands in for a live VNC connection.
type fakeSession struct {
	updates   chan []*codec.Update
	events    chan string
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		updates: make(chan []*codec.Update, 4),
		events:  make(chan string, 64),
		closed:  make(chan struct{}),
	}
}

func (f *fakeSession) NextUpdates() ([]*codec.Update, error) {
	select {
	case u := <-f.updates:
		return u, nil
	case <-f.closed:
		return nil, errors.New("use of closed network connection")
	}
}

func (f *fakeSession) RequestUpdate(incremental bool) error {
	f.events <- fmt.Sprintf("refresh:%t", incremental)
	return nil
}

func (f *fakeSession) SendKeyEvent(down bool, key uint32) error {
	f.events <- fmt.Sprintf("key:%t:%d", down, key)
	return nil
}

func (f *fakeSession) SendPointerEvent(buttonMask uint8, x, y uint16) error {
	f.events <- fmt.Sprintf("pointer:%d:%d:%d", buttonMask, x, y)
	return nil
}

func (f *fakeSession) SendCutText(text string) error {
	f.events <- "cut:" + text
	return nil
}

func (f *fakeSession) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func waitEvent(t *testing.T, f *fakeSession) string {
	t.Helper()
	select {
	case e := <-f.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return ""
	}
}

// installFakeDialer routes Connect's dial through the fake and records the
// dial options.
func installFakeDialer(t *testing.T, f *fakeSession, info sessionInfo) *vnc.Options {
	t.Helper()
	var got vnc.Options
	orig := dialVNC
	dialVNC = func(ctx context.Context, opts vnc.Options) (vncSession, sessionInfo, error) {
		got = opts
		return f, info, nil
	}
	t.Cleanup(func() { dialVNC = orig })
	return &got
}

func dialHandler(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/connect?" + query
	ws, err := websocket.Dial(wsURL, "", server.URL)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func receiveFrame(t *testing.T, ws *websocket.Conn) []byte {
	t.Helper()
	var data []byte
	require.NoError(t, websocket.Message.Receive(ws, &data))
	return data
}

func TestConnectStreamsUpdates(t *testing.T) {
	f := newFakeSession()
	gotOpts := installFakeDialer(t, f, sessionInfo{width: 800, height: 600, name: "testvm"})

	server := httptest.NewServer(http.HandlerFunc(Connect))
	defer server.Close()

	ws := dialHandler(t, server, "host=target&port=5901&user=alice&password=secret")

	// Init message first.
	var init initMessage
	require.NoError(t, json.Unmarshal(receiveFrame(t, ws), &init))
	assert.Equal(t, "init", init.Type)
	assert.Equal(t, uint16(800), init.Width)
	assert.Equal(t, uint16(600), init.Height)
	assert.Equal(t, "testvm", init.Name)

	assert.Equal(t, "target", gotOpts.Host)
	assert.Equal(t, 5901, gotOpts.Port)
	assert.Equal(t, "alice", gotOpts.Username)
	assert.Equal(t, "secret", gotOpts.Password)

	// The handler requests a full update up front.
	assert.Equal(t, "refresh:false", waitEvent(t, f))

	f.updates <- []*codec.Update{{
		Kind: codec.UpdatePixels, X: 1, Y: 2, Width: 2, Height: 1,
		Pixels: []byte{1, 2, 3, 255, 4, 5, 6, 255},
	}}

	frame := receiveFrame(t, ws)
	require.Len(t, frame, 12+8)
	assert.Equal(t, frameKindPixels, frame[0])
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(frame[2:4]))
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(frame[4:6]))
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(frame[6:8]))
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(frame[8:10]))
	assert.Equal(t, []byte{1, 2, 3, 255, 4, 5, 6, 255}, frame[12:])

	// Each delivered batch triggers an incremental follow-up request.
	assert.Equal(t, "refresh:true", waitEvent(t, f))
}

func TestConnectForwardsInput(t *testing.T) {
	f := newFakeSession()
	installFakeDialer(t, f, sessionInfo{width: 100, height: 100})

	server := httptest.NewServer(http.HandlerFunc(Connect))
	defer server.Close()

	ws := dialHandler(t, server, "host=target")
	receiveFrame(t, ws) // init
	assert.Equal(t, "refresh:false", waitEvent(t, f))

	key := []byte{inputKeyEvent, 1, 0, 0, 0, 0x61}
	require.NoError(t, websocket.Message.Send(ws, key))
	assert.Equal(t, "key:true:97", waitEvent(t, f))

	pointer := []byte{inputPointerEvent, 1, 0, 10, 0, 20}
	require.NoError(t, websocket.Message.Send(ws, pointer))
	assert.Equal(t, "pointer:1:10:20", waitEvent(t, f))

	cut := append([]byte{inputCutText}, "hello"...)
	require.NoError(t, websocket.Message.Send(ws, cut))
	assert.Equal(t, "cut:hello", waitEvent(t, f))

	refresh := []byte{inputRefresh, 1}
	require.NoError(t, websocket.Message.Send(ws, refresh))
	assert.Equal(t, "refresh:true", waitEvent(t, f))
}

func TestConnectClosesSessionWhenBrowserLeaves(t *testing.T) {
	f := newFakeSession()
	installFakeDialer(t, f, sessionInfo{width: 100, height: 100})

	server := httptest.NewServer(http.HandlerFunc(Connect))
	defer server.Close()

	ws := dialHandler(t, server, "host=target")
	receiveFrame(t, ws) // init
	require.NoError(t, ws.Close())

	select {
	case <-f.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("session not closed after websocket disconnect")
	}
}

func TestConnectRequiresHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(Connect))
	defer server.Close()

	resp, err := http.Get(server.URL + "/connect")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConnectRejectsBadPort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(Connect))
	defer server.Close()

	resp, err := http.Get(server.URL + "/connect?host=target&port=99999")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConnectDialFailure(t *testing.T) {
	orig := dialVNC
	dialVNC = func(ctx context.Context, opts vnc.Options) (vncSession, sessionInfo, error) {
		return nil, sessionInfo{}, errors.New("connection refused")
	}
	t.Cleanup(func() { dialVNC = orig })

	server := httptest.NewServer(http.HandlerFunc(Connect))
	defer server.Close()

	ws := dialHandler(t, server, "host=unreachable")

	var data []byte
	err := websocket.Message.Receive(ws, &data)
	assert.Error(t, err)
}

func TestUpdateFrameVariants(t *testing.T) {
	copyFrame := updateFrame(&codec.Update{
		Kind: codec.UpdateCopy, X: 5, Y: 6, Width: 7, Height: 8, SrcX: 9, SrcY: 10,
	})
	require.Len(t, copyFrame, 16)
	assert.Equal(t, frameKindCopy, copyFrame[0])
	assert.Equal(t, uint16(9), binary.BigEndian.Uint16(copyFrame[12:14]))
	assert.Equal(t, uint16(10), binary.BigEndian.Uint16(copyFrame[14:16]))

	resizeFrame := updateFrame(&codec.Update{Kind: codec.UpdateResize, Width: 1024, Height: 768})
	require.Len(t, resizeFrame, 12)
	assert.Equal(t, frameKindResize, resizeFrame[0])
	assert.Equal(t, uint16(1024), binary.BigEndian.Uint16(resizeFrame[6:8]))

	cursorFrame := updateFrame(&codec.Update{
		Kind: codec.UpdateCursor, Width: 1, Height: 1, Pixels: []byte{1, 2, 3, 255},
	})
	require.Len(t, cursorFrame, 16)
	assert.Equal(t, frameKindCursor, cursorFrame[0])
}

func TestHandleInputValidation(t *testing.T) {
	b := &bridge{session: newFakeSession()}

	assert.NoError(t, b.handleInput(nil))
	assert.Error(t, b.handleInput([]byte{inputKeyEvent, 1}))
	assert.Error(t, b.handleInput([]byte{inputPointerEvent}))
	assert.Error(t, b.handleInput([]byte{0x7F}))
}

func TestIsAllowedOrigin(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "")
	assert.True(t, isAllowedOrigin("http://example.com"))
	assert.False(t, isAllowedOrigin(""))

	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com")
	assert.True(t, isAllowedOrigin("https://app.example.com"))
	assert.True(t, isAllowedOrigin("http://localhost:3000"))
	assert.False(t, isAllowedOrigin("https://evil.example.net"))
}
