package rfb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTransportRead indicates a short or failed read from the server
// connection. The current operation is abandoned; whether to reconnect is the
// caller's decision.
var ErrTransportRead = errors.New("rfb: transport read failed")

// TransportError wraps a low-level read failure with the operation that
// triggered it. It matches ErrTransportRead under errors.Is.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rfb: %s: transport read failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransportRead }

// Reader provides the big-endian wire primitives the RFB protocol is built
// from. All multi-byte integers on the wire are big-endian; pixel values are
// the one exception and are handled by PixelFormat instead.
type Reader struct {
	r io.Reader
}

// NewReader wraps r. For live connections r should already be buffered.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// U8 reads one unsigned byte.
func (r *Reader) U8() (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, &TransportError{Op: "read u8", Err: err}
	}
	return buf[0], nil
}

// U16 reads a big-endian unsigned 16-bit integer.
func (r *Reader) U16() (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, &TransportError{Op: "read u16", Err: err}
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// U32 reads a big-endian unsigned 32-bit integer.
func (r *Reader) U32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, &TransportError{Op: "read u32", Err: err}
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// S32 reads a big-endian signed 32-bit integer.
func (r *Reader) S32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// Exact reads exactly n bytes into a fresh slice.
func (r *Reader) Exact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, &TransportError{Op: fmt.Sprintf("read %d bytes", n), Err: err}
	}
	return buf, nil
}

// Full fills buf completely.
func (r *Reader) Full(buf []byte) error {
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return &TransportError{Op: fmt.Sprintf("read %d bytes", len(buf)), Err: err}
	}
	return nil
}

// Skip discards n bytes (padding fields).
func (r *Reader) Skip(n int) error {
	if _, err := io.CopyN(io.Discard, r.r, int64(n)); err != nil {
		return &TransportError{Op: fmt.Sprintf("skip %d bytes", n), Err: err}
	}
	return nil
}
