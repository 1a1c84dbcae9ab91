// thefox is a lightweight message bus providing remote method
// invocation between processes.
//
// (c) 2024, xrw67.
// Use of this source is governed by MIT license that
// can be found in the LICENSE file.

/*
Package wire implements the framed binary protocol of the bus.

Every frame is length-prefixed so a receiver reads the 4-byte prefix
first and then exactly the announced number of bytes. The layout is
fixed and big-endian, it is the compatibility contract between
independently built clients and servers:

	[frame_len u32][kind u8][request_id u64]
	[method_len u16][method]      -- Register and Request frames only
	[entry_count u32]{[key_len u16][key][val_len u32][val]}*

frame_len counts every byte after the length prefix itself.
*/
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Kind tells the receiver how to dispatch a frame.
type Kind uint8

const (
	KindRegister Kind = iota + 1 // method registration, acked with a Response
	KindRequest                  // method call
	KindResponse                 // successful call outcome
	KindError                    // failed call outcome
)

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "Register"
	case KindRequest:
		return "Request"
	case KindResponse:
		return "Response"
	case KindError:
		return "Error"
	}

	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// MaxFrameSize limits a single frame body. A peer announcing more
// than this is treated as a protocol violation and disconnected.
const MaxFrameSize = 4 << 20

// minBodySize is kind + request id + entry count.
const minBodySize = 1 + 8 + 4

// Error frames carry their description as ordinary payload entries
// under reserved keys, the frame layout has no free-form status field.
const (
	ErrorKey = "error"
	CodeKey  = "code"
)

// Well-known error codes put under CodeKey.
const (
	CodeMethodNotFound = "method_not_found"
	CodeConnClosed     = "conn_closed"
	CodeHandlerError   = "handler_error"
	CodeRateLimited    = "rate_limited"
	CodeProtocol       = "protocol"
)

var (
	ErrMalformed   = fmt.Errorf("malformed frame")
	ErrFrameTooBig = fmt.Errorf("frame is too big")
)

// Entry is a single key-value pair of a frame payload. Entry order is
// preserved by the codec so serialization stays deterministic.
type Entry struct {
	Key   string
	Value string
}

// Frame is one decoded protocol unit.
type Frame struct {
	Kind    Kind
	ID      uint64
	Method  string // meaningful for Register and Request frames only
	Entries []Entry
}

func (f *Frame) hasMethod() bool {
	return f.Kind == KindRegister || f.Kind == KindRequest
}

func (f *Frame) bodySize() int {
	n := minBodySize

	if f.hasMethod() {
		n += 2 + len(f.Method)
	}

	for _, e := range f.Entries {
		n += 2 + len(e.Key) + 4 + len(e.Value)
	}

	return n
}

// Encode writes one complete frame to w with a single Write call, so
// a caller serializing writers by a mutex never interleaves frames.
func Encode(w io.Writer, f *Frame) error {
	if f.Kind < KindRegister || f.Kind > KindError {
		return fmt.Errorf("%w: unknown kind %d", ErrMalformed, uint8(f.Kind))
	}

	if f.hasMethod() && len(f.Method) > 0xFFFF {
		return fmt.Errorf("%w: method name of %d bytes", ErrFrameTooBig,
			len(f.Method))
	}

	body := f.bodySize()
	if body > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooBig, body)
	}

	buf := make([]byte, 4+body)

	binary.BigEndian.PutUint32(buf[0:4], uint32(body))
	buf[4] = byte(f.Kind)
	binary.BigEndian.PutUint64(buf[5:13], f.ID)
	off := 13

	if f.hasMethod() {
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(f.Method)))
		off += 2
		off += copy(buf[off:], f.Method)
	}

	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(f.Entries)))
	off += 4

	for _, e := range f.Entries {
		if len(e.Key) > 0xFFFF {
			return fmt.Errorf("%w: entry key of %d bytes", ErrFrameTooBig,
				len(e.Key))
		}

		binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(e.Key)))
		off += 2
		off += copy(buf[off:], e.Key)

		binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(e.Value)))
		off += 4
		off += copy(buf[off:], e.Value)
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("frame write: %w", err)
	}

	return nil
}

// Decode reads exactly one frame from r.
//
// Read errors of the underlying stream are returned as is (io.EOF on
// a clean peer close). A frame violating the protocol returns an
// error wrapping ErrMalformed or ErrFrameTooBig; the stream position
// is undefined afterwards, so the connection must be dropped.
func Decode(r io.Reader) (*Frame, error) {
	var prefix [4]byte

	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	body := binary.BigEndian.Uint32(prefix[:])
	if body < minBodySize {
		return nil, fmt.Errorf("%w: body of %d bytes", ErrMalformed, body)
	}

	if body > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooBig, body)
	}

	buf := make([]byte, body)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: truncated body: %v", ErrMalformed, err)
	}

	f := &Frame{
		Kind: Kind(buf[0]),
		ID:   binary.BigEndian.Uint64(buf[1:9]),
	}

	if f.Kind < KindRegister || f.Kind > KindError {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrMalformed, buf[0])
	}

	off := 9

	if f.hasMethod() {
		if off+2 > len(buf) {
			return nil, fmt.Errorf("%w: truncated method length", ErrMalformed)
		}

		mLen := int(binary.BigEndian.Uint16(buf[off : off+2]))
		off += 2

		if off+mLen > len(buf) {
			return nil, fmt.Errorf("%w: truncated method", ErrMalformed)
		}

		f.Method = string(buf[off : off+mLen])
		off += mLen
	}

	if off+4 > len(buf) {
		return nil, fmt.Errorf("%w: truncated entry count", ErrMalformed)
	}

	count := int(binary.BigEndian.Uint32(buf[off : off+4]))
	off += 4

	// 6 is the least bytes a single entry occupies, checking up front
	// keeps a lying entry count from a huge allocation
	if count > 0 {
		if count > (len(buf)-off)/6 {
			return nil, fmt.Errorf("%w: entry count %d overruns the body",
				ErrMalformed, count)
		}

		f.Entries = make([]Entry, 0, count)
	}

	for i := 0; i < count; i++ {
		if off+2 > len(buf) {
			return nil, fmt.Errorf("%w: truncated key length", ErrMalformed)
		}

		kLen := int(binary.BigEndian.Uint16(buf[off : off+2]))
		off += 2

		if off+kLen > len(buf) {
			return nil, fmt.Errorf("%w: truncated key", ErrMalformed)
		}

		key := string(buf[off : off+kLen])
		off += kLen

		if off+4 > len(buf) {
			return nil, fmt.Errorf("%w: truncated value length", ErrMalformed)
		}

		vLen := int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4

		if vLen > len(buf)-off {
			return nil, fmt.Errorf("%w: truncated value", ErrMalformed)
		}

		f.Entries = append(f.Entries, Entry{
			Key:   key,
			Value: string(buf[off : off+vLen]),
		})
		off += vLen
	}

	if off != len(buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed,
			len(buf)-off)
	}

	return f, nil
}
