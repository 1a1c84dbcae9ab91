package bus

import (
	"fmt"

	"github.com/xrw67/thefox/internal/wire"
)

var (
	// ErrMethodNotFound reports a call for a method no connected
	// client has registered.
	ErrMethodNotFound = fmt.Errorf("method isn't found")

	// ErrConnClosed reports a connection closed while a call was in
	// flight or an operation on an already closed client.
	ErrConnClosed = fmt.Errorf("connection is closed")

	// ErrProtocol reports a malformed frame. The offending connection
	// is dropped, other connections keep working.
	ErrProtocol = fmt.Errorf("protocol violation")

	// ErrRateLimited reports a request rejected by the server's
	// per-connection rate limiter.
	ErrRateLimited = fmt.Errorf("rate limit exceeded")
)

// errorFrame builds an Error frame answering request id with a
// well-known code and a human-readable detail.
func errorFrame(id uint64, code, detail string) *wire.Frame {
	return &wire.Frame{
		Kind: wire.KindError,
		ID:   id,
		Entries: []wire.Entry{
			{Key: wire.CodeKey, Value: code},
			{Key: wire.ErrorKey, Value: detail},
		},
	}
}

// errorOf maps a received Error frame back onto the bus error
// taxonomy, falling back to a plain remote error for unknown codes.
func errorOf(f *wire.Frame) error {
	var code, detail string

	for _, e := range f.Entries {
		switch e.Key {
		case wire.CodeKey:
			code = e.Value
		case wire.ErrorKey:
			detail = e.Value
		}
	}

	switch code {
	case wire.CodeMethodNotFound:
		return fmt.Errorf("%w: %s", ErrMethodNotFound, detail)

	case wire.CodeConnClosed:
		return fmt.Errorf("%w: %s", ErrConnClosed, detail)

	case wire.CodeRateLimited:
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)

	case wire.CodeProtocol:
		return fmt.Errorf("%w: %s", ErrProtocol, detail)
	}

	if detail == "" {
		detail = "unknown failure"
	}

	return fmt.Errorf("remote: %s", detail)
}
