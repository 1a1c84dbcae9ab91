package bus

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xrw67/thefox/internal/wire"
)

// conn wraps one physical socket. A single goroutine runs the read
// loop and demultiplexes decoded frames through the owner's dispatch
// callback; writers from any goroutine serialize on the write mutex
// so frames never interleave on the stream.
type conn struct {
	id  uuid.UUID
	nc  net.Conn
	log *zap.SugaredLogger

	writeMu sync.Mutex

	closeOnce sync.Once
}

func newConn(id uuid.UUID, nc net.Conn, log *zap.SugaredLogger) *conn {
	return &conn{
		id:  id,
		nc:  nc,
		log: log.Named("conn #" + id.String()),
	}
}

// send writes one whole frame under the write mutex.
func (c *conn) send(f *wire.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := wire.Encode(c.nc, f); err != nil {
		return fmt.Errorf("send %v frame: %w", f.Kind, err)
	}

	return nil
}

// readLoop decodes frames until the connection dies and hands every
// frame to onFrame. The close reason is reported exactly once through
// onClose: ErrProtocol for a malformed stream, ErrConnClosed for a
// peer disconnect or a local close.
func (c *conn) readLoop(onFrame func(*wire.Frame), onClose func(error)) {
	for {
		f, err := wire.Decode(c.nc)
		if err != nil {
			reason := ErrConnClosed

			if errors.Is(err, wire.ErrMalformed) ||
				errors.Is(err, wire.ErrFrameTooBig) {
				c.log.Warnw("protocol violation",
					"remote", c.nc.RemoteAddr().String(),
					"err", err.Error())

				reason = fmt.Errorf("%w: %v", ErrProtocol, err)
			}

			c.close()
			onClose(reason)

			return
		}

		onFrame(f)
	}
}

// close shuts the socket down. Idempotent; a blocked read loop wakes
// up with an error and reports the close through onClose.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.nc.Close()
	})
}
