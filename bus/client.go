// thefox is a lightweight message bus providing remote method
// invocation between processes.
//
// (c) 2024, xrw67.
// Use of this source is governed by MIT license that
// can be found in the LICENSE file.

package bus

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xrw67/thefox/internal/errs"
	"github.com/xrw67/thefox/internal/wire"
)

// Handler serves one named method. It fills out from in and returns
// an error to fail the call instead.
//
// A handler runs on its own goroutine per incoming request, never on
// the connection's read loop, so it may block. The response frame is
// sent exactly once, when the handler returns.
type Handler func(in *In, out *Out) error

// Client owns one connection to a bus Server. It registers the
// methods it serves and calls methods registered by other clients,
// synchronously with Call or asynchronously with ACall.
//
// The pending-call table maps a request id to its Result; the read
// loop resolves entries, callers only create and remove them.
type Client struct {
	sync.Mutex

	id   uuid.UUID
	Name string
	log  *zap.SugaredLogger

	c        *conn
	handlers map[string]Handler
	pending  map[uint64]*Result

	lastID uint64

	connected bool
	closed    bool
}

// NewClient creates a new bus Client.
//
// uuid.Nil id means "generate one". The logger is mandatory.
func NewClient(
	id uuid.UUID,
	name string,
	log *zap.SugaredLogger) (*Client, error) {

	if log == nil {
		return nil, errs.ErrNoLogger
	}

	if id == uuid.Nil {
		id = uuid.New()
	}

	if name == "" {
		name = "Client #" + id.String()
	}

	c := &Client{
		id:   id,
		Name: name,
		log:  log.Named("CLN: " + name),
	}

	c.log.Debugw("bus client created",
		"clientID", c.id)

	return c, nil
}

// ID returns the client's id.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// IsConnected returns true while the client holds a live connection.
func (c *Client) IsConnected() bool {
	c.Lock()
	defer c.Unlock()

	return c.connected
}

// Connect establishes the single connection to the server at addr.
// Refusal, timeout and resolution failures are returned wrapped, with
// no partial state left behind.
func (c *Client) Connect(ctx context.Context, addr string) error {
	c.Lock()

	if c.closed {
		c.Unlock()

		return ErrConnClosed
	}

	if c.connected {
		c.Unlock()

		return errs.ErrAlreadyConnected
	}

	c.Unlock()

	var d net.Dialer

	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("bus client connect to %s: %w", addr, err)
	}

	cn := newConn(uuid.New(), nc, c.log)

	c.Lock()

	if c.closed || c.connected {
		c.Unlock()
		cn.close()

		return errs.ErrAlreadyConnected
	}

	c.c = cn
	c.handlers = make(map[string]Handler)
	c.pending = make(map[uint64]*Result)
	c.connected = true

	c.Unlock()

	go cn.readLoop(c.dispatch, c.connLost)

	c.log.Infow("connected",
		"clientID", c.id,
		"addr", addr)

	return nil
}

// RegisterMethod stores the handler locally and registers the method
// name on the server. It blocks until the server acks the
// registration or ctx expires.
//
// Re-registration of a name already owned by another client is
// last-write-wins on the server.
func (c *Client) RegisterMethod(
	ctx context.Context,
	name string,
	h Handler) error {

	if name == "" {
		return errs.ErrEmptyMethodName
	}

	if h == nil {
		return errs.ErrNoHandler
	}

	c.Lock()

	if !c.connected {
		c.Unlock()

		return errs.ErrNotConnected
	}

	c.handlers[name] = h

	c.Unlock()

	_, res, err := c.send(wire.KindRegister, name, nil)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	if err := res.Wait(ctx); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	c.log.Debugw("method registered",
		"method", name)

	return nil
}

// Call invokes the named method and blocks the calling goroutine, not
// the read loop, until the response arrives or ctx expires. On
// success the response payload is copied into out (out may be nil if
// the caller doesn't need it).
//
// On ctx expiry the pending slot is removed at once and the context
// error is returned; a response arriving later finds no slot and is
// discarded.
func (c *Client) Call(
	ctx context.Context,
	method string,
	in *In,
	out *Out) error {

	id, res, err := c.send(wire.KindRequest, method, in)
	if err != nil {
		return err
	}

	if err := res.Wait(ctx); err != nil {
		c.Lock()
		delete(c.pending, id)
		c.Unlock()

		return err
	}

	if out != nil && res.Out() != nil {
		*out = *res.Out().Copy()
	}

	return nil
}

// ACall invokes the named method and returns the pending Result
// immediately. The read loop resolves it when the response frame
// arrives; wait on it with Result.Wait or poll with Result.Done.
func (c *Client) ACall(method string, in *In) (*Result, error) {
	_, res, err := c.send(wire.KindRequest, method, in)

	return res, err
}

// send allocates a request id, registers the pending slot and writes
// the frame. The slot is registered before the write so a fast
// response never races its own bookkeeping.
func (c *Client) send(
	kind wire.Kind,
	method string,
	in *In) (uint64, *Result, error) {

	c.Lock()

	if !c.connected {
		c.Unlock()

		if c.closed {
			return 0, nil, ErrConnClosed
		}

		return 0, nil, errs.ErrNotConnected
	}

	c.lastID++
	id := c.lastID

	res := newResult()
	c.pending[id] = res
	cn := c.c

	c.Unlock()

	f := &wire.Frame{
		Kind:    kind,
		ID:      id,
		Method:  method,
		Entries: in.entries(),
	}

	if err := cn.send(f); err != nil {
		c.Lock()
		delete(c.pending, id)
		c.Unlock()

		return 0, nil, err
	}

	return id, res, nil
}

// dispatch demultiplexes one frame arriving from the server.
func (c *Client) dispatch(f *wire.Frame) {
	switch f.Kind {
	case wire.KindRequest:
		c.serve(f)

	case wire.KindResponse, wire.KindError:
		c.Lock()

		res, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}

		c.Unlock()

		if !ok {
			// the call timed out or was never ours, a late
			// response must not touch any reused slot
			c.log.Debugw("late response discarded",
				"reqID", f.ID)

			return
		}

		if f.Kind == wire.KindError {
			res.resolve(nil, errorOf(f))

			return
		}

		res.resolve(payloadOf(f.Entries), nil)

	default:
		c.log.Warnw("unexpected frame",
			"kind", f.Kind.String(),
			"reqID", f.ID)
	}
}

// serve runs the local handler for a request forwarded by the server.
func (c *Client) serve(f *wire.Frame) {
	c.Lock()
	h := c.handlers[f.Method]
	cn := c.c
	c.Unlock()

	if cn == nil {
		return
	}

	if h == nil {
		// the server's table is stale, fail the call closed
		c.reply(cn, errorFrame(f.ID, wire.CodeMethodNotFound, f.Method))

		return
	}

	in := payloadOf(f.Entries)

	go func() {
		out := new(Out)

		if err := h(in, out); err != nil {
			c.reply(cn, errorFrame(f.ID, wire.CodeHandlerError, err.Error()))

			return
		}

		c.reply(cn, &wire.Frame{
			Kind:    wire.KindResponse,
			ID:      f.ID,
			Entries: out.entries(),
		})
	}()
}

func (c *Client) reply(cn *conn, f *wire.Frame) {
	if err := cn.send(f); err != nil {
		c.log.Debugw("couldn't send frame",
			"kind", f.Kind.String(),
			"err", err.Error())
	}
}

// connLost fails every pending call with the close reason. It runs at
// most once per connection, either from the read loop or from
// Shutdown, whichever gets there first.
func (c *Client) connLost(reason error) {
	c.Lock()

	if !c.connected {
		c.Unlock()

		return
	}

	c.connected = false

	pp := c.pending
	c.pending = make(map[uint64]*Result)

	c.Unlock()

	for _, res := range pp {
		res.resolve(nil, reason)
	}

	c.log.Debugw("connection lost",
		"clientID", c.id,
		"reason", reason.Error())
}

// Shutdown closes the connection. Every pending Call and ACall
// unblocks with ErrConnClosed. Idempotent.
func (c *Client) Shutdown() {
	c.Lock()

	if c.closed {
		c.Unlock()

		return
	}

	c.closed = true
	cn := c.c

	c.Unlock()

	if cn != nil {
		cn.close()
		c.connLost(ErrConnClosed)
	}

	c.log.Infow("bus client stopped",
		"clientID", c.id)
}
