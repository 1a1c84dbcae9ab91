// thefox is a lightweight message bus providing remote method
// invocation between processes.
//
// (c) 2024, xrw67.
// Use of this source is governed by MIT license that
// can be found in the LICENSE file.

package bus

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xrw67/thefox/internal/errs"
	"github.com/xrw67/thefox/internal/wire"
)

// route correlates a request forwarded to the method owner with the
// caller it came from. The server assigns its own correlation id to
// the forwarded frame, so request id spaces of different callers
// never collide on the owner's connection.
type route struct {
	caller   uuid.UUID
	callerID uint64
	owner    uuid.UUID
}

// Server accepts client connections and routes calls between them.
//
// Every method registered by a connected client lands in the shared
// method table; a request naming the method is forwarded to the
// owning connection and the owner's response is relayed back to the
// caller. The tables are owned by the server exclusively and guarded
// by its mutex.
type Server struct {
	sync.Mutex

	id   uuid.UUID
	Name string
	log  *zap.SugaredLogger

	listener net.Listener

	conns   map[uuid.UUID]*conn
	methods map[string]uuid.UUID
	routes  map[uint64]route

	lastRoute uint64

	limit rate.Limit
	burst int

	runned bool
}

// Option tunes the Server on creation.
type Option func(*Server)

// WithRateLimit attaches a token-bucket limiter of r requests per
// second with the given burst to every accepted connection. A request
// over the limit is answered with ErrRateLimited and not forwarded.
func WithRateLimit(r float64, burst int) Option {
	return func(s *Server) {
		s.limit = rate.Limit(r)
		s.burst = burst
	}
}

// NewServer creates a new bus Server.
//
// uuid.Nil id means "generate one". The logger is mandatory.
func NewServer(
	id uuid.UUID,
	name string,
	log *zap.SugaredLogger,
	opts ...Option) (*Server, error) {

	if log == nil {
		return nil, errs.ErrNoLogger
	}

	if id == uuid.Nil {
		id = uuid.New()
	}

	if name == "" {
		name = "Bus #" + id.String()
	}

	s := &Server{
		id:   id,
		Name: name,
		log:  log.Named("BUS: " + name),
	}

	for _, o := range opts {
		o(s)
	}

	s.log.Debugw("bus server created",
		"busID", s.id)

	return s, nil
}

// ID returns the server's id.
func (s *Server) ID() uuid.UUID {
	return s.id
}

// IsRunned returns the current running state of the Server.
func (s *Server) IsRunned() bool {
	s.Lock()
	defer s.Unlock()

	return s.runned
}

// Addr returns the bound listener address or nil if the server isn't
// listening. Handy with a ":0" listen address.
func (s *Server) Addr() net.Addr {
	s.Lock()
	defer s.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Listen binds the given TCP address and starts accepting
// connections. A bind failure is returned as is and leaves the server
// stopped with no partial state.
func (s *Server) Listen(addr string) error {
	s.Lock()

	if s.runned {
		s.Unlock()

		return errs.ErrAlreadyRunned
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		s.Unlock()

		return fmt.Errorf("bus server listen on %s: %w", addr, err)
	}

	s.listener = l
	s.conns = make(map[uuid.UUID]*conn)
	s.methods = make(map[string]uuid.UUID)
	s.routes = make(map[uint64]route)
	s.runned = true

	s.Unlock()

	s.log.Infow("bus server started",
		"busID", s.id,
		"addr", l.Addr().String())

	go s.acceptLoop(l)

	return nil
}

func (s *Server) acceptLoop(l net.Listener) {
	for {
		nc, err := l.Accept()
		if err != nil {
			// Shutdown closes the listener and Accept fails,
			// only an error on a runned server is worth a record
			if s.IsRunned() {
				s.log.Errorw("accept failed",
					"err", err.Error())
			}

			return
		}

		s.addConn(nc)
	}
}

func (s *Server) addConn(nc net.Conn) {
	c := newConn(uuid.New(), nc, s.log)

	var lim *rate.Limiter
	if s.limit > 0 {
		lim = rate.NewLimiter(s.limit, s.burst)
	}

	s.Lock()

	if !s.runned {
		s.Unlock()
		c.close()

		return
	}

	s.conns[c.id] = c

	s.Unlock()

	s.log.Debugw("client connected",
		"connID", c.id,
		"remote", nc.RemoteAddr().String())

	go c.readLoop(
		func(f *wire.Frame) { s.dispatch(c, lim, f) },
		func(err error) { s.dropConn(c, err) })
}

// dispatch demultiplexes one frame arriving on connection c.
func (s *Server) dispatch(c *conn, lim *rate.Limiter, f *wire.Frame) {
	switch f.Kind {
	case wire.KindRegister:
		s.register(c, f)

	case wire.KindRequest:
		s.forward(c, lim, f)

	case wire.KindResponse, wire.KindError:
		s.relay(c, f)
	}
}

// register puts the method into the shared table. Re-registration is
// last-write-wins. The registration is acked with an empty Response
// so the registering client gets a status.
func (s *Server) register(c *conn, f *wire.Frame) {
	if f.Method == "" {
		s.reply(c, errorFrame(f.ID, wire.CodeProtocol,
			"empty method name"))

		return
	}

	s.Lock()
	s.methods[f.Method] = c.id
	s.Unlock()

	s.log.Debugw("method registered",
		"method", f.Method,
		"connID", c.id)

	s.reply(c, &wire.Frame{Kind: wire.KindResponse, ID: f.ID})
}

// forward routes a request to the connection owning the method. An
// unknown method is answered with a synthesized Error straight back
// to the caller, there is no hop to any handler.
func (s *Server) forward(c *conn, lim *rate.Limiter, f *wire.Frame) {
	if lim != nil && !lim.Allow() {
		s.reply(c, errorFrame(f.ID, wire.CodeRateLimited, f.Method))

		return
	}

	s.Lock()

	ownerID, ok := s.methods[f.Method]
	owner := s.conns[ownerID]

	if !ok || owner == nil {
		s.Unlock()

		s.log.Debugw("call for unknown method",
			"method", f.Method,
			"connID", c.id)

		s.reply(c, errorFrame(f.ID, wire.CodeMethodNotFound, f.Method))

		return
	}

	s.lastRoute++
	corr := s.lastRoute
	s.routes[corr] = route{caller: c.id, callerID: f.ID, owner: ownerID}

	s.Unlock()

	fwd := &wire.Frame{
		Kind:    wire.KindRequest,
		ID:      corr,
		Method:  f.Method,
		Entries: f.Entries,
	}

	if err := owner.send(fwd); err != nil {
		s.Lock()
		delete(s.routes, corr)
		s.Unlock()

		s.log.Warnw("couldn't forward request",
			"method", f.Method,
			"ownerID", ownerID,
			"err", err.Error())

		s.reply(c, errorFrame(f.ID, wire.CodeConnClosed, f.Method))
	}
}

// relay sends the owner's response back to the caller recorded in the
// route table and drops the routing entry.
func (s *Server) relay(c *conn, f *wire.Frame) {
	s.Lock()

	rt, ok := s.routes[f.ID]
	if ok {
		delete(s.routes, f.ID)
	}
	caller := s.conns[rt.caller]

	s.Unlock()

	if !ok || rt.owner != c.id {
		s.log.Debugw("orphan response discarded",
			"corrID", f.ID,
			"connID", c.id)

		return
	}

	if caller == nil {
		return
	}

	f.ID = rt.callerID

	s.reply(caller, f)
}

func (s *Server) reply(c *conn, f *wire.Frame) {
	if err := c.send(f); err != nil {
		s.log.Debugw("couldn't send frame",
			"kind", f.Kind.String(),
			"connID", c.id,
			"err", err.Error())
	}
}

// dropConn removes a dead connection: its method registrations go
// away so future calls fail closed instead of hanging, in-flight
// routes it owned are failed back to their callers.
func (s *Server) dropConn(c *conn, reason error) {
	type failedCall struct {
		caller *conn
		id     uint64
	}

	s.Lock()

	if _, ok := s.conns[c.id]; !ok {
		s.Unlock()

		return
	}

	delete(s.conns, c.id)

	for name, owner := range s.methods {
		if owner == c.id {
			delete(s.methods, name)
		}
	}

	failed := []failedCall{}

	for corr, rt := range s.routes {
		switch c.id {
		case rt.caller:
			delete(s.routes, corr)

		case rt.owner:
			delete(s.routes, corr)

			if caller := s.conns[rt.caller]; caller != nil {
				failed = append(failed,
					failedCall{caller: caller, id: rt.callerID})
			}
		}
	}

	s.Unlock()

	for _, fc := range failed {
		s.reply(fc.caller,
			errorFrame(fc.id, wire.CodeConnClosed, "method owner is gone"))
	}

	s.log.Debugw("client disconnected",
		"connID", c.id,
		"reason", reason.Error())
}

// Shutdown stops accepting, closes every live connection and releases
// the listening socket. Idempotent.
func (s *Server) Shutdown() {
	s.Lock()

	if !s.runned {
		s.Unlock()

		return
	}

	s.runned = false

	l := s.listener
	s.listener = nil

	cc := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		cc = append(cc, c)
	}

	s.conns = make(map[uuid.UUID]*conn)
	s.methods = make(map[string]uuid.UUID)
	s.routes = make(map[uint64]route)

	s.Unlock()

	l.Close()

	for _, c := range cc {
		c.close()
	}

	s.log.Infow("bus server stopped",
		"busID", s.id)
}
