// Package server implements the development WebSocket server used for
// hot reload: a raw TCP listener that upgrades browser connections, keeps a
// registry of open tabs, and broadcasts reload/error events to all of them.
//
// The protocol layer is hand-rolled (see internal/protocol) because the
// server speaks only the small RFC 6455 subset the reload client needs:
// unfragmented text frames in both directions and close frames in.
package server

import (
	"context"
	"errors"
	"net"
	"sync"

	devErrors "github.com/conneroisu/liveserve/internal/errors"
	"github.com/conneroisu/liveserve/internal/logging"
	"github.com/conneroisu/liveserve/internal/protocol"
)

type serverState int

const (
	stateCreated serverState = iota
	stateRunning
	stateStopped
)

// Server accepts browser connections and fans reload/error messages out to
// every registered connection.
//
// Invariants:
//   - conns never holds a connection whose close callback has fired;
//     insertion and removal share mu.
//   - broadcasts are serialized by broadcastMu so every tab observes
//     reload/error events in issue order.
//   - a stopped server is terminal; construct a new one to rebind.
type Server struct {
	addr   string
	logger logging.Logger

	mu       sync.Mutex // guards state, listener, conns
	state    serverState
	listener net.Listener
	conns    map[uint64]*Conn
	nextID   uint64

	broadcastMu sync.Mutex
	acceptDone  chan struct{}
}

// New creates a server bound to addr once Start is called. A nil logger
// disables logging.
func New(addr string, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Server{
		addr:   addr,
		logger: logger.WithComponent("server"),
		conns:  make(map[uint64]*Conn),
	}
}

// Start binds the listener and begins accepting connections. Calling Start
// on a running server is a no-op; a bind failure surfaces as a port_in_use
// error and usually means a stale dev server still owns the port.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return nil
	case stateStopped:
		return devErrors.NewServerStoppedError()
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return devErrors.NewPortInUseError(s.addr, err)
	}

	s.listener = listener
	s.state = stateRunning
	s.acceptDone = make(chan struct{})

	s.logger.Info(ctx, "dev server listening", "addr", listener.Addr().String())

	go s.acceptLoop(ctx)

	return nil
}

// Addr returns the bound listener address, or the configured address before
// Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.acceptDone)

	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn(ctx, err, "accept failed")
			continue
		}

		conn := s.register(netConn)
		if conn == nil {
			_ = netConn.Close()
			return
		}

		go conn.serve(ctx)
	}
}

// register wraps an accepted socket and inserts it into the registry before
// the handshake runs, so an in-flight broadcast can already see it. It
// returns nil when the server stopped while the accept was in flight.
func (s *Server) register(netConn net.Conn) *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateRunning {
		return nil
	}

	s.nextID++
	conn := newConn(s.nextID, netConn, s.logger, s.handleMessage, s.remove)
	s.conns[conn.id] = conn

	s.logger.Debug(context.Background(), "connection registered",
		"conn_id", conn.id,
		"remote", conn.RemoteAddr(),
		"total", len(s.conns),
	)

	return conn
}

// remove is the connection close callback; it shares mu with insertion so
// removal cannot race a broadcast's registry snapshot.
func (s *Server) remove(conn *Conn) {
	s.mu.Lock()
	_, present := s.conns[conn.id]
	delete(s.conns, conn.id)
	remaining := len(s.conns)
	s.mu.Unlock()

	if present {
		s.logger.Debug(context.Background(), "connection removed", "conn_id", conn.id, "total", remaining)
	}
}

// handleMessage answers application-level pings; everything else from the
// browser is informational only.
func (s *Server) handleMessage(conn *Conn, message protocol.Message) {
	if message.Type == protocol.MessagePing {
		_ = conn.Send(protocol.Pong())
	}
}

// ConnectionCount returns the number of registered connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// BroadcastReload tells every connected tab to reload.
func (s *Server) BroadcastReload(ctx context.Context) {
	s.broadcast(ctx, protocol.Reload())
}

// BroadcastError surfaces a build or watcher failure in every connected
// tab's console.
func (s *Server) BroadcastError(ctx context.Context, text string) {
	s.broadcast(ctx, protocol.Error(text))
}

// broadcast fans message out to a snapshot of the registry, one send per
// connection, and waits for all of them. Individual send failures tear down
// only their own connection. broadcastMu serializes whole broadcasts so
// back-to-back reloads arrive in order everywhere.
func (s *Server) broadcast(ctx context.Context, message protocol.Message) {
	s.broadcastMu.Lock()
	defer s.broadcastMu.Unlock()

	s.mu.Lock()
	targets := make([]*Conn, 0, len(s.conns))
	for _, conn := range s.conns {
		targets = append(targets, conn)
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		s.logger.Debug(ctx, "broadcast skipped, no connections", "type", string(message.Type))
		return
	}

	var wg sync.WaitGroup
	var failed sync.Map

	for _, conn := range targets {
		wg.Add(1)
		go func(conn *Conn) {
			defer wg.Done()
			if err := conn.Send(message); err != nil {
				failed.Store(conn.id, err)
			}
		}(conn)
	}
	wg.Wait()

	failures := 0
	failed.Range(func(_, _ any) bool {
		failures++
		return true
	})

	s.logger.Info(ctx, "broadcast delivered",
		"type", string(message.Type),
		"connections", len(targets),
		"failed", failures,
	)
}

// Stop cancels the listener and closes every registered connection.
// Idempotent once stopped.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return
	}

	s.state = stateStopped
	listener := s.listener
	acceptDone := s.acceptDone

	targets := make([]*Conn, 0, len(s.conns))
	for _, conn := range s.conns {
		targets = append(targets, conn)
	}
	s.conns = make(map[uint64]*Conn)
	s.mu.Unlock()

	_ = listener.Close()
	for _, conn := range targets {
		conn.Close()
	}
	<-acceptDone

	s.logger.Info(ctx, "dev server stopped", "closed_connections", len(targets))
}
