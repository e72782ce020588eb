package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/cortesi/hotkey-manager/hotkeys"
	"github.com/cortesi/hotkey-manager/key"
	"github.com/cortesi/hotkey-manager/logger"
)

// eventQueueSize bounds each client's pending event queue. Events beyond
// this are dropped rather than blocking the hotkey dispatch path.
const eventQueueSize = 64

// Server accepts client connections on a unix socket and serves the
// hotkey protocol against a shared registry.
//
// In single-client mode (the default) the server accepts exactly one
// connection and terminates when it closes, so a spawned server never
// outlives the client that needed it. Multi-client mode keeps accepting
// and broadcasts every triggered event to all connected clients.
type Server struct {
	socketPath  string
	manager     *hotkeys.Manager
	multiClient bool
	log         *slog.Logger

	listener net.Listener
	closed   bool
	closedMu sync.RWMutex
	wg       sync.WaitGroup
	readyCh  chan struct{}

	subsMu sync.Mutex
	subs   map[*subscriber]struct{}
}

type subscriber struct {
	events chan Response
	done   chan struct{}
}

// ServerOption is a functional option for configuring Server.
type ServerOption func(*Server)

// WithMultiClient keeps the server accepting connections after the first
// client disconnects and broadcasts events to every connected client.
func WithMultiClient() ServerOption {
	return func(s *Server) {
		s.multiClient = true
	}
}

// NewServer binds the socket and prepares a server over the given
// registry. Any stale socket file at the path is removed first, since an
// unclean prior exit leaves the filesystem entry behind.
func NewServer(socketPath string, manager *hotkeys.Manager, opts ...ServerOption) (*Server, error) {
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to bind socket %s: %w", socketPath, err)
	}

	log := logger.WithComponent("ipc-server")
	log.Info("listening", "socketPath", socketPath)

	s := &Server{
		socketPath: socketPath,
		manager:    manager,
		log:        log,
		listener:   listener,
		readyCh:    make(chan struct{}),
		subs:       make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SocketPath returns the path the server is bound to.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start launches Run() in a goroutine. It increments the WaitGroup before
// starting the goroutine to avoid a race with Close()/wg.Wait().
func (s *Server) Start() {
	s.wg.Add(1)
	go s.Run()
}

// WaitReady blocks until the server is accepting connections.
func (s *Server) WaitReady() {
	<-s.readyCh
}

// Wait blocks until the server's accept loop has exited: after Close,
// or, in single-client mode, after the one client disconnects.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Run accepts connections until the server closes. Must be paired with a
// wg.Add(1) call before the goroutine is launched; use Start() instead
// of calling go Run() directly.
func (s *Server) Run() {
	defer s.wg.Done()

	close(s.readyCh)

	if !s.multiClient {
		s.runSingle()
		return
	}

	for {
		s.closedMu.RLock()
		closed := s.closed
		s.closedMu.RUnlock()
		if closed {
			s.log.Info("server closed, stopping accept loop")
			return
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.closedMu.RLock()
			closed := s.closed
			s.closedMu.RUnlock()
			if closed || isClosedConnError(err) {
				s.log.Info("listener closed, stopping")
				return
			}
			s.log.Warn("accept error (continuing)", "error", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// runSingle accepts one connection, stops listening so any later dial is
// refused, and serves until the client disconnects.
func (s *Server) runSingle() {
	conn, err := s.listener.Accept()
	if err != nil {
		s.closedMu.RLock()
		closed := s.closed
		s.closedMu.RUnlock()
		if !closed && !isClosedConnError(err) {
			s.log.Error("accept failed", "error", err)
		}
		return
	}

	s.listener.Close()
	s.log.Info("client connected")
	s.handleConnection(conn)
	s.log.Info("client disconnected")
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	c := NewConn(conn)
	sub := &subscriber{
		events: make(chan Response, eventQueueSize),
		done:   make(chan struct{}),
	}
	s.addSubscriber(sub)
	defer s.removeSubscriber(sub)
	defer close(sub.done)

	// Event forwarder: drains the queue onto the wire, serialized
	// against request replies by the connection's write lock.
	go func() {
		for {
			select {
			case <-sub.done:
				return
			case ev := <-sub.events:
				if err := c.WriteResponse(ev); err != nil {
					s.log.Error("failed to write event", "error", err)
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		req, err := c.ReadRequest()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Debug("read ended", "error", err)
			}
			return
		}

		switch req.Type {
		case RequestShutdown:
			s.log.Info("shutdown requested")
			if err := c.WriteResponse(Success("Shutting down", nil)); err != nil {
				s.log.Error("failed to write shutdown reply", "error", err)
			}
			if s.multiClient {
				s.beginShutdown()
			}
			return

		case RequestRebind:
			s.log.Info("rebind requested", "keys", len(req.Keys))
			resp := s.rebind(req.Keys)
			if err := c.WriteResponse(resp); err != nil {
				s.log.Error("failed to write rebind reply", "error", err)
				return
			}

		default:
			s.log.Warn("unknown request type", "type", req.Type)
			if err := c.WriteResponse(Error(fmt.Sprintf("unknown request type: %s", req.Type))); err != nil {
				return
			}
		}
	}
}

// rebind atomically replaces the registry contents. The registry is
// cleared first; if any key then fails to register, it is cleared again
// so the active set is never half-applied.
func (s *Server) rebind(keys []key.Spec) Response {
	if err := s.manager.UnbindAll(); err != nil {
		return Error(fmt.Sprintf("failed to unbind existing hotkeys: %v", err))
	}

	var failures []string
	bound := 0
	for _, spec := range keys {
		identifier := spec.String()
		_, err := s.manager.Bind(identifier, spec, s.forwardTrigger)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", identifier, err))
			continue
		}
		bound++
	}

	if len(failures) > 0 {
		if err := s.manager.UnbindAll(); err != nil {
			s.log.Error("rollback failed", "error", err)
		}
		return Error(fmt.Sprintf("failed to bind %d hotkeys: %s", len(failures), strings.Join(failures, "; ")))
	}

	regs := s.manager.List()
	identifiers := make([]string, 0, len(regs))
	for _, r := range regs {
		identifiers = append(identifiers, r.Identifier)
	}
	data, err := json.Marshal(identifiers)
	if err != nil {
		s.log.Error("failed to marshal binding list", "error", err)
		data = nil
	}
	return Success(fmt.Sprintf("Successfully bound %d hotkeys", bound), data)
}

// forwardTrigger is the callback registered for every bound hotkey. It
// queues a triggered event for every connected client, dropping rather
// than blocking when a queue is full.
func (s *Server) forwardTrigger(identifier string) {
	ev := Triggered(identifier)

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if len(s.subs) == 0 {
		s.log.Warn("hotkey fired with no connected client", "identifier", identifier)
		return
	}
	for sub := range s.subs {
		select {
		case sub.events <- ev:
		default:
			s.log.Warn("event queue full, dropping trigger", "identifier", identifier)
		}
	}
}

func (s *Server) addSubscriber(sub *subscriber) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs[sub] = struct{}{}
}

func (s *Server) removeSubscriber(sub *subscriber) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	delete(s.subs, sub)
}

// beginShutdown marks the server closed and stops the listener without
// waiting, so it can be called from a connection handler.
func (s *Server) beginShutdown() {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return
	}
	s.closed = true
	s.closedMu.Unlock()

	s.listener.Close()
}

// Close shuts down the server, waits for the accept loop to exit, and
// removes the socket file.
func (s *Server) Close() error {
	s.log.Info("closing server")

	s.beginShutdown()
	s.wg.Wait()

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove socket file", "socketPath", s.socketPath, "error", err)
	}
	return nil
}

func isClosedConnError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Err.Error() == "use of closed network connection"
}
