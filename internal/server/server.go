// Package server implements the TCP chat server: connection lifecycle,
// per-session command dispatch, and the fan-out delivery engine, all
// sitting on top of the shared state in internal/store.
package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"relaychat/internal/store"
)

// Config holds the constructor-time parameters: listening address, history
// replay depth, and the per-user hourly send cap. The read buffer size is
// not configurable here; it is the compiled constant protocol.MaxLine.
type Config struct {
	Addr               string
	HistoryReplayDepth int
	RateCap            int
}

// DefaultConfig matches spec.md's compiled defaults.
func DefaultConfig() Config {
	return Config{
		Addr:               "127.0.0.1:8000",
		HistoryReplayDepth: 20,
		RateCap:            20,
	}
}

// Server ties the Store to a live connection registry and accepts new TCP
// connections.
type Server struct {
	cfg      Config
	store    *store.Store
	listener net.Listener

	regMu sync.RWMutex
	reg   map[string]*Client // address -> Client, live connections only
}

// New creates a Server with the given configuration.
func New(cfg Config) *Server {
	return &Server{
		cfg:   cfg,
		store: store.New(cfg.RateCap),
		reg:   make(map[string]*Client),
	}
}

// Store exposes the underlying state store, mainly for tests.
func (s *Server) Store() *store.Store { return s.store }

// Addr returns the listener's bound address. Only valid after Listen (or
// ListenAndServe) has returned successfully.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Listen binds cfg.Addr. Split from Serve so callers (and tests) can learn
// the bound address — useful when cfg.Addr uses the ":0" auto-assigned
// port — before the accept loop starts.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	log.Printf("[listener] listening on %s", s.listener.Addr())
	return nil
}

// Serve accepts connections until the listener is closed by Shutdown.
// Accept errors are logged; acceptance continues.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Printf("[listener] accept stopped: %v", err)
				return nil
			}
			log.Printf("[listener] accept error: %v", err)
			continue
		}
		go s.serveConn(conn)
	}
}

// ListenAndServe binds cfg.Addr and accepts connections until the listener
// is closed by Shutdown.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown closes the listener. In-flight sessions finish best-effort; no
// explicit drain is required by spec.md §5.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	address := conn.RemoteAddr().String()
	c := newClient(address, conn)

	s.store.AddConnection(address)
	s.regMu.Lock()
	s.reg[address] = c
	s.regMu.Unlock()

	go c.writePump()

	drv := &session{srv: s, client: c}
	drv.run()
}

// lookup returns the live Client for address, or nil.
func (s *Server) lookup(address string) *Client {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	return s.reg[address]
}

// broadcastAddresses returns a snapshot of every address currently bound to
// an authenticated session — the general chat's recipient set.
func (s *Server) broadcastAddresses() []string {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	out := make([]string, 0, len(s.reg))
	for addr, c := range s.reg {
		if c.getLogin() != "" {
			out = append(out, addr)
		}
	}
	return out
}

// disconnect removes address from the registry and the store, and closes
// its connection. Safe to call more than once for the same address.
func (s *Server) disconnect(address string) {
	s.regMu.Lock()
	c, ok := s.reg[address]
	if ok {
		delete(s.reg, address)
	}
	s.regMu.Unlock()

	s.store.RemoveConnection(address)
	if ok {
		c.closeSend()
		c.conn.Close()
	}
}
