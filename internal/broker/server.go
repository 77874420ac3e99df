// Package broker implements the broker side of the protocol: a TCP accept
// loop (Server) and one Dispatcher goroutine per accepted connection,
// driving the state machine against a shared registry.Registry.
package broker

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/LorenzoLeonardo/remote-call/internal/frame"
	"github.com/LorenzoLeonardo/remote-call/internal/registry"
)

// Server accepts connections on a single listener and spawns a Dispatcher
// for each one.
type Server struct {
	addr     string
	registry *registry.Registry
	logger   *log.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewServer builds a Server bound to addr, routing through reg. A nil
// logger falls back to log.Default().
func NewServer(addr string, reg *registry.Registry, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{addr: addr, registry: reg, logger: logger, ready: make(chan struct{})}
}

// Start listens on s.addr and accepts connections until ctx is cancelled,
// spawning the registry actor and one Dispatcher per accepted connection.
// It returns once the listener has been closed by ctx cancellation.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("broker: listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	go s.registry.Run(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Printf("broker: shutting down listener on %s", s.addr)
		ln.Close()
	}()

	s.logger.Printf("broker: listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Printf("broker: accept error: %v", err)
			continue
		}
		d := &Dispatcher{
			conn:     frame.NewConn(conn),
			registry: s.registry,
			logger:   s.logger,
		}
		go d.run(ctx)
	}
}

// Ready is closed once the listener is bound, so tests can synchronize
// with Start running in a background goroutine before reading Addr.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listener's bound address. Only meaningful after Ready
// has closed.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}
