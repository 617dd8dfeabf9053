package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/webstalk/webstalk/internal/observability"
	"github.com/webstalk/webstalk/internal/rpcwire"
)

// connDeadline bounds how long an accepted connection's read may block,
// so a half-dead client cannot monopolize its goroutine indefinitely.
const connDeadline = 20 * time.Second

// Server accepts downloader and pipeline connections and serves the
// Scheduler RPC surface, one goroutine per connection, against a single
// shared State. Grounded on the original scheduler.py's accept loop
// (listen, accept, spawn a handler thread per connection, stop on
// SIGINT/SIGTERM after flushing the frontier), translated to goroutines.
type Server struct {
	addr    string
	state   *State
	metrics *observability.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer constructs a Server bound to addr (host:port) once Serve is
// called. metrics may be nil, in which case RPC counters are skipped.
func NewServer(addr string, state *State, metrics *observability.Metrics, logger *slog.Logger) *Server {
	return &Server{addr: addr, state: state, metrics: metrics, logger: logger.With("component", "scheduler_server")}
}

// Serve listens on s.addr and accepts connections until ctx is canceled or
// a fatal listener error occurs. Each connection is served on its own
// goroutine; Serve blocks until all connection goroutines have returned.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is like Serve but accepts on an already-bound listener,
// letting callers (tests in particular) choose the bind address and read
// back the actual port before Serve would otherwise do so internally.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("scheduler listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		s.logger.Info("scheduler stopping, closing listener")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}

	s.wg.Wait()
	return nil
}

// Addr returns the address the listener is actually bound to (useful when
// addr was "host:0"). Only valid after Serve has started listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleConn(ctx context.Context, nc net.Conn) {
	defer s.wg.Done()
	defer nc.Close()

	conn := rpcwire.NewConn(nc)
	for {
		nc.SetDeadline(time.Now().Add(connDeadline))
		req, err := conn.ReadEnvelope()
		if err != nil {
			// Transport exceptions on an individual connection drop that
			// connection but leave the service running.
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				s.logger.Debug("connection read failed, dropping", "remote", nc.RemoteAddr(), "error", err)
			}
			return
		}
		reply := Handle(ctx, s.logger, s.state, s.metrics, req)
		if err := conn.WriteReply(reply); err != nil {
			s.logger.Debug("connection write failed, dropping", "remote", nc.RemoteAddr(), "error", err)
			return
		}
	}
}

// RunUntilSignal blocks serving until SIGINT/SIGTERM, then stops
// accepting and returns so the caller can flush the frontier and exit.
func (s *Server) RunUntilSignal(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}
