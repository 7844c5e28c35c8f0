// Package tcp accepts chat clients over plain TCP.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/proto"
	"github.com/vovakirdan/linechat/internal/transport"
)

// ConnHandler serves one framed connection. *transport.Handler implements it.
type ConnHandler interface {
	Serve(ctx context.Context, conn transport.LineConn)
}

// HandlerFunc adapts a function to ConnHandler.
type HandlerFunc func(ctx context.Context, conn transport.LineConn)

// Serve calls f(ctx, conn).
func (f HandlerFunc) Serve(ctx context.Context, conn transport.LineConn) { f(ctx, conn) }

// Server runs an accept loop and one goroutine per connection.
type Server struct {
	addr         string
	handler      ConnHandler
	maxLineBytes int
	log          *zerolog.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewServer creates a server for addr. Listen is deferred to Listen or
// ListenAndServe.
func NewServer(addr string, handler ConnHandler, maxLineBytes int, logger *zerolog.Logger) *Server {
	if maxLineBytes <= 0 {
		maxLineBytes = proto.DefaultMaxLineBytes
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{
		addr:         addr,
		handler:      handler,
		maxLineBytes: maxLineBytes,
		log:          logger,
	}
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe binds and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until ctx is cancelled, then waits for every
// connection handler to return.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("tcp server: Listen was not called")
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("tcp listener started")

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("accept failed")
				time.Sleep(backoff)
				continue
			}
			s.wg.Wait()
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handler.Serve(ctx, NewConn(nc, s.maxLineBytes))
		}()
	}

	s.log.Info().Msg("tcp listener stopped, draining connections")
	s.wg.Wait()
	return nil
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
