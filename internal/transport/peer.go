package transport

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/core"
)

// DefaultOutboxSize is used when no outbox size is configured.
const DefaultOutboxSize = 32

// Peer queues lines for one connection and writes them from a single
// goroutine. It implements core.Peer.
type Peer struct {
	conn         LineConn
	writeTimeout time.Duration
	log          *zerolog.Logger

	mu     sync.Mutex
	closed bool
	outbox chan string

	done chan struct{}
}

var _ core.Peer = (*Peer)(nil)

// NewPeer creates a peer. The writer does not run until Run is called.
func NewPeer(conn LineConn, size int, writeTimeout time.Duration, logger *zerolog.Logger) *Peer {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Peer{
		conn:         conn,
		writeTimeout: writeTimeout,
		log:          logger,
		outbox:       make(chan string, size),
		done:         make(chan struct{}),
	}
}

// Send enqueues a line. It never blocks.
func (p *Peer) Send(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return core.ErrPeerClosed
	}
	select {
	case p.outbox <- line:
		return nil
	default:
		return core.ErrSlowConsumer
	}
}

// Close stops accepting lines. Lines already queued are still written,
// then the connection is closed.
func (p *Peer) Close() error {
	if !p.shutdown() {
		return core.ErrPeerClosed
	}
	return nil
}

func (p *Peer) shutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	p.closed = true
	close(p.outbox)
	return true
}

// Run drains the outbox until Close or a write error, then closes the
// connection. It blocks, so callers start it in its own goroutine.
func (p *Peer) Run(ctx context.Context) {
	defer close(p.done)
	defer func() {
		if err := p.conn.Close(); err != nil {
			p.log.Debug().Err(err).Msg("close conn")
		}
	}()

	for line := range p.outbox {
		if err := p.write(ctx, line); err != nil {
			p.log.Debug().Err(err).Str("remote", p.conn.RemoteAddr()).Msg("write failed")
			p.shutdown()
			for range p.outbox {
			}
			return
		}
	}
}

func (p *Peer) write(ctx context.Context, line string) error {
	if p.writeTimeout <= 0 {
		return p.conn.WriteLine(ctx, line)
	}
	wctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	return p.conn.WriteLine(wctx, line)
}

// Done is closed once the writer has exited and the connection is closed.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}
