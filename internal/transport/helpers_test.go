package transport

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/linechat/internal/auth"
	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/proto"
	"github.com/vovakirdan/linechat/internal/store/memory"
)

var errConnClosed = errors.New("conn closed")

// chanConn is an in-memory LineConn. The test writes to in and reads from out.
type chanConn struct {
	in     chan string
	out    chan string
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	writeErr  error
	closeHits int
}

func newChanConn() *chanConn {
	return &chanConn{
		in:     make(chan string, 16),
		out:    make(chan string, 256),
		closed: make(chan struct{}),
	}
}

func (c *chanConn) ReadLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-c.in:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-c.closed:
		return "", errConnClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *chanConn) WriteLine(ctx context.Context, line string) error {
	c.mu.Lock()
	err := c.writeErr
	c.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.out <- line:
		return nil
	case <-c.closed:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *chanConn) Close() error {
	c.mu.Lock()
	c.closeHits++
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *chanConn) RemoteAddr() string { return "test" }

func (c *chanConn) failWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *chanConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *chanConn) send(line string) {
	c.in <- line
}

func (c *chanConn) next(t *testing.T) string {
	t.Helper()

	select {
	case line := <-c.out:
		return line
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a line")
		return ""
	}
}

// nextMatching skips lines until one contains substr.
func (c *chanConn) nextMatching(t *testing.T, substr string) string {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line := <-c.out:
			if strings.Contains(line, substr) {
				return line
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a line containing %q", substr)
			return ""
		}
	}
}

func (c *chanConn) authRequest(t *testing.T, mode, username, secret string) {
	t.Helper()

	line, err := proto.EncodeAuthRequest(proto.AuthRequest{Mode: mode, Username: username, Secret: secret})
	if err != nil {
		t.Fatalf("encode auth request: %v", err)
	}
	c.send(line)
}

func (c *chanConn) authResponse(t *testing.T) proto.AuthResponse {
	t.Helper()

	resp, err := proto.DecodeAuthResponse(c.next(t))
	if err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	return resp
}

type testEnv struct {
	hub     *core.Hub
	handler *Handler
	gateway *auth.Gateway
	obs     *countingObserver
}

type countingObserver struct {
	mu          sync.Mutex
	opened      int
	closed      int
	authOK      int
	authFail    int
	rateLimited int
}

func (o *countingObserver) ConnectionOpened() { o.mu.Lock(); o.opened++; o.mu.Unlock() }
func (o *countingObserver) ConnectionClosed() { o.mu.Lock(); o.closed++; o.mu.Unlock() }
func (o *countingObserver) RateLimited()      { o.mu.Lock(); o.rateLimited++; o.mu.Unlock() }
func (o *countingObserver) AuthAttempt(_ string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ok {
		o.authOK++
	} else {
		o.authFail++
	}
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	hub := core.NewHub(core.WithLogger(&logger))
	gw := auth.NewGateway(memory.New(), &auth.TokenConfig{
		Secret: []byte("test-secret"),
		Issuer: "test",
		TTL:    time.Hour,
	}, auth.WithBcryptCost(bcrypt.MinCost), auth.WithNameInUse(func(name string) bool {
		_, online := hub.Lookup(name)
		return online
	}))
	obs := &countingObserver{}
	return &testEnv{
		hub:     hub,
		handler: NewHandler(hub, core.NewDispatcher(hub, &logger, core.WithNameGuard(gw)), gw, opts, &logger, obs),
		gateway: gw,
		obs:     obs,
	}
}

func defaultOptions() Options {
	return Options{
		OutboxSize:      32,
		WriteTimeout:    time.Second,
		AuthTimeout:     5 * time.Second,
		MaxAuthAttempts: 3,
	}
}

// serve runs the handler on a fresh conn and returns a channel closed when
// Serve returns.
func (e *testEnv) serve(ctx context.Context) (*chanConn, <-chan struct{}) {
	conn := newChanConn()
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.handler.Serve(ctx, conn)
	}()
	return conn, done
}

func (e *testEnv) register(t *testing.T, username, secret string) {
	t.Helper()

	if _, err := e.gateway.Register(context.Background(), username, secret); err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
}

// login connects, logs in and consumes the welcome line.
func (e *testEnv) login(t *testing.T, ctx context.Context, username, secret string) (*chanConn, <-chan struct{}) {
	t.Helper()

	conn, done := e.serve(ctx)
	conn.authRequest(t, proto.ModeLogin, username, secret)
	if resp := conn.authResponse(t); !resp.OK {
		t.Fatalf("login %s failed: %+v", username, resp.Error)
	}
	if line := conn.next(t); line != WelcomeLine {
		t.Fatalf("expected welcome line, got %q", line)
	}
	return conn, done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not return")
	}
}
