package tcp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/linechat/internal/auth"
	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/proto"
	"github.com/vovakirdan/linechat/internal/store/sqlite"
	"github.com/vovakirdan/linechat/internal/transport"
)

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr net.Addr) *testClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) write(raw string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(raw)); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testClient) readLine() string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func (c *testClient) readUntil(substr string) string {
	c.t.Helper()
	for {
		if line := c.readLine(); strings.Contains(line, substr) {
			return line
		}
	}
}

func (c *testClient) auth(mode, username, secret string) proto.AuthResponse {
	c.t.Helper()
	line, err := proto.EncodeAuthRequest(proto.AuthRequest{Mode: mode, Username: username, Secret: secret})
	if err != nil {
		c.t.Fatalf("encode: %v", err)
	}
	c.write(line + "\n")
	resp, err := proto.DecodeAuthResponse(c.readLine())
	if err != nil {
		c.t.Fatalf("decode: %v", err)
	}
	return resp
}

func (c *testClient) expectClosed() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, err := c.r.ReadString('\n'); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.t.Fatalf("connection was not closed")
			}
			return
		}
	}
}

func startServer(t *testing.T, maxLineBytes int) (*Server, *core.Hub, context.CancelFunc, <-chan error) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.New(nil)
	hub := core.NewHub(core.WithLogger(&logger))
	gw := auth.NewGateway(st, &auth.TokenConfig{Secret: []byte("s"), Issuer: "test", TTL: time.Hour}, auth.WithBcryptCost(bcrypt.MinCost))
	handler := transport.NewHandler(hub, core.NewDispatcher(hub, &logger), gw, transport.Options{
		OutboxSize:      32,
		WriteTimeout:    time.Second,
		AuthTimeout:     5 * time.Second,
		MaxAuthAttempts: 3,
	}, &logger, nil)

	srv := NewServer("127.0.0.1:0", handler, maxLineBytes, &logger)
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()
	t.Cleanup(cancel)
	return srv, hub, cancel, errCh
}

func TestRegisterLoginAndTakenName(t *testing.T) {
	srv, _, _, _ := startServer(t, 0)

	a := dial(t, srv.Addr())
	if resp := a.auth(proto.ModeRegister, "alice", "pw1"); !resp.OK {
		t.Fatalf("register alice: %+v", resp)
	}
	if resp := a.auth(proto.ModeLogin, "alice", "pw1"); !resp.OK || resp.Token == "" {
		t.Fatalf("login alice: %+v", resp)
	}
	if line := a.readLine(); line != transport.WelcomeLine {
		t.Fatalf("expected welcome, got %q", line)
	}

	b := dial(t, srv.Addr())
	if resp := b.auth(proto.ModeRegister, "alice", "pw2"); resp.OK || resp.Error.Code != proto.CodeUsernameTaken {
		t.Fatalf("expected username_taken, got %+v", resp)
	}
}

func TestFragmentedAndCoalescedLines(t *testing.T) {
	srv, _, _, _ := startServer(t, 0)

	a := dial(t, srv.Addr())
	line, _ := proto.EncodeAuthRequest(proto.AuthRequest{Mode: proto.ModeRegister, Username: "alice", Secret: "pw1"})
	for i := 0; i < len(line); i += 3 {
		end := min(i+3, len(line))
		a.write(line[i:end])
		time.Sleep(time.Millisecond)
	}
	a.write("\r\n")
	resp, err := proto.DecodeAuthResponse(a.readLine())
	if err != nil || !resp.OK {
		t.Fatalf("fragmented register failed: %+v %v", resp, err)
	}

	login, _ := proto.EncodeAuthRequest(proto.AuthRequest{Mode: proto.ModeLogin, Username: "alice", Secret: "pw1"})
	a.write(login + "\n/join room1\n/list\n")
	if resp, err := proto.DecodeAuthResponse(a.readLine()); err != nil || !resp.OK {
		t.Fatalf("login failed: %+v %v", resp, err)
	}
	a.readUntil("alice joined room1.")
	if got := a.readLine(); got != "Available channels: room1 [1]" {
		t.Fatalf("unexpected list reply %q", got)
	}
}

func TestChannelMessageIsolation(t *testing.T) {
	srv, _, _, _ := startServer(t, 0)

	clients := map[string]*testClient{}
	for _, name := range []string{"alice", "bob", "carol"} {
		c := dial(t, srv.Addr())
		c.auth(proto.ModeRegister, name, "pw1")
		if resp := c.auth(proto.ModeLogin, name, "pw1"); !resp.OK {
			t.Fatalf("login %s: %+v", name, resp)
		}
		c.readUntil(transport.WelcomeLine)
		clients[name] = c
	}
	a, b, c := clients["alice"], clients["bob"], clients["carol"]

	a.write("/join room1\n")
	a.readUntil("alice joined room1.")
	b.write("/join room1\n")
	b.readUntil("bob joined room1.")
	a.readUntil("bob joined room1.")

	a.write("hi\n")
	got := b.readUntil("alice: hi")
	if !strings.HasPrefix(got, "[") || got[9:11] != "] " {
		t.Fatalf("expected [HH:MM:SS] prefix, got %q", got)
	}

	c.write("/msg alice ping\n")
	if got := c.readLine(); got != "[private to alice] ping" {
		t.Fatalf("unexpected whisper echo %q", got)
	}
	if got := a.readUntil("[private]"); !strings.HasSuffix(got, "[private] carol: ping") {
		t.Fatalf("unexpected whisper %q", got)
	}
}

func TestLineTooLongClosesConnection(t *testing.T) {
	srv, hub, _, _ := startServer(t, 64)

	a := dial(t, srv.Addr())
	a.auth(proto.ModeRegister, "alice", "pw1")
	a.auth(proto.ModeLogin, "alice", "pw1")
	a.readUntil(transport.WelcomeLine)

	a.write(strings.Repeat("x", 200) + "\n")
	a.readUntil("Line too long")
	a.expectClosed()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Count() != 0 {
		t.Fatalf("session should be removed")
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	srv, _, cancel, errCh := startServer(t, 0)

	a := dial(t, srv.Addr())
	a.auth(proto.ModeRegister, "alice", "pw1")
	a.auth(proto.ModeLogin, "alice", "pw1")
	a.readUntil(transport.WelcomeLine)

	b := dial(t, srv.Addr())

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not stop")
	}
	a.expectClosed()
	b.expectClosed()

	if _, err := net.DialTimeout("tcp", srv.Addr().String(), 200*time.Millisecond); err == nil {
		t.Fatalf("listener should be closed")
	}
}

func TestServeWithoutListen(t *testing.T) {
	srv := NewServer("127.0.0.1:0", HandlerFunc(func(context.Context, transport.LineConn) {}), 0, nil)
	if err := srv.Serve(context.Background()); err == nil {
		t.Fatalf("expected error when Listen was not called")
	}
	if srv.Addr() != nil {
		t.Fatalf("Addr should be nil before Listen")
	}
}
