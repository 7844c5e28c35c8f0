package app

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/config"
	"github.com/vovakirdan/linechat/internal/proto"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.HTTPAddr = ""
	cfg.Store.Driver = config.DriverMemory
	cfg.Store.DSN = ""
	return cfg
}

func TestOpenStoreDrivers(t *testing.T) {
	ctx := context.Background()

	st, err := OpenStore(ctx, config.StoreConfig{Driver: config.DriverMemory})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	_ = st.Close()

	path := filepath.Join(t.TempDir(), "creds.db")
	st, err = OpenStore(ctx, config.StoreConfig{Driver: config.DriverSQLite, DSN: path})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if err := st.Save(ctx, "alice", "hash"); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = st.Close()

	st, err = OpenStore(ctx, config.StoreConfig{Driver: config.DriverSQLite, DSN: path})
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer st.Close()
	if ok, _ := st.Contains(ctx, "alice"); !ok {
		t.Fatalf("credential should survive a reopen")
	}

	if _, err := OpenStore(ctx, config.StoreConfig{Driver: "bolt"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLineBytes = 1
	logger := zerolog.Nop()

	if _, err := New(context.Background(), &cfg, &logger); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestRunServesChatUntilCancelled(t *testing.T) {
	cfg := testConfig()
	logger := zerolog.Nop()

	a, err := New(context.Background(), &cfg, &logger)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := a.gateway.Register(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	var addr net.Addr
	deadline := time.Now().Add(2 * time.Second)
	for addr == nil && time.Now().Before(deadline) {
		addr = a.TCPAddr()
		time.Sleep(5 * time.Millisecond)
	}
	if addr == nil {
		t.Fatalf("tcp listener did not start")
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	r := bufio.NewReader(conn)

	line, _ := proto.EncodeAuthRequest(proto.AuthRequest{Mode: proto.ModeLogin, Username: "alice", Secret: "pw1"})
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	resp, err := proto.DecodeAuthResponse(strings.TrimSpace(raw))
	if err != nil || !resp.OK {
		t.Fatalf("login failed: %+v %v", resp, err)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not return after cancel")
	}

	if a.hub.Count() != 0 {
		t.Fatalf("sessions should be torn down on shutdown, %d left", a.hub.Count())
	}
}

func TestNewWarnsOnDefaultJWTSecret(t *testing.T) {
	for _, secret := range []string{config.DefaultJWTSecret, "a-real-secret"} {
		cfg := testConfig()
		cfg.HTTPAddr = "127.0.0.1:0"
		cfg.JWTSecret = secret

		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		if _, err := New(context.Background(), &cfg, &logger); err != nil {
			t.Fatalf("new: %v", err)
		}
		warned := strings.Contains(buf.String(), "jwt_secret is the default placeholder")
		if warned != (secret == config.DefaultJWTSecret) {
			t.Fatalf("secret %q: warned=%v\n%s", secret, warned, buf.String())
		}
	}
}
