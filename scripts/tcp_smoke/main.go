package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/vovakirdan/linechat/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("tcp_smoke: %v", err)
		os.Exit(1)
	}
}

type client struct {
	name string
	conn net.Conn
	r    *proto.LineReader
}

func run() error {
	addr := flag.String("addr", "localhost:55555", "chat TCP address")
	user := flag.String("user", "tester", "username prefix, two accounts are used")
	secret := flag.String("secret", "smoke-secret", "secret for both accounts")
	channel := flag.String("channel", "general", "channel name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	deadline := time.Now().Add(*timeout)
	sender, err := connect(*addr, *user+"_a", *secret, deadline)
	if err != nil {
		return err
	}
	defer sender.conn.Close()
	receiver, err := connect(*addr, *user+"_b", *secret, deadline)
	if err != nil {
		return err
	}
	defer receiver.conn.Close()

	for _, c := range []*client{sender, receiver} {
		if err := c.send("/join " + *channel); err != nil {
			return err
		}
		if _, err := c.waitFor(c.name + " joined " + *channel + "."); err != nil {
			return err
		}
	}

	if err := sender.send(*text); err != nil {
		return err
	}
	line, err := receiver.waitFor(sender.name + ": " + *text)
	if err != nil {
		return err
	}
	fmt.Printf("received: %s\n", line)

	if err := sender.send("/quit"); err != nil {
		return err
	}
	if _, err := sender.waitFor("Goodbye."); err != nil {
		return err
	}
	fmt.Println("smoke test passed")
	return nil
}

// connect registers the account (an existing name is fine) and logs in.
func connect(addr, name, secret string, deadline time.Time) (*client, error) {
	conn, err := net.DialTimeout("tcp", addr, time.Until(deadline))
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	_ = conn.SetDeadline(deadline)
	c := &client{name: name, conn: conn, r: proto.NewLineReader(conn, proto.DefaultMaxLineBytes)}

	resp, err := c.auth(proto.ModeRegister, secret)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !resp.OK && (resp.Error == nil || resp.Error.Code != proto.CodeUsernameTaken) {
		conn.Close()
		return nil, fmt.Errorf("register %s: %v", name, resp.Error)
	}
	resp, err = c.auth(proto.ModeLogin, secret)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !resp.OK {
		conn.Close()
		return nil, fmt.Errorf("login %s: %v", name, resp.Error)
	}
	return c, nil
}

func (c *client) auth(mode, secret string) (proto.AuthResponse, error) {
	line, err := proto.EncodeAuthRequest(proto.AuthRequest{Mode: mode, Username: c.name, Secret: secret})
	if err != nil {
		return proto.AuthResponse{}, err
	}
	if err := c.send(line); err != nil {
		return proto.AuthResponse{}, err
	}
	raw, err := c.r.ReadLine()
	if err != nil {
		return proto.AuthResponse{}, fmt.Errorf("read %s response: %w", mode, err)
	}
	return proto.DecodeAuthResponse(raw)
}

func (c *client) send(line string) error {
	if err := proto.WriteLine(c.conn, line); err != nil {
		return fmt.Errorf("%s send: %w", c.name, err)
	}
	return nil
}

func (c *client) waitFor(substr string) (string, error) {
	for {
		line, err := c.r.ReadLine()
		if err != nil {
			return "", fmt.Errorf("%s waiting for %q: %w", c.name, substr, err)
		}
		if strings.Contains(line, substr) {
			return line, nil
		}
	}
}
