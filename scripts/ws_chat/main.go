package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"

	"github.com/vovakirdan/linechat/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "username")
	secret := flag.String("secret", "", "secret")
	register := flag.Bool("register", false, "register the account before logging in")
	channel := flag.String("channel", "general", "channel to join after login, empty to skip")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if *register {
		if err := authenticate(ctx, conn, proto.ModeRegister, *user, *secret); err != nil {
			return err
		}
	}
	if err := authenticate(ctx, conn, proto.ModeLogin, *user, *secret); err != nil {
		return err
	}
	if *channel != "" {
		if err := conn.Write(ctx, websocket.MessageText, []byte("/join "+*channel)); err != nil {
			return fmt.Errorf("join: %w", err)
		}
	}

	fmt.Printf("Connected to %s as %s\n", *addr, *user)
	fmt.Println("Type messages or /help and press Enter. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func authenticate(ctx context.Context, conn *websocket.Conn, mode, user, secret string) error {
	line, err := proto.EncodeAuthRequest(proto.AuthRequest{Mode: mode, Username: user, Secret: secret})
	if err != nil {
		return fmt.Errorf("encode %s: %w", mode, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
		return fmt.Errorf("send %s: %w", mode, err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("read %s response: %w", mode, err)
	}
	resp, err := proto.DecodeAuthResponse(string(data))
	if err != nil {
		return fmt.Errorf("decode %s response: %w", mode, err)
	}
	if !resp.OK {
		if resp.Error != nil {
			return fmt.Errorf("%s rejected: %w", mode, resp.Error)
		}
		return fmt.Errorf("%s rejected", mode)
	}
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}
		fmt.Println(string(data))
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
