package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/auth"
	"github.com/vovakirdan/linechat/internal/config"
	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/proto"
)

// Lines sent by the server outside of command replies.
const (
	WelcomeLine     = "Welcome to the chat! Type /help for commands."
	SlowDownLine    = "You are sending messages too fast. Slow down."
	LineTooLongLine = "Line too long. Closing connection."
)

// Authenticator is the part of the auth gateway the handshake needs.
type Authenticator interface {
	Register(ctx context.Context, username, secret string) (auth.Identity, error)
	Login(ctx context.Context, username, secret string) (auth.Identity, error)
}

// Observer receives connection activity, typically to feed metrics.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
	AuthAttempt(mode string, ok bool)
	RateLimited()
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened()        {}
func (nopObserver) ConnectionClosed()        {}
func (nopObserver) AuthAttempt(string, bool) {}
func (nopObserver) RateLimited()             {}

// Options tunes per-connection limits.
type Options struct {
	OutboxSize      int
	WriteTimeout    time.Duration
	AuthTimeout     time.Duration
	MaxAuthAttempts int
	RateLimit       int // lines per minute, 0 disables
}

// OptionsFromConfig extracts connection limits from the server config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		OutboxSize:      cfg.OutboxSize,
		WriteTimeout:    cfg.WriteTimeout,
		AuthTimeout:     cfg.AuthTimeout,
		MaxAuthAttempts: cfg.MaxAuthAttempts,
		RateLimit:       cfg.RateLimit,
	}
}

// Handler drives one connection from handshake to teardown.
type Handler struct {
	hub        *core.Hub
	dispatcher *core.Dispatcher
	auth       Authenticator
	opts       Options
	log        *zerolog.Logger
	obs        Observer
	now        func() time.Time
}

// NewHandler creates a connection handler. obs may be nil.
func NewHandler(hub *core.Hub, dispatcher *core.Dispatcher, authenticator Authenticator, opts Options, logger *zerolog.Logger, obs Observer) *Handler {
	if opts.MaxAuthAttempts <= 0 {
		opts.MaxAuthAttempts = 3
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Handler{
		hub:        hub,
		dispatcher: dispatcher,
		auth:       authenticator,
		opts:       opts,
		log:        logger,
		obs:        obs,
		now:        time.Now,
	}
}

// Serve runs conn until the client quits, the connection fails or ctx is
// cancelled. It always closes conn before returning.
func (h *Handler) Serve(ctx context.Context, conn LineConn) {
	h.obs.ConnectionOpened()
	defer h.obs.ConnectionClosed()

	remote := conn.RemoteAddr()
	logger := h.log.With().Str("remote", remote).Logger()
	logger.Debug().Msg("connection opened")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	peer := NewPeer(conn, h.opts.OutboxSize, h.opts.WriteTimeout, &logger)
	info, err := h.handshake(ctx, conn, peer, &logger)
	if err != nil {
		logger.Debug().Err(err).Msg("handshake ended")
		_ = conn.Close()
		return
	}
	logger = logger.With().Str("session_id", info.ID).Str("user", info.Username).Logger()
	logger.Info().Msg("user logged in")

	go peer.Run(ctx)

	_ = h.hub.Reply(info.ID, WelcomeLine)
	h.hub.Broadcast(fmt.Sprintf("%s joined the chat!", info.Username), info.ID, "")

	h.readLoop(ctx, conn, info.ID, &logger)

	h.hub.Disconnect(info.ID)
	<-peer.Done()
	logger.Info().Msg("connection closed")
}

func (h *Handler) readLoop(ctx context.Context, conn LineConn, id string, logger *zerolog.Logger) {
	limiter := newRateLimiter(h.opts.RateLimit, h.now)
	for {
		line, err := conn.ReadLine(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				logger.Debug().Msg("client closed connection")
			case errors.Is(err, proto.ErrLineTooLong):
				logger.Warn().Msg("line too long")
				_ = h.hub.Reply(id, LineTooLongLine)
			default:
				logger.Debug().Err(err).Msg("read failed")
			}
			return
		}

		if !limiter.allow() {
			h.obs.RateLimited()
			_ = h.hub.Reply(id, SlowDownLine)
			continue
		}
		if quit := h.dispatcher.Handle(id, line); quit {
			return
		}
	}
}

// handshake reads auth requests until a login succeeds. Registration
// alone does not log in. The connection is given up after
// MaxAuthAttempts failures or when AuthTimeout expires.
func (h *Handler) handshake(ctx context.Context, conn LineConn, peer *Peer, logger *zerolog.Logger) (core.SessionInfo, error) {
	if h.opts.AuthTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.AuthTimeout)
		defer cancel()
	}

	failures := 0
	for failures < h.opts.MaxAuthAttempts {
		line, err := conn.ReadLine(ctx)
		if err != nil {
			return core.SessionInfo{}, fmt.Errorf("read auth request: %w", err)
		}

		req, err := proto.DecodeAuthRequest(line)
		if err != nil {
			failures++
			h.obs.AuthAttempt("invalid", false)
			if err := h.respond(ctx, conn, proto.NewAuthError(proto.CodeBadRequest, err.Error())); err != nil {
				return core.SessionInfo{}, err
			}
			continue
		}

		switch req.Mode {
		case proto.ModeRegister:
			identity, err := h.auth.Register(ctx, req.Username, req.Secret)
			h.obs.AuthAttempt(req.Mode, err == nil)
			if err != nil {
				failures++
				logger.Debug().Err(err).Str("user", req.Username).Msg("register failed")
				if err := h.respond(ctx, conn, h.authError(err, logger)); err != nil {
					return core.SessionInfo{}, err
				}
				continue
			}
			logger.Info().Str("user", identity.Username).Msg("user registered")
			resp := proto.AuthResponse{OK: true, Mode: proto.ModeRegister, User: identity.Username, Protocol: proto.ProtocolVersion}
			if err := h.respond(ctx, conn, resp); err != nil {
				return core.SessionInfo{}, err
			}

		case proto.ModeLogin:
			identity, err := h.auth.Login(ctx, req.Username, req.Secret)
			var info core.SessionInfo
			if err == nil {
				// The peer is registered before its writer runs so the
				// auth response below is the first line the client sees.
				info, err = h.hub.Add(peer, identity.Username)
			}
			h.obs.AuthAttempt(req.Mode, err == nil)
			if err != nil {
				failures++
				logger.Debug().Err(err).Str("user", req.Username).Msg("login failed")
				if err := h.respond(ctx, conn, h.authError(err, logger)); err != nil {
					return core.SessionInfo{}, err
				}
				continue
			}
			resp := proto.AuthResponse{OK: true, Mode: proto.ModeLogin, User: identity.Username, Token: identity.Token, Protocol: proto.ProtocolVersion}
			if err := h.respond(ctx, conn, resp); err != nil {
				h.hub.Remove(info.ID)
				return core.SessionInfo{}, err
			}
			return info, nil
		}
	}

	_ = h.respond(ctx, conn, proto.NewAuthError(proto.CodeTooManyAttempts, "too many failed attempts"))
	return core.SessionInfo{}, fmt.Errorf("gave up after %d failed attempts", failures)
}

func (h *Handler) respond(ctx context.Context, conn LineConn, resp proto.AuthResponse) error {
	line, err := proto.EncodeAuthResponse(resp)
	if err != nil {
		return fmt.Errorf("encode auth response: %w", err)
	}
	if h.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.WriteTimeout)
		defer cancel()
	}
	if err := conn.WriteLine(ctx, line); err != nil {
		return fmt.Errorf("write auth response: %w", err)
	}
	return nil
}

func (h *Handler) authError(err error, logger *zerolog.Logger) proto.AuthResponse {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return proto.NewAuthError(proto.CodeInvalidCredentials, "invalid username or secret")
	case errors.Is(err, auth.ErrUserExists):
		return proto.NewAuthError(proto.CodeUsernameTaken, "username is already registered")
	case errors.Is(err, auth.ErrInvalidUsername):
		return proto.NewAuthError(proto.CodeInvalidUsername, "username must be 3-32 printable characters without spaces")
	case errors.Is(err, auth.ErrInvalidPassword):
		return proto.NewAuthError(proto.CodeInvalidPassword, fmt.Sprintf("secret must be at least %d characters", auth.MinSecretLen))
	case errors.Is(err, core.ErrDuplicateUsername):
		return proto.NewAuthError(proto.CodeDuplicateUsername, "user is already logged in")
	default:
		logger.Error().Err(err).Msg("auth failed")
		return proto.NewAuthError(proto.CodeInternal, "internal error")
	}
}
