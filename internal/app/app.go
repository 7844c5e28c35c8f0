package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/auth"
	"github.com/vovakirdan/linechat/internal/config"
	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/log"
	"github.com/vovakirdan/linechat/internal/metrics"
	"github.com/vovakirdan/linechat/internal/store"
	"github.com/vovakirdan/linechat/internal/store/memory"
	"github.com/vovakirdan/linechat/internal/store/mysql"
	"github.com/vovakirdan/linechat/internal/store/redis"
	"github.com/vovakirdan/linechat/internal/store/sqlite"
	"github.com/vovakirdan/linechat/internal/transport"
	transporthttp "github.com/vovakirdan/linechat/internal/transport/http"
	"github.com/vovakirdan/linechat/internal/transport/tcp"
)

// App wires together core and transport layers.
type App struct {
	tcp             *tcp.Server
	server          *stdhttp.Server // nil when http_addr is empty
	shutdownTimeout time.Duration
	hub             *core.Hub
	gateway         *auth.Gateway
	store           store.CredentialStore
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.Store.Driver).Msg("credential store initialized")
	if cfg.InsecureJWTSecret() {
		logger.Warn().Msg("jwt_secret is the default placeholder; set jwt_secret or LINECHAT_JWT_SECRET before exposing the HTTP API")
	}

	m := metrics.New()
	hub := core.NewHub(
		core.WithLogger(log.Component(logger, "hub")),
		core.WithObserver(m),
	)
	gateway := NewGateway(st, cfg, auth.WithNameInUse(func(name string) bool {
		_, online := hub.Lookup(name)
		return online
	}))
	dispatcher := core.NewDispatcher(hub, log.Component(logger, "dispatcher"), core.WithNameGuard(gateway))
	lines := transport.NewHandler(hub, dispatcher, gateway, transport.OptionsFromConfig(cfg), log.Component(logger, "conn"), m)

	a := &App{
		tcp:             tcp.NewServer(cfg.Addr, lines, cfg.MaxLineBytes, log.Component(logger, "tcp")),
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		gateway:         gateway,
		store:           st,
		log:             logger,
	}
	if cfg.HTTPAddr != "" {
		a.server = transporthttp.NewServer(transporthttp.Deps{
			Hub:     hub,
			Auth:    gateway,
			Lines:   lines,
			Metrics: m.Handler(),
		}, cfg, log.Component(logger, "http"))
	}
	return a, nil
}

// NewGateway builds the auth gateway from the token settings in cfg.
func NewGateway(st store.CredentialStore, cfg *config.Config, opts ...auth.Option) *auth.Gateway {
	return auth.NewGateway(st, &auth.TokenConfig{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.JWTTTL,
	}, opts...)
}

// OpenStore opens the credential store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.CredentialStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		st, err := sqlite.New(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverMySQL:
		st, err := mysql.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverRedis:
		st, err := redis.New(ctx, redis.Options{
			Addr:     cfg.DSN,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// TCPAddr returns the bound chat address once Run has started listening.
func (a *App) TCPAddr() net.Addr { return a.tcp.Addr() }

// Run starts the listeners and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	if err := a.tcp.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tcpErr := make(chan error, 1)
	go func() {
		tcpErr <- a.tcp.Serve(ctx)
	}()

	serverErr := make(chan error, 1)
	if a.server != nil {
		a.server.BaseContext = func(net.Listener) context.Context { return ctx }
		go func() {
			a.log.Info().Str("addr", a.server.Addr).Msg("http server started")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				serverErr <- err
				return
			}
			serverErr <- nil
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-tcpErr:
		// Serve only returns early on a fatal accept error.
		runErr = err
		tcpErr = nil
	case err := <-serverErr:
		runErr = err
		serverErr = nil
	}
	cancel()

	if a.server != nil && serverErr != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancelShutdown()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = err
		}
		if err := <-serverErr; err != nil && runErr == nil {
			runErr = err
		}
	}
	if tcpErr != nil {
		if err := <-tcpErr; err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
