package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/linechat/internal/app"
	"github.com/vovakirdan/linechat/internal/config"
	"github.com/vovakirdan/linechat/internal/log"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	addr       string
	httpAddr   string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "linechat",
		Short:         "Line-oriented TCP chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	for _, c := range []*cobra.Command{root, serve} {
		c.Flags().StringVar(&opts.addr, "addr", "", "TCP listen address override")
		c.Flags().StringVar(&opts.httpAddr, "http-addr", "", "HTTP listen address override")
	}

	root.AddCommand(serve, newUserCmd(opts), newVersionCmd())
	return root
}

// loadConfig reads the config file and applies command-line overrides.
// Bootstrap logs go to stderr so user subcommands keep stdout clean.
func loadConfig(opts *rootOptions) (config.Config, error) {
	bootstrap := log.NewWithWriter(os.Stderr, "info", "console")
	cfg, path, err := config.Load(bootstrap, opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.httpAddr != "" {
		cfg.HTTPAddr = opts.httpAddr
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	bootstrap.Debug().Str("path", path).Msg("config loaded")
	return cfg, nil
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := log.New(cfg.LogLevel, cfg.LogFormat)

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Str("http_addr", cfg.HTTPAddr).Str("version", version).Msg("starting linechat server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
