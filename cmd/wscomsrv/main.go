package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wscomsrv/wscomsrv/internal/channel"
	"github.com/wscomsrv/wscomsrv/internal/config"
	"github.com/wscomsrv/wscomsrv/internal/handlers"
	"github.com/wscomsrv/wscomsrv/internal/logging"
	wsclient "github.com/wscomsrv/wscomsrv/internal/websocket"
)

type options struct {
	cfgPath  string
	envFile  string
	url      string
	sender   string
	logLevel string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "wscomsrv",
		Short:        "Run a command channel peer against a websocket relay",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := cmd.PersistentFlags()
	f.StringVar(&opts.cfgPath, "config", config.DefaultPath, "Path to config file")
	f.StringVar(&opts.envFile, "env-file", ".env", "Optional .env file with WSCS_* overrides")
	f.StringVar(&opts.url, "url", "", "Relay URL (e.g. ws://localhost:8765)")
	f.StringVar(&opts.sender, "sender", "", "Name sent in the from field")
	f.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	cmd.AddCommand(initCmd(opts), sendCmd(opts))
	return cmd
}

// loadConfig reads the config file if there is one, then applies the
// environment and finally the flags.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = config.Default()
	}
	if err := cfg.ApplyEnv(opts.envFile); err != nil {
		return nil, err
	}
	if opts.url != "" {
		cfg.URL = opts.url
	}
	if opts.sender != "" {
		cfg.Sender = opts.sender
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newChannel(cfg *config.Config, log *zap.Logger) *channel.Channel {
	client := wsclient.New(wsclient.Options{
		ReconnectDelay: cfg.ReconnectDelay,
		PingInterval:   cfg.PingInterval,
		DialTimeout:    cfg.DialTimeout,
		Dialer:         wsclient.WSDialer{ReadLimit: cfg.ReadLimit},
	}, log)
	return channel.New(client, cfg.Sender, log)
}

func run(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ch := newChannel(cfg, log)
	handlers.NewGUI(ch, log).Register(ctx)

	log.Info("starting command channel",
		zap.String("url", cfg.URL),
		zap.String("sender", cfg.Sender),
		zap.Duration("reconnect_delay", cfg.ReconnectDelay),
	)
	ch.Run(ctx, cfg.URL)
	log.Info("command channel stopped")
	return nil
}
