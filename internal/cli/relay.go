package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/coedit/internal/relay"
)

// RelayOptions holds flags for the relay command.
type RelayOptions struct {
	*RootOptions
	Config    string
	Addr      string
	RedisAddr string
	Tokens    map[string]string // token -> user id
}

// NewRelayCommand creates the relay command.
func NewRelayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a development relay server",
		Long: `Run a websocket relay that authenticates clients, stamps edits with a
per-session revision, and broadcasts every message to the session.

Without --token any token is accepted. With --redis, several relays share
sessions through Redis pub/sub.

Examples:
  coedit relay --addr :8080
  coedit relay --token s3cret=alice --token t0ken=bob
  coedit relay --config relay.yaml --redis localhost:6379`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "YAML relay config")
	cmd.Flags().StringVar(&opts.Addr, "addr", "localhost:8080", "listen address")
	cmd.Flags().StringVar(&opts.RedisAddr, "redis", "", "Redis address for cross-instance fan-out")
	cmd.Flags().StringToStringVar(&opts.Tokens, "token", nil, "accepted token as token=user (repeatable)")

	return cmd
}

func runRelay(opts *RelayOptions, cmd *cobra.Command) error {
	log := opts.logger()

	cfg := relay.DefaultConfig()
	if opts.Config != "" {
		loaded, err := relay.LoadConfig(opts.Config)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load relay config", err)
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("addr") || opts.Config == "" {
		cfg.Addr = opts.Addr
	}
	if opts.RedisAddr != "" {
		cfg.Redis.Addr = opts.RedisAddr
	}
	if len(opts.Tokens) > 0 {
		cfg.Tokens = opts.Tokens
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvOpts := []relay.Option{relay.WithLogger(log)}
	if cfg.Redis.Addr != "" {
		broker, err := relay.NewRedisBroker(ctx, cfg.Redis)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to connect to redis", err)
		}
		log.Info("using redis broker", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
		srvOpts = append(srvOpts, relay.WithBroker(broker))
	}

	if err := relay.NewServer(cfg, srvOpts...).ListenAndServe(ctx); err != nil {
		return WrapExitError(ExitCommandError, "relay stopped", err)
	}
	log.Info("relay stopped")
	return nil
}
