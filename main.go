// Command autovoice is a channel moderator bot that grants voice to members
// once they have stayed in the channel for a configured cooldown.
// It:
//   - Loads configuration (defaults, YAML file, environment, flags) and initializes structured logging.
//   - Connects to a generic IRC network or to Twitch chat.
//   - Runs the promotion engine until the connection ends or a signal arrives.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/onnwee/autovoice/chat"
	"github.com/onnwee/autovoice/config"
	"github.com/onnwee/autovoice/promote"
	"github.com/onnwee/autovoice/server"
	"github.com/onnwee/autovoice/telemetry"
	"github.com/onnwee/autovoice/twitchapi"
)

const programName = "autovoice"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	if err := rootCommand().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// errReported marks errors that have already been logged.
var errReported = errors.New("reported")

// cliOptions holds flag values until they are layered over the loaded config.
type cliOptions struct {
	configFile string
	verbosity  int
	cfg        *config.Config
	seconds    uint64
	minutes    uint64
	hours      uint64
}

func rootCommand() *cobra.Command {
	opts := &cliOptions{cfg: config.Defaults()}

	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Grant voice to channel members after a cooldown",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			opts.apply(cmd.Flags(), cfg)

			logger := newLogger(cfg.LogLevel, cfg.LogFormat, opts.verbosity, os.Stdout)
			slog.SetDefault(logger)
			// Configure max processes with our logger wrapper, toss undo func
			if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
				logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "maxprocs"))
			})); err != nil {
				logger.Warn("failed to set GOMAXPROCS", slog.Any("err", err))
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			logger.Info("starting", slog.String("version", version), slog.Any("settings", cfg.Settings()))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, cfg, logger); err != nil {
				logger.Error("autovoice stopped", slog.Any("err", err))
				return fmt.Errorf("%w: %w", errReported, err)
			}
			return nil
		},
	}

	opts.register(rootCmd.Flags())
	rootCmd.MarkFlagsMutuallyExclusive("promote-after-seconds", "promote-after-minutes", "promote-after-hours")

	rootCmd.AddCommand(versionCommand())
	return rootCmd
}

func (o *cliOptions) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.configFile, "config", "", "path to YAML config file")
	fs.CountVarP(&o.verbosity, "verbose", "v", "increase log verbosity (-v debug, -vv trace)")
	fs.StringVar(&o.cfg.Network, "network", o.cfg.Network, "chat network: irc or twitch")
	fs.StringVar(&o.cfg.Server, "server", "", "irc server host[:port]")
	fs.BoolVar(&o.cfg.TLS, "tls", o.cfg.TLS, "connect to the irc server with TLS")
	fs.StringVar(&o.cfg.Nickname, "nickname", "", "bot nickname (twitch: bot login)")
	fs.StringVar(&o.cfg.Password, "password", "", "NickServ password")
	fs.StringVar(&o.cfg.Channel, "channel", "", "channel to moderate")
	fs.Uint64Var(&o.seconds, "promote-after-seconds", 0, "promote members after this many seconds")
	fs.Uint64Var(&o.minutes, "promote-after-minutes", 0, "promote members after this many minutes")
	fs.Uint64Var(&o.hours, "promote-after-hours", 0, "promote members after this many hours")
	fs.DurationVar(&o.cfg.CheckInterval, "check-interval", o.cfg.CheckInterval, "how often to look for members to promote")
	fs.StringVar(&o.cfg.HTTPAddr, "http-addr", o.cfg.HTTPAddr, "ops HTTP listen address (empty disables)")
}

// apply copies explicitly set flags over cfg.
func (o *cliOptions) apply(fs *pflag.FlagSet, cfg *config.Config) {
	changed := fs.Changed
	if changed("network") {
		cfg.Network = o.cfg.Network
	}
	if changed("server") {
		cfg.Server = o.cfg.Server
	}
	if changed("tls") {
		cfg.TLS = o.cfg.TLS
	}
	if changed("nickname") {
		cfg.Nickname = o.cfg.Nickname
	}
	if changed("password") {
		cfg.Password = o.cfg.Password
	}
	if changed("channel") {
		cfg.Channel = o.cfg.Channel
	}
	if changed("check-interval") {
		cfg.CheckInterval = o.cfg.CheckInterval
	}
	if changed("http-addr") {
		cfg.HTTPAddr = o.cfg.HTTPAddr
	}

	// A cooldown flag replaces whatever unit the file or environment chose.
	cooldown := []struct {
		flag  string
		value uint64
		dst   **uint64
	}{
		{"promote-after-seconds", o.seconds, &cfg.PromoteAfterSeconds},
		{"promote-after-minutes", o.minutes, &cfg.PromoteAfterMinutes},
		{"promote-after-hours", o.hours, &cfg.PromoteAfterHours},
	}
	for _, c := range cooldown {
		if !changed(c.flag) {
			continue
		}
		cfg.PromoteAfterSeconds, cfg.PromoteAfterMinutes, cfg.PromoteAfterHours = nil, nil, nil
		v := c.value
		*c.dst = &v
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", programName, version)
		},
	}
}

// run connects the transport and drives the promotion engine until ctx is
// cancelled or the connection is lost.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(cfg.OTLPEndpoint, programName, version)
	if err != nil {
		return fmt.Errorf("tracing initialization failed: %w", err)
	}
	defer shutdownTracing()

	cooldown, err := cfg.Cooldown()
	if err != nil {
		return err
	}
	channel := cfg.IRCChannel()
	nickname := cfg.Nickname
	if cfg.Network == config.NetworkTwitch {
		// Twitch reports members by lowercase login.
		nickname = strings.ToLower(nickname)
	}

	transport, err := newTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := transport.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	engine := promote.New(promote.Options{
		Channel:  channel,
		Nickname: nickname,
		Cooldown: cooldown,
		Interval: cfg.CheckInterval,
		Jitter:   promote.Jitter{Min: cfg.JitterMin, Max: cfg.JitterMax},
		Logger:   logger,
	}, transport)

	var wg sync.WaitGroup
	if cfg.HTTPAddr != "" {
		handler := server.NewMux(server.NewHandlers(engine, transport, cfg.Settings()))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(ctx, cfg.HTTPAddr, handler); err != nil {
				logger.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	}

	err = engine.Run(ctx, transport)
	cancel()
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func newTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (chat.Transport, error) {
	switch cfg.Network {
	case config.NetworkTwitch:
		tokens, err := twitchapi.UserToken{
			ClientID:     cfg.Twitch.ClientID,
			ClientSecret: cfg.Twitch.ClientSecret,
			AccessToken:  cfg.Twitch.OAuthToken,
			RefreshToken: cfg.Twitch.RefreshToken,
		}.Source(ctx)
		if err != nil {
			return nil, err
		}
		tok, err := tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("twitch token: %w", err)
		}
		return &chat.Twitch{
			Username: cfg.Nickname,
			Token:    tok.AccessToken,
			Channel:  cfg.IRCChannel(),
			Helix: &twitchapi.HelixClient{
				ClientID: cfg.Twitch.ClientID,
				Tokens:   tokens,
				Logger:   logger,
			},
			Logger: logger,
		}, nil
	default:
		return &chat.IRC{
			Server:   cfg.Server,
			Nickname: cfg.Nickname,
			Password: cfg.Password,
			Channel:  cfg.IRCChannel(),
			TLS:      cfg.TLS,
			Logger:   logger,
		}, nil
	}
}
