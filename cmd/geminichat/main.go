// Command geminichat runs the chat service: an HTTP server fronting the
// Gemini generative-language API with API key rotation, a TTL reply cache,
// per-client rate limiting, and optional streaming. With --tui it also runs
// the interactive terminal dashboard in the foreground and exits when the
// dashboard is closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"geminichat"
	"geminichat/api"
	"geminichat/gemini"
	"geminichat/tui"
)

const shutdownGrace = 5 * time.Second

var (
	flagPort    int
	flagEnvFile string
	flagTUI     bool
)

func main() {
	root := &cobra.Command{
		Use:   "geminichat",
		Short: "HTTP chat service fronting the Gemini generative-language API",
		Long: `geminichat serves chat requests over HTTP, rotating across a pool of
Gemini API keys, caching identical replies for a configurable TTL, and rate
limiting clients. Configuration comes from the environment, optionally seeded
from a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.Flags().Changed("env-file"))
		},
	}
	root.Flags().IntVar(&flagPort, "port", 0, "listen port, overriding PORT from the environment")
	root.Flags().StringVar(&flagEnvFile, "env-file", ".env", "env file seeding the process environment")
	root.Flags().BoolVar(&flagTUI, "tui", false, "run the terminal dashboard in the foreground")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "geminichat:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envFileExplicit bool) error {
	// A missing default .env is normal; a missing explicitly named file is
	// an operator mistake.
	if err := godotenv.Load(flagEnvFile); err != nil {
		if envFileExplicit || !os.IsNotExist(err) {
			return fmt.Errorf("loading env file %s: %w", flagEnvFile, err)
		}
	}

	cfg, err := geminichat.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if flagPort != 0 {
		if flagPort < 1 || flagPort > 65535 {
			return fmt.Errorf("invalid --port %d: must be between 1 and 65535", flagPort)
		}
		cfg.Port = flagPort
	}

	logger, err := newLogger(cfg, flagTUI)
	if err != nil {
		return err
	}

	keyring, err := geminichat.NewKeyring(cfg.APIKeys)
	if err != nil {
		return fmt.Errorf("building API key pool: %w", err)
	}
	logger.Info().Int("keys", keyring.Len()).Msg("api key pool ready")

	cache := geminichat.NewReplyCache(cfg.CacheTTL)
	provider := gemini.NewClient(cfg.Model, cfg.SystemPrompt)
	svc := geminichat.NewService(cfg, keyring, cache, provider, geminichat.NewServiceStats(), logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.NewRouter(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Streamed replies hold the response open while the model produces
		// text, so the write timeout stays generous.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("addr", srv.Addr).
			Str("model", cfg.Model).
			Str("env", cfg.Env).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if flagTUI {
		g.Go(func() error {
			// Closing the dashboard shuts the whole process down.
			defer cancel()
			return tui.Start(svc)
		})
	}

	err = g.Wait()
	logger.Info().Msg("shutdown complete")
	return err
}

// newLogger builds the process logger: human-readable console output in
// development, JSON in production, discarded entirely in TUI mode so log
// lines cannot corrupt the terminal screen.
func newLogger(cfg *geminichat.Config, quiet bool) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	var out io.Writer = os.Stderr
	switch {
	case quiet:
		out = io.Discard
	case cfg.Verbose():
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
