package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"devrelive/internal/api"
	"devrelive/internal/auth"
	"devrelive/internal/call"
	"devrelive/internal/config"
	"devrelive/internal/livekit"
	"devrelive/internal/logging"
	"devrelive/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "devrelive",
	Short: "DevReLive - live developer support backend",
	Long: `DevReLive is the backend for a live developer-support call center:
wallet-based sign-in, AI support calls, issue tracking, call scheduling
and an admin dashboard.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runServer(cmd.Context(), cfg)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		st, err := store.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		logger.Info("migrations applied", zap.String("db", cfg.Database.Path))
		return nil
	},
}

var (
	callChannel string
	callTopic   string
	callAddress string
)

// callCmd runs a text-mode support call from the terminal: stdin lines go
// to the assistant, reply transcriptions print as they arrive. Useful for
// exercising the live pipeline without a media client.
var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Run a text-mode support call from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runTerminalCall(cmd.Context(), cfg)
	},
}

// nullMic satisfies the audio source contract for text-only calls.
type nullMic struct{}

func (nullMic) Start(ctx context.Context, fn func(pcm []byte)) error { return nil }
func (nullMic) Stop()                                                {}

func runTerminalCall(ctx context.Context, cfg *config.Config) error {
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	dialer, err := call.NewGeminiDialer(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Voice)
	if err != nil {
		return err
	}

	session := call.NewSession(call.Options{
		ChannelName: callChannel,
		Topic:       callTopic,
		HostAddress: callAddress,
		IsHost:      callAddress != "",
		CacheDir:    filepath.Join(filepath.Dir(cfg.Database.Path), "transcripts"),
	}, dialer, nullMic{}, nil, st)

	if err := session.Connect(ctx); err != nil {
		return err
	}
	defer session.Wait()

	fmt.Println("Connected. Type messages; Ctrl-D to hang up.")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	printed := 0
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if line == "" {
				continue
			}
			if err := session.SendText(line); err != nil {
				break loop
			}
		case <-time.After(500 * time.Millisecond):
			for _, turn := range session.Transcript()[printed:] {
				if turn.Role == "ai" {
					fmt.Printf("assistant: %s\n", turn.Text)
				}
				printed++
			}
		}
	}

	if err := session.End(context.Background()); err != nil {
		logger.Warn("call record not persisted", zap.Error(err))
	}
	return session.Err()
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logsDir := cfg.Logging.Dir
	if logsDir == "" {
		logsDir = filepath.Join(filepath.Dir(cfg.Database.Path), "logs")
	}
	if err := logging.Initialize(logsDir, logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.Format == "json",
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return err
	}
	defer logging.CloseAll()

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	nonces := auth.NewNonceStore(config.Duration(cfg.Auth.NonceSweepInterval, 10*time.Minute))

	var caller auth.ContractCaller
	if cfg.Auth.RPCURL != "" {
		caller = auth.NewRPCCaller(cfg.Auth.RPCURL)
	} else {
		logger.Warn("no chain RPC endpoint configured, smart-account sign-in disabled")
	}
	verifier := auth.NewVerifier(nonces, caller)

	var minter *livekit.TokenMinter
	if cfg.LiveKit.APIKey != "" && cfg.LiveKit.APISecret != "" {
		minter, err = livekit.NewTokenMinter(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret,
			config.Duration(cfg.LiveKit.TokenTTL, 0))
		if err != nil {
			return err
		}
	} else {
		logger.Warn("LiveKit credentials not configured, media rooms disabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(st, nonces, verifier, minter, logger).Handler(),
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 30*time.Second),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		nonces.Run(ctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		logging.Boot("Server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			config.Duration(cfg.Server.ShutdownTimeout, 10*time.Second))
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "devrelive.yaml", "config file path")

	callCmd.Flags().StringVar(&callChannel, "channel", "support", "support channel name")
	callCmd.Flags().StringVar(&callTopic, "topic", "", "call topic")
	callCmd.Flags().StringVar(&callAddress, "address", "", "host wallet address (persists the call)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(callCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
