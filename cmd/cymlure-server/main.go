// Package main is the entry point for the cymlure generation server.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cymbytes.com/cymlure/internal/api"
	"cymbytes.com/cymlure/internal/api/handlers"
	"cymbytes.com/cymlure/internal/audit"
	"cymbytes.com/cymlure/internal/generator/fanout"
	"cymbytes.com/cymlure/internal/generator/llm"
	"cymbytes.com/cymlure/internal/generator/locale"
	"cymbytes.com/cymlure/internal/generator/pipeline"
	"cymbytes.com/cymlure/internal/inbox"
	"cymbytes.com/cymlure/internal/storage"
	"cymbytes.com/cymlure/internal/webhooks"
	"cymbytes.com/cymlure/internal/worker"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cymlure server\n")
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		if err := loadConfig(*configPath, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	applyEnvOverrides(&cfg)

	logger := initLogger(cfg.Logging)
	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Msg("Starting cymlure server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.New(ctx, storage.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		EnableWAL:       cfg.Database.EnableWAL,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	providers, err := llm.BuildSet(ctx, cfg.LLM)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize LLM providers")
	}
	logger.Info().
		Strs("providers", providers.Providers()).
		Str("default", cfg.LLM.Default).
		Msg("LLM providers registered")

	locales := locale.NewCache(locale.DefaultRules)

	hostname, _ := os.Hostname()
	auditLog := audit.NewLogger(hostname, logger)

	forwarder := webhooks.NewForwarder(cfg.Webhooks, logger)
	forwarder.Start()

	pipe := pipeline.New(pipeline.Options{
		Providers: providers,
		Locales:   locales,
		Writer:    db,
		Observer:  pipeline.Observers{worker.StageRecorder(db), auditLog, forwarder},
	}, logger)

	defaultClient, _, err := providers.Resolve("", "")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to resolve default provider")
	}
	inboxGen := fanout.New(defaultClient, rand.New(rand.NewSource(time.Now().UnixNano())), nil, logger)

	deliverer := inbox.NewDeliverer(cfg.Inbox, logger)
	if deliverer.Enabled() {
		logger.Info().
			Str("server", cfg.Inbox.Server).
			Str("mailbox", cfg.Inbox.Mailbox).
			Msg("IMAP inbox delivery enabled")
	}

	w := worker.New(db, pipe, cfg.Worker, logger)
	w.Start(ctx)

	server := api.New(cfg.Server, handlers.Dependencies{
		DB:        db,
		Runner:    pipe,
		Inbox:     inboxGen,
		Deliverer: deliverer,
		Notifier:  forwarder,
		Audit:     auditLog,
		Locales:   locales,
		Providers: providers.Providers(),
		Version:   Version,
		StartTime: time.Now(),
	}, logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("cymlure server is ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}
	w.Stop()
	if err := forwarder.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Webhook queue not drained")
	}

	logger.Info().Msg("cymlure server stopped")
}

func initLogger(cfg LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
