package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/emm218/scritches/config"
	"github.com/emm218/scritches/lastfm"
	"github.com/emm218/scritches/migrations"
	"github.com/emm218/scritches/mpd"
	"github.com/emm218/scritches/queue"
	"github.com/emm218/scritches/submit"
	"github.com/emm218/scritches/tracker"
)

func main() {
	// An env file is optional; real environments just set variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("stack", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.GetLogLevel(),
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.Scritches.DbPath), 0o755); err != nil {
		logger.Error("Failed to create data directory", slog.String("stack", err.Error()))
		os.Exit(1)
	}

	store, err := queue.NewStore(cfg.Scritches.DbPath)
	if err != nil {
		logger.Error("Failed to open action queue", slog.String("stack", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	if err := store.ApplyMigrations(migrations.GetMigrations()); err != nil {
		logger.Error("Failed to apply migrations", slog.String("stack", err.Error()))
		os.Exit(1)
	}

	client := lastfm.NewClient(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret, logger)
	sessions := lastfm.NewSessionStore(cfg.Lastfm.SessionPath)
	notifier := lastfm.NewNotifier(cfg.Pushover.Token, cfg.Pushover.Recipient, logger)

	source := mpd.New(mpd.Config{
		Network:  cfg.MPD.Network,
		Address:  cfg.MPD.Address,
		Password: cfg.MPD.Password,
		Channel:  cfg.MPD.Channel,
	}, logger)

	plays := tracker.New(store, cfg.Policy(), logger)
	worker := submit.New(store, client, sessions, notifier, cfg.MaxRetryInterval(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := source.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Player source stopped", slog.String("stack", err.Error()))
		}
	}()
	go func() {
		defer wg.Done()
		if err := plays.Run(ctx, source.Snapshots(), source.Commands()); err != nil && ctx.Err() == nil {
			logger.Error("Tracker stopped", slog.String("stack", err.Error()))
		}
	}()
	go func() {
		defer wg.Done()
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Submission worker stopped", slog.String("stack", err.Error()))
		}
	}()

	logger.Info("scritches is running",
		slog.String("mpd", cfg.MPD.Address),
		slog.String("queue", cfg.Scritches.DbPath),
	)

	<-ctx.Done()
	logger.Info("Shutting down")
	wg.Wait()
}
