package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goodtune/lounge/internal/activity"
	"github.com/goodtune/lounge/internal/clock"
	"github.com/goodtune/lounge/internal/config"
	"github.com/goodtune/lounge/internal/devices"
	"github.com/goodtune/lounge/internal/mode"
	"github.com/goodtune/lounge/internal/orders"
	"github.com/goodtune/lounge/internal/pause"
	"github.com/goodtune/lounge/internal/pricing"
	"github.com/goodtune/lounge/internal/session"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/goodtune/lounge/internal/storage/bolt"
	"github.com/goodtune/lounge/internal/storage/redis"
	"github.com/rs/zerolog"
)

// app is the wired billing engine shared by the server and the CLI commands.
type app struct {
	store      storage.Store
	devices    *devices.Directory
	lifecycle  *activity.Lifecycle
	aggregator *session.Aggregator
	ledger     *orders.Ledger
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	lockWait := parseDuration(cfg.Billing.LockWait, activity.DefaultLockWait)
	clk := clock.RealClock{}

	dir := devices.NewDirectory(store.Devices(), clk, devices.Config{
		RateCacheSize: cfg.Devices.RateCacheSize,
		RateCacheTTL:  parseDuration(cfg.Devices.RateCacheTTL, time.Minute),
	}, logger)
	pauses := pause.NewTracker(store.Pauses(), logger)
	modes := mode.NewTracker(store.ModeChanges(), logger)
	engine := pricing.NewEngine(store, pauses, modes, dir, logger)

	lifecycle := activity.NewLifecycle(store, dir, pauses, modes, engine, clk, activity.Config{LockWait: lockWait}, logger)
	aggregator := session.NewAggregator(store, lifecycle, engine, clk, session.Config{LockWait: lockWait}, logger)
	ledger := orders.NewLedger(store, lifecycle, clk, logger)

	return &app{
		store:      store,
		devices:    dir,
		lifecycle:  lifecycle,
		aggregator: aggregator,
		ledger:     ledger,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp loads the configuration, wires the engine with a quiet logger and runs fn.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for CLI mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return fn(context.Background(), a)
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be 'bolt' or 'redis')", cfg.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
