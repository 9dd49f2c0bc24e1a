package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/lounge/internal/config"
	"github.com/goodtune/lounge/internal/metrics"
	"github.com/goodtune/lounge/internal/sweep"
	"github.com/goodtune/lounge/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start Lounge server",
	Long:  `Start the Lounge server: the auto-end sweep for scheduled activities and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting Lounge")

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Str("redis_host", cfg.Storage.Redis.Host).
		Int("redis_port", cfg.Storage.Redis.Port).
		Msg("Storage initialized")

	// Initialize auto-end sweep
	sweepInterval := parseDuration(cfg.Billing.SweepInterval, sweep.DefaultInterval)
	scheduler := sweep.NewScheduler(a.lifecycle, sweepInterval, logger)
	scheduler.Start()

	// Initialize Metrics Server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, healthCheck(a), logger)

	// Use systemd socket-activated listener if available
	ln, err := systemd.MetricsListener()
	if err != nil {
		return err
	}
	if ln != nil {
		logger.Info().Msg("Running with systemd socket activation")
		metricsServer.SetListener(ln)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	logger.Info().
		Str("addr", metricsAddr).
		Msg("Metrics Server started")

	logger.Info().Msg("Lounge startup complete")

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	stopWatchdog := startWatchdog(logger)

	// Wait for signals (shutdown or immediate sweep)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, running expiry sweep")
			scheduler.Trigger()
			continue
		}
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}
	signal.Stop(sigChan)

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	stopWatchdog()
	scheduler.Stop()

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("Lounge stopped")

	return nil
}

// healthCheck reports the server unhealthy when storage cannot be read.
func healthCheck(a *app) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := a.store.Devices().List(ctx); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		return nil
	}
}

// startWatchdog pings the systemd watchdog until the returned func is called.
func startWatchdog(logger zerolog.Logger) func() {
	interval := systemd.WatchdogInterval()
	if interval == 0 {
		return func() {}
	}

	logger.Info().Dur("interval", interval).Msg("Systemd watchdog enabled")

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := systemd.NotifyWatchdog(); err != nil {
					logger.Warn().Err(err).Msg("Failed to ping systemd watchdog")
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
