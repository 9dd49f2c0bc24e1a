// Package sweep periodically auto-ends activities whose scheduled end has passed.
package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goodtune/lounge/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = 5 * time.Minute

// ErrAlreadyRunning is returned by RunOnce while another run is in progress.
var ErrAlreadyRunning = errors.New("sweep already running")

// Expirer ends expired activities and reports how many it ended.
type Expirer interface {
	AutoEndExpired(ctx context.Context) (int, error)
}

// Scheduler runs the auto-end sweep on an interval. Runs never overlap.
type Scheduler struct {
	expirer  Expirer
	interval time.Duration
	logger   zerolog.Logger
	running  sync.Mutex
	trigger  chan struct{}
	stopChan chan struct{}
	done     chan struct{}
}

// NewScheduler creates a new sweep scheduler
func NewScheduler(expirer Expirer, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Scheduler{
		expirer:  expirer,
		interval: interval,
		logger:   logger.With().Str("component", "expiry-sweep").Logger(),
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop
func (s *Scheduler) Start() {
	go s.run()
	s.logger.Info().Dur("interval", s.interval).Msg("Auto-end sweep started")
}

// Stop stops the sweep loop and waits for an in-flight run to finish
func (s *Scheduler) Stop() {
	close(s.stopChan)
	<-s.done
	s.logger.Info().Msg("Auto-end sweep stopped")
}

// Trigger requests an immediate run. Requests made while one is pending are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// RunOnce performs a single sweep.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if !s.running.TryLock() {
		return 0, ErrAlreadyRunning
	}
	defer s.running.Unlock()

	start := time.Now()
	ended, err := s.expirer.AutoEndExpired(ctx)

	metrics.SweepRuns.Inc()
	metrics.SweepEnded.Add(float64(ended))
	metrics.SweepDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return ended, err
	}
	if ended > 0 {
		s.logger.Info().Int("ended", ended).Dur("took", time.Since(start)).Msg("Auto-ended expired activities")
	} else {
		s.logger.Debug().Dur("took", time.Since(start)).Msg("No expired activities")
	}
	return ended, nil
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ticker.C:
		case <-s.trigger:
		case <-s.stopChan:
			return
		}

		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("Auto-end sweep failed")
		}
	}
}
