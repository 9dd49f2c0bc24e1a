package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Lifecycle metrics
	ActivityTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lounge_activity_transitions_total",
			Help: "Activity state transitions by kind",
		},
		[]string{"transition"},
	)

	ActiveActivities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lounge_active_activities",
			Help: "Activities started and not yet ended by this process",
		},
	)

	// Pricing metrics
	Recalculations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lounge_recalculations_total",
			Help: "Activity price recalculations by kind",
		},
		[]string{"kind"},
	)

	BilledAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lounge_billed_amount_total",
			Help: "Final activity totals at end, in currency units",
		},
		[]string{"activity_type"},
	)

	// Sweep metrics
	SweepRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lounge_sweep_runs_total",
			Help: "Auto-end sweep runs",
		},
	)

	SweepEnded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lounge_sweep_ended_total",
			Help: "Activities ended by the auto-end sweep",
		},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lounge_sweep_duration_seconds",
			Help:    "Auto-end sweep duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Device directory metrics
	DeviceRateCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lounge_device_rate_cache_total",
			Help: "Device rate card lookups by result (hit, miss)",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		ActivityTransitions,
		ActiveActivities,
		Recalculations,
		BilledAmount,
		SweepRuns,
		SweepEnded,
		SweepDuration,
		DeviceRateCache,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server. health reports whether the storage backend is reachable.
func NewServer(addr string, health func() error, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
