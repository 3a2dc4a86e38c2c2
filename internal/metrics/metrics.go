package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	childStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gsmon",
			Subsystem: "child",
			Name:      "starts_total",
			Help:      "Number of game server launches.",
		},
	)
	childExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsmon",
			Subsystem: "child",
			Name:      "exits_total",
			Help:      "Number of game server exits by classified reason.",
		}, []string{"reason"},
	)
	childUptime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gsmon",
			Subsystem: "child",
			Name:      "uptime_seconds",
			Help:      "Lifetime of each game server session.",
			Buckets:   []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800, 86400},
		},
	)
	watchdogStalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gsmon",
			Subsystem: "watchdog",
			Name:      "stalls_total",
			Help:      "Number of times the heartbeat was found stale.",
		},
	)
	consoleFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsmon",
			Subsystem: "console",
			Name:      "failures_total",
			Help:      "Console commands that produced no result.",
		}, []string{"command"},
	)
	reports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsmon",
			Subsystem: "report",
			Name:      "total",
			Help:      "Report attempts by type and result.",
		}, []string{"type", "result"},
	)
	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsmon",
			Subsystem: "telemetry",
			Name:      "posts_total",
			Help:      "HTTP posts to the collector by endpoint kind and result.",
		}, []string{"kind", "result"},
	)
	running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gsmon",
			Subsystem: "child",
			Name:      "running",
			Help:      "1 while a game server session is live.",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		childStarts, childExits, childUptime, watchdogStalls, consoleFailures,
		reports, publishes, running,
		childCPU, childMemory, childThreads,
	}
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Serve registers the collectors with the default registry and blocks serving
// /metrics on addr.
func Serve(addr string) error {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart() {
	if regOK.Load() {
		childStarts.Inc()
		running.Set(1)
	}
}

// IncExit records a finished session and how long it lived.
func IncExit(reason string, uptime time.Duration) {
	if regOK.Load() {
		childExits.WithLabelValues(reason).Inc()
		childUptime.Observe(uptime.Seconds())
		running.Set(0)
		resetChild()
	}
}

func IncWatchdogStall() {
	if regOK.Load() {
		watchdogStalls.Inc()
	}
}

func IncConsoleFailure(command string) {
	if regOK.Load() {
		consoleFailures.WithLabelValues(command).Inc()
	}
}

func IncReport(kind string, ok bool) {
	if regOK.Load() {
		reports.WithLabelValues(kind, result(ok)).Inc()
	}
}

func IncPublish(kind string, ok bool) {
	if regOK.Load() {
		publishes.WithLabelValues(kind, result(ok)).Inc()
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
