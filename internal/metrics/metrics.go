package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcphub",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of successful server process starts.",
		}, []string{"server_id"},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcphub",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of server stops (graceful or kill).",
		}, []string{"server_id"},
	)
	serverRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcphub",
			Subsystem: "server",
			Name:      "restarts_total",
			Help:      "Number of restart operations.",
		}, []string{"server_id"},
	)
	runningServers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mcphub",
			Subsystem: "server",
			Name:      "running",
			Help:      "Current number of supervised server processes.",
		},
	)
	installOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcphub",
			Subsystem: "install",
			Name:      "outcomes_total",
			Help:      "Terminal install outcomes by source and status.",
		}, []string{"source", "status"},
	)
	installDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mcphub",
			Subsystem: "install",
			Name:      "duration_seconds",
			Help:      "Wall time of install attempts that reached a terminal status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"},
	)
	registryRefreshes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mcphub",
			Subsystem: "registry",
			Name:      "refreshes_total",
			Help:      "Number of registry cache rebuilds.",
		},
	)
	registryEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mcphub",
			Subsystem: "registry",
			Name:      "entries",
			Help:      "Number of entries in the registry cache after the last rebuild.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverStarts, serverStops, serverRestarts, runningServers, installOutcomes, installDuration, registryRefreshes, registryEntries}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncServerStart(serverID string) {
	if regOK.Load() {
		serverStarts.WithLabelValues(serverID).Inc()
	}
}

func IncServerStop(serverID string) {
	if regOK.Load() {
		serverStops.WithLabelValues(serverID).Inc()
	}
}

func IncServerRestart(serverID string) {
	if regOK.Load() {
		serverRestarts.WithLabelValues(serverID).Inc()
	}
}

func SetRunningServers(n int) {
	if regOK.Load() {
		runningServers.Set(float64(n))
	}
}

func ObserveInstallOutcome(source, status string, seconds float64) {
	if regOK.Load() {
		installOutcomes.WithLabelValues(source, status).Inc()
		installDuration.WithLabelValues(source).Observe(seconds)
	}
}

func IncRegistryRefresh(entries int) {
	if regOK.Load() {
		registryRefreshes.Inc()
		registryEntries.Set(float64(entries))
	}
}
