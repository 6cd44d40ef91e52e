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

	engineStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "engine",
			Name:      "starts_total",
			Help:      "Number of engine process spawns.",
		},
	)
	engineStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "engine",
			Name:      "stops_total",
			Help:      "Number of engine process exits (graceful or crash).",
		},
	)
	engineCrashes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "engine",
			Name:      "crashes_total",
			Help:      "Number of unexpected engine exits.",
		},
	)
	engineRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "engine",
			Name:      "restarts_total",
			Help:      "Number of automatic restarts fired by crash recovery.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "engine",
			Name:      "state_transitions_total",
			Help:      "Number of transitions between runtime states.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "voxd",
			Subsystem: "engine",
			Name:      "current_state",
			Help:      "Current runtime state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "engine",
			Name:      "health_checks_total",
			Help:      "Health probes by result.",
		}, []string{"result"},
	)
	healthCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "voxd",
			Subsystem: "engine",
			Name:      "health_check_duration_seconds",
			Help:      "Duration of individual health probes.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	speakRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "speech",
			Name:      "requests_total",
			Help:      "Number of synthesis requests served.",
		},
	)
	speakCharacters = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "speech",
			Name:      "characters_total",
			Help:      "Total characters submitted for synthesis.",
		},
	)
	engineCPUPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "voxd",
			Subsystem: "engine",
			Name:      "cpu_percent",
			Help:      "CPU usage of the engine process.",
		},
	)
	engineMemoryMB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "voxd",
			Subsystem: "engine",
			Name:      "memory_mb",
			Help:      "Resident memory of the engine process in MB.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		engineStarts, engineStops, engineCrashes, engineRestarts,
		stateTransitions, currentState, healthChecks, healthCheckDuration,
		speakRequests, speakCharacters, engineCPUPercent, engineMemoryMB,
	}
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

// RegisterDefault registers all metrics with the default Prometheus registerer.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncEngineStart() {
	if regOK.Load() {
		engineStarts.Inc()
	}
}

func IncEngineStop() {
	if regOK.Load() {
		engineStops.Inc()
	}
}

func IncEngineCrash() {
	if regOK.Load() {
		engineCrashes.Inc()
	}
}

func IncEngineRestart() {
	if regOK.Load() {
		engineRestarts.Inc()
	}
}

func RecordEngineStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
		currentState.WithLabelValues(from).Set(0)
		currentState.WithLabelValues(to).Set(1)
	}
}

func ObserveHealthCheck(ok bool, d time.Duration) {
	if regOK.Load() {
		result := "failure"
		if ok {
			result = "success"
		}
		healthChecks.WithLabelValues(result).Inc()
		healthCheckDuration.Observe(d.Seconds())
	}
}

func IncSpeakRequest(characters int) {
	if regOK.Load() {
		speakRequests.Inc()
		speakCharacters.Add(float64(characters))
	}
}

func SetEngineResources(cpuPercent, memoryMB float64) {
	if regOK.Load() {
		engineCPUPercent.Set(cpuPercent)
		engineMemoryMB.Set(memoryMB)
	}
}
