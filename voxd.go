// Package voxd exposes a stable embedding API over the internal engine
// supervisor, control-API router and history sinks.
package voxd

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/voxhub/voxd/internal/config"
	"github.com/voxhub/voxd/internal/engine"
	"github.com/voxhub/voxd/internal/history"
	"github.com/voxhub/voxd/internal/history/factory"
	"github.com/voxhub/voxd/internal/metrics"
	"github.com/voxhub/voxd/internal/server"
	"github.com/voxhub/voxd/internal/store"
	"github.com/voxhub/voxd/internal/tts"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Paths = engine.Paths

type LaunchConfig = engine.LaunchConfig

type Snapshot = engine.Snapshot

type RuntimeStatus = engine.RuntimeStatus

type StatusChange = engine.StatusChange

type HealthChecker = engine.HealthChecker

type HealthResult = engine.HealthResult

type Supervisor = engine.Supervisor

type SupervisorConfig = engine.Config

type HistorySink = history.Sink

type HistoryEvent = history.Event

type SpeakRequest = tts.SpeakRequest

type SpeakProvider = tts.Provider

type UsageStore = store.UsageStore

type Config = cfg.Config

const (
	StatusNotInstalled = engine.StatusNotInstalled
	StatusInstalling   = engine.StatusInstalling
	StatusInstalled    = engine.StatusInstalled
	StatusStarting     = engine.StatusStarting
	StatusRunning      = engine.StatusRunning
	StatusUnhealthy    = engine.StatusUnhealthy
	StatusStopped      = engine.StatusStopped
	StatusFailed       = engine.StatusFailed
)

// NewSupervisor builds a supervisor rooted at basePath with production
// defaults. Use NewSupervisorWithConfig for fine-grained control.
func NewSupervisor(basePath string, logger *slog.Logger, sinks ...HistorySink) *Supervisor {
	return engine.NewSupervisor(engine.Config{
		Paths:  engine.NewPaths(basePath),
		Logger: logger,
		Sinks:  sinks,
	})
}

func NewSupervisorWithConfig(c SupervisorConfig) *Supervisor { return engine.NewSupervisor(c) }

// NewPaths derives the engine filesystem layout from a base path.
func NewPaths(base string) Paths { return engine.NewPaths(base) }

// NewLocalSpeaker speaks through a running engine at baseURL.
func NewLocalSpeaker(baseURL string) SpeakProvider { return tts.NewLocalClient(baseURL) }

// NewHistorySink creates a history sink from a DSN (sqlite path, postgres://
// or clickhouse://).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// OpenUsageStore opens the SQLite usage-statistics store at path.
func OpenUsageStore(path string) (*UsageStore, error) { return store.Open(path) }

// LoadConfig loads the daemon TOML config; empty path yields defaults.
func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// NewRouter builds the embeddable control-API router.
func NewRouter(sup *Supervisor, defaults LaunchConfig, usage *UsageStore, sinks []HistorySink, basePath string) *server.Router {
	return server.NewRouter(sup, defaults, usage, sinks, basePath)
}

// NewServer starts a standalone control-API server on addr.
func NewServer(addr string, router *server.Router) *http.Server {
	return server.NewServer(addr, router)
}

// Metrics helpers.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
func MetricsHandler() http.Handler                  { return metrics.Handler() }
