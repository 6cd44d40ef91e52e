package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxhub/voxd/internal/engine"
	"github.com/voxhub/voxd/internal/history"
	"github.com/voxhub/voxd/internal/metrics"
	"github.com/voxhub/voxd/internal/store"
	"github.com/voxhub/voxd/internal/tts"
)

// Router provides embeddable HTTP handlers for the voxd control API.
// Endpoints:
//
//	POST {basePath}/engine/install
//	POST {basePath}/engine/start     body: LaunchConfig JSON (optional)
//	POST {basePath}/engine/stop
//	POST {basePath}/engine/restart   body: LaunchConfig JSON (optional)
//	GET  {basePath}/engine/status
//	GET  {basePath}/engine/logs      query: n=... (default 50)
//	POST {basePath}/speak            body: SpeakRequest JSON, streams audio
//	GET  {basePath}/voices
//	GET  {basePath}/healthz
//
// basePath may be empty or start with '/'; no trailing slash. The API is
// meant to be bound to loopback only; it carries no authentication.
type Router struct {
	sup      *engine.Supervisor
	usage    *store.UsageStore
	sinks    []history.Sink
	basePath string
	defaults engine.LaunchConfig

	// speakerFor builds a provider for the engine's current base URL; tests
	// swap it for a stub.
	speakerFor func(baseURL string) tts.Provider
}

// NewRouter constructs a Router. usage and sinks may be nil/empty.
func NewRouter(sup *engine.Supervisor, defaults engine.LaunchConfig, usage *store.UsageStore, sinks []history.Sink, basePath string) *Router {
	return &Router{
		sup:      sup,
		usage:    usage,
		sinks:    append([]history.Sink(nil), sinks...),
		basePath: sanitizeBase(basePath),
		defaults: defaults,
		speakerFor: func(baseURL string) tts.Provider {
			return tts.NewLocalClient(baseURL)
		},
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/engine/install", r.handleInstall)
	group.POST("/engine/start", r.handleStart)
	group.POST("/engine/stop", r.handleStop)
	group.POST("/engine/restart", r.handleRestart)
	group.GET("/engine/status", r.handleStatus)
	group.GET("/engine/logs", r.handleLogs)
	group.POST("/speak", r.handleSpeak)
	group.GET("/voices", r.handleVoices)
	group.GET("/healthz", r.handleHealthz)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, router *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleInstall(c *gin.Context) {
	if err := r.sup.InstallIfNeeded(c.Request.Context()); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// launchFromBody decodes an optional LaunchConfig body, falling back to the
// configured defaults for anything unset.
func (r *Router) launchFromBody(c *gin.Context) (engine.LaunchConfig, bool) {
	cfg := r.defaults
	if c.Request.ContentLength == 0 {
		return cfg, true
	}
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return cfg, false
	}
	if cfg.Host == "" {
		cfg.Host = r.defaults.Host
	}
	if cfg.Port == 0 {
		cfg.Port = r.defaults.Port
	}
	return cfg, true
}

// launchErrorStatus distinguishes launch validation failures, which are the
// caller's fault, from state conflicts like a missing runtime.
func launchErrorStatus(err error) int {
	var hostErr *engine.InvalidHostError
	if errors.As(err, &hostErr) {
		return http.StatusBadRequest
	}
	return http.StatusConflict
}

func (r *Router) handleStart(c *gin.Context) {
	cfg, ok := r.launchFromBody(c)
	if !ok {
		return
	}
	if err := r.sup.Start(c.Request.Context(), cfg); err != nil {
		writeJSON(c, launchErrorStatus(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, r.sup.Snapshot())
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.sup.Stop(); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	cfg, ok := r.launchFromBody(c)
	if !ok {
		return
	}
	if err := r.sup.Restart(c.Request.Context(), cfg); err != nil {
		writeJSON(c, launchErrorStatus(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, r.sup.Snapshot())
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Snapshot())
}

func (r *Router) handleLogs(c *gin.Context) {
	n := 50
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "n must be a positive integer"})
			return
		}
		n = v
	}
	writeJSON(c, http.StatusOK, gin.H{"lines": r.sup.Logs(n)})
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "ok", "engine": r.sup.Snapshot().StatusName})
}

func (r *Router) handleSpeak(c *gin.Context) {
	var req tts.SpeakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if r.sup.Snapshot().Status != engine.StatusRunning {
		writeJSON(c, http.StatusConflict, errorResp{Error: "engine is not running"})
		return
	}
	speaker := r.speakerFor(r.sup.BaseURL())
	began := time.Now()
	stream, err := speaker.Speak(c.Request.Context(), req)
	if err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	defer func() { _ = stream.Close() }()

	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, copyErr := io.Copy(c.Writer, stream)
	elapsed := time.Since(began)

	metrics.IncSpeakRequest(len(req.Input))
	r.recordUsage(c, req, elapsed, copyErr)
}

func (r *Router) recordUsage(c *gin.Context, req tts.SpeakRequest, elapsed time.Duration, copyErr error) {
	ctx := c.Request.Context()
	if r.usage != nil {
		_ = r.usage.RecordUtterance(ctx, store.Utterance{
			Provider:   engine.PackageName,
			Voice:      req.Voice,
			Characters: len(req.Input),
			DurationMS: elapsed.Milliseconds(),
		})
	}
	if len(r.sinks) == 0 {
		return
	}
	rec := history.Record{
		Engine:     engine.PackageName,
		Status:     "spoken",
		Voice:      req.Voice,
		Characters: len(req.Input),
		DurationMS: elapsed.Milliseconds(),
	}
	if copyErr != nil {
		rec.Error = copyErr.Error()
	}
	evt := history.Event{Type: history.EventSpeak, OccurredAt: time.Now().UTC(), Record: rec}
	for _, sink := range r.sinks {
		_ = sink.Send(ctx, evt)
	}
}

func (r *Router) handleVoices(c *gin.Context) {
	if r.sup.Snapshot().Status != engine.StatusRunning {
		writeJSON(c, http.StatusConflict, errorResp{Error: "engine is not running"})
		return
	}
	speaker := r.speakerFor(r.sup.BaseURL())
	voices, err := speaker.Voices(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"voices": voices})
}
