package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/voxhub/voxd/internal/history"
	"github.com/voxhub/voxd/internal/metrics"
)

const logRingCapacity = 200

// defaultRestartBackoff spaces out automatic restarts after unexpected exits,
// indexed by min(attempt, len-1).
var defaultRestartBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	5 * time.Second,
	5 * time.Second,
}

const (
	defaultStartTimeout       = 20 * time.Second
	defaultHealthPollInterval = 300 * time.Millisecond
	defaultMaxRestartAttempts = 5
	stopWait                  = 5 * time.Second
)

// LaunchConfig is captured at Start and retained only to drive automatic
// restarts. An explicit Stop clears it; a crash after an explicit stop must
// never restart.
type LaunchConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Voice       string `json:"voice"`
	AutoRestart bool   `json:"auto_restart"`
}

// Snapshot is the read-only view the UI layer polls.
type Snapshot struct {
	Status          RuntimeStatus `json:"-"`
	StatusName      string        `json:"status"`
	PID             int           `json:"pid,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
	LastHealthCheck time.Time     `json:"last_health_check,omitempty"`
	RestartAttempts int           `json:"restart_attempts"`
	PackageVersion  string        `json:"package_version,omitempty"`
}

// Config configures a Supervisor. Zero fields get production defaults.
type Config struct {
	Paths   Paths
	Logger  *slog.Logger
	Checker HealthChecker
	Sinks   []history.Sink

	StartTimeout       time.Duration
	HealthPollInterval time.Duration
	RestartBackoff     []time.Duration
	MaxRestartAttempts int
}

// Supervisor owns at most one engine subprocess and the status machine around
// it. All lifecycle operations are serialized by opMu so two concurrent
// Start/Stop/Reinstall calls queue instead of interleaving; mu guards the
// observable state and is never held across process or network waits.
type Supervisor struct {
	paths   Paths
	logger  *slog.Logger
	checker HealthChecker
	sinks   []history.Sink

	startTimeout time.Duration
	pollInterval time.Duration
	backoff      []time.Duration
	maxAttempts  int

	opMu sync.Mutex

	mu              sync.Mutex
	status          RuntimeStatus
	lastErr         error
	lastHealthCheck time.Time
	attempts        int
	pkgVersion      string
	ring            *logRing
	cmd             *exec.Cmd
	waitDone        chan struct{}
	launch          *LaunchConfig
	intentionalStop bool
	subs            []chan StatusChange
}

func NewSupervisor(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Checker == nil {
		cfg.Checker = NewHealthChecker()
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if cfg.HealthPollInterval <= 0 {
		cfg.HealthPollInterval = defaultHealthPollInterval
	}
	if len(cfg.RestartBackoff) == 0 {
		cfg.RestartBackoff = defaultRestartBackoff
	}
	if cfg.MaxRestartAttempts <= 0 {
		cfg.MaxRestartAttempts = defaultMaxRestartAttempts
	}
	return &Supervisor{
		paths:        cfg.Paths,
		logger:       cfg.Logger,
		checker:      cfg.Checker,
		sinks:        append([]history.Sink(nil), cfg.Sinks...),
		startTimeout: cfg.StartTimeout,
		pollInterval: cfg.HealthPollInterval,
		backoff:      cfg.RestartBackoff,
		maxAttempts:  cfg.MaxRestartAttempts,
		status:       StatusNotInstalled,
		ring:         newLogRing(logRingCapacity),
	}
}

func (s *Supervisor) Paths() Paths { return s.paths }

// BaseURL returns the endpoint of the current (or default) launch config.
func (s *Supervisor) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	host, port := DefaultHost, DefaultPort
	if s.launch != nil {
		host, port = s.launch.Host, s.launch.Port
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Snapshot returns the externally observable state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Status:          s.status,
		StatusName:      s.status.String(),
		LastHealthCheck: s.lastHealthCheck,
		RestartAttempts: s.attempts,
		PackageVersion:  s.pkgVersion,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		snap.PID = s.cmd.Process.Pid
	}
	return snap
}

// Logs returns up to n recent captured log lines, oldest-first.
func (s *Supervisor) Logs(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Tail(n)
}

// Subscribe registers a status-transition listener. Slow consumers drop
// transitions rather than blocking the supervisor.
func (s *Supervisor) Subscribe() <-chan StatusChange {
	ch := make(chan StatusChange, 16)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Supervisor) Unsubscribe(ch <-chan StatusChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub == ch {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Start installs nothing; it requires an installed runtime, stops any owned
// instance, spawns the engine and gates the running status on a confirmed
// health check.
func (s *Supervisor) Start(ctx context.Context, cfg LaunchConfig) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.startLocked(ctx, cfg)
}

func (s *Supervisor) startLocked(ctx context.Context, cfg LaunchConfig) error {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if !isLoopbackHost(cfg.Host) {
		err := &InvalidHostError{Host: cfg.Host}
		s.setLastError(err)
		return err
	}
	cfg.Voice = strings.TrimSpace(cfg.Voice)
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if !s.installedFilesPresent() {
		s.setLastError(ErrNotInstalled)
		return ErrNotInstalled
	}

	// Single-instance invariant: tear down whatever we currently own.
	s.stopOwnedProcess(stopWait)

	if err := os.MkdirAll(s.paths.LogDir(), 0o750); err != nil {
		serr := &StartupError{Message: "create log dir: " + err.Error()}
		s.fail(serr)
		return serr
	}
	logFile, err := os.OpenFile(s.paths.LogFile(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		serr := &StartupError{Message: "open log file: " + err.Error()}
		s.fail(serr)
		return serr
	}

	s.mu.Lock()
	s.intentionalStop = false
	s.lastErr = nil
	launch := cfg
	s.launch = &launch
	s.setStatusLocked(StatusStarting)
	s.mu.Unlock()

	// #nosec G204 -- binary path is derived from our own venv layout
	cmd := exec.Command(s.paths.ServerBin(), "serve",
		"--host", cfg.Host,
		"--port", strconv.Itoa(cfg.Port),
		"--voice", cfg.Voice,
	)
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err == nil {
		var stderr io.ReadCloser
		stderr, err = cmd.StderrPipe()
		if err == nil {
			err = cmd.Start()
			if err == nil {
				s.attachProcess(cmd, stdout, stderr, logFile)
			}
		}
	}
	if err != nil {
		_ = logFile.Close()
		serr := &StartupError{Message: err.Error()}
		s.fail(serr)
		return serr
	}

	pid := cmd.Process.Pid
	baseURL := "http://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	s.logger.Info("engine starting", "pid", pid, "url", baseURL, "voice", cfg.Voice)
	metrics.IncEngineStart()

	if s.waitHealthy(ctx, baseURL) && s.alive() {
		s.mu.Lock()
		s.attempts = 0
		s.setStatusLocked(StatusRunning)
		s.mu.Unlock()
		s.logger.Info("engine running", "pid", pid, "url", baseURL)
		s.publish(history.EventStart, "running", pid, nil)
		return nil
	}

	// Either the deadline passed, the caller canceled, or the process died
	// while we were waiting. If we still own the process, force-stop it.
	s.mu.Lock()
	owned := s.cmd == cmd
	if owned {
		s.intentionalStop = true
	}
	s.mu.Unlock()
	if owned {
		s.terminate(cmd, stopWait)
		s.fail(ErrStartTimeout)
		s.logger.Error("engine failed to become healthy", "pid", pid, "timeout", s.startTimeout)
		return ErrStartTimeout
	}
	// The exit observer already took over (crash recovery may be scheduled).
	return ErrStartTimeout
}

// Stop requests an intentional stop. It is idempotent, never reports an
// error into the observable state, and does not wait for exit confirmation;
// the exit observer finishes cleanup.
func (s *Supervisor) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.intentionalStop = true
	s.launch = nil
	cmd := s.cmd
	s.setStatusLocked(StatusStopped)
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		s.logger.Info("engine stop requested", "pid", cmd.Process.Pid)
	}
	return nil
}

// Restart stops the current instance and starts with the given config,
// atomically with respect to other supervisor operations.
func (s *Supervisor) Restart(ctx context.Context, cfg LaunchConfig) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.intentionalStop = true
	s.mu.Unlock()
	s.stopOwnedProcess(stopWait)

	return s.startLocked(ctx, cfg)
}

// Shutdown stops the engine and closes all subscriber channels.
func (s *Supervisor) Shutdown() {
	_ = s.Stop()
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}

// --- internal ---

func (s *Supervisor) installedFilesPresent() bool {
	if _, err := os.Stat(s.paths.Python()); err != nil {
		return false
	}
	_, err := os.Stat(s.paths.ServerBin())
	return err == nil
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "127.0.0.1", "localhost", "::1":
		return true
	}
	return false
}

// attachProcess wires the stream capture pipeline and the exit observer for a
// freshly spawned process. Raw reads happen on one goroutine per stream; a
// single applier goroutine serializes log-file and ring-buffer writes.
func (s *Supervisor) attachProcess(cmd *exec.Cmd, stdout, stderr io.ReadCloser, logFile *os.File) {
	s.mu.Lock()
	s.cmd = cmd
	s.waitDone = make(chan struct{})
	s.mu.Unlock()

	chunks := make(chan []byte, 64)
	var readers sync.WaitGroup
	readers.Add(2)
	read := func(rc io.ReadCloser) {
		defer readers.Done()
		buf := make([]byte, 4096)
		for {
			n, err := rc.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				chunks <- chunk
			}
			if err != nil {
				return
			}
		}
	}
	go read(stdout)
	go read(stderr)
	go func() {
		readers.Wait()
		close(chunks)
	}()
	go s.applyStream(chunks, logFile)

	go func() {
		err := cmd.Wait()
		s.onExit(cmd, err)
	}()
}

// applyStream appends every chunk verbatim to the log file and feeds complete
// trimmed lines into the ring buffer. The file is append-only and never
// truncated here.
func (s *Supervisor) applyStream(chunks <-chan []byte, logFile *os.File) {
	defer func() { _ = logFile.Close() }()
	var pending string
	for chunk := range chunks {
		_, _ = logFile.Write(chunk)
		pending += string(chunk)
		for {
			i := strings.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			line := strings.TrimSpace(pending[:i])
			pending = pending[i+1:]
			if line != "" {
				s.appendLogLine(line)
			}
		}
	}
	if line := strings.TrimSpace(pending); line != "" {
		s.appendLogLine(line)
	}
}

func (s *Supervisor) appendLogLine(line string) {
	s.mu.Lock()
	s.ring.Append(line)
	s.mu.Unlock()
}

// onExit runs exactly once per process exit and decides between ordinary
// shutdown and crash recovery.
func (s *Supervisor) onExit(cmd *exec.Cmd, waitErr error) {
	s.mu.Lock()
	if s.cmd != cmd {
		// Superseded by a newer spawn; nothing to do.
		s.mu.Unlock()
		return
	}
	s.cmd = nil
	if s.waitDone != nil {
		close(s.waitDone)
		s.waitDone = nil
	}
	intentional := s.intentionalStop
	launch := s.launch
	attempts := s.attempts
	s.mu.Unlock()

	pid := 0
	if cmd.Process != nil {
		pid = cmd.Process.Pid
	}
	metrics.IncEngineStop()

	if intentional {
		s.logger.Info("engine stopped", "pid", pid)
		s.publish(history.EventStop, "stopped", pid, nil)
		return
	}

	exitErr := &StartupError{Message: fmt.Sprintf("engine exited unexpectedly (%s)", exitDesc(waitErr))}
	metrics.IncEngineCrash()
	s.publish(history.EventCrash, "crashed", pid, exitErr)

	if launch == nil || !launch.AutoRestart || attempts >= s.maxAttempts {
		s.fail(exitErr)
		s.logger.Error("engine crashed, not restarting",
			"pid", pid, "attempts", attempts, "auto_restart", launch != nil && launch.AutoRestart)
		return
	}

	delay := s.backoff[minInt(attempts, len(s.backoff)-1)]
	s.mu.Lock()
	s.attempts = attempts + 1
	s.setStatusLocked(StatusUnhealthy)
	s.mu.Unlock()
	s.logger.Warn("engine crashed, restart scheduled",
		"pid", pid, "attempt", attempts+1, "delay", delay, "exit", exitDesc(waitErr))

	cfg := *launch
	go func() {
		time.Sleep(delay)
		s.mu.Lock()
		superseded := s.cmd != nil || s.intentionalStop
		s.mu.Unlock()
		if superseded {
			return
		}
		metrics.IncEngineRestart()
		s.publish(history.EventRestart, "restarting", 0, nil)
		if err := s.Start(context.Background(), cfg); err != nil {
			s.fail(err)
			s.logger.Error("automatic restart failed", "error", err)
		}
	}()
}

// waitHealthy polls until the deadline. Every iteration checks caller
// cancellation and subprocess liveness before probing, so the loop never
// blocks uninterruptibly.
func (s *Supervisor) waitHealthy(ctx context.Context, baseURL string) bool {
	deadline := time.Now().Add(s.startTimeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}
		if !s.alive() {
			return false
		}
		began := time.Now()
		res := s.checker.Check(ctx, baseURL)
		metrics.ObserveHealthCheck(res.Healthy && res.ServiceConfirmed, time.Since(began))
		s.mu.Lock()
		s.lastHealthCheck = time.Now()
		s.mu.Unlock()
		if res.Healthy && res.ServiceConfirmed {
			return true
		}
		time.Sleep(s.pollInterval)
	}
	return false
}

func (s *Supervisor) alive() bool {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	return syscall.Kill(cmd.Process.Pid, 0) == nil
}

// stopOwnedProcess synchronously terminates the currently owned process, if
// any, marking the stop intentional so the exit observer does not recover it.
// Used by startLocked to uphold the single-instance invariant.
func (s *Supervisor) stopOwnedProcess(wait time.Duration) {
	s.mu.Lock()
	cmd := s.cmd
	if cmd != nil {
		s.intentionalStop = true
	}
	s.mu.Unlock()
	if cmd != nil {
		s.terminate(cmd, wait)
	}
}

// terminate sends SIGTERM to the process group, waits for the exit observer
// to reap, and escalates to SIGKILL after the grace period.
func (s *Supervisor) terminate(cmd *exec.Cmd, wait time.Duration) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)

	s.mu.Lock()
	wd := s.waitDone
	s.mu.Unlock()
	if wd == nil {
		return
	}
	select {
	case <-wd:
	case <-time.After(wait):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		select {
		case <-wd:
		case <-time.After(500 * time.Millisecond):
			// best-effort
		}
	}
}

func (s *Supervisor) setStatusLocked(next RuntimeStatus) {
	prev := s.status
	if prev == next {
		return
	}
	s.status = next
	metrics.RecordEngineStateTransition(prev.String(), next.String())
	change := StatusChange{From: prev, To: next}
	for _, sub := range s.subs {
		select {
		case sub <- change:
		default:
			// slow subscriber; drop rather than block the supervisor
		}
	}
}

func (s *Supervisor) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// fail records err as the last error and transitions to failed.
func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.setStatusLocked(StatusFailed)
	s.mu.Unlock()
}

func (s *Supervisor) publish(t history.EventType, status string, pid int, cause error) {
	if len(s.sinks) == 0 {
		return
	}
	rec := history.Record{Engine: PackageName, PID: pid, Status: status}
	if cause != nil {
		rec.Error = cause.Error()
	}
	evt := history.Event{Type: t, OccurredAt: time.Now().UTC(), Record: rec}
	sinks := append([]history.Sink(nil), s.sinks...)
	go func() {
		for _, sink := range sinks {
			if err := sink.Send(context.Background(), evt); err != nil {
				s.logger.Warn("history sink send failed", "type", string(t), "error", err)
			}
		}
	}()
}

func exitDesc(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
