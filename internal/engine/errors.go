package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrToolMissing is returned when uv cannot be located in PATH or any of
	// the well-known install locations.
	ErrToolMissing = errors.New("uv not found in PATH or known install locations")

	// ErrNotInstalled is returned by Start when the venv interpreter or the
	// engine binary is missing.
	ErrNotInstalled = errors.New("engine runtime is not installed")

	// ErrStartTimeout is returned when the engine did not pass a confirmed
	// health check before the startup deadline.
	ErrStartTimeout = errors.New("engine did not become healthy before the startup deadline")
)

// InvalidHostError rejects non-loopback bind hosts. The engine serves without
// authentication, so it must never be reachable from off the machine.
type InvalidHostError struct {
	Host string
}

func (e *InvalidHostError) Error() string {
	return fmt.Sprintf("invalid host %q: only loopback hosts (127.0.0.1, localhost, ::1) are allowed", e.Host)
}

// InstallError names the install step that failed and carries the trimmed
// combined output of the external command, when any was captured.
type InstallError struct {
	Step   string
	Output string
}

func (e *InstallError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("install failed at %q", e.Step)
	}
	return fmt.Sprintf("install failed at %q: %s", e.Step, e.Output)
}

// StartupError reports a failure to spawn or keep the engine process.
type StartupError struct {
	Message string
}

func (e *StartupError) Error() string { return "engine startup failed: " + e.Message }

// HealthCheckError carries the reason a probe rejected the service.
type HealthCheckError struct {
	Message string
}

func (e *HealthCheckError) Error() string { return "health check failed: " + e.Message }
