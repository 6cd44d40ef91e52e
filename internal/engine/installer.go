package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const uvBinaryName = "uv"

// uvFallbackDirs are checked when uv is not on PATH, in order. They cover the
// common installer destinations (Homebrew, system-wide, uv's own installer,
// cargo).
func uvFallbackDirs() []string {
	home, _ := os.UserHomeDir()
	return []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		filepath.Join(home, ".local", "bin"),
		filepath.Join(home, ".cargo", "bin"),
	}
}

const (
	pythonVersionScript = "import sys; print(f'{sys.version_info.major}.{sys.version_info.minor}')"
	packageVersionFmt   = "from importlib.metadata import version; print(version('%s'))"
)

// InstallIfNeeded verifies the existing environment and returns without
// reinstalling when the interpreter and the engine binary are present and the
// interpreter meets the minimum version. Anything else, including a present
// but incompatible environment, triggers a full reinstall.
func (s *Supervisor) InstallIfNeeded(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.installedFilesPresent() {
		if ok, _ := s.pythonVersionOK(ctx); ok {
			ver := s.queryPackageVersion(ctx)
			s.mu.Lock()
			s.pkgVersion = ver
			s.setStatusLocked(StatusInstalled)
			s.mu.Unlock()
			s.logger.Info("engine runtime already installed", "package", PackageName, "version", ver)
			return nil
		}
		s.logger.Warn("existing engine environment is incompatible, reinstalling", "venv", s.paths.VenvDir())
	}
	return s.reinstallLocked(ctx)
}

// Reinstall unconditionally recreates the isolated environment and installs
// the engine package into it.
func (s *Supervisor) Reinstall(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.reinstallLocked(ctx)
}

func (s *Supervisor) reinstallLocked(ctx context.Context) error {
	s.mu.Lock()
	s.lastErr = nil
	s.setStatusLocked(StatusInstalling)
	s.mu.Unlock()

	uv, err := lookupUV()
	if err != nil {
		s.fail(err)
		return err
	}

	venv := s.paths.VenvDir()
	if _, statErr := os.Stat(venv); statErr == nil {
		if rmErr := os.RemoveAll(venv); rmErr != nil {
			// Leave the original directory intact; no partial overwrite.
			ierr := &InstallError{Step: "remove incompatible venv", Output: rmErr.Error()}
			s.fail(ierr)
			return ierr
		}
	}

	steps := []struct {
		name string
		args []string
	}{
		{"create venv", []string{"venv", venv, "--python", MinPythonSpec}},
		{"install package", []string{"pip", "install", "--python", s.paths.Python(), "--upgrade", PackageName}},
	}

	for i, step := range steps {
		s.logger.Info("install step", "step", step.name, "tool", uv)
		if out, runErr := runCaptured(ctx, uv, step.args...); runErr != nil {
			ierr := &InstallError{Step: step.name, Output: out}
			s.fail(ierr)
			return ierr
		}
		// Re-verify the interpreter right after environment creation: uv can
		// silently fall back to whatever python it finds.
		if i == 0 {
			ok, out := s.pythonVersionOK(ctx)
			if !ok {
				ierr := &InstallError{Step: "verify python version", Output: out}
				s.fail(ierr)
				return ierr
			}
		}
	}

	ver := s.queryPackageVersion(ctx)
	s.mu.Lock()
	s.pkgVersion = ver
	s.setStatusLocked(StatusInstalled)
	s.mu.Unlock()
	s.logger.Info("engine runtime installed", "package", PackageName, "version", ver)
	return nil
}

// pythonVersionOK runs the venv interpreter and checks major.minor against
// the minimum. The captured output is returned for diagnostics.
func (s *Supervisor) pythonVersionOK(ctx context.Context) (bool, string) {
	out, err := runCaptured(ctx, s.paths.Python(), "-c", pythonVersionScript)
	if err != nil {
		return false, out
	}
	major, minor, err := parseMajorMinor(out)
	if err != nil {
		return false, out
	}
	if major > minPythonMajor || (major == minPythonMajor && minor >= minPythonMinor) {
		return true, out
	}
	return false, out
}

// queryPackageVersion introspects the installed package version. Failures
// degrade to "unknown" instead of failing the install.
func (s *Supervisor) queryPackageVersion(ctx context.Context) string {
	script := fmt.Sprintf(packageVersionFmt, PackageName)
	out, err := runCaptured(ctx, s.paths.Python(), "-c", script)
	if err != nil || out == "" {
		s.logger.Warn("could not determine installed package version", "package", PackageName, "error", err)
		return "unknown"
	}
	return out
}

func lookupUV() (string, error) {
	if path, err := exec.LookPath(uvBinaryName); err == nil {
		return path, nil
	}
	for _, dir := range uvFallbackDirs() {
		candidate := filepath.Join(dir, uvBinaryName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", ErrToolMissing
}

// runCaptured executes an external command with no interactive input and
// returns its trimmed combined output.
func runCaptured(ctx context.Context, name string, args ...string) (string, error) {
	// #nosec G204 -- tool path and interpreter path come from our own lookup
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func parseMajorMinor(s string) (int, int, error) {
	fields := strings.SplitN(strings.TrimSpace(s), ".", 3)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unexpected version output %q", s)
	}
	major, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return 0, 0, err
	}
	minor, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return 0, 0, err
	}
	return major, minor, nil
}
