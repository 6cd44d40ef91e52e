package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
}

// installFake lays out a venv with a shell-script interpreter and engine
// binary, bypassing uv entirely.
func installFake(t *testing.T, pythonVersion, serverScript string) Paths {
	t.Helper()
	p := NewPaths(t.TempDir())
	if err := os.MkdirAll(filepath.Join(p.VenvDir(), "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeScript(t, p.Python(), "echo "+pythonVersion)
	writeScript(t, p.ServerBin(), serverScript)
	return p
}

// writeFakeUV creates a uv stand-in that materializes the venv layout the real
// tool would.
func writeFakeUV(t *testing.T, dir string) {
	t.Helper()
	body := fmt.Sprintf(`PATH="$PATH:/usr/bin:/bin"
case "$1" in
venv)
  mkdir -p "$2/bin"
  printf '#!/bin/sh\necho 3.12\n' > "$2/bin/python"
  chmod +x "$2/bin/python"
  ;;
pip)
  bindir=$(dirname "$4")
  printf '#!/bin/sh\nsleep 60\n' > "$bindir/%s"
  chmod +x "$bindir/%s"
  ;;
*)
  exit 1
  ;;
esac`, ServerBinaryName, ServerBinaryName)
	writeScript(t, filepath.Join(dir, "uv"), body)
}

func skipIfNoShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestInstallIfNeededShortCircuits(t *testing.T) {
	skipIfNoShell(t)
	paths := installFake(t, "3.12", "sleep 60")
	t.Setenv("PATH", t.TempDir()) // no uv available; must not be needed

	s := NewSupervisor(Config{Paths: paths, Logger: discardLogger()})
	if err := s.InstallIfNeeded(context.Background()); err != nil {
		t.Fatalf("InstallIfNeeded: %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != StatusInstalled {
		t.Fatalf("expected installed, got %s", snap.StatusName)
	}
	if snap.PackageVersion == "" || snap.PackageVersion == "unknown" {
		t.Fatalf("expected package version from interpreter, got %q", snap.PackageVersion)
	}
}

func TestInstallIfNeededFreshInstall(t *testing.T) {
	skipIfNoShell(t)
	paths := NewPaths(t.TempDir())
	tools := t.TempDir()
	writeFakeUV(t, tools)
	t.Setenv("PATH", tools)

	s := NewSupervisor(Config{Paths: paths, Logger: discardLogger()})
	if err := s.InstallIfNeeded(context.Background()); err != nil {
		t.Fatalf("InstallIfNeeded: %v", err)
	}
	if !s.installedFilesPresent() {
		t.Fatal("expected interpreter and engine binary after install")
	}
	if got := s.Snapshot().Status; got != StatusInstalled {
		t.Fatalf("expected installed, got %s", got)
	}
}

func TestInstallIfNeededReplacesIncompatiblePython(t *testing.T) {
	skipIfNoShell(t)
	paths := installFake(t, "3.9", "sleep 60")
	tools := t.TempDir()
	writeFakeUV(t, tools)
	t.Setenv("PATH", tools)

	s := NewSupervisor(Config{Paths: paths, Logger: discardLogger()})
	if err := s.InstallIfNeeded(context.Background()); err != nil {
		t.Fatalf("InstallIfNeeded: %v", err)
	}
	ok, out := s.pythonVersionOK(context.Background())
	if !ok {
		t.Fatalf("expected compatible interpreter after reinstall, got %q", out)
	}
	if got := s.Snapshot().Status; got != StatusInstalled {
		t.Fatalf("expected installed, got %s", got)
	}
}

func TestInstallToolMissing(t *testing.T) {
	skipIfNoShell(t)
	for _, known := range []string{"/opt/homebrew/bin/uv", "/usr/local/bin/uv"} {
		if _, err := os.Stat(known); err == nil {
			t.Skipf("uv present at %s", known)
		}
	}
	t.Setenv("PATH", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	s := NewSupervisor(Config{Paths: NewPaths(t.TempDir()), Logger: discardLogger()})
	err := s.InstallIfNeeded(context.Background())
	if !errors.Is(err, ErrToolMissing) {
		t.Fatalf("expected ErrToolMissing, got %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", snap.StatusName)
	}
	if snap.LastError == "" {
		t.Fatal("expected last error to be recorded")
	}
}

func TestReinstallRemovalFailureKeepsOriginalVenv(t *testing.T) {
	skipIfNoShell(t)
	if os.Geteuid() == 0 {
		t.Skip("removal cannot be made to fail as root")
	}
	paths := installFake(t, "3.9", "sleep 60")
	tools := t.TempDir()
	writeFakeUV(t, tools)
	t.Setenv("PATH", tools)

	// Deny unlinking of the venv contents so the removal step fails.
	binDir := filepath.Join(paths.VenvDir(), "bin")
	if err := os.Chmod(binDir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(binDir, 0o755) })

	s := NewSupervisor(Config{Paths: paths, Logger: discardLogger()})
	err := s.Reinstall(context.Background())

	var ierr *InstallError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected InstallError, got %v", err)
	}
	if ierr.Step != "remove incompatible venv" {
		t.Fatalf("expected failure at venv removal, got %q", ierr.Step)
	}
	if ierr.Output == "" {
		t.Fatal("expected the removal error in the output")
	}
	if got := s.Snapshot().Status; got != StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	// No partial overwrite: the original environment survives untouched.
	if _, err := os.Stat(paths.Python()); err != nil {
		t.Fatalf("expected original interpreter to survive, got %v", err)
	}
	if _, err := os.Stat(paths.ServerBin()); err != nil {
		t.Fatalf("expected original engine binary to survive, got %v", err)
	}
}

func TestInstallStepFailureIsReported(t *testing.T) {
	skipIfNoShell(t)
	tools := t.TempDir()
	writeScript(t, filepath.Join(tools, "uv"), `echo "no such python"; exit 1`)
	t.Setenv("PATH", tools)

	s := NewSupervisor(Config{Paths: NewPaths(t.TempDir()), Logger: discardLogger()})
	err := s.Reinstall(context.Background())

	var ierr *InstallError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected InstallError, got %v", err)
	}
	if ierr.Step != "create venv" {
		t.Fatalf("expected failure at create venv, got %q", ierr.Step)
	}
	if ierr.Output != "no such python" {
		t.Fatalf("expected captured tool output, got %q", ierr.Output)
	}
	if got := s.Snapshot().Status; got != StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
}

func TestPythonVersionBoundary(t *testing.T) {
	skipIfNoShell(t)
	cases := []struct {
		version string
		ok      bool
	}{
		{"3.10", true},
		{"3.12", true},
		{"4.0", true},
		{"3.9", false},
		{"2.7", false},
	}
	for _, c := range cases {
		paths := installFake(t, c.version, "sleep 60")
		s := NewSupervisor(Config{Paths: paths, Logger: discardLogger()})
		ok, out := s.pythonVersionOK(context.Background())
		if ok != c.ok {
			t.Errorf("version %s: ok=%v (output %q), want %v", c.version, ok, out, c.ok)
		}
	}
}

func TestParseMajorMinor(t *testing.T) {
	if major, minor, err := parseMajorMinor("3.12"); err != nil || major != 3 || minor != 12 {
		t.Fatalf("parseMajorMinor(3.12) = %d.%d, %v", major, minor, err)
	}
	if major, minor, err := parseMajorMinor(" 3.10.4 \n"); err != nil || major != 3 || minor != 10 {
		t.Fatalf("parseMajorMinor(3.10.4) = %d.%d, %v", major, minor, err)
	}
	if _, _, err := parseMajorMinor("not a version"); err == nil {
		t.Fatal("expected error for junk input")
	}
}
