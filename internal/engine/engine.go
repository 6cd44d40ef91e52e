// Package engine installs and supervises the local Kokoro speech-synthesis
// service: it maintains an isolated uv-managed virtualenv, launches the
// service as a subprocess, verifies it is the expected service (not an
// unrelated program on the same port), and recovers from crashes with a
// bounded backoff schedule. All observable state flows through a single
// race-free status machine owned by the Supervisor.
package engine

// Identity of the managed service.
const (
	// PackageName is the Python package installed into the venv.
	PackageName = "kokoro-serve"
	// ServerBinaryName is the console script the package installs.
	ServerBinaryName = "kokoro-serve"

	DefaultHost  = "127.0.0.1"
	DefaultPort  = 8000
	DefaultVoice = "af_heart"

	// MinPythonSpec is handed to uv when creating the venv; the resulting
	// interpreter is re-verified against the same threshold.
	MinPythonSpec  = "3.10"
	minPythonMajor = 3
	minPythonMinor = 10
)
