package engine

import "path/filepath"

// Paths derives every filesystem location the engine uses from a single base
// directory. It carries no mutable state; callers recompute locations on demand.
type Paths struct {
	Base string
}

func NewPaths(base string) Paths { return Paths{Base: base} }

// VenvDir is the isolated environment holding the interpreter and the
// installed engine package.
func (p Paths) VenvDir() string { return filepath.Join(p.Base, "venv") }

func (p Paths) Python() string { return filepath.Join(p.Base, "venv", "bin", "python") }

// ServerBin is the console entry point installed by the engine package.
func (p Paths) ServerBin() string { return filepath.Join(p.Base, "venv", "bin", ServerBinaryName) }

func (p Paths) LogDir() string { return filepath.Join(p.Base, "logs") }

// LogFile is the append-only capture of the engine's stdout/stderr.
func (p Paths) LogFile() string { return filepath.Join(p.Base, "logs", "server.log") }
