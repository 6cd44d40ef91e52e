package engine

// RuntimeStatus is the supervisor's single source of truth for the engine
// lifecycle. Exactly one value holds at any instant; only installer and
// supervisor operations mutate it.
type RuntimeStatus int32

const (
	StatusNotInstalled RuntimeStatus = iota
	StatusInstalling
	StatusInstalled
	StatusStarting
	StatusRunning
	StatusUnhealthy
	StatusStopped
	StatusFailed
)

func (s RuntimeStatus) String() string {
	switch s {
	case StatusNotInstalled:
		return "not_installed"
	case StatusInstalling:
		return "installing"
	case StatusInstalled:
		return "installed"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusUnhealthy:
		return "unhealthy"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsAlive reports whether the status implies an owned subprocess may exist.
func (s RuntimeStatus) IsAlive() bool {
	return s == StatusStarting || s == StatusRunning
}

// StatusChange is delivered to subscribers on every status transition.
type StatusChange struct {
	From RuntimeStatus
	To   RuntimeStatus
}
