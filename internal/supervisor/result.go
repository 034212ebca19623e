package supervisor

// StartResult is the outcome of a successful Start.
type StartResult int

const (
	// Started means a new child was spawned.
	Started StartResult = iota + 1

	// AlreadyRunning means a child was already held; nothing changed.
	AlreadyRunning
)

func (r StartResult) String() string {
	switch r {
	case Started:
		return "started"
	case AlreadyRunning:
		return "already_running"
	default:
		return "unknown"
	}
}

// StopResult is the outcome of a successful Stop.
type StopResult int

const (
	// Stopped means the held child was taken out and signalled.
	Stopped StopResult = iota + 1

	// NotRunning means no child was held; nothing was signalled.
	NotRunning
)

func (r StopResult) String() string {
	switch r {
	case Stopped:
		return "stopped"
	case NotRunning:
		return "not_running"
	default:
		return "unknown"
	}
}
