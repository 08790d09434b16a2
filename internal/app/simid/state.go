package simid

// State represents the host session lifecycle.
type State int

const (
	StateIdle State = iota
	StateHandshaking
	StateInitializing
	StateStarting
	StatePlaying
	StateStopped
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHandshaking:
		return "handshaking"
	case StateInitializing:
		return "initializing"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session is over.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateError
}
