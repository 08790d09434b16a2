package vpaid

// State represents the wrapper lifecycle.
type State int

const (
	StateLoading      State = iota // Unit loaded, handshake not started
	StateHandshaking               // handshakeVersion in flight
	StateInitializing              // Waiting for AdLoaded
	StateReadyToStart              // AdLoaded received
	StateStarting                  // Waiting for AdStarted
	StatePlaying                   // Ad is running
	StateStopping                  // Waiting for AdStopped or AdSkipped
	StateStopped                   // Terminal
	StateError                     // Terminal
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateHandshaking:
		return "handshaking"
	case StateInitializing:
		return "initializing"
	case StateReadyToStart:
		return "ready-to-start"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateError
}
