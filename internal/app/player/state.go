package player

// State represents the content player state.
type State int

const (
	StateIdle      State = iota // Nothing loaded
	StateReady                  // Source loaded, not started
	StatePlaying                // Content is playing
	StatePaused                 // Content is paused
	StateBuffering              // Waiting for data
	StateEnded                  // Content reached its end
	StateError                  // Media error
	StateAdPlaying              // An ad owns the media element
	StateAdPaused               // An ad is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	case StateAdPlaying:
		return "ad:playing"
	case StateAdPaused:
		return "ad:paused"
	default:
		return "unknown"
	}
}
