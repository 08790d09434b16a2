package playback

// State represents the controller state.
type State int

const (
	StateIdle    State = iota // Run has not been called
	StateContent              // Content owns the timeline
	StateAd                   // A break is playing
	StateDone                 // Content ended and every break has played
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateContent:
		return "content"
	case StateAd:
		return "ad"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
