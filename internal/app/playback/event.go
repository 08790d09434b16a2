package playback

import "github.com/osa030/adbreak/internal/domain/adbreak"

// EventType represents a playback event type.
type EventType int

const (
	EventBreakStarted EventType = iota // A break took over the timeline
	EventBreakEnded                    // A break finished and content resumes
	EventBreakFailed                   // A break was rejected before playing
	EventFinished                      // Content ended and the queue drained
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventBreakStarted:
		return "break_started"
	case EventBreakEnded:
		return "break_ended"
	case EventBreakFailed:
		return "break_failed"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type     EventType
	Break    *adbreak.AdBreak // nil for EventFinished
	State    State
	Playhead float64 // Content playhead in seconds
	Err      error   // Set for EventBreakFailed
}
