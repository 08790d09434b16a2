// Package quartile provides once-only progress checkpoint tracking for ads.
package quartile

import "sync"

// Event is one of the five standard progress checkpoints.
type Event int

const (
	Start         Event = iota // Playback began
	FirstQuartile              // 25%
	Midpoint                   // 50%
	ThirdQuartile              // 75%
	Complete                   // 100%
)

// Order is the fixed firing order of events.
var Order = [...]Event{Start, FirstQuartile, Midpoint, ThirdQuartile, Complete}

// String returns the VAST tracking event name.
func (e Event) String() string {
	switch e {
	case Start:
		return "start"
	case FirstQuartile:
		return "firstQuartile"
	case Midpoint:
		return "midpoint"
	case ThirdQuartile:
		return "thirdQuartile"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Tracker fires each Event at most once for a fixed duration.
type Tracker struct {
	mu       sync.Mutex
	duration float64
	fired    [len(Order)]bool
	callback func(Event)
}

// NewTracker creates a tracker for the given duration in seconds.
// A duration <= 0 produces a tracker that never fires.
func NewTracker(duration float64, callback func(Event)) *Tracker {
	return &Tracker{
		duration: duration,
		callback: callback,
	}
}

// Observe consumes a playback position. Every event up to the one matching
// currentTime that has not fired yet is fired in order.
func (t *Tracker) Observe(currentTime float64) {
	if t.duration <= 0 {
		return
	}

	event, ok := eventFor(currentTime / t.duration)
	if !ok {
		return
	}

	t.mu.Lock()
	if t.fired[event] {
		t.mu.Unlock()
		return
	}
	var pending []Event
	for _, e := range Order[:event+1] {
		if !t.fired[e] {
			t.fired[e] = true
			pending = append(pending, e)
		}
	}
	t.mu.Unlock()

	if t.callback == nil {
		return
	}
	for _, e := range pending {
		t.callback(e)
	}
}

// Fired reports whether the event has been fired.
func (t *Tracker) Fired(e Event) bool {
	if e < Start || e > Complete {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired[e]
}

func eventFor(ratio float64) (Event, bool) {
	switch {
	case ratio >= 1:
		return Complete, true
	case ratio >= 0.75:
		return ThirdQuartile, true
	case ratio >= 0.5:
		return Midpoint, true
	case ratio >= 0.25:
		return FirstQuartile, true
	case ratio >= 0:
		return Start, true
	default:
		return 0, false
	}
}
