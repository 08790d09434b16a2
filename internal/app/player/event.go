package player

// Player bus event names.
const (
	EventTimeUpdate  = "timeupdate"
	EventEnded       = "ended"
	EventStateChange = "statechange"
	EventError       = "error"

	EventAdStart      = "ad:start"
	EventAdEnd        = "ad:end"
	EventAdSkip       = "ad:skip"
	EventAdError      = "ad:error"
	EventAdQuartile   = "ad:quartile"
	EventAdClick      = "ad:click"
	EventAdPause      = "ad:pause"
	EventAdResume     = "ad:resume"
	EventAdImpression = "ad:impression"
)

// Media element (DOM-style) event names.
const (
	MediaPlay           = "play"
	MediaPause          = "pause"
	MediaTimeUpdate     = "timeupdate"
	MediaVolumeChange   = "volumechange"
	MediaEnded          = "ended"
	MediaDurationChange = "durationchange"
	MediaWaiting        = "waiting"
	MediaPlaying        = "playing"
)

// TimeUpdate is the payload of EventTimeUpdate.
type TimeUpdate struct {
	CurrentTime float64
	Duration    float64
}

// StateChange is the payload of EventStateChange.
type StateChange struct {
	From State
	To   State
}

// Error is the payload of EventError.
type Error struct {
	Code    int
	Message string
}

// AdError is the payload of EventAdError.
type AdError struct {
	Source  string // Component that failed: "vpaid", "simid", "omid"
	Code    int    // VAST error code, 0 when not applicable
	Message string
	Err     error
}

// Error implements the error interface so payloads can be logged and wrapped.
func (e AdError) Error() string {
	return e.Source + ": " + e.Message
}

// Unwrap returns the underlying error.
func (e AdError) Unwrap() error {
	return e.Err
}

// AdEvent is the payload of the non-error ad events.
type AdEvent struct {
	Source string
	Name   string // Underlying SDK event name, e.g. "AdVideoMidpoint"
	Data   any
}
