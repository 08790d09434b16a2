// Package omid wires ad playback into an Open Measurement SDK session.
package omid

import "github.com/osa030/adbreak/internal/app/player"

// Session observer event types delivered by the SDK.
const (
	SessionStart  = "sessionStart"
	SessionError  = "sessionError"
	SessionFinish = "sessionFinish"
)

// Error types accepted by AdSession.Error.
const (
	ErrorTypeGeneric = "generic"
	ErrorTypeVideo   = "video"
)

// Creative and impression types.
const (
	CreativeTypeVideo           = "video"
	ImpressionTypeBeginToRender = "beginToRender"
)

// Ad positions reported in VastProperties.
const (
	PositionPreroll    = "preroll"
	PositionMidroll    = "midroll"
	PositionPostroll   = "postroll"
	PositionStandalone = "standalone"
)

// SDK is the entry point of an OM SDK implementation. Implementations are
// untrusted: a panic in any call is treated as an SDK failure.
type SDK interface {
	IsSupported() bool
	NewPartner(name, version string) Partner
	NewContext(partner Partner, resources []VerificationResource, contentURL string) Context
	NewAdSession(ctx Context) AdSession
	NewAdEvents(session AdSession) AdEvents
	NewMediaEvents(session AdSession) MediaEvents
}

// Partner identifies the integrating player.
type Partner interface {
	Name() string
	Version() string
}

// Context carries the verification resources and the measured element.
type Context interface {
	SetVideoElement(el player.MediaElement)
}

// VerificationResource is one verification script from the VAST response.
type VerificationResource struct {
	ResourceURL            string
	VendorKey              string
	VerificationParameters string
	AccessMode             string
}

// SessionEvent is delivered to session observers.
type SessionEvent struct {
	Type string
	Data map[string]any
}

// AdSession is the measurement session.
type AdSession interface {
	SetCreativeType(creativeType string)
	SetImpressionType(impressionType string)
	RegisterSessionObserver(fn func(SessionEvent))
	Start()
	Finish()
	Error(errorType, message string)
}

// AdEvents reports ad lifecycle events.
type AdEvents interface {
	Loaded(props VastProperties)
	ImpressionOccurred()
}

// MediaEvents reports video playback events.
type MediaEvents interface {
	Start(duration, volume float64)
	FirstQuartile()
	Midpoint()
	ThirdQuartile()
	Complete()
	Pause()
	Resume()
	Skipped()
	BufferStart()
	BufferFinish()
	VolumeChange(volume float64)
}

// VastProperties describes the ad for AdEvents.Loaded.
type VastProperties struct {
	Skippable  bool
	SkipOffset float64
	AutoPlay   bool
	Position   string
}
