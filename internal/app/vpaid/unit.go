// Package vpaid drives a VPAID 2.0 ad unit through handshake, init, start and
// stop with a timeout on every step.
package vpaid

import "github.com/osa030/adbreak/internal/app/player"

// Events emitted by a VPAID ad unit.
const (
	EventAdLoaded               = "AdLoaded"
	EventAdStarted              = "AdStarted"
	EventAdStopped              = "AdStopped"
	EventAdSkipped              = "AdSkipped"
	EventAdError                = "AdError"
	EventAdImpression           = "AdImpression"
	EventAdClickThru            = "AdClickThru"
	EventAdPaused               = "AdPaused"
	EventAdPlaying              = "AdPlaying"
	EventAdVideoStart           = "AdVideoStart"
	EventAdVideoFirstQuartile   = "AdVideoFirstQuartile"
	EventAdVideoMidpoint        = "AdVideoMidpoint"
	EventAdVideoThirdQuartile   = "AdVideoThirdQuartile"
	EventAdVideoComplete        = "AdVideoComplete"
	EventAdUserAcceptInvitation = "AdUserAcceptInvitation"
	EventAdUserMinimize         = "AdUserMinimize"
	EventAdUserClose            = "AdUserClose"
	EventAdVolumeChange         = "AdVolumeChange"
	EventAdDurationChange       = "AdDurationChange"
	EventAdLog                  = "AdLog"
)

var subscribedEvents = []string{
	EventAdLoaded,
	EventAdStarted,
	EventAdStopped,
	EventAdSkipped,
	EventAdError,
	EventAdImpression,
	EventAdClickThru,
	EventAdPaused,
	EventAdPlaying,
	EventAdVideoStart,
	EventAdVideoFirstQuartile,
	EventAdVideoMidpoint,
	EventAdVideoThirdQuartile,
	EventAdVideoComplete,
	EventAdUserAcceptInvitation,
	EventAdUserMinimize,
	EventAdUserClose,
	EventAdVolumeChange,
	EventAdDurationChange,
	EventAdLog,
}

// VAST error code reported for every VPAID failure.
const ErrorCodeVPAID = 901

// ViewMode values accepted by InitAd and ResizeAd.
const (
	ViewModeNormal     = "normal"
	ViewModeThumbnail  = "thumbnail"
	ViewModeFullscreen = "fullscreen"
)

// CreativeData is passed to InitAd.
type CreativeData struct {
	AdParameters string
}

// EnvironmentVars is passed to InitAd.
type EnvironmentVars struct {
	Slot                 Slot
	VideoSlot            player.MediaElement
	VideoSlotCanAutoPlay bool
}

// AdUnit is the VPAID 2.0 ad-unit contract. Implementations are untrusted:
// any method may panic and the wrapper treats that as an ad failure.
type AdUnit interface {
	HandshakeVersion(playerVersion string) string
	InitAd(width, height int, viewMode string, desiredBitrate int, creativeData CreativeData, env EnvironmentVars)
	StartAd()
	StopAd()
	SkipAd()
	PauseAd()
	ResumeAd()
	ResizeAd(width, height int, viewMode string)
	SetAdVolume(volume float64)
	GetAdDuration() float64

	Subscribe(event string, fn func(args ...any))
	Unsubscribe(event string)
}
