// Package player defines the content-player collaborator consumed by the ad
// components, plus an in-memory simulation of it.
package player

// Player is the content player surface the ad components depend on.
type Player interface {
	On(event string, h Handler) ListenerID
	Off(event string, id ListenerID)
	Emit(event string, payload any)

	CurrentTime() float64
	Duration() float64
	Volume() float64
	Muted() bool
	State() State

	// El returns the underlying media element.
	El() MediaElement
}

// MediaElement mirrors the subset of HTMLMediaElement used by ad bridges.
type MediaElement interface {
	AddEventListener(event string, h Handler) ListenerID
	RemoveEventListener(event string, id ListenerID)

	Play() error
	Pause()
	CurrentTime() float64
	Duration() float64
	Paused() bool
	Volume() float64
	Muted() bool
}
