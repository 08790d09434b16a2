package simid

// NavigationMode tells the creative who opens click-through pages.
type NavigationMode string

const (
	NavigationPlayerHandles NavigationMode = "playerHandles"
	NavigationAdHandles     NavigationMode = "adHandles"
	NavigationNotSupported  NavigationMode = "notSupported"
)

// Policy gates the requests a creative may make. The zero value denies
// every gated request.
type Policy struct {
	AllowPause  bool
	AllowPlay   bool
	AllowResize bool
	Navigation  NavigationMode
}

// DefaultPolicy allows playback control and player-handled navigation.
func DefaultPolicy() Policy {
	return Policy{
		AllowPause: true,
		AllowPlay:  true,
		Navigation: NavigationPlayerHandles,
	}
}

// Allows reports whether a creative request of the given type may be acted
// upon. Ungated request types are always allowed.
func (p Policy) Allows(typ string) bool {
	switch typ {
	case CreativeRequestPause:
		return p.AllowPause
	case CreativeRequestPlay:
		return p.AllowPlay
	case CreativeRequestResize, CreativeRequestFullscreen, CreativeRequestExitFullscreen:
		return p.AllowResize
	case CreativeRequestNavigation:
		return p.Navigation == NavigationPlayerHandles
	default:
		return true
	}
}
