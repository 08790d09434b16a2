// Package adbreak provides the AdBreak domain entity.
package adbreak

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidOffset is returned when a VMAP timeOffset cannot be parsed.
var ErrInvalidOffset = errors.New("invalid time offset")

// OffsetKind identifies the variant held by a TimeOffset.
type OffsetKind int

const (
	OffsetStart      OffsetKind = iota // Before content (preroll)
	OffsetEnd                          // After content (postroll)
	OffsetTime                         // Absolute content time in seconds
	OffsetPercentage                   // Percentage of content duration
	OffsetPosition                     // VMAP "#n" positional offset
)

// String returns the string representation of the offset kind.
func (k OffsetKind) String() string {
	switch k {
	case OffsetStart:
		return "start"
	case OffsetEnd:
		return "end"
	case OffsetTime:
		return "time"
	case OffsetPercentage:
		return "percentage"
	case OffsetPosition:
		return "position"
	default:
		return "unknown"
	}
}

// TimeOffset is a tagged variant. Only the field matching Kind is meaningful.
type TimeOffset struct {
	Kind     OffsetKind
	Seconds  float64 // OffsetTime
	Pct      float64 // OffsetPercentage, 0-100
	Position int     // OffsetPosition
}

// Start returns a preroll offset.
func Start() TimeOffset { return TimeOffset{Kind: OffsetStart} }

// End returns a postroll offset.
func End() TimeOffset { return TimeOffset{Kind: OffsetEnd} }

// At returns an absolute-time offset.
func At(seconds float64) TimeOffset { return TimeOffset{Kind: OffsetTime, Seconds: seconds} }

// Percent returns a percentage-of-duration offset.
func Percent(pct float64) TimeOffset { return TimeOffset{Kind: OffsetPercentage, Pct: pct} }

// String renders the offset in VMAP notation.
func (o TimeOffset) String() string {
	switch o.Kind {
	case OffsetStart:
		return "start"
	case OffsetEnd:
		return "end"
	case OffsetTime:
		return FormatClock(o.Seconds)
	case OffsetPercentage:
		return strconv.FormatFloat(o.Pct, 'f', -1, 64) + "%"
	case OffsetPosition:
		return "#" + strconv.Itoa(o.Position)
	default:
		return "unknown"
	}
}

// ParseTimeOffset parses a VMAP timeOffset attribute.
// Accepted forms: "start", "end", "HH:MM:SS", "HH:MM:SS.mmm", "N%", "#N".
func ParseTimeOffset(s string) (TimeOffset, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return TimeOffset{}, errors.Wrap(ErrInvalidOffset, "empty offset")
	case strings.EqualFold(s, "start"):
		return Start(), nil
	case strings.EqualFold(s, "end"):
		return End(), nil
	case strings.HasSuffix(s, "%"):
		pct, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil || pct < 0 || pct > 100 {
			return TimeOffset{}, errors.Wrapf(ErrInvalidOffset, "bad percentage %q", s)
		}
		return Percent(pct), nil
	case strings.HasPrefix(s, "#"):
		n, err := strconv.Atoi(s[1:])
		if err != nil || n < 1 {
			return TimeOffset{}, errors.Wrapf(ErrInvalidOffset, "bad position %q", s)
		}
		return TimeOffset{Kind: OffsetPosition, Position: n}, nil
	}

	secs, err := ParseClock(s)
	if err != nil {
		return TimeOffset{}, err
	}
	return At(secs), nil
}

// ParseClock parses "HH:MM:SS" or "HH:MM:SS.mmm" into seconds.
func ParseClock(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, errors.Wrapf(ErrInvalidOffset, "bad clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, errors.Wrapf(ErrInvalidOffset, "bad hours in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, errors.Wrapf(ErrInvalidOffset, "bad minutes in %q", s)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || sec < 0 || sec >= 60 {
		return 0, errors.Wrapf(ErrInvalidOffset, "bad seconds in %q", s)
	}
	return float64(h*3600+m*60) + sec, nil
}

// FormatClock renders seconds as HH:MM:SS.mmm.
func FormatClock(seconds float64) string {
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// AdSource references the ad data for a break.
type AdSource struct {
	ID               string
	AllowMultipleAds bool
	FollowRedirects  bool
	AdTagURI         string // VAST request URL, empty when inline data is used
	TemplateType     string // "vast3", "vast4", ...
	VASTAdData       string // Inline VAST document
}

// Tracking event names defined by VMAP for break-level tracking.
const (
	TrackingBreakStart = "breakStart"
	TrackingBreakEnd   = "breakEnd"
	TrackingError      = "error"
)

// AdBreak is an immutable break descriptor. Callers share it by pointer and the
// pointer identity is what schedulers deduplicate on.
type AdBreak struct {
	TimeOffset     TimeOffset
	BreakType      string // "linear", "nonlinear", "display"
	BreakID        string // Optional
	AdSource       AdSource
	TrackingEvents map[string][]string // Event name -> URLs
}

// TrackingURLs returns the URLs registered for a break-level tracking event.
func (b *AdBreak) TrackingURLs(event string) []string {
	if b == nil || b.TrackingEvents == nil {
		return nil
	}
	return b.TrackingEvents[event]
}

// String returns a short human readable description.
func (b *AdBreak) String() string {
	if b == nil {
		return "<nil>"
	}
	id := b.BreakID
	if id == "" {
		id = "-"
	}
	return fmt.Sprintf("break(id=%s offset=%s type=%s)", id, b.TimeOffset, b.BreakType)
}
