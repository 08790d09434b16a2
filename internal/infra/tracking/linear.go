package tracking

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/adbreak/internal/domain/quartile"
)

// Beaconer sends beacons without blocking the caller.
type Beaconer interface {
	Go(ctx context.Context, urls []string, m Macros)
}

// LinearTracker fires the quartile tracking URLs of one linear ad as its
// playhead advances.
type LinearTracker struct {
	ctx     context.Context
	client  Beaconer
	events  map[string][]string
	tracker *quartile.Tracker

	mu       sync.Mutex
	playhead float64
}

// NewLinearTracker creates a tracker for an ad of the given duration. events
// maps VAST tracking event names ("start", "firstQuartile", ...) to URLs.
func NewLinearTracker(ctx context.Context, client Beaconer, duration float64, events map[string][]string) *LinearTracker {
	l := &LinearTracker{
		ctx:    ctx,
		client: client,
		events: events,
	}
	l.tracker = quartile.NewTracker(duration, l.fire)
	return l
}

// Observe reports the ad playhead and the content playhead used for the
// [CONTENTPLAYHEAD] macro.
func (l *LinearTracker) Observe(adTime, contentPlayhead float64) {
	l.mu.Lock()
	l.playhead = contentPlayhead
	l.mu.Unlock()
	l.tracker.Observe(adTime)
}

// Fired reports whether the quartile has been sent.
func (l *LinearTracker) Fired(e quartile.Event) bool {
	return l.tracker.Fired(e)
}

func (l *LinearTracker) fire(e quartile.Event) {
	urls := l.events[e.String()]
	if len(urls) == 0 {
		return
	}
	l.mu.Lock()
	playhead := l.playhead
	l.mu.Unlock()

	zlog.Debug().Msgf("tracking: quartile reached: event=%s urls=%d", e, len(urls))
	l.client.Go(l.ctx, urls, Macros{ContentPlayhead: playhead})
}
