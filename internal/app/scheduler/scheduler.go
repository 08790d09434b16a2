// Package scheduler decides when preroll, midroll and postroll breaks fire
// against the content timeline.
package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/adbreak/internal/app/player"
	"github.com/osa030/adbreak/internal/domain/adbreak"
)

// Default timing thresholds in seconds.
const (
	DefaultSeekThreshold = 1.5
	DefaultTolerance     = 0.5
)

// BreakHandler is invoked once per triggered break. It runs on the goroutine
// that delivered the triggering player event and must not block; long-running
// work belongs in its own goroutine. A returned error is logged only.
type BreakHandler func(ctx context.Context, b *adbreak.AdBreak) error

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSeekThreshold sets the jump (seconds) above which a timeupdate counts as a seek.
func WithSeekThreshold(sec float64) Option {
	return func(s *Scheduler) { s.seekThreshold = sec }
}

// WithTolerance sets the trigger window (seconds) around a midroll target.
func WithTolerance(sec float64) Option {
	return func(s *Scheduler) { s.tolerance = sec }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithContext sets the context passed to the break handler.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) { s.ctx = ctx }
}

// Scheduler fires each AdBreak at most once for its lifetime.
type Scheduler struct {
	mu sync.Mutex

	player  player.Player
	onBreak BreakHandler
	ctx     context.Context
	log     zerolog.Logger

	prerolls  []*adbreak.AdBreak
	midrolls  []*adbreak.AdBreak
	postrolls []*adbreak.AdBreak

	// Fired-set keyed on pointer identity. Never cleared.
	fired map[*adbreak.AdBreak]struct{}

	started   bool
	paused    bool
	destroyed bool
	lastTime  float64

	timeUpdateID player.ListenerID
	endedID      player.ListenerID

	seekThreshold float64
	tolerance     float64
}

// New creates a scheduler. Breaks are partitioned by offset kind and midrolls
// are sorted by their raw offset value.
func New(p player.Player, breaks []*adbreak.AdBreak, onBreak BreakHandler, opts ...Option) *Scheduler {
	s := &Scheduler{
		player:        p,
		onBreak:       onBreak,
		ctx:           context.Background(),
		log:           zlog.Logger,
		fired:         make(map[*adbreak.AdBreak]struct{}),
		seekThreshold: DefaultSeekThreshold,
		tolerance:     DefaultTolerance,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, b := range breaks {
		if b == nil {
			continue
		}
		switch b.TimeOffset.Kind {
		case adbreak.OffsetStart:
			s.prerolls = append(s.prerolls, b)
		case adbreak.OffsetEnd:
			s.postrolls = append(s.postrolls, b)
		case adbreak.OffsetTime, adbreak.OffsetPercentage:
			s.midrolls = append(s.midrolls, b)
		default:
			s.log.Warn().Msgf("scheduler: ignoring break with unsupported offset: %s", b)
		}
	}

	// Time offsets sort by seconds and percentage offsets by raw percent.
	// Mixed lists are not normalised against duration.
	sort.SliceStable(s.midrolls, func(i, j int) bool {
		return sortKey(s.midrolls[i]) < sortKey(s.midrolls[j])
	})

	return s
}

func sortKey(b *adbreak.AdBreak) float64 {
	if b.TimeOffset.Kind == adbreak.OffsetPercentage {
		return b.TimeOffset.Pct
	}
	return b.TimeOffset.Seconds
}

// Start fires unfired prerolls and subscribes to content playback. Calling it
// more than once has no effect. The reference point starts at zero, so a
// scheduler started mid-content treats its first update as a seek and skips
// midrolls the playhead already passed.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.destroyed {
		s.mu.Unlock()
		return
	}
	s.started = true
	due := s.claimLocked(s.prerolls)
	s.lastTime = 0
	s.mu.Unlock()

	s.dispatch(due)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.timeUpdateID = s.player.On(player.EventTimeUpdate, s.handleTimeUpdate)
	s.endedID = s.player.On(player.EventEnded, s.handleEnded)
}

// Pause suppresses all break evaluation until Resume.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume re-enables break evaluation. The current position becomes the
// reference point so the paused interval is not mistaken for a seek.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	s.lastTime = s.player.CurrentTime()
}

// Destroy unsubscribes from the player. The fired-set is kept and the
// scheduler cannot be restarted.
func (s *Scheduler) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.destroyed = true
	if s.started {
		s.player.Off(player.EventTimeUpdate, s.timeUpdateID)
		s.player.Off(player.EventEnded, s.endedID)
	}
}

// Fired reports whether b has been triggered or skipped.
func (s *Scheduler) Fired(b *adbreak.AdBreak) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fired[b]
	return ok
}

func (s *Scheduler) handleTimeUpdate(payload any) {
	currentTime, duration := s.position(payload)

	s.mu.Lock()
	if s.paused || s.destroyed {
		s.mu.Unlock()
		return
	}
	seeked := currentTime > s.lastTime+s.seekThreshold
	s.lastTime = currentTime

	var due []*adbreak.AdBreak
	for _, b := range s.midrolls {
		if _, ok := s.fired[b]; ok {
			continue
		}
		target, ok := resolveTarget(b, duration)
		if !ok {
			continue
		}
		if seeked && currentTime > target+s.tolerance {
			s.fired[b] = struct{}{}
			s.log.Debug().Msgf("scheduler: midroll skipped by seek: %s target=%.2f current=%.2f",
				b, target, currentTime)
			continue
		}
		if currentTime >= target-s.tolerance {
			s.fired[b] = struct{}{}
			due = append(due, b)
		}
	}
	s.mu.Unlock()

	s.dispatch(due)
}

func (s *Scheduler) handleEnded(any) {
	s.mu.Lock()
	if s.paused || s.destroyed {
		s.mu.Unlock()
		return
	}
	due := s.claimLocked(s.postrolls)
	s.mu.Unlock()

	s.dispatch(due)
}

// claimLocked marks every unfired break in list as fired and returns them.
// Must be called with lock held.
func (s *Scheduler) claimLocked(list []*adbreak.AdBreak) []*adbreak.AdBreak {
	var due []*adbreak.AdBreak
	for _, b := range list {
		if _, ok := s.fired[b]; ok {
			continue
		}
		s.fired[b] = struct{}{}
		due = append(due, b)
	}
	return due
}

func (s *Scheduler) dispatch(due []*adbreak.AdBreak) {
	for _, b := range due {
		s.log.Info().Msgf("scheduler: break triggered: %s", b)
		if s.onBreak == nil {
			continue
		}
		if err := s.invoke(b); err != nil {
			s.log.Error().Err(err).Msgf("scheduler: break handler failed: %s", b)
		}
	}
}

func (s *Scheduler) invoke(b *adbreak.AdBreak) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("break handler panicked: %v", r)
		}
	}()
	return s.onBreak(s.ctx, b)
}

// position reads the playhead from a timeupdate payload, falling back to the
// player when the payload is absent.
func (s *Scheduler) position(payload any) (float64, float64) {
	if tu, ok := payload.(player.TimeUpdate); ok {
		duration := tu.Duration
		if duration <= 0 {
			duration = s.player.Duration()
		}
		return tu.CurrentTime, duration
	}
	return s.player.CurrentTime(), s.player.Duration()
}

func resolveTarget(b *adbreak.AdBreak, duration float64) (float64, bool) {
	switch b.TimeOffset.Kind {
	case adbreak.OffsetTime:
		return b.TimeOffset.Seconds, true
	case adbreak.OffsetPercentage:
		if duration <= 0 {
			return 0, false
		}
		return b.TimeOffset.Pct / 100 * duration, true
	default:
		return 0, false
	}
}
