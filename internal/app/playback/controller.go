// Package playback drives simulated content playback and plays triggered ad
// breaks one at a time.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/adbreak/internal/app/player"
	"github.com/osa030/adbreak/internal/domain/adbreak"
	"github.com/osa030/adbreak/internal/infra/tracking"
)

// Errors
var (
	ErrUnsupportedBreak = errors.New("playback: break type not supported")
	ErrNoAdSource       = errors.New("playback: break has no ad source")
	ErrClosed           = errors.New("playback: controller closed")
)

// VMAP error codes sent through the [ERRORCODE] macro.
const (
	ErrorCodeBreakType = 1003
	ErrorCodeAdSource  = 1004
)

// Source is the AdEvent source name of this component.
const Source = "playback"

// Defaults
const (
	DefaultAdDuration = 15.0
	DefaultTick       = 250 * time.Millisecond
	DefaultSpeed      = 1.0
)

// Config holds controller configuration.
type Config struct {
	AdDuration float64             // Simulated linear ad length per break, in seconds
	AdTracking map[string][]string // Quartile event name -> URLs for every simulated ad
	Tick       time.Duration       // Wall clock interval between steps
	Speed      float64             // Timeline seconds advanced per wall clock second
	Logger     *zerolog.Logger
}

// Controller owns a simulated player. Content advances on every tick until a
// triggered break is queued; the break then plays to completion before
// content resumes.
type Controller struct {
	mu sync.Mutex

	sim     *player.Sim
	beacons tracking.Beaconer
	config  Config
	log     zerolog.Logger

	queue   []*adbreak.AdBreak
	played  []*adbreak.AdBreak
	current *adbreak.AdBreak
	linear  *tracking.LinearTracker
	adTime  float64
	state   State
	closed  bool

	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a new playback controller.
func NewController(sim *player.Sim, beacons tracking.Beaconer, config Config) *Controller {
	if config.AdDuration <= 0 {
		config.AdDuration = DefaultAdDuration
	}
	if config.Tick <= 0 {
		config.Tick = DefaultTick
	}
	if config.Speed <= 0 {
		config.Speed = DefaultSpeed
	}
	log := zlog.Logger
	if config.Logger != nil {
		log = *config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		sim:     sim,
		beacons: beacons,
		config:  config,
		log:     log.With().Str("component", Source).Logger(),
		state:   StateIdle,
		eventCh: make(chan Event, 32),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Played returns the breaks that have played to completion, in order.
func (c *Controller) Played() []*adbreak.AdBreak {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]*adbreak.AdBreak, len(c.played))
	copy(result, c.played)
	return result
}

// QueueSize returns the number of breaks waiting to play.
func (c *Controller) QueueSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Enqueue accepts a triggered break and has the signature of a scheduler
// break handler. A break that cannot play is reported to its error tracking
// URLs and returned as an error.
func (c *Controller) Enqueue(ctx context.Context, b *adbreak.AdBreak) error {
	if b == nil {
		return nil
	}
	if code, err := check(b); err != nil {
		playhead := c.sim.CurrentTime()
		c.beacons.Go(ctx, b.TrackingURLs(adbreak.TrackingError), tracking.Macros{
			ErrorCode:       code,
			ContentPlayhead: playhead,
		})
		c.mu.Lock()
		c.sendEventLocked(Event{Type: EventBreakFailed, Break: b, State: c.state, Playhead: playhead, Err: err})
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.queue = append(c.queue, b)
	c.log.Debug().Msgf("playback: break queued: %s queue=%d", b, len(c.queue))
	return nil
}

// Run plays content and queued breaks until the content has ended and the
// queue is empty, ctx is done, or the controller is closed.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.config.Tick)
	defer ticker.Stop()

	dt := c.config.Tick.Seconds() * c.config.Speed
	for {
		if c.step(ctx, dt) {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return ErrClosed
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return ErrClosed
		case <-ticker.C:
		}
	}
}

// Close stops the controller and closes the event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.queue = nil
	c.mu.Unlock()

	c.cancel()
	close(c.eventCh)
}

// step advances the timeline by dt seconds and reports whether playback is
// over. Player calls are made without holding the lock because they dispatch
// into the scheduler, which calls back into Enqueue.
func (c *Controller) step(ctx context.Context, dt float64) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return true
	}

	if c.current != nil {
		c.adTime += dt
		if c.adTime > c.config.AdDuration {
			c.adTime = c.config.AdDuration
		}
		linear, adTime := c.linear, c.adTime
		c.mu.Unlock()

		linear.Observe(adTime, c.sim.CurrentTime())
		if adTime >= c.config.AdDuration {
			c.finishBreak(ctx)
		}
		return false
	}

	if len(c.queue) > 0 {
		b := c.queue[0]
		c.queue = c.queue[1:]
		c.current = b
		c.adTime = 0
		c.linear = tracking.NewLinearTracker(ctx, c.beacons, c.config.AdDuration, c.config.AdTracking)
		c.state = StateAd
		c.mu.Unlock()

		c.startBreak(ctx, b)
		return false
	}

	if c.state == StateDone {
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	switch st := c.sim.State(); st {
	case player.StateEnded, player.StateError:
		c.mu.Lock()
		c.state = StateDone
		c.sendEventLocked(Event{Type: EventFinished, State: c.state, Playhead: c.sim.CurrentTime()})
		c.mu.Unlock()
		c.log.Info().Msgf("playback: finished: content=%s", st)
		return true
	case player.StatePlaying:
		c.sim.Tick(dt)
	default:
		if err := c.sim.Play(); err != nil {
			c.log.Warn().Err(err).Msgf("playback: failed to start content: state=%s", st)
			return false
		}
		c.mu.Lock()
		if c.state == StateIdle {
			c.state = StateContent
		}
		c.mu.Unlock()
	}
	return false
}

func (c *Controller) startBreak(ctx context.Context, b *adbreak.AdBreak) {
	if c.sim.State() == player.StatePlaying {
		_ = c.sim.Pause()
	}
	playhead := c.sim.CurrentTime()

	c.log.Info().Msgf("playback: break started: %s playhead=%s", b, adbreak.FormatClock(playhead))
	c.beacons.Go(ctx, b.TrackingURLs(adbreak.TrackingBreakStart), tracking.Macros{ContentPlayhead: playhead})
	c.sim.Emit(player.EventAdStart, player.AdEvent{Source: Source, Name: b.BreakID})

	c.mu.Lock()
	linear := c.linear
	c.sendEventLocked(Event{Type: EventBreakStarted, Break: b, State: c.state, Playhead: playhead})
	c.mu.Unlock()

	linear.Observe(0, playhead)
}

func (c *Controller) finishBreak(ctx context.Context) {
	c.mu.Lock()
	b := c.current
	c.current = nil
	c.linear = nil
	c.played = append(c.played, b)
	c.state = StateContent
	c.mu.Unlock()

	playhead := c.sim.CurrentTime()
	c.log.Info().Msgf("playback: break ended: %s", b)
	c.beacons.Go(ctx, b.TrackingURLs(adbreak.TrackingBreakEnd), tracking.Macros{ContentPlayhead: playhead})
	c.sim.Emit(player.EventAdEnd, player.AdEvent{Source: Source, Name: b.BreakID})

	c.mu.Lock()
	c.sendEventLocked(Event{Type: EventBreakEnded, Break: b, State: c.state, Playhead: playhead})
	c.mu.Unlock()
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	default:
		c.log.Warn().Msgf("playback: event dropped: type=%s", e.Type)
	}
}

// check reports whether a break can be played and the VMAP error code when
// it cannot.
func check(b *adbreak.AdBreak) (int, error) {
	if b.BreakType != "linear" {
		return ErrorCodeBreakType, errors.Wrapf(ErrUnsupportedBreak, "breakType=%s", b.BreakType)
	}
	if b.AdSource.AdTagURI == "" && b.AdSource.VASTAdData == "" {
		return ErrorCodeAdSource, errors.Wrapf(ErrNoAdSource, "%s", b)
	}
	return 0, nil
}
