package vpaid

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/adbreak/internal/app/player"
)

// Source is the AdError/AdEvent source name of this component.
const Source = "vpaid"

// Default per-step timeouts.
const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultInitTimeout      = 8 * time.Second
	DefaultStartTimeout     = 5 * time.Second
	DefaultStopTimeout      = 5 * time.Second
	DefaultPlayerVersion    = "2.0"
)

// Config holds the wrapper timeouts. Zero values fall back to the defaults.
type Config struct {
	HandshakeTimeout time.Duration
	InitTimeout      time.Duration
	StartTimeout     time.Duration
	StopTimeout      time.Duration
	PlayerVersion    string
	Logger           *zerolog.Logger
}

// Creative is the linear-creative metadata handed to InitAd.
type Creative struct {
	Width                int
	Height               int
	ViewMode             string
	DesiredBitrate       int
	AdParameters         string
	VideoSlot            player.MediaElement
	VideoSlotCanAutoPlay bool
}

// waiter is a one-shot wait for any of events.
type waiter struct {
	events []string
	ch     chan error
}

func (wt *waiter) matches(name string) bool {
	for _, e := range wt.events {
		if e == name {
			return true
		}
	}
	return false
}

// Wrapper drives one VPAID ad unit. It owns the unit's slot and window and
// removes them when it terminates.
type Wrapper struct {
	mu sync.Mutex

	player   player.Player
	loaded   *Loaded
	creative Creative
	config   Config
	log      zerolog.Logger

	state     State
	waiter    *waiter
	subs      []string
	failed    bool
	destroyed bool
	done      chan struct{}
}

// New creates a wrapper around a loaded ad unit.
func New(p player.Player, loaded *Loaded, creative Creative, config Config) *Wrapper {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.InitTimeout <= 0 {
		config.InitTimeout = DefaultInitTimeout
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = DefaultStartTimeout
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultStopTimeout
	}
	if config.PlayerVersion == "" {
		config.PlayerVersion = DefaultPlayerVersion
	}
	if creative.ViewMode == "" {
		creative.ViewMode = ViewModeNormal
	}

	log := zlog.Logger
	if config.Logger != nil {
		log = *config.Logger
	}

	return &Wrapper{
		player:   p,
		loaded:   loaded,
		creative: creative,
		config:   config,
		log:      log.With().Str("component", Source).Str("url", loaded.URL).Logger(),
		state:    StateLoading,
		done:     make(chan struct{}),
	}
}

// State returns the current state.
func (w *Wrapper) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start runs handshake, init and start. It returns once AdStarted has been
// received or the ad has failed. Failures are also reported as a single
// ad:error on the player, after which every resource is released.
func (w *Wrapper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return ErrDestroyed
	}
	if w.state != StateLoading {
		state := w.state
		w.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "start from %s", state)
	}
	w.state = StateHandshaking
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		return w.abort(ctx, err)
	}

	version, err := w.handshake(ctx)
	if err != nil {
		return w.abort(ctx, err)
	}
	if !supportedVersion(version) {
		return w.abort(ctx, errors.Wrapf(ErrUnsupportedVersion, "ad unit answered %q", version))
	}
	w.log.Debug().Msgf("vpaid: handshake complete: version=%s", version)

	unit := w.loaded.Unit
	c := w.creative
	err = w.step(ctx, StateHandshaking, StateInitializing, w.config.InitTimeout, "InitAd", func() {
		unit.InitAd(c.Width, c.Height, c.ViewMode, c.DesiredBitrate,
			CreativeData{AdParameters: c.AdParameters},
			EnvironmentVars{Slot: w.loaded.Slot, VideoSlot: c.VideoSlot, VideoSlotCanAutoPlay: c.VideoSlotCanAutoPlay})
	}, EventAdLoaded)
	if err != nil {
		return w.abort(ctx, err)
	}
	if err := w.transition(StateInitializing, StateReadyToStart); err != nil {
		return w.abort(ctx, err)
	}

	err = w.step(ctx, StateReadyToStart, StateStarting, w.config.StartTimeout, "StartAd", unit.StartAd, EventAdStarted)
	if err != nil {
		return w.abort(ctx, err)
	}
	if err := w.transition(StateStarting, StatePlaying); err != nil {
		return w.abort(ctx, err)
	}

	w.log.Info().Msg("vpaid: ad started")
	w.player.Emit(player.EventAdStart, player.AdEvent{Source: Source, Name: EventAdStarted})
	return nil
}

// Stop asks the unit to stop and waits for AdStopped.
func (w *Wrapper) Stop(ctx context.Context) error {
	return w.terminate(ctx, "StopAd", func(u AdUnit) { u.StopAd() }, player.EventAdEnd, EventAdStopped)
}

// Skip asks the unit to skip and waits for AdSkipped. Units that answer with
// AdStopped are accepted as well.
func (w *Wrapper) Skip(ctx context.Context) error {
	return w.terminate(ctx, "SkipAd", func(u AdUnit) { u.SkipAd() }, player.EventAdSkip, EventAdSkipped, EventAdStopped)
}

// Pause pauses a playing ad.
func (w *Wrapper) Pause() error {
	return w.control("PauseAd", func(u AdUnit) { u.PauseAd() })
}

// Resume resumes a paused ad.
func (w *Wrapper) Resume() error {
	return w.control("ResumeAd", func(u AdUnit) { u.ResumeAd() })
}

// Resize forwards a resize to the unit.
func (w *Wrapper) Resize(width, height int, viewMode string) error {
	return w.control("ResizeAd", func(u AdUnit) { u.ResizeAd(width, height, viewMode) })
}

// SetVolume forwards a volume change to the unit.
func (w *Wrapper) SetVolume(volume float64) error {
	return w.control("SetAdVolume", func(u AdUnit) { u.SetAdVolume(volume) })
}

// Destroy releases the slot, window and subscriptions. It is safe from any
// state; a playing unit gets a best-effort StopAd first.
func (w *Wrapper) Destroy() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	wasPlaying := w.state == StatePlaying
	if !w.state.Terminal() {
		w.state = StateStopped
	}
	w.waiter = nil
	subs := w.subs
	w.subs = nil
	close(w.done)
	w.mu.Unlock()

	unit := w.loaded.Unit
	if wasPlaying {
		if err := w.invoke("StopAd", unit.StopAd); err != nil {
			w.log.Warn().Err(err).Msg("vpaid: best-effort StopAd failed")
		}
	}
	for _, event := range subs {
		event := event
		_ = w.invoke("Unsubscribe", func() { unit.Unsubscribe(event) })
	}
	w.loaded.Release()
	w.log.Debug().Msg("vpaid: destroyed")
}

// subscribe records each event before subscribing it, so a unit that fails
// part way through is still fully unsubscribed by Destroy.
func (w *Wrapper) subscribe() error {
	unit := w.loaded.Unit
	for _, event := range subscribedEvents {
		event := event
		w.mu.Lock()
		if w.destroyed {
			w.mu.Unlock()
			return ErrDestroyed
		}
		w.subs = append(w.subs, event)
		w.mu.Unlock()

		err := w.invoke("Subscribe", func() {
			unit.Subscribe(event, func(args ...any) { w.onUnitEvent(event, args) })
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type handshakeResult struct {
	version string
	err     error
}

func (w *Wrapper) handshake(ctx context.Context) (string, error) {
	unit := w.loaded.Unit
	resultCh := make(chan handshakeResult, 1)
	go func() {
		var res handshakeResult
		defer func() {
			if r := recover(); r != nil {
				res = handshakeResult{err: errors.Wrapf(ErrUnitPanic, "HandshakeVersion: %v", r)}
			}
			resultCh <- res
		}()
		res.version = unit.HandshakeVersion(w.config.PlayerVersion)
	}()

	timer := time.NewTimer(w.config.HandshakeTimeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		return res.version, res.err
	case <-timer.C:
		return "", errors.Wrapf(ErrTimeout, "handshake after %v", w.config.HandshakeTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-w.done:
		return "", ErrDestroyed
	}
}

// step moves from -> to, calls into the unit and waits for one of events.
func (w *Wrapper) step(ctx context.Context, from, to State, timeout time.Duration, method string, call func(), events ...string) error {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return ErrDestroyed
	}
	if w.state != from {
		state := w.state
		w.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "%s from %s", method, state)
	}
	w.state = to
	// Armed before the call: units may emit synchronously from inside it.
	wt := &waiter{events: events, ch: make(chan error, 1)}
	w.waiter = wt
	w.mu.Unlock()

	if err := w.invoke(method, call); err != nil {
		w.clearWaiter(wt)
		return err
	}
	return w.await(ctx, wt, timeout)
}

func (w *Wrapper) await(ctx context.Context, wt *waiter, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	defer w.clearWaiter(wt)

	select {
	case err := <-wt.ch:
		return err
	case <-timer.C:
		return errors.Wrapf(ErrTimeout, "waiting for %s after %v", strings.Join(wt.events, "/"), timeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrDestroyed
	}
}

func (w *Wrapper) clearWaiter(wt *waiter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.waiter == wt {
		w.waiter = nil
	}
}

func (w *Wrapper) transition(from, to State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return ErrDestroyed
	}
	if w.state != from {
		return errors.Wrapf(ErrInvalidState, "expected %s, in %s", from, w.state)
	}
	w.state = to
	return nil
}

func (w *Wrapper) terminate(ctx context.Context, method string, call func(AdUnit), emit string, events ...string) error {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return ErrDestroyed
	}
	w.mu.Unlock()

	unit := w.loaded.Unit
	if err := w.step(ctx, StatePlaying, StateStopping, w.config.StopTimeout, method, func() { call(unit) }, events...); err != nil {
		if errors.Is(err, ErrInvalidState) {
			return err
		}
		return w.abort(ctx, err)
	}
	if err := w.transition(StateStopping, StateStopped); err != nil {
		return err
	}

	w.player.Emit(emit, player.AdEvent{Source: Source, Name: events[0]})
	w.Destroy()
	return nil
}

func (w *Wrapper) control(method string, call func(AdUnit)) error {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return ErrDestroyed
	}
	if w.state != StatePlaying {
		state := w.state
		w.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "%s in %s", method, state)
	}
	w.mu.Unlock()

	unit := w.loaded.Unit
	if err := w.invoke(method, func() { call(unit) }); err != nil {
		w.fail(err)
		return err
	}
	return nil
}

// onUnitEvent handles every event the unit emits.
func (w *Wrapper) onUnitEvent(name string, args []any) {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	state := w.state
	if wt := w.waiter; wt != nil {
		var result error
		matched := true
		switch {
		case wt.matches(name):
		case name == EventAdError:
			result = errors.Wrapf(ErrAdError, "%s", describe(args))
		case name == EventAdStopped || name == EventAdSkipped:
			result = errors.Wrapf(ErrUnexpectedStop, "%s while %s", name, state)
		default:
			matched = false
		}
		if matched {
			w.waiter = nil
			wt.ch <- result
			w.mu.Unlock()
			return
		}
	}
	w.mu.Unlock()

	switch name {
	case EventAdError:
		w.fail(errors.Wrapf(ErrAdError, "%s", describe(args)))
	case EventAdStopped:
		if state == StatePlaying {
			w.finish(player.EventAdEnd, name)
		}
	case EventAdSkipped:
		if state == StatePlaying {
			w.finish(player.EventAdSkip, name)
		}
	case EventAdUserClose:
		if state == StatePlaying {
			w.finish(player.EventAdSkip, name)
		}
	case EventAdClickThru:
		w.player.Emit(player.EventAdClick, player.AdEvent{Source: Source, Name: name, Data: clickThru(args)})
	case EventAdImpression:
		w.player.Emit(player.EventAdImpression, player.AdEvent{Source: Source, Name: name})
	case EventAdVideoStart, EventAdVideoFirstQuartile, EventAdVideoMidpoint, EventAdVideoThirdQuartile, EventAdVideoComplete:
		w.player.Emit(player.EventAdQuartile, player.AdEvent{Source: Source, Name: name})
	case EventAdPaused:
		w.player.Emit(player.EventAdPause, player.AdEvent{Source: Source, Name: name})
	case EventAdPlaying:
		w.player.Emit(player.EventAdResume, player.AdEvent{Source: Source, Name: name})
	case EventAdLog:
		w.log.Debug().Msgf("vpaid: AdLog: %s", describe(args))
	default:
		w.log.Debug().Msgf("vpaid: event: %s", name)
	}
}

// finish handles a unit-initiated end of a playing ad.
func (w *Wrapper) finish(emit, name string) {
	w.mu.Lock()
	if w.destroyed || w.state != StatePlaying {
		w.mu.Unlock()
		return
	}
	w.state = StateStopped
	w.mu.Unlock()

	w.log.Info().Msgf("vpaid: ad finished: %s", name)
	w.player.Emit(emit, player.AdEvent{Source: Source, Name: name})
	w.Destroy()
}

// abort converts a Start/Stop failure into the reporting path.
func (w *Wrapper) abort(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrDestroyed):
		return err
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		w.Destroy()
		return err
	default:
		w.fail(err)
		return err
	}
}

// fail emits a single ad:error and tears down.
func (w *Wrapper) fail(err error) {
	w.mu.Lock()
	if w.destroyed || w.failed {
		w.mu.Unlock()
		return
	}
	w.failed = true
	from := w.state
	w.state = StateError
	w.mu.Unlock()

	w.log.Error().Err(err).Msgf("vpaid: ad failed in %s", from)
	w.player.Emit(player.EventAdError, player.AdError{
		Source:  Source,
		Code:    ErrorCodeVPAID,
		Message: err.Error(),
		Err:     err,
	})
	w.Destroy()
}

// invoke calls into the unit, converting a panic into an error.
func (w *Wrapper) invoke(method string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrUnitPanic, "%s: %v", method, r)
		}
	}()
	fn()
	return nil
}

func supportedVersion(v string) bool {
	major, _, _ := strings.Cut(strings.TrimSpace(v), ".")
	n, err := strconv.Atoi(major)
	return err == nil && n >= 2
}

func describe(args []any) string {
	if len(args) == 0 {
		return "no details"
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, " ")
}

// ClickThru is the AdClickThru payload.
type ClickThru struct {
	URL           string
	ID            string
	PlayerHandles bool
}

func clickThru(args []any) ClickThru {
	var c ClickThru
	if len(args) > 0 {
		c.URL, _ = args[0].(string)
	}
	if len(args) > 1 {
		c.ID, _ = args[1].(string)
	}
	if len(args) > 2 {
		c.PlayerHandles, _ = args[2].(bool)
	}
	return c
}
