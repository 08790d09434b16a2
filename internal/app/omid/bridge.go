package omid

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/adbreak/internal/app/player"
	"github.com/osa030/adbreak/internal/domain/quartile"
)

// ErrAlreadyConnected is returned by a second Connect.
var ErrAlreadyConnected = errors.New("omid: bridge already connected")

// BridgeConfig describes the ad being measured.
type BridgeConfig struct {
	// Duration of the ad in seconds; zero uses the media element duration.
	Duration   float64
	Skippable  bool
	SkipOffset float64
	AutoPlay   bool
	Position   string
	Logger     *zerolog.Logger
}

type subscription struct {
	media bool
	event string
	id    player.ListenerID
}

// Bridge forwards player and media events to an OMID session. Exactly one
// of complete, skipped or error is reported, and the session is finished
// exactly once.
type Bridge struct {
	mu sync.Mutex

	player  player.Player
	session *Session
	config  BridgeConfig
	log     zerolog.Logger

	tracker   *quartile.Tracker
	subs      []subscription
	connected bool
	active    bool
	paused    bool
	buffering bool
	destroyed bool
}

// NewBridge creates a bridge. Nothing is reported until Connect.
func NewBridge(p player.Player, session *Session, config BridgeConfig) *Bridge {
	if config.Position == "" {
		config.Position = PositionPreroll
	}
	log := zlog.Logger
	if config.Logger != nil {
		log = *config.Logger
	}
	return &Bridge{
		player:  p,
		session: session,
		config:  config,
		log:     log.With().Str("component", Source).Str("session", session.ID()).Logger(),
	}
}

// Connect subscribes to the player and reports loaded, impression and start.
// The session must have started.
func (b *Bridge) Connect() error {
	if !b.session.Started() {
		return ErrNotStarted
	}

	el := b.player.El()
	duration := b.config.Duration
	if duration <= 0 {
		duration = el.Duration()
	}

	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return ErrFinished
	}
	if b.connected {
		b.mu.Unlock()
		return ErrAlreadyConnected
	}
	b.connected = true
	b.active = true
	b.tracker = quartile.NewTracker(duration, b.onQuartile)
	b.session.setErrorHandler(b.fail)

	b.subs = append(b.subs,
		subscription{event: player.EventAdEnd, id: b.player.On(player.EventAdEnd, b.onEnd)},
		subscription{event: player.EventAdSkip, id: b.player.On(player.EventAdSkip, b.onSkip)},
		subscription{event: player.EventAdError, id: b.player.On(player.EventAdError, b.onError)},
		subscription{media: true, event: player.MediaTimeUpdate, id: el.AddEventListener(player.MediaTimeUpdate, b.onTimeUpdate)},
		subscription{media: true, event: player.MediaPause, id: el.AddEventListener(player.MediaPause, b.onPause)},
		subscription{media: true, event: player.MediaPlay, id: el.AddEventListener(player.MediaPlay, b.onPlay)},
		subscription{media: true, event: player.MediaVolumeChange, id: el.AddEventListener(player.MediaVolumeChange, b.onVolumeChange)},
		subscription{media: true, event: player.MediaWaiting, id: el.AddEventListener(player.MediaWaiting, b.onWaiting)},
		subscription{media: true, event: player.MediaPlaying, id: el.AddEventListener(player.MediaPlaying, b.onPlaying)},
	)
	b.mu.Unlock()

	props := VastProperties{
		Skippable:  b.config.Skippable,
		SkipOffset: b.config.SkipOffset,
		AutoPlay:   b.config.AutoPlay,
		Position:   b.config.Position,
	}
	volume := playerVolume(el)
	err := b.session.adCall("connect", func(ad AdEvents, media MediaEvents) {
		ad.Loaded(props)
		ad.ImpressionOccurred()
		media.Start(duration, volume)
	})
	if err != nil {
		b.fail(errors.Wrap(err, "report start"))
		return nil
	}
	b.log.Debug().Msgf("omid: bridge connected: duration=%.3f", duration)
	return nil
}

// Destroy removes every listener and finishes the session.
func (b *Bridge) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	b.active = false
	b.mu.Unlock()

	b.session.setErrorHandler(nil)
	b.release()
	b.session.Finish()
}

// fail surfaces an SDK failure as a single ad:error on the player and tears
// down. Calls after the first terminal event are ignored.
func (b *Bridge) fail(err error) {
	if !b.deactivate() {
		return
	}
	b.log.Warn().Err(err).Msg("omid: measurement failed")
	b.emitError(err)
	b.teardown()
}

func (b *Bridge) emitError(err error) {
	b.player.Emit(player.EventAdError, player.AdError{
		Source:  Source,
		Code:    ErrorCodeUndefined,
		Message: err.Error(),
		Err:     err,
	})
}

// teardown removes every listener and finishes the session.
func (b *Bridge) teardown() {
	b.session.setErrorHandler(nil)
	b.release()
	b.session.Finish()
}

// deactivate closes the active latch and reports whether this call did it.
func (b *Bridge) deactivate() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return false
	}
	b.active = false
	return true
}

func (b *Bridge) isActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *Bridge) release() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	el := b.player.El()
	for _, s := range subs {
		if s.media {
			el.RemoveEventListener(s.event, s.id)
		} else {
			b.player.Off(s.event, s.id)
		}
	}
}

// terminate reports the final event, then tears down.
func (b *Bridge) terminate(name string, report func(media MediaEvents)) {
	if !b.deactivate() {
		return
	}
	if err := b.session.adCall(name, func(_ AdEvents, media MediaEvents) { report(media) }); err != nil && !errors.Is(err, ErrFinished) {
		b.log.Warn().Err(err).Msgf("omid: failed to report %s", name)
		b.emitError(errors.Wrapf(err, "report %s", name))
	}
	b.log.Debug().Msgf("omid: ad terminated: %s", name)
	b.teardown()
}

func (b *Bridge) onEnd(any) {
	b.terminate("complete", func(media MediaEvents) { media.Complete() })
}

func (b *Bridge) onSkip(any) {
	b.terminate("skipped", func(media MediaEvents) { media.Skipped() })
}

func (b *Bridge) onError(payload any) {
	if !b.deactivate() {
		return
	}
	msg := "ad error"
	if e, ok := payload.(player.AdError); ok {
		msg = e.Error()
	}
	b.session.Error(ErrorTypeVideo, msg)
	b.log.Debug().Msgf("omid: ad terminated: error: %s", msg)
	b.teardown()
}

func (b *Bridge) onTimeUpdate(any) {
	b.mu.Lock()
	tracker := b.tracker
	active := b.active
	b.mu.Unlock()
	if !active || tracker == nil {
		return
	}
	tracker.Observe(b.player.El().CurrentTime())
}

// onQuartile reports progress quartiles. Start and complete have dedicated
// paths.
func (b *Bridge) onQuartile(e quartile.Event) {
	if !b.isActive() {
		return
	}
	var report func(media MediaEvents)
	switch e {
	case quartile.FirstQuartile:
		report = func(media MediaEvents) { media.FirstQuartile() }
	case quartile.Midpoint:
		report = func(media MediaEvents) { media.Midpoint() }
	case quartile.ThirdQuartile:
		report = func(media MediaEvents) { media.ThirdQuartile() }
	default:
		return
	}
	b.media(e.String(), report)
}

func (b *Bridge) onPause(any) {
	b.mu.Lock()
	if !b.active || b.paused {
		b.mu.Unlock()
		return
	}
	b.paused = true
	b.mu.Unlock()
	b.media("pause", func(media MediaEvents) { media.Pause() })
}

func (b *Bridge) onPlay(any) {
	b.mu.Lock()
	if !b.active || !b.paused {
		b.mu.Unlock()
		return
	}
	b.paused = false
	b.mu.Unlock()
	b.media("resume", func(media MediaEvents) { media.Resume() })
}

func (b *Bridge) onVolumeChange(any) {
	if !b.isActive() {
		return
	}
	volume := playerVolume(b.player.El())
	b.media("volumeChange", func(media MediaEvents) { media.VolumeChange(volume) })
}

func (b *Bridge) onWaiting(any) {
	b.mu.Lock()
	if !b.active || b.buffering {
		b.mu.Unlock()
		return
	}
	b.buffering = true
	b.mu.Unlock()
	b.media("bufferStart", func(media MediaEvents) { media.BufferStart() })
}

func (b *Bridge) onPlaying(any) {
	b.mu.Lock()
	if !b.active || !b.buffering {
		b.mu.Unlock()
		return
	}
	b.buffering = false
	b.mu.Unlock()
	b.media("bufferFinish", func(media MediaEvents) { media.BufferFinish() })
}

// media reports a progress or playback event. A failing SDK call ends the ad.
func (b *Bridge) media(name string, report func(media MediaEvents)) {
	err := b.session.adCall(name, func(_ AdEvents, media MediaEvents) { report(media) })
	switch {
	case err == nil:
	case errors.Is(err, ErrFinished):
		b.log.Debug().Msgf("omid: %s after finish ignored", name)
	default:
		b.fail(errors.Wrapf(err, "report %s", name))
	}
}

func playerVolume(el player.MediaElement) float64 {
	if el.Muted() {
		return 0
	}
	return el.Volume()
}
