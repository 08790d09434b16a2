package player

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Errors
var (
	ErrNotPlaying = errors.New("not playing")
	ErrNotPaused  = errors.New("not paused")
	ErrEnded      = errors.New("playback ended")
	ErrNoSource   = errors.New("no source loaded")
)

type pending struct {
	media   bool
	event   string
	payload any
}

// Sim is an in-memory content player. It advances only when Tick or Seek is
// called, which makes timing fully deterministic.
type Sim struct {
	*Emitter

	mu          sync.Mutex
	state       State
	currentTime float64
	duration    float64
	volume      float64
	muted       bool

	media *SimMedia
}

// NewSim creates a simulated player with content of the given duration.
func NewSim(duration float64) *Sim {
	s := &Sim{
		Emitter:  NewEmitter(),
		state:    StateIdle,
		duration: duration,
		volume:   1,
	}
	if duration > 0 {
		s.state = StateReady
	}
	s.media = &SimMedia{Emitter: NewEmitter(), sim: s}
	return s
}

// El returns the simulated media element.
func (s *Sim) El() MediaElement {
	return s.media
}

// Media returns the concrete simulated media element.
func (s *Sim) Media() *SimMedia {
	return s.media
}

// State returns the current state.
func (s *Sim) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentTime returns the playhead in seconds.
func (s *Sim) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTime
}

// Duration returns the content duration in seconds.
func (s *Sim) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Volume returns the volume in [0,1].
func (s *Sim) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Muted reports whether audio is muted.
func (s *Sim) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// SetDuration replaces the content duration.
func (s *Sim) SetDuration(d float64) {
	s.mu.Lock()
	s.duration = d
	var out []pending
	if s.state == StateIdle && d > 0 {
		out = s.transitionLocked(out, StateReady)
	}
	out = append(out, pending{media: true, event: MediaDurationChange, payload: d})
	s.mu.Unlock()

	s.flush(out)
}

// Play starts or resumes playback.
func (s *Sim) Play() error {
	s.mu.Lock()
	var out []pending
	switch s.state {
	case StatePlaying:
		s.mu.Unlock()
		return nil
	case StateIdle:
		s.mu.Unlock()
		return ErrNoSource
	case StateEnded:
		s.mu.Unlock()
		return ErrEnded
	}
	out = s.transitionLocked(out, StatePlaying)
	out = append(out, pending{media: true, event: MediaPlay})
	s.mu.Unlock()

	s.flush(out)
	return nil
}

// Pause pauses playback.
func (s *Sim) Pause() error {
	s.mu.Lock()
	if s.state != StatePlaying {
		s.mu.Unlock()
		return ErrNotPlaying
	}
	out := s.transitionLocked(nil, StatePaused)
	out = append(out, pending{media: true, event: MediaPause})
	s.mu.Unlock()

	s.flush(out)
	return nil
}

// Seek moves the playhead and emits a timeupdate.
func (s *Sim) Seek(t float64) {
	s.mu.Lock()
	if t < 0 {
		t = 0
	}
	if s.duration > 0 && t > s.duration {
		t = s.duration
	}
	s.currentTime = t
	out := s.timeUpdateLocked(nil)
	s.mu.Unlock()

	s.flush(out)
}

// Tick advances a playing player by dt seconds. Reaching the duration ends
// playback.
func (s *Sim) Tick(dt float64) {
	s.mu.Lock()
	if s.state != StatePlaying {
		s.mu.Unlock()
		return
	}
	s.currentTime += dt
	reachedEnd := s.duration > 0 && s.currentTime >= s.duration
	if reachedEnd {
		s.currentTime = s.duration
	}
	out := s.timeUpdateLocked(nil)
	if reachedEnd {
		out = s.endLocked(out)
	}
	s.mu.Unlock()

	s.flush(out)
}

// End forces the ended state.
func (s *Sim) End() {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	out := s.endLocked(nil)
	s.mu.Unlock()

	s.flush(out)
}

// SetVolume changes volume and mute state.
func (s *Sim) SetVolume(volume float64, muted bool) {
	s.mu.Lock()
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	s.volume = volume
	s.muted = muted
	out := []pending{{media: true, event: MediaVolumeChange, payload: volume}}
	s.mu.Unlock()

	s.flush(out)
}

// Fail moves the player to the error state.
func (s *Sim) Fail(code int, message string) {
	s.mu.Lock()
	out := s.transitionLocked(nil, StateError)
	out = append(out, pending{event: EventError, payload: Error{Code: code, Message: message}})
	s.mu.Unlock()

	s.flush(out)
}

func (s *Sim) transitionLocked(out []pending, to State) []pending {
	from := s.state
	if from == to {
		return out
	}
	s.state = to
	zlog.Debug().Msgf("player: state changed: from=%s to=%s", from, to)
	return append(out, pending{event: EventStateChange, payload: StateChange{From: from, To: to}})
}

func (s *Sim) timeUpdateLocked(out []pending) []pending {
	tu := TimeUpdate{CurrentTime: s.currentTime, Duration: s.duration}
	return append(out,
		pending{event: EventTimeUpdate, payload: tu},
		pending{media: true, event: MediaTimeUpdate, payload: tu},
	)
}

func (s *Sim) endLocked(out []pending) []pending {
	out = s.transitionLocked(out, StateEnded)
	return append(out,
		pending{media: true, event: MediaEnded},
		pending{event: EventEnded},
	)
}

// flush emits collected events after the lock is released.
func (s *Sim) flush(out []pending) {
	for _, p := range out {
		if p.media {
			s.media.Emit(p.event, p.payload)
		} else {
			s.Emit(p.event, p.payload)
		}
	}
}

// SimMedia is the media element owned by a Sim.
type SimMedia struct {
	*Emitter
	sim *Sim
}

// AddEventListener registers a DOM-style listener.
func (m *SimMedia) AddEventListener(event string, h Handler) ListenerID {
	return m.On(event, h)
}

// RemoveEventListener removes a DOM-style listener.
func (m *SimMedia) RemoveEventListener(event string, id ListenerID) {
	m.Off(event, id)
}

// Play starts the owning player.
func (m *SimMedia) Play() error { return m.sim.Play() }

// Pause pauses the owning player.
func (m *SimMedia) Pause() { _ = m.sim.Pause() }

// CurrentTime returns the playhead.
func (m *SimMedia) CurrentTime() float64 { return m.sim.CurrentTime() }

// Duration returns the media duration.
func (m *SimMedia) Duration() float64 { return m.sim.Duration() }

// Paused reports whether the media is not playing.
func (m *SimMedia) Paused() bool { return m.sim.State() != StatePlaying }

// Volume returns the volume.
func (m *SimMedia) Volume() float64 { return m.sim.Volume() }

// Muted reports mute state.
func (m *SimMedia) Muted() bool { return m.sim.Muted() }
