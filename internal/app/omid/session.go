package omid

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/adbreak/internal/app/player"
)

// Errors
var (
	ErrUnsupported = errors.New("omid: environment not supported")
	ErrSDK         = errors.New("omid: sdk call failed")
	ErrNotStarted  = errors.New("omid: session not started")
	ErrFinished    = errors.New("omid: session finished")
	ErrSession     = errors.New("omid: sdk reported session error")
)

// Source is the AdError/AdEvent source name of this component.
const Source = "omid"

// ErrorCodeUndefined is the VAST error code carried by every OMID ad:error.
const ErrorCodeUndefined = 900

// SessionConfig describes the measurement session to build.
type SessionConfig struct {
	PartnerName    string
	PartnerVersion string
	ContentURL     string
	Resources      []VerificationResource
	VideoElement   player.MediaElement
	CreativeType   string
	ImpressionType string
	Logger         *zerolog.Logger
}

// Session owns the SDK object graph of one ad.
type Session struct {
	mu sync.Mutex

	id          string
	adSession   AdSession
	adEvents    AdEvents
	mediaEvents MediaEvents
	log         zerolog.Logger

	started   bool
	finished  bool
	lastError string
	startCh   chan struct{}
	onError   func(error)
}

// NewSession checks support and builds the partner, context, ad session and
// event objects. An unsupported environment fails before anything is built.
func NewSession(sdk SDK, config SessionConfig) (*Session, error) {
	if sdk == nil {
		return nil, ErrUnsupported
	}
	var supported bool
	if err := invoke("IsSupported", func() { supported = sdk.IsSupported() }); err != nil {
		return nil, errors.Wrap(ErrUnsupported, err.Error())
	}
	if !supported {
		return nil, ErrUnsupported
	}

	if config.CreativeType == "" {
		config.CreativeType = CreativeTypeVideo
	}
	if config.ImpressionType == "" {
		config.ImpressionType = ImpressionTypeBeginToRender
	}
	log := zlog.Logger
	if config.Logger != nil {
		log = *config.Logger
	}

	s := &Session{
		id:      uuid.NewString(),
		startCh: make(chan struct{}),
	}
	s.log = log.With().Str("component", Source).Str("session", s.id).Logger()

	err := invoke("build", func() {
		partner := sdk.NewPartner(config.PartnerName, config.PartnerVersion)
		octx := sdk.NewContext(partner, config.Resources, config.ContentURL)
		if config.VideoElement != nil {
			octx.SetVideoElement(config.VideoElement)
		}
		s.adSession = sdk.NewAdSession(octx)
		s.adSession.SetCreativeType(config.CreativeType)
		s.adSession.SetImpressionType(config.ImpressionType)
		s.adEvents = sdk.NewAdEvents(s.adSession)
		s.mediaEvents = sdk.NewMediaEvents(s.adSession)
		s.adSession.RegisterSessionObserver(s.observe)
	})
	if err != nil {
		return nil, err
	}
	if s.adSession == nil || s.adEvents == nil || s.mediaEvents == nil {
		return nil, errors.Wrap(ErrSDK, "incomplete object graph")
	}

	s.log.Debug().Msgf("omid: session created: partner=%s resources=%d", config.PartnerName, len(config.Resources))
	return s, nil
}

// ID returns the local correlation id of the session.
func (s *Session) ID() string {
	return s.id
}

// Start asks the SDK to start the session. The start itself is reported
// asynchronously; see WaitForStart.
func (s *Session) Start() error {
	s.mu.Lock()
	finished := s.finished
	s.mu.Unlock()
	if finished {
		return ErrFinished
	}
	return invoke("Start", s.adSession.Start)
}

// WaitForStart reports whether the SDK has started the session within
// timeout. A false result means the ad must not be bridged; it is not an
// error.
func (s *Session) WaitForStart(ctx context.Context, timeout time.Duration) bool {
	if s.Started() {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.startCh:
		return true
	case <-timer.C:
		s.log.Warn().Msgf("omid: session did not start within %v", timeout)
		return false
	case <-ctx.Done():
		return false
	}
}

// Started reports whether the SDK has started the session.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Finish ends the session. Only the first call reaches the SDK.
func (s *Session) Finish() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.mu.Unlock()

	if err := invoke("Finish", s.adSession.Finish); err != nil {
		s.log.Warn().Err(err).Msg("omid: finish failed")
	}
	s.log.Debug().Msg("omid: session finished")
}

// Finished reports whether Finish has been called.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Error reports a playback error to the SDK.
func (s *Session) Error(errorType, message string) {
	if s.Finished() {
		return
	}
	if err := invoke("Error", func() { s.adSession.Error(errorType, message) }); err != nil {
		s.log.Warn().Err(err).Msg("omid: error report failed")
	}
}

// LastError returns the last error reported by the SDK observer.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// setErrorHandler registers the receiver of SDK-reported session errors.
func (s *Session) setErrorHandler(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// observe receives SDK session events, possibly from another goroutine. An
// error is handed to the error handler after the lock is released.
func (s *Session) observe(ev SessionEvent) {
	var (
		handler func(error)
		failure error
	)
	s.mu.Lock()
	switch ev.Type {
	case SessionStart:
		if !s.started {
			s.started = true
			close(s.startCh)
			s.log.Debug().Msg("omid: session started")
		}
	case SessionError:
		msg, _ := ev.Data["message"].(string)
		s.lastError = msg
		s.log.Warn().Msgf("omid: sdk reported error: %s", msg)
		if !s.finished {
			handler = s.onError
			failure = errors.Wrap(ErrSession, msg)
		}
	case SessionFinish:
		s.log.Debug().Msg("omid: sdk reported finish")
	}
	s.mu.Unlock()

	if handler != nil {
		handler(failure)
	}
}

// adCall runs a call against the ad/media event objects unless finished.
func (s *Session) adCall(name string, fn func(ad AdEvents, media MediaEvents)) error {
	s.mu.Lock()
	finished := s.finished
	s.mu.Unlock()
	if finished {
		return ErrFinished
	}
	return invoke(name, func() { fn(s.adEvents, s.mediaEvents) })
}

func invoke(name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrSDK, "%s panicked: %v", name, r)
		}
	}()
	fn()
	return nil
}
