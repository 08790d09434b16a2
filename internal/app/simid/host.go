package simid

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/adbreak/internal/app/player"
	"github.com/osa030/adbreak/internal/domain/adbreak"
)

// Errors
var (
	ErrSessionClosed = errors.New("simid: session closed")
	ErrTimeout       = errors.New("simid: timeout")
	ErrRejected      = errors.New("simid: request rejected")
	ErrInvalidState  = errors.New("simid: invalid state")
	ErrCreativeFatal = errors.New("simid: creative reported a fatal error")
)

// Source is the AdError/AdEvent source name of this component.
const Source = "simid"

// Protocol version announced to the creative.
const Version = "1.2"

// Default timeouts.
const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
)

// Reject codes sent to the creative.
const (
	RejectPolicyViolation = 1
	RejectUnsupported     = 2
	RejectFailed          = 3
)

// ErrorCodeUndefined is the VAST error code reported for host-side failures.
const ErrorCodeUndefined = 900

// Frame is the sandboxed iframe hosting the creative.
type Frame interface {
	Show()
	Resize(width, height int)
	SetFullscreen(on bool)
	Remove()
}

// AdMeta describes the ad handed to the creative on init.
type AdMeta struct {
	AdID            string
	CreativeID      string
	AdParameters    string
	ClickThroughURL string
	Duration        float64
	SkipOffset      float64 // Seconds; 0 means not skippable
	Width           int
	Height          int
}

// Config configures a Host. Zero timeouts fall back to the defaults.
type Config struct {
	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration
	Policy           Policy
	// Beacon receives tracking URLs reported by the creative.
	Beacon func(urls []string)
	Logger *zerolog.Logger
}

// Dimensions is a SIMID rectangle.
type Dimensions struct {
	X      int `json:"x" mapstructure:"x"`
	Y      int `json:"y" mapstructure:"y"`
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

// ClickThru is the ad:click payload data for SIMID clicks.
type ClickThru struct {
	URL           string `mapstructure:"url"`
	X             int    `mapstructure:"x"`
	Y             int    `mapstructure:"y"`
	PlayerHandles bool   `mapstructure:"playerHandles"`
}

type replyArgs struct {
	MessageID int `mapstructure:"messageId"`
	Value     any `mapstructure:"value"`
}

type rejectValue struct {
	ErrorCode int    `mapstructure:"errorCode"`
	Message   string `mapstructure:"message"`
}

type reply struct {
	value any
	err   error
}

type mediaListener struct {
	event string
	id    player.ListenerID
}

// Host runs one SIMID creative session.
type Host struct {
	mu sync.Mutex

	player player.Player
	port   Port
	frame  Frame
	config Config
	meta   AdMeta
	log    zerolog.Logger

	sessionID  string
	nextID     int
	pending    map[int]chan reply
	listeners  []mediaListener
	state      State
	fullscreen bool
	failed     bool
	destroyed  bool
}

// NewHost creates a host for a creative reachable through port.
func NewHost(p player.Player, port Port, frame Frame, config Config, meta AdMeta) *Host {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}

	log := zlog.Logger
	if config.Logger != nil {
		log = *config.Logger
	}
	sessionID := CreateSessionID()

	return &Host{
		player:    p,
		port:      port,
		frame:     frame,
		config:    config,
		meta:      meta,
		log:       log.With().Str("component", Source).Str("session", sessionID).Logger(),
		sessionID: sessionID,
		pending:   make(map[int]chan reply),
		state:     StateIdle,
	}
}

// SessionID returns the id stamped on every message of this session.
func (h *Host) SessionID() string {
	return h.sessionID
}

// State returns the current state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Start establishes the session, initializes the creative and starts it.
// The frame is shown only after the creative has accepted startCreative.
// Failures are reported as a single ad:error and the session is torn down.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrSessionClosed
	}
	if h.state != StateIdle {
		state := h.state
		h.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "start from %s", state)
	}
	h.state = StateHandshaking
	h.mu.Unlock()

	h.port.OnMessage(h.onMessage)

	if _, err := h.request(ctx, TypeCreateSession, nil, h.config.HandshakeTimeout); err != nil {
		return h.abort(ctx, err)
	}
	if err := h.transition(StateHandshaking, StateInitializing); err != nil {
		return h.abort(ctx, err)
	}
	h.log.Debug().Msg("simid: session established")

	if _, err := h.request(ctx, PlayerInit, h.initArgs(), h.config.RequestTimeout); err != nil {
		return h.abort(ctx, err)
	}
	if err := h.transition(StateInitializing, StateStarting); err != nil {
		return h.abort(ctx, err)
	}

	if _, err := h.request(ctx, PlayerStartCreative, nil, h.config.RequestTimeout); err != nil {
		return h.abort(ctx, err)
	}
	if err := h.activate(); err != nil {
		return h.abort(ctx, err)
	}

	h.frame.Show()
	h.log.Info().Msg("simid: creative started")
	h.player.Emit(player.EventAdStart, player.AdEvent{Source: Source, Name: PlayerStartCreative})
	return nil
}

// Skip tells the creative the player skipped the ad and ends the session.
func (h *Host) Skip() {
	h.end(PlayerAdSkipped, player.EventAdSkip, "player skip")
}

// Stop tells the creative the ad was stopped and ends the session.
func (h *Host) Stop() {
	h.end(PlayerAdStopped, player.EventAdEnd, "player stop")
}

// Destroy closes the port and removes the frame. Pending requests fail with
// ErrSessionClosed. It is safe at any point, including mid-handshake.
func (h *Host) Destroy() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.destroyed = true
	if !h.state.Terminal() {
		h.state = StateStopped
	}
	pending := h.pending
	h.pending = nil
	listeners := h.listeners
	h.listeners = nil
	h.mu.Unlock()

	for _, ch := range pending {
		ch <- reply{err: ErrSessionClosed}
	}
	el := h.player.El()
	for _, l := range listeners {
		el.RemoveEventListener(l.event, l.id)
	}
	if err := h.port.Close(); err != nil {
		h.log.Warn().Err(err).Msg("simid: failed to close port")
	}
	h.frame.Remove()
	h.log.Debug().Msg("simid: destroyed")
}

func (h *Host) transition(from, to State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return ErrSessionClosed
	}
	if h.state != from {
		return errors.Wrapf(ErrInvalidState, "expected %s, in %s", from, h.state)
	}
	h.state = to
	return nil
}

// activate enters the playing state and starts forwarding media events.
func (h *Host) activate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return ErrSessionClosed
	}
	if h.state != StateStarting {
		return errors.Wrapf(ErrInvalidState, "activate in %s", h.state)
	}
	h.state = StatePlaying

	el := h.player.El()
	add := func(event string, fn player.Handler) {
		h.listeners = append(h.listeners, mediaListener{event: event, id: el.AddEventListener(event, fn)})
	}
	add(player.MediaTimeUpdate, func(any) {
		h.notify(MediaTimeUpdate, map[string]any{"currentTime": el.CurrentTime()})
	})
	add(player.MediaPlay, func(any) { h.notify(MediaPlay, nil) })
	add(player.MediaPause, func(any) { h.notify(MediaPause, nil) })
	add(player.MediaVolumeChange, func(any) {
		h.notify(MediaVolumeChange, map[string]any{"volume": el.Volume(), "muted": el.Muted()})
	})
	add(player.MediaDurationChange, func(any) {
		h.notify(MediaDurationChange, map[string]any{"duration": el.Duration()})
	})
	add(player.MediaEnded, func(any) {
		h.notify(MediaEnded, nil)
		h.end(PlayerAdStopped, player.EventAdEnd, "media ended")
	})
	return nil
}

// request sends a message and waits for the resolve or reject that carries
// its messageId.
func (h *Host) request(ctx context.Context, typ string, args map[string]any, timeout time.Duration) (any, error) {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return nil, ErrSessionClosed
	}
	h.nextID++
	id := h.nextID
	ch := make(chan reply, 1)
	h.pending[id] = ch
	h.mu.Unlock()

	if err := h.port.PostMessage(NewMessage(h.sessionID, id, typ, args)); err != nil {
		h.forget(id)
		return nil, errors.Wrapf(err, "simid: failed to send %s", typ)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil && !errors.Is(r.err, ErrSessionClosed) {
			return nil, errors.Wrapf(r.err, "%s", typ)
		}
		return r.value, r.err
	case <-timer.C:
		h.forget(id)
		return nil, errors.Wrapf(ErrTimeout, "%s after %v", typ, timeout)
	case <-ctx.Done():
		h.forget(id)
		return nil, ctx.Err()
	}
}

func (h *Host) forget(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, id)
}

// notify sends a message that expects no answer.
func (h *Host) notify(typ string, args map[string]any) {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.nextID++
	id := h.nextID
	h.mu.Unlock()

	if err := h.port.PostMessage(NewMessage(h.sessionID, id, typ, args)); err != nil {
		h.log.Debug().Err(err).Msgf("simid: failed to send %s", typ)
	}
}

func (h *Host) resolve(req *Message, value any) {
	h.notify(TypeResolve, map[string]any{"messageId": req.MessageID, "value": value})
}

func (h *Host) reject(req *Message, code int, message string) {
	h.notify(TypeReject, map[string]any{
		"messageId": req.MessageID,
		"value":     map[string]any{"errorCode": code, "message": message},
	})
}

// onMessage receives every message from the creative. Anything malformed or
// from another session is dropped.
func (h *Host) onMessage(raw any) {
	msg := ParseMessage(raw)
	if msg == nil {
		h.log.Debug().Msg("simid: dropping malformed message")
		return
	}
	if msg.SessionID != h.sessionID {
		h.log.Debug().Msgf("simid: dropping message for session %s", msg.SessionID)
		return
	}

	h.mu.Lock()
	destroyed := h.destroyed
	h.mu.Unlock()
	if destroyed {
		return
	}

	switch msg.Type {
	case TypeResolve, TypeReject:
		h.settle(msg)
	default:
		h.handleRequest(msg)
	}
}

func (h *Host) settle(msg *Message) {
	var args replyArgs
	if err := decode(msg.Args, &args); err != nil || args.MessageID == 0 {
		h.log.Debug().Msgf("simid: dropping %s without messageId", msg.Type)
		return
	}

	h.mu.Lock()
	ch, ok := h.pending[args.MessageID]
	delete(h.pending, args.MessageID)
	h.mu.Unlock()
	if !ok {
		h.log.Debug().Msgf("simid: no pending request for %s: messageId=%d", msg.Type, args.MessageID)
		return
	}

	if msg.Type == TypeResolve {
		ch <- reply{value: args.Value}
		return
	}
	var rv rejectValue
	_ = decode(args.Value, &rv)
	ch <- reply{err: errors.Wrapf(ErrRejected, "code=%d message=%q", rv.ErrorCode, rv.Message)}
}

func (h *Host) handleRequest(msg *Message) {
	if !h.config.Policy.Allows(msg.Type) {
		h.log.Warn().Msgf("simid: policy violation: %s", msg.Type)
		h.reject(msg, RejectPolicyViolation, "policy violation")
		return
	}

	el := h.player.El()
	switch msg.Type {
	case TypeCreateSession:
		h.resolve(msg, nil)

	case CreativeRequestPause:
		el.Pause()
		h.resolve(msg, nil)

	case CreativeRequestPlay:
		if err := el.Play(); err != nil {
			h.reject(msg, RejectFailed, err.Error())
			return
		}
		h.resolve(msg, nil)

	case CreativeRequestResize:
		var args struct {
			Creative Dimensions `mapstructure:"creativeDimensions"`
		}
		if err := decode(msg.Args, &args); err != nil {
			h.reject(msg, RejectFailed, "invalid dimensions")
			return
		}
		h.frame.Resize(args.Creative.Width, args.Creative.Height)
		h.resolve(msg, nil)

	case CreativeRequestFullscreen, CreativeRequestExitFullscreen:
		on := msg.Type == CreativeRequestFullscreen
		h.mu.Lock()
		h.fullscreen = on
		h.mu.Unlock()
		h.frame.SetFullscreen(on)
		h.resolve(msg, nil)

	case CreativeRequestNavigation:
		var args struct {
			URI string `mapstructure:"uri"`
		}
		if err := decode(msg.Args, &args); err != nil || args.URI == "" {
			h.reject(msg, RejectFailed, "missing uri")
			return
		}
		h.player.Emit(player.EventAdClick, player.AdEvent{
			Source: Source,
			Name:   msg.Type,
			Data:   ClickThru{URL: args.URI, PlayerHandles: true},
		})
		h.resolve(msg, nil)

	case CreativeClickThru:
		var click ClickThru
		if err := decode(msg.Args, &click); err != nil {
			h.reject(msg, RejectFailed, "invalid click")
			return
		}
		if click.PlayerHandles && h.config.Policy.Navigation != NavigationPlayerHandles {
			h.reject(msg, RejectPolicyViolation, "policy violation")
			return
		}
		if click.URL == "" {
			click.URL = h.meta.ClickThroughURL
		}
		h.player.Emit(player.EventAdClick, player.AdEvent{Source: Source, Name: msg.Type, Data: click})
		h.resolve(msg, nil)

	case CreativeRequestSkip:
		if state := h.State(); state != StatePlaying {
			h.reject(msg, RejectFailed, "not playing: "+state.String())
			return
		}
		h.resolve(msg, nil)
		h.end(PlayerAdSkipped, player.EventAdSkip, "creative skip")

	case CreativeRequestStop:
		if state := h.State(); state != StatePlaying {
			h.reject(msg, RejectFailed, "not playing: "+state.String())
			return
		}
		h.resolve(msg, nil)
		h.end(PlayerAdStopped, player.EventAdEnd, "creative stop")

	case CreativeReportTracking:
		var args struct {
			TrackingURLs []string `mapstructure:"trackingUrls"`
		}
		if err := decode(msg.Args, &args); err != nil {
			h.reject(msg, RejectFailed, "invalid trackingUrls")
			return
		}
		if h.config.Beacon != nil && len(args.TrackingURLs) > 0 {
			h.config.Beacon(args.TrackingURLs)
		}
		h.resolve(msg, nil)

	case CreativeLog:
		var args struct {
			Message string `mapstructure:"message"`
		}
		_ = decode(msg.Args, &args)
		h.log.Debug().Msgf("simid: creative log: %s", args.Message)

	case CreativeGetMediaState:
		h.mu.Lock()
		fullscreen := h.fullscreen
		h.mu.Unlock()
		h.resolve(msg, map[string]any{
			"currentSrc":  "",
			"currentTime": el.CurrentTime(),
			"duration":    el.Duration(),
			"ended":       h.player.State() == player.StateEnded,
			"muted":       el.Muted(),
			"paused":      el.Paused(),
			"volume":      el.Volume(),
			"fullscreen":  fullscreen,
		})

	case CreativeFatalError:
		var args struct {
			ErrorCode    int    `mapstructure:"errorCode"`
			ErrorMessage string `mapstructure:"errorMessage"`
		}
		_ = decode(msg.Args, &args)
		h.resolve(msg, nil)
		code := args.ErrorCode
		if code <= 0 {
			code = ErrorCodeUndefined
		}
		h.failWithCode(errors.Wrapf(ErrCreativeFatal, "code=%d %s", args.ErrorCode, args.ErrorMessage), code)

	default:
		h.log.Debug().Msgf("simid: unsupported message: %s", msg.Type)
		h.reject(msg, RejectUnsupported, "unsupported message")
	}
}

// end finishes a playing session, telling the creative why.
func (h *Host) end(playerMsg, emit, reason string) {
	h.mu.Lock()
	if h.destroyed || h.state != StatePlaying {
		h.mu.Unlock()
		return
	}
	h.state = StateStopped
	h.mu.Unlock()

	h.notify(playerMsg, nil)
	h.log.Info().Msgf("simid: ad finished: %s", reason)
	h.player.Emit(emit, player.AdEvent{Source: Source, Name: playerMsg})
	h.Destroy()
}

func (h *Host) abort(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrSessionClosed):
		return err
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		h.Destroy()
		return err
	default:
		h.failWithCode(err, ErrorCodeUndefined)
		return err
	}
}

// failWithCode emits a single ad:error and tears down.
func (h *Host) failWithCode(err error, code int) {
	h.mu.Lock()
	if h.destroyed || h.failed {
		h.mu.Unlock()
		return
	}
	h.failed = true
	from := h.state
	h.state = StateError
	h.mu.Unlock()

	if from != StateHandshaking {
		h.notify(PlayerFatalError, map[string]any{"errorCode": code, "errorMessage": err.Error()})
	}
	h.log.Error().Err(err).Msgf("simid: ad failed in %s", from)
	h.player.Emit(player.EventAdError, player.AdError{
		Source:  Source,
		Code:    code,
		Message: err.Error(),
		Err:     err,
	})
	h.Destroy()
}

func (h *Host) initArgs() map[string]any {
	el := h.player.El()
	p := h.config.Policy

	skippable := "notSkippable"
	env := map[string]any{
		"creativeDimensions":      Dimensions{Width: h.meta.Width, Height: h.meta.Height},
		"videoDimensions":         Dimensions{Width: h.meta.Width, Height: h.meta.Height},
		"fullscreen":              false,
		"fullscreenAllowed":       p.AllowResize,
		"variableDurationAllowed": false,
		"navigationSupport":       string(p.Navigation),
		"closeButtonSupport":      "adHandles",
		"muted":                   el.Muted(),
		"volume":                  el.Volume(),
		"version":                 Version,
	}
	if h.meta.SkipOffset > 0 {
		skippable = "playerHandles"
		env["skipoffset"] = adbreak.FormatClock(h.meta.SkipOffset)
	}
	env["skippableState"] = skippable

	return map[string]any{
		"environmentData": env,
		"creativeData": map[string]any{
			"adParameters": h.meta.AdParameters,
			"clickThruUrl": h.meta.ClickThroughURL,
			"adId":         h.meta.AdID,
			"creativeId":   h.meta.CreativeID,
			"duration":     h.meta.Duration,
		},
	}
}
