package vpaid

import (
	"context"
	"sync"
	"time"

	"github.com/osa030/adbreak/internal/app/player"
)

// fakeUnit is a scriptable VPAID ad unit. By default it answers every call
// with the matching event, synchronously.
type fakeUnit struct {
	mu       sync.Mutex
	handlers map[string]func(args ...any)
	calls    []string

	version        string
	handshakeBlock chan struct{}
	subscribePanic string

	onInit  func(u *fakeUnit)
	onStart func(u *fakeUnit)
	onStop  func(u *fakeUnit)
	onSkip  func(u *fakeUnit)
}

func newFakeUnit() *fakeUnit {
	return &fakeUnit{
		handlers: make(map[string]func(args ...any)),
		version:  "2.0",
		onInit:   func(u *fakeUnit) { u.emit(EventAdLoaded) },
		onStart:  func(u *fakeUnit) { u.emit(EventAdStarted) },
		onStop:   func(u *fakeUnit) { u.emit(EventAdStopped) },
		onSkip:   func(u *fakeUnit) { u.emit(EventAdSkipped) },
	}
}

func (u *fakeUnit) record(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, name)
}

func (u *fakeUnit) called(name string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, c := range u.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (u *fakeUnit) emit(event string, args ...any) {
	u.mu.Lock()
	h := u.handlers[event]
	u.mu.Unlock()
	if h != nil {
		h(args...)
	}
}

func (u *fakeUnit) handlerCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.handlers)
}

func (u *fakeUnit) HandshakeVersion(string) string {
	u.record("HandshakeVersion")
	if u.handshakeBlock != nil {
		<-u.handshakeBlock
	}
	return u.version
}

func (u *fakeUnit) InitAd(int, int, string, int, CreativeData, EnvironmentVars) {
	u.record("InitAd")
	if u.onInit != nil {
		u.onInit(u)
	}
}

func (u *fakeUnit) StartAd() {
	u.record("StartAd")
	if u.onStart != nil {
		u.onStart(u)
	}
}

func (u *fakeUnit) StopAd() {
	u.record("StopAd")
	if u.onStop != nil {
		u.onStop(u)
	}
}

func (u *fakeUnit) SkipAd() {
	u.record("SkipAd")
	if u.onSkip != nil {
		u.onSkip(u)
	}
}

func (u *fakeUnit) PauseAd()                  { u.record("PauseAd") }
func (u *fakeUnit) ResumeAd()                 { u.record("ResumeAd") }
func (u *fakeUnit) ResizeAd(int, int, string) { u.record("ResizeAd") }
func (u *fakeUnit) SetAdVolume(float64)       { u.record("SetAdVolume") }
func (u *fakeUnit) GetAdDuration() float64    { return 30 }

func (u *fakeUnit) Subscribe(event string, fn func(args ...any)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.handlers[event] = fn
	if event == u.subscribePanic {
		panic("cannot subscribe " + event)
	}
}

func (u *fakeUnit) Unsubscribe(event string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.handlers, event)
}

type fakeResource struct {
	mu      sync.Mutex
	removed int
}

func (r *fakeResource) Remove() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed++
}

func (r *fakeResource) removedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removed
}

type fakeWindow struct {
	fakeResource
	globals map[string]any
}

func (w *fakeWindow) Lookup(name string) (any, bool) {
	v, ok := w.globals[name]
	return v, ok
}

type fakeDocument struct {
	slot     *fakeResource
	window   *fakeWindow
	delay    time.Duration
	err      error
	isolated []bool
	mu       sync.Mutex
}

func (d *fakeDocument) CreateSlot() (Slot, error) {
	return d.slot, nil
}

func (d *fakeDocument) LoadScript(ctx context.Context, _ string, isolated bool) (Window, error) {
	d.mu.Lock()
	d.isolated = append(d.isolated, isolated)
	d.mu.Unlock()
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.window, nil
}

// adEvents records ad:* events emitted on a player.
type adEvents struct {
	mu     sync.Mutex
	events []string
	errors []player.AdError
}

func watch(p player.Player) *adEvents {
	r := &adEvents{}
	for _, name := range []string{
		player.EventAdStart, player.EventAdEnd, player.EventAdSkip, player.EventAdError,
		player.EventAdQuartile, player.EventAdClick, player.EventAdPause, player.EventAdResume,
		player.EventAdImpression,
	} {
		name := name
		p.On(name, func(payload any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, name)
			if e, ok := payload.(player.AdError); ok {
				r.errors = append(r.errors, e)
			}
		})
	}
	return r
}

func (r *adEvents) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *adEvents) errs() []player.AdError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]player.AdError(nil), r.errors...)
}

func loadedFor(u *fakeUnit) (*Loaded, *fakeResource, *fakeWindow) {
	slot := &fakeResource{}
	window := &fakeWindow{}
	return &Loaded{Unit: u, Slot: slot, Window: window, URL: "https://ads.example/vpaid.js"}, slot, window
}

func fastConfig() Config {
	return Config{
		HandshakeTimeout: 50 * time.Millisecond,
		InitTimeout:      50 * time.Millisecond,
		StartTimeout:     50 * time.Millisecond,
		StopTimeout:      50 * time.Millisecond,
	}
}
