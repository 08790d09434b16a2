package omid

import (
	"sync"

	"github.com/osa030/adbreak/internal/app/player"
)

// fakeSDK records every call made into the OM SDK object graph.
type fakeSDK struct {
	mu        sync.Mutex
	supported bool
	calls     []string
	observer  func(SessionEvent)

	// startOnStart delivers sessionStart synchronously from Start.
	startOnStart bool
	panicOn      string
}

func newFakeSDK() *fakeSDK {
	return &fakeSDK{supported: true, startOnStart: true}
}

func (f *fakeSDK) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	panicOn := f.panicOn
	f.mu.Unlock()
	if name == panicOn {
		panic("sdk exploded in " + name)
	}
}

func (f *fakeSDK) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSDK) count(name string) int {
	n := 0
	for _, c := range f.list() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeSDK) deliver(ev SessionEvent) {
	f.mu.Lock()
	obs := f.observer
	f.mu.Unlock()
	if obs != nil {
		obs(ev)
	}
}

func (f *fakeSDK) IsSupported() bool {
	f.record("isSupported")
	return f.supported
}

func (f *fakeSDK) NewPartner(name, version string) Partner {
	f.record("partner")
	return fakePartner{name: name, version: version}
}

func (f *fakeSDK) NewContext(Partner, []VerificationResource, string) Context {
	f.record("context")
	return &fakeContext{sdk: f}
}

func (f *fakeSDK) NewAdSession(Context) AdSession {
	f.record("adSession")
	return &fakeAdSession{sdk: f}
}

func (f *fakeSDK) NewAdEvents(AdSession) AdEvents {
	f.record("adEvents")
	return &fakeAdEvents{sdk: f}
}

func (f *fakeSDK) NewMediaEvents(AdSession) MediaEvents {
	f.record("mediaEvents")
	return &fakeMediaEvents{sdk: f}
}

type fakePartner struct{ name, version string }

func (p fakePartner) Name() string    { return p.name }
func (p fakePartner) Version() string { return p.version }

type fakeContext struct{ sdk *fakeSDK }

func (c *fakeContext) SetVideoElement(player.MediaElement) { c.sdk.record("setVideoElement") }

type fakeAdSession struct{ sdk *fakeSDK }

func (s *fakeAdSession) SetCreativeType(string)   { s.sdk.record("setCreativeType") }
func (s *fakeAdSession) SetImpressionType(string) { s.sdk.record("setImpressionType") }

func (s *fakeAdSession) RegisterSessionObserver(fn func(SessionEvent)) {
	s.sdk.record("registerSessionObserver")
	s.sdk.mu.Lock()
	s.sdk.observer = fn
	s.sdk.mu.Unlock()
}

func (s *fakeAdSession) Start() {
	s.sdk.record("start")
	s.sdk.mu.Lock()
	auto := s.sdk.startOnStart
	s.sdk.mu.Unlock()
	if auto {
		s.sdk.deliver(SessionEvent{Type: SessionStart})
	}
}

func (s *fakeAdSession) Finish() {
	s.sdk.record("finish")
	s.sdk.deliver(SessionEvent{Type: SessionFinish})
}

func (s *fakeAdSession) Error(errorType, message string) { s.sdk.record("error:" + errorType) }

type fakeAdEvents struct{ sdk *fakeSDK }

func (e *fakeAdEvents) Loaded(VastProperties) { e.sdk.record("loaded") }
func (e *fakeAdEvents) ImpressionOccurred()   { e.sdk.record("impressionOccurred") }

type fakeMediaEvents struct{ sdk *fakeSDK }

func (m *fakeMediaEvents) Start(float64, float64) { m.sdk.record("media:start") }
func (m *fakeMediaEvents) FirstQuartile()         { m.sdk.record("firstQuartile") }
func (m *fakeMediaEvents) Midpoint()              { m.sdk.record("midpoint") }
func (m *fakeMediaEvents) ThirdQuartile()         { m.sdk.record("thirdQuartile") }
func (m *fakeMediaEvents) Complete()              { m.sdk.record("complete") }
func (m *fakeMediaEvents) Pause()                 { m.sdk.record("pause") }
func (m *fakeMediaEvents) Resume()                { m.sdk.record("resume") }
func (m *fakeMediaEvents) Skipped()               { m.sdk.record("skipped") }
func (m *fakeMediaEvents) BufferStart()           { m.sdk.record("bufferStart") }
func (m *fakeMediaEvents) BufferFinish()          { m.sdk.record("bufferFinish") }
func (m *fakeMediaEvents) VolumeChange(float64)   { m.sdk.record("volumeChange") }
