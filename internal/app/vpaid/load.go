package vpaid

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Errors
var (
	ErrUnsupported        = errors.New("vpaid: getVPAIDAd not available")
	ErrUnsupportedVersion = errors.New("vpaid: unsupported VPAID version")
	ErrTimeout            = errors.New("vpaid: timeout")
	ErrDestroyed          = errors.New("vpaid: wrapper destroyed")
	ErrInvalidState       = errors.New("vpaid: invalid state")
	ErrAdError            = errors.New("vpaid: ad unit reported an error")
	ErrUnexpectedStop     = errors.New("vpaid: ad unit stopped unexpectedly")
	ErrUnitPanic          = errors.New("vpaid: ad unit panicked")
)

// DefaultLoadTimeout bounds script loading.
const DefaultLoadTimeout = 10 * time.Second

// Slot is the DOM element the ad renders into.
type Slot interface {
	Remove()
}

// Window is the global scope a VPAID script was evaluated in: a friendly
// iframe or the host page.
type Window interface {
	Lookup(name string) (any, bool)
	Remove()
}

// Document abstracts the host page.
type Document interface {
	CreateSlot() (Slot, error)
	// LoadScript evaluates the script at url. When isolated is true the
	// script runs inside a same-origin friendly iframe.
	LoadScript(ctx context.Context, url string, isolated bool) (Window, error)
}

// LoadOptions configures Load.
type LoadOptions struct {
	// Direct loads the script into the host page instead of a friendly iframe.
	Direct  bool
	Timeout time.Duration
}

// Loaded holds an ad unit and the resources created to obtain it.
type Loaded struct {
	Unit   AdUnit
	Slot   Slot
	Window Window
	URL    string
}

// Release removes the window and slot.
func (l *Loaded) Release() {
	if l == nil {
		return
	}
	if l.Window != nil {
		safeRemove(l.Window.Remove)
	}
	if l.Slot != nil {
		safeRemove(l.Slot.Remove)
	}
}

type loadResult struct {
	window Window
	err    error
}

// Load creates a slot, loads the VPAID script and resolves its ad unit.
// On any failure every resource created so far is removed.
func Load(ctx context.Context, doc Document, url string, opts LoadOptions) (*Loaded, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}

	slot, err := doc.CreateSlot()
	if err != nil {
		return nil, errors.Wrap(err, "vpaid: failed to create slot")
	}

	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan loadResult, 1)
	go func() {
		var res loadResult
		defer func() {
			if r := recover(); r != nil {
				res = loadResult{err: errors.Wrapf(ErrUnitPanic, "load script: %v", r)}
			}
			resultCh <- res
		}()
		w, err := doc.LoadScript(loadCtx, url, !opts.Direct)
		res = loadResult{window: w, err: err}
	}()

	var res loadResult
	select {
	case res = <-resultCh:
	case <-loadCtx.Done():
		safeRemove(slot.Remove)
		// A script that finishes after the deadline is discarded.
		go func() {
			if late := <-resultCh; late.window != nil {
				safeRemove(late.window.Remove)
			}
		}()
		if errors.Is(loadCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, errors.Wrapf(ErrTimeout, "load %s after %v", url, timeout)
		}
		return nil, ctx.Err()
	}

	if res.err != nil {
		safeRemove(slot.Remove)
		return nil, errors.Wrapf(res.err, "vpaid: failed to load %s", url)
	}

	unit, err := resolveAdUnit(res.window)
	if err != nil {
		safeRemove(res.window.Remove)
		safeRemove(slot.Remove)
		return nil, err
	}

	zlog.Debug().Msgf("vpaid: ad unit loaded: url=%s isolated=%t", url, !opts.Direct)
	return &Loaded{Unit: unit, Slot: slot, Window: res.window, URL: url}, nil
}

// resolveAdUnit turns the untyped getVPAIDAd global into a typed AdUnit.
func resolveAdUnit(w Window) (unit AdUnit, err error) {
	if w == nil {
		return nil, ErrUnsupported
	}
	defer func() {
		if r := recover(); r != nil {
			unit, err = nil, errors.Wrapf(ErrUnsupported, "getVPAIDAd panicked: %v", r)
		}
	}()

	v, ok := w.Lookup("getVPAIDAd")
	if !ok {
		return nil, ErrUnsupported
	}

	var candidate any
	switch f := v.(type) {
	case func() AdUnit:
		candidate = f()
	case func() any:
		candidate = f()
	default:
		return nil, errors.Wrapf(ErrUnsupported, "getVPAIDAd has type %T", v)
	}

	unit, ok = candidate.(AdUnit)
	if !ok || unit == nil {
		return nil, errors.Wrapf(ErrUnsupported, "getVPAIDAd returned %T", candidate)
	}
	return unit, nil
}

func safeRemove(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Warn().Msgf("vpaid: resource removal panicked: %v", r)
		}
	}()
	fn()
}
