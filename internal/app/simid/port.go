package simid

import (
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrPortClosed is returned when posting to a closed port.
var ErrPortClosed = errors.New("simid: port closed")

// Port is one end of a message channel to the creative.
type Port interface {
	// PostMessage sends a JSON-serializable value to the other end.
	PostMessage(msg any) error
	// OnMessage sets the handler for incoming messages. Messages that
	// arrive before a handler is set are queued.
	OnMessage(fn func(msg any))
	Close() error
}

// LocalPort is an in-process Port. Messages are cloned through JSON and
// delivered in order on a dedicated goroutine, never inside PostMessage.
type LocalPort struct {
	mu      sync.Mutex
	peer    *LocalPort
	handler func(msg any)
	queue   [][]byte
	notify  chan struct{}

	shared *channelState
}

type channelState struct {
	once   sync.Once
	closed chan struct{}
}

// NewChannel returns the two connected ends of a new channel.
func NewChannel() (*LocalPort, *LocalPort) {
	shared := &channelState{closed: make(chan struct{})}
	a := &LocalPort{notify: make(chan struct{}, 1), shared: shared}
	b := &LocalPort{notify: make(chan struct{}, 1), shared: shared}
	a.peer, b.peer = b, a
	go a.run()
	go b.run()
	return a, b
}

// PostMessage implements Port.
func (p *LocalPort) PostMessage(msg any) error {
	select {
	case <-p.shared.closed:
		return ErrPortClosed
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "simid: message is not serializable")
	}
	p.peer.enqueue(data)
	return nil
}

// OnMessage implements Port.
func (p *LocalPort) OnMessage(fn func(msg any)) {
	p.mu.Lock()
	p.handler = fn
	p.mu.Unlock()
	p.wake()
}

// Close closes both ends. Messages posted before Close are still delivered
// to a handler that is already set.
func (p *LocalPort) Close() error {
	p.shared.once.Do(func() { close(p.shared.closed) })
	return nil
}

func (p *LocalPort) enqueue(data []byte) {
	p.mu.Lock()
	p.queue = append(p.queue, data)
	p.mu.Unlock()
	p.wake()
}

func (p *LocalPort) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *LocalPort) run() {
	for {
		select {
		case <-p.shared.closed:
			for p.deliverNext() {
			}
			return
		case <-p.notify:
			for p.deliverNext() {
			}
		}
	}
}

// deliverNext delivers one queued message and reports whether it did.
func (p *LocalPort) deliverNext() bool {
	p.mu.Lock()
	if p.handler == nil || len(p.queue) == 0 {
		p.mu.Unlock()
		return false
	}
	data := p.queue[0]
	p.queue = p.queue[1:]
	h := p.handler
	p.mu.Unlock()

	var msg any
	if err := json.Unmarshal(data, &msg); err != nil {
		zlog.Warn().Err(err).Msg("simid: dropping undecodable message")
		return true
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				zlog.Error().Msgf("simid: message handler panicked: %v", r)
			}
		}()
		h(msg)
	}()
	return true
}
