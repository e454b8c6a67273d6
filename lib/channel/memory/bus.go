package memory

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("channel")

// ErrClosed is returned by operations on a closed endpoint
var ErrClosed = errors.New("memory: endpoint closed")

// Bus is an in-process publish/subscribe bus. Independent stores in the same
// process join a bus through an Endpoint each.
//
// Thread-safety: All methods are safe for concurrent use.
type Bus struct {
	topics *xsync.MapOf[string, *topic]
}

// topic is a named channel on the bus
type topic struct {
	mu             sync.Mutex
	subscribers    map[uint64]subscription
	nextID         uint64
	retained       []byte
	retainedOrigin string
}

type subscription struct {
	origin string
	fn     func(payload []byte)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		topics: xsync.NewMapOf[string, *topic](),
	}
}

// Endpoint creates a new endpoint with a unique origin id.
func (b *Bus) Endpoint() *Endpoint {
	return &Endpoint{
		bus:     b,
		origin:  uuid.NewString(),
		cancels: make(map[uint64]func()),
	}
}

// Retained returns the last payload published on the channel name.
func (b *Bus) Retained(name string) ([]byte, bool) {
	t, ok := b.topics.Load(name)
	if !ok {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.retained == nil {
		return nil, false
	}
	return clone(t.retained), true
}

func (b *Bus) topic(name string) *topic {
	t, _ := b.topics.LoadOrCompute(name, func() *topic {
		return &topic{subscribers: make(map[uint64]subscription)}
	})
	return t
}

// --------------------------------------------------------------------------
// Endpoint
// --------------------------------------------------------------------------

// Endpoint is the connection of one participant to a Bus. Payloads published
// through an endpoint are delivered synchronously to the subscribers of every
// other endpoint, never to the subscribers of the publishing endpoint.
type Endpoint struct {
	bus    *Bus
	origin string

	mu      sync.Mutex
	closed  bool
	cancels map[uint64]func()
	nextID  uint64
}

// Origin returns the origin id of the endpoint.
func (e *Endpoint) Origin() string {
	return e.origin
}

// Publish delivers payload to the subscribers of the channel name of every
// other endpoint and retains it for late subscribers.
func (e *Endpoint) Publish(name string, payload []byte) error {
	if e.isClosed() {
		return ErrClosed
	}

	t := e.bus.topic(name)
	t.mu.Lock()
	t.retained = clone(payload)
	t.retainedOrigin = e.origin
	receivers := make([]func([]byte), 0, len(t.subscribers))
	for _, sub := range t.subscribers {
		if sub.origin != e.origin {
			receivers = append(receivers, sub.fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range receivers {
		fn(clone(payload))
	}
	Logger.Debugf("%s published %d bytes on %q to %d receivers", e.origin, len(payload), name, len(receivers))
	return nil
}

// Subscribe registers fn for payloads published on the channel name by other
// endpoints. If the retained payload of the channel was published by another
// endpoint, fn receives it before Subscribe returns.
func (e *Endpoint) Subscribe(name string, fn func(payload []byte)) (cancel func(), err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	e.nextID++
	localID := e.nextID
	e.mu.Unlock()

	t := e.bus.topic(name)
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subscribers[id] = subscription{origin: e.origin, fn: fn}
	var replay []byte
	if t.retained != nil && t.retainedOrigin != e.origin {
		replay = clone(t.retained)
	}
	t.mu.Unlock()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subscribers, id)
			t.mu.Unlock()

			e.mu.Lock()
			delete(e.cancels, localID)
			e.mu.Unlock()
		})
	}

	e.mu.Lock()
	e.cancels[localID] = cancel
	e.mu.Unlock()

	if replay != nil {
		fn(replay)
	}
	return cancel, nil
}

// Close cancels every subscription of the endpoint. Further calls to Publish
// and Subscribe fail with ErrClosed.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancels := make([]func(), 0, len(e.cancels))
	for _, cancel := range e.cancels {
		cancels = append(cancels, cancel)
	}
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
