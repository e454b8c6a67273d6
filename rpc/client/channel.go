package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a closed channel
var ErrClosed = errors.New("client: channel closed")

// NewRPCChannel connects to a hub and returns a channel that can be used by a
// syncbridge.Bridge.
// The function takes a config, a transport and a serializer as parameters
func NewRPCChannel(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCChannel, error) {
	c := &RPCChannel{
		config:     config,
		transport:  transport,
		serializer: serializer,
		origin:     uuid.NewString(),
		handlers:   make(map[string]map[uint64]func([]byte)),
		last:       make(map[string][]byte),
		pending:    make(map[string][]byte),
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}

	// Pushes may arrive as soon as the connection is open
	transport.RegisterPushHandler(c.onPush)

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	go c.deliver()
	return c, nil
}

// RPCChannel is a sync channel backed by a single connection to a hub.
//
// Snapshots pushed by the hub are delivered by a dedicated goroutine, never by
// the reader of the connection. Since every snapshot carries the full state,
// snapshots of a channel that were not delivered yet are replaced by newer ones.
//
// Thread-safety: All methods are safe for concurrent use. Handlers are called
// one after another and must neither subscribe nor cancel a subscription.
type RPCChannel struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
	origin     string

	subMu sync.Mutex // orders subscribe and unsubscribe requests

	mu       sync.Mutex // protects handlers, nextID, closed
	handlers map[string]map[uint64]func([]byte)
	nextID   uint64
	closed   bool

	deliverMu sync.Mutex        // held while handlers are called
	last      map[string][]byte // last delivered snapshot per channel, protected by deliverMu

	pendingMu sync.Mutex
	pending   map[string][]byte // snapshots waiting for delivery
	order     []string          // channel names in pending, oldest first
	signal    chan struct{}

	closeOnce sync.Once
	done      chan struct{} // closed by Close
	stopped   chan struct{} // closed when the delivery goroutine exits
}

// Origin returns the origin id the channel uses towards the hub.
func (c *RPCChannel) Origin() string {
	return c.origin
}

// --------------------------------------------------------------------------
// Interface Methods (docu see syncbridge.Channel)
// --------------------------------------------------------------------------

func (c *RPCChannel) Publish(name string, payload []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	_, err := invokeRPCRequest(common.NewPublishRequest(name, c.origin, payload), c.transport, c.serializer)
	if err != nil {
		return fmt.Errorf("publish on %q: %w", name, err)
	}
	return nil
}

func (c *RPCChannel) Subscribe(name string, fn func(payload []byte)) (cancel func(), err error) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	subs, ok := c.handlers[name]
	first := !ok
	if first {
		subs = make(map[uint64]func([]byte))
		c.handlers[name] = subs
	}
	c.nextID++
	id := c.nextID
	subs[id] = fn
	c.mu.Unlock()

	if first {
		// the hub answers with the retained snapshot, the handler is already registered
		if _, err := invokeRPCRequest(common.NewSubscribeRequest(name, c.origin), c.transport, c.serializer); err != nil {
			c.remove(name, id)
			return nil, fmt.Errorf("subscribe to %q: %w", name, err)
		}
		Logger.Debugf("subscribed to channel %q as %s", name, c.origin)
	} else {
		// the hub only replays to a connection once, later local subscribers
		// start from the last delivered snapshot
		c.deliverMu.Lock()
		if payload, ok := c.last[name]; ok {
			fn(clone(payload))
		}
		c.deliverMu.Unlock()
	}

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if !c.remove(name, id) || c.isClosed() {
				return
			}
			if _, err := invokeRPCRequest(common.NewUnsubscribeRequest(name, c.origin), c.transport, c.serializer); err != nil {
				Logger.Warningf("unsubscribe from %q failed: %v", name, err)
			}
		})
	}
	return cancel, nil
}

// Close stops the delivery of snapshots and closes the connection to the hub.
func (c *RPCChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.handlers = make(map[string]map[uint64]func([]byte))
		c.mu.Unlock()

		close(c.done)
		err = c.transport.Close()
		<-c.stopped
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *RPCChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// remove drops a local handler and reports whether it was the last one of name
func (c *RPCChannel) remove(name string, id uint64) bool {
	c.mu.Lock()
	subs, ok := c.handlers[name]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(subs, id)
	last := len(subs) == 0
	if last {
		delete(c.handlers, name)
	}
	c.mu.Unlock()

	if last {
		c.deliverMu.Lock()
		delete(c.last, name)
		c.deliverMu.Unlock()
	}
	return last
}

// onPush is the push handler of the transport, it must not block
func (c *RPCChannel) onPush(data []byte) {
	var msg common.Message
	if err := c.serializer.Deserialize(data, &msg); err != nil {
		Logger.Warningf("dropping undecodable push: %v", err)
		return
	}
	if msg.MsgType != common.MsgTSnapshot {
		Logger.Warningf("dropping unexpected push of type %s", msg.MsgType)
		return
	}
	if msg.Origin == c.origin {
		return
	}

	c.pendingMu.Lock()
	if _, queued := c.pending[msg.Channel]; !queued {
		c.order = append(c.order, msg.Channel)
	}
	c.pending[msg.Channel] = msg.Payload
	c.pendingMu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// deliver calls the local handlers for queued snapshots until Close is called
func (c *RPCChannel) deliver() {
	defer close(c.stopped)
	for {
		select {
		case <-c.done:
			return
		case <-c.signal:
		}

		for {
			c.pendingMu.Lock()
			if len(c.order) == 0 {
				c.pendingMu.Unlock()
				break
			}
			name := c.order[0]
			c.order = c.order[1:]
			payload := c.pending[name]
			delete(c.pending, name)
			c.pendingMu.Unlock()

			c.dispatch(name, payload)
		}
	}
}

func (c *RPCChannel) dispatch(name string, payload []byte) {
	c.mu.Lock()
	fns := make([]func([]byte), 0, len(c.handlers[name]))
	for _, fn := range c.handlers[name] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	if len(fns) == 0 {
		return
	}

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.last[name] = payload
	for _, fn := range fns {
		fn(clone(payload))
	}
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
