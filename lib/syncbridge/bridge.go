package syncbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/rKV/lib/key"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

// DefaultChannelName is the name of the channel a bridge uses if none is configured
const DefaultChannelName = "rkv"

// ErrClosed is returned when enabling a bridge that was closed
var ErrClosed = errors.New("syncbridge: bridge closed")

// Channel is a named publish/subscribe channel that carries store snapshots
// between independent store instances.
//
// Implementations must not deliver the publications of an endpoint back to
// that endpoint, the bridge performs no deduplication of its own. Subscribe
// must replay the last payload published on the channel if it originated from
// another endpoint, so a late joiner starts from the shared state.
type Channel interface {
	// Publish sends payload to every other subscriber of the channel name
	Publish(name string, payload []byte) error
	// Subscribe registers fn for payloads published on the channel name.
	// Calling cancel stops the delivery.
	Subscribe(name string, fn func(payload []byte)) (cancel func(), err error)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithChannelName sets the name of the channel the bridge publishes to and
// listens on.
func WithChannelName(name string) Option {
	return func(b *Bridge) {
		if name != "" {
			b.name = name
		}
	}
}

// WithLogger replaces the package logger of the bridge.
func WithLogger(l logger.ILogger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// Bridge mirrors a store to and from a Channel.
//
// While enabled the bridge merges every snapshot received on the channel into
// the store (see store.Merge) and publishes the full local snapshot after
// every local commit. Merges do not trigger commit hooks, so a merged snapshot
// is never published again.
//
// Thread-safety: All methods are safe for concurrent use.
type Bridge struct {
	store *store.Store
	ch    Channel
	name  string
	log   logger.ILogger

	mu      sync.Mutex
	closed  bool
	cancel  func()
	release func()

	// enabled is read by receive without holding mu, the channel may deliver
	// while Enable is still running
	enabled atomic.Bool

	out *outbox
}

// New creates a disabled bridge between s and ch.
func New(s *store.Store, ch Channel, opts ...Option) *Bridge {
	b := &Bridge{
		store: s,
		ch:    ch,
		name:  DefaultChannelName,
		log:   Logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.out = newOutbox(b.publish)
	return b
}

// Name returns the name of the channel used by the bridge.
func (b *Bridge) Name() string {
	return b.name
}

// Enable starts listening on the channel and publishing local commits.
// Enabling an enabled bridge is a no-op.
func (b *Bridge) Enable() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.enabled.Load() {
		return nil
	}

	// set before subscribing, the channel may replay a retained payload right away
	b.enabled.Store(true)
	cancel, err := b.ch.Subscribe(b.name, b.receive)
	if err != nil {
		b.enabled.Store(false)
		return fmt.Errorf("subscribe to channel %q: %w", b.name, err)
	}
	b.cancel = cancel
	b.release = b.store.OnCommit(b.commit)
	enabledBridges.Add(1)
	b.log.Infof("sync enabled on channel %q", b.name)
	return nil
}

// Disable stops listening for incoming snapshots and stops publishing new
// commits. Publications that are already queued are still sent.
func (b *Bridge) Disable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disableLocked()
}

// Enabled reports whether the bridge is enabled.
func (b *Bridge) Enabled() bool {
	return b.enabled.Load()
}

// Flush blocks until every queued publication was sent or ctx is done.
func (b *Bridge) Flush(ctx context.Context) error {
	return b.out.flush(ctx)
}

// Close disables the bridge permanently.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disableLocked()
	b.closed = true
}

func (b *Bridge) disableLocked() {
	if !b.enabled.Load() {
		return
	}
	b.enabled.Store(false)
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.release != nil {
		b.release()
		b.release = nil
	}
	enabledBridges.Add(-1)
	b.log.Infof("sync disabled on channel %q", b.name)
}

// --------------------------------------------------------------------------
// Incoming Snapshots
// --------------------------------------------------------------------------

// receive merges a payload received on the channel into the store.
// Malformed payloads are logged and discarded.
func (b *Bridge) receive(payload []byte) {
	if !b.enabled.Load() {
		return
	}

	snap, err := decodeSnapshot(payload)
	if err != nil {
		malformedTotal.Inc()
		b.log.Warningf("discarding malformed snapshot on channel %q: %v", b.name, err)
		return
	}

	for k := range snap {
		if !key.Valid(k) {
			b.log.Warningf("skipping non-canonical key %q on channel %q", k, b.name)
			delete(snap, k)
		}
	}

	b.store.Merge(snap)
	receivedTotal.Inc()
	b.log.Debugf("merged %d keys from channel %q", len(snap), b.name)
}

// decodeSnapshot parses a flat JSON object of canonical keys to values
func decodeSnapshot(payload []byte) (store.Snapshot, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("payload is not an object")
	}
	snap := make(store.Snapshot, len(raw))
	for k, v := range raw {
		snap[key.Key(k)] = v
	}
	return snap, nil
}

// --------------------------------------------------------------------------
// Outgoing Snapshots
// --------------------------------------------------------------------------

// commit is the commit hook of the bridge, it queues the full local snapshot
func (b *Bridge) commit(key.Key) {
	payload, err := json.Marshal(b.store.Snapshot())
	if err != nil {
		encodeFailuresTotal.Inc()
		b.log.Errorf("cannot encode snapshot for channel %q: %v", b.name, err)
		return
	}
	b.out.enqueue(payload)
}

func (b *Bridge) publish(payload []byte) {
	if err := b.ch.Publish(b.name, payload); err != nil {
		publishErrorsTotal.Inc()
		b.log.Errorf("publish to channel %q failed: %v", b.name, err)
		return
	}
	publishedTotal.Inc()
}
