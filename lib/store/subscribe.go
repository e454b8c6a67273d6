package store

import (
	"github.com/ValentinKolb/rKV/lib/key"
)

// --------------------------------------------------------------------------
// Subscriber Types
// --------------------------------------------------------------------------

// Callback receives the new value of a key. ok is false if the key holds no
// value (e.g. after it was cleared without a recorded default).
type Callback func(value any, ok bool)

// Handle identifies a subscription. The zero Handle is never handed out.
type Handle uint64

// Interceptor is invoked on every accepted mutation with the full store
// snapshot after and before the mutation.
type Interceptor func(newSnapshot, oldSnapshot Snapshot)

// InterceptorHandle identifies a registered interceptor.
type InterceptorHandle uint64

type subscribeConfig struct {
	hasDefault bool
	value      any
	thunk      func() any
}

// resolve returns the concrete default value, invoking the thunk if one was given
func (c subscribeConfig) resolve() any {
	if c.thunk != nil {
		return c.thunk()
	}
	return c.value
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeConfig)

// WithDefault lazily initializes the key with value if it is not initialized yet.
// A nil value means no default.
func WithDefault(value any) SubscribeOption {
	return func(c *subscribeConfig) {
		if value == nil {
			return
		}
		c.hasDefault = true
		c.value = value
		c.thunk = nil
	}
}

// WithDefaultFunc is like WithDefault but the value is only computed if the
// default is actually needed.
func WithDefaultFunc(fn func() any) SubscribeOption {
	return func(c *subscribeConfig) {
		if fn == nil {
			return
		}
		c.hasDefault = true
		c.thunk = fn
	}
}

// --------------------------------------------------------------------------
// Subscriber Registry
// --------------------------------------------------------------------------

// Subscribe registers fn for changes of k and returns a handle for Unsubscribe.
//
// If a default is supplied (WithDefault, WithDefaultFunc) and k is not
// initialized, the default is applied exactly once: it is recorded as the
// default of k, written to the store, the interceptors run with the full
// before/after snapshots and subscribers that were already registered for k
// are notified. If several subscriptions race to initialize the same key,
// the first one wins and the defaults of all later ones are discarded.
//
// After registration fn is invoked once with the value k currently holds, so
// a late subscriber observes the winning default instead of its own.
//
// The binding layer is responsible for re-keying: if the key a binding
// derives changes, it must Unsubscribe the old handle and Subscribe again.
func (s *Store) Subscribe(k key.Key, fn Callback, opts ...SubscribeOption) Handle {
	cfg := subscribeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	// the thunk is evaluated outside the lock, applyDefault checks again
	if cfg.hasDefault && !s.IsInitialized(k) {
		s.applyDefault(k, cfg.resolve())
	}

	s.mu.Lock()
	h := Handle(s.newIDLocked())
	subs, ok := s.subscribers[k]
	if !ok {
		subs = make(map[Handle]Callback)
		s.subscribers[k] = subs
	}
	if fn == nil {
		fn = func(any, bool) {}
	}
	subs[h] = fn
	s.handles[h] = k
	current, found := s.values.Get(entry{key: k})
	s.mu.Unlock()

	fn(current.value, found)
	return h
}

// Unsubscribe removes the subscription identified by h. Removing a handle
// twice, or a handle that was dropped by ResetAll, is a no-op.
func (s *Store) Unsubscribe(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.handles[h]
	if !ok {
		return
	}
	delete(s.handles, h)
	if subs := s.subscribers[k]; subs != nil {
		delete(subs, h)
		if len(subs) == 0 {
			delete(s.subscribers, k)
		}
	}
}

// Subscribers returns the number of subscriptions registered for k.
func (s *Store) Subscribers(k key.Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers[k])
}

// applyDefault applies the default value for k if k is still uninitialized.
// It returns false if another caller initialized the key first.
func (s *Store) applyDefault(k key.Key, value any) bool {
	s.mu.Lock()
	if _, ok := s.initialized[k]; ok {
		s.mu.Unlock()
		Logger.Debugf("default for %q discarded, key is already initialized", k)
		return false
	}

	interceptors := s.interceptorsLocked()
	var before, after Snapshot
	if len(interceptors) > 0 {
		before = s.snapshotLocked()
	}

	s.defaults[k] = value
	s.writeLocked(k, value)

	if len(interceptors) > 0 {
		after = s.snapshotLocked()
	}
	callbacks := s.callbacksLocked(k)
	hooks := s.hooksLocked()
	s.mu.Unlock()

	notify(callbacks, value, true)
	for _, fn := range interceptors {
		fn(after, before)
	}
	runHooks(hooks, k)
	defaultsTotal.Inc()
	return true
}

// --------------------------------------------------------------------------
// Interceptors
// --------------------------------------------------------------------------

// RegisterInterceptor registers fn to be called on every accepted mutation.
func (s *Store) RegisterInterceptor(fn Interceptor) InterceptorHandle {
	if fn == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := InterceptorHandle(s.newIDLocked())
	s.interceptors[h] = fn
	return h
}

// UnregisterInterceptor removes the interceptor identified by h.
// Unknown handles are ignored.
func (s *Store) UnregisterInterceptor(h InterceptorHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.interceptors, h)
}
