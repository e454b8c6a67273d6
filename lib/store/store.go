package store

import (
	"sort"
	"sync"

	"github.com/ValentinKolb/rKV/lib/key"
	"github.com/google/btree"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

// btreeDegree is the degree of the ordered value index
const btreeDegree = 32

// --------------------------------------------------------------------------
// Store Types
// --------------------------------------------------------------------------

// entry is a single key-value pair in the ordered value index
type entry struct {
	key   key.Key
	value any
}

func lessEntry(a, b entry) bool {
	return a.key < b.key
}

// CommitHook is called after every local commit, that is after a synchronous
// mutation, a resolved asynchronous mutation or a default application.
// Hydration (Set, SetAll), merges of external snapshots and clears do not
// trigger commit hooks.
type CommitHook func(k key.Key)

// Store is a shared, mutable, key-addressed value store that notifies
// subscribers when a value changes.
//
// Thread-safety: All methods are safe for concurrent use. Subscriber callbacks,
// interceptors and commit hooks are always invoked without holding the store
// lock, so they may call back into the store.
type Store struct {
	mu sync.Mutex

	values       *btree.BTreeG[entry]
	initialized  map[key.Key]struct{}
	defaults     map[key.Key]any
	subscribers  map[key.Key]map[Handle]Callback
	handles      map[Handle]key.Key
	interceptors map[InterceptorHandle]Interceptor
	hooks        map[uint64]CommitHook

	// nextID is shared by all handle types, zero is never handed out
	nextID uint64
}

var defaultStore = New()

// Default returns the process wide store. It exists for the whole lifetime
// of the process, use ResetAll to isolate tests.
func Default() *Store {
	return defaultStore
}

// New creates a new, empty store.
func New() *Store {
	return &Store{
		values:       btree.NewG[entry](btreeDegree, lessEntry),
		initialized:  make(map[key.Key]struct{}),
		defaults:     make(map[key.Key]any),
		subscribers:  make(map[key.Key]map[Handle]Callback),
		handles:      make(map[Handle]key.Key),
		interceptors: make(map[InterceptorHandle]Interceptor),
		hooks:        make(map[uint64]CommitHook),
	}
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the value stored for k. The boolean indicates whether a value
// was found, unknown keys resolve to (nil, false).
func (s *Store) Get(k key.Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.values.Get(entry{key: k})
	return e.value, ok
}

// GetPrefix returns every stored entry whose canonical key starts with prefix.
// Because canonical keys end with a separator, the prefix "A/" never matches
// the sibling key "AB/".
func (s *Store) GetPrefix(prefix key.Key) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(Snapshot)
	s.ascendPrefixLocked(prefix, func(e entry) {
		result[e.key] = e.value
	})
	return result
}

// Snapshot returns a copy of the complete key-value mapping.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Keys returns all stored keys in canonical order.
func (s *Store) Keys() []key.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]key.Key, 0, s.values.Len())
	s.values.Ascend(func(e entry) bool {
		keys = append(keys, e.key)
		return true
	})
	return keys
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Len()
}

// IsInitialized reports whether k currently holds an explicit or default value.
func (s *Store) IsInitialized(k key.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.initialized[k]
	return ok
}

// DefaultOf returns the default value recorded for k, if any.
func (s *Store) DefaultOf(k key.Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.defaults[k]
	return v, ok
}

// --------------------------------------------------------------------------
// Bulk Operations
// --------------------------------------------------------------------------

// Set writes a single value without notifying subscribers or interceptors.
// This is the hydration path, used to seed a store from a prior snapshot.
func (s *Store) Set(k key.Key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(k, value)
}

// SetAll writes every entry of snap, see Set.
func (s *Store) SetAll(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range snap {
		s.writeLocked(k, v)
	}
}

// Merge writes every entry of an externally observed snapshot exactly like
// SetAll and then notifies the subscribers of every written key.
// Interceptors and commit hooks are not invoked since a merge is not a local
// mutation.
func (s *Store) Merge(snap Snapshot) {
	if len(snap) == 0 {
		return
	}

	type notification struct {
		callbacks []Callback
		value     any
	}

	s.mu.Lock()
	notifications := make([]notification, 0, len(snap))
	for _, k := range snap.Keys() {
		v := snap[k]
		s.writeLocked(k, v)
		if callbacks := s.callbacksLocked(k); len(callbacks) > 0 {
			notifications = append(notifications, notification{callbacks, v})
		}
	}
	s.mu.Unlock()

	for _, n := range notifications {
		notify(n.callbacks, n.value, true)
	}
	mergesTotal.Inc()
}

// Clear removes every key matching prefix from the store. Subscribers of a
// cleared key are notified with the recorded default value of that key, or
// with absence if none was ever recorded. Defaults and subscribers are kept.
func (s *Store) Clear(prefix key.Key) {
	type notification struct {
		callbacks []Callback
		value     any
		ok        bool
	}

	s.mu.Lock()
	var cleared []key.Key
	s.ascendPrefixLocked(prefix, func(e entry) {
		cleared = append(cleared, e.key)
	})

	notifications := make([]notification, 0, len(cleared))
	for _, k := range cleared {
		s.values.Delete(entry{key: k})
		delete(s.initialized, k)

		if callbacks := s.callbacksLocked(k); len(callbacks) > 0 {
			def, ok := s.defaults[k]
			notifications = append(notifications, notification{callbacks, def, ok})
		}
	}
	s.mu.Unlock()

	for _, n := range notifications {
		notify(n.callbacks, n.value, n.ok)
	}
	Logger.Debugf("cleared %d keys with prefix %q", len(cleared), prefix)
}

// ResetAll is a hard teardown: it empties the values, the initialized set,
// the default table and the subscriber registry. No notification is sent.
// Interceptors and commit hooks stay registered since they belong to
// long-lived owners such as sync bridges.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values.Clear(false)
	s.initialized = make(map[key.Key]struct{})
	s.defaults = make(map[key.Key]any)
	s.subscribers = make(map[key.Key]map[Handle]Callback)
	s.handles = make(map[Handle]key.Key)
}

// --------------------------------------------------------------------------
// Commit Hooks
// --------------------------------------------------------------------------

// OnCommit registers a hook that is called after every local commit.
// The returned function removes the hook again.
func (s *Store) OnCommit(hook CommitHook) (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newIDLocked()
	s.hooks[id] = hook

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.hooks, id)
			s.mu.Unlock()
		})
	}
}

// --------------------------------------------------------------------------
// Helper Methods (callers must hold s.mu)
// --------------------------------------------------------------------------

func (s *Store) newIDLocked() uint64 {
	s.nextID++
	return s.nextID
}

// writeLocked stores value for k and marks the key as initialized
func (s *Store) writeLocked(k key.Key, value any) {
	s.values.ReplaceOrInsert(entry{key: k, value: value})
	s.initialized[k] = struct{}{}
}

// ascendPrefixLocked calls fn for every entry with the given prefix in canonical order.
// Since the index is ordered, all matching keys form one contiguous range starting at prefix.
func (s *Store) ascendPrefixLocked(prefix key.Key, fn func(e entry)) {
	s.values.AscendGreaterOrEqual(entry{key: prefix}, func(e entry) bool {
		if !e.key.HasPrefix(prefix) {
			return false
		}
		fn(e)
		return true
	})
}

func (s *Store) snapshotLocked() Snapshot {
	snap := make(Snapshot, s.values.Len())
	s.values.Ascend(func(e entry) bool {
		snap[e.key] = e.value
		return true
	})
	return snap
}

// callbacksLocked returns the callbacks registered for k in registration order
func (s *Store) callbacksLocked(k key.Key) []Callback {
	subs := s.subscribers[k]
	if len(subs) == 0 {
		return nil
	}
	handles := make([]Handle, 0, len(subs))
	for h := range subs {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	callbacks := make([]Callback, len(handles))
	for i, h := range handles {
		callbacks[i] = subs[h]
	}
	return callbacks
}

func (s *Store) interceptorsLocked() []Interceptor {
	if len(s.interceptors) == 0 {
		return nil
	}
	interceptors := make([]Interceptor, 0, len(s.interceptors))
	for _, fn := range s.interceptors {
		interceptors = append(interceptors, fn)
	}
	return interceptors
}

func (s *Store) hooksLocked() []CommitHook {
	if len(s.hooks) == 0 {
		return nil
	}
	hooks := make([]CommitHook, 0, len(s.hooks))
	for _, fn := range s.hooks {
		hooks = append(hooks, fn)
	}
	return hooks
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// notify invokes every callback with the given value
func notify(callbacks []Callback, value any, ok bool) {
	for _, fn := range callbacks {
		fn(value, ok)
	}
	notificationsTotal.Add(len(callbacks))
}

func runHooks(hooks []CommitHook, k key.Key) {
	for _, hook := range hooks {
		hook(k)
	}
}
