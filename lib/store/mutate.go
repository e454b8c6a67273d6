package store

import (
	"github.com/ValentinKolb/rKV/lib/key"
)

// Updater computes the next value of a key from its current value (nil if
// absent). It may return an Async to resolve the value asynchronously.
type Updater func(current any) any

// --------------------------------------------------------------------------
// Mutation Engine
// --------------------------------------------------------------------------

// Mutate writes input to k. input is one of
//   - an Updater (or a plain func(any) any), invoked synchronously with the
//     current value, its result is handled like a direct input,
//   - an Async (e.g. a *Future), resolved asynchronously,
//   - anything else, written as a literal value.
//
// Synchronous writes are applied immediately: the value is stored, the key is
// marked initialized, the subscribers of k are notified and every interceptor
// is invoked once with the snapshots after and before the write.
//
// Asynchronous writes return immediately without modifying the store. The
// interceptors are still invoked right away, with snapshots taken before the
// write was even scheduled, so back-to-back asynchronous mutations are not
// reflected in each other's interceptor calls. Once the result resolves, the
// value is written and the subscribers are notified, but the interceptors are
// not invoked again. If two asynchronous writes target the same key, the one
// resolving last wins. A failed result leaves the store untouched, the error
// stays with the Async for whoever awaits it.
func (s *Store) Mutate(k key.Key, input any) {
	value := input
	switch fn := input.(type) {
	case Updater:
		current, _ := s.Get(k)
		value = fn(current)
	case func(any) any:
		current, _ := s.Get(k)
		value = fn(current)
	}

	if async, ok := value.(Async); ok {
		s.mutateAsync(k, async)
		return
	}
	s.mutateSync(k, value)
}

// mutateSync is the synchronous branch of Mutate
func (s *Store) mutateSync(k key.Key, value any) {
	s.mu.Lock()
	interceptors := s.interceptorsLocked()
	var before, after Snapshot
	if len(interceptors) > 0 {
		before = s.snapshotLocked()
	}

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
	syncMutationsTotal.Inc()
}

// mutateAsync is the asynchronous branch of Mutate
func (s *Store) mutateAsync(k key.Key, async Async) {
	s.mu.Lock()
	interceptors := s.interceptorsLocked()
	var before Snapshot
	if len(interceptors) > 0 {
		before = s.snapshotLocked()
	}
	s.mu.Unlock()

	// the store is unchanged at this point, both snapshots predate the write
	for _, fn := range interceptors {
		fn(before.Clone(), before)
	}
	asyncMutationsTotal.Inc()

	go func() {
		<-async.Done()
		value, err := async.Result()
		if err != nil {
			asyncFailuresTotal.Inc()
			Logger.Debugf("async mutation of %q failed: %v", k, err)
			return
		}
		s.resolve(k, value)
	}()
}

// resolve applies the value of a resolved asynchronous mutation
func (s *Store) resolve(k key.Key, value any) {
	s.mu.Lock()
	s.writeLocked(k, value)
	callbacks := s.callbacksLocked(k)
	hooks := s.hooksLocked()
	s.mu.Unlock()

	notify(callbacks, value, true)
	runHooks(hooks, k)
}

// --------------------------------------------------------------------------
// Bound Accessors
// --------------------------------------------------------------------------

// Mutator is a mutate function bound to one store.
type Mutator func(k key.Key, input any)

// Querier is a read function bound to one store.
type Querier func(k key.Key) (any, bool)

// Mutator returns Mutate bound to s, for binding layers that capture the
// active store once.
func (s *Store) Mutator() Mutator {
	return s.Mutate
}

// Querier returns Get bound to s.
func (s *Store) Querier() Querier {
	return s.Get
}

// --------------------------------------------------------------------------
// Typed Helpers
// --------------------------------------------------------------------------

// Query returns the value of k as a T. The boolean is false if the key is
// absent or holds a value of another type.
func Query[T any](s *Store, k key.Key) (T, bool) {
	v, ok := s.Get(k)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// QueryPrefix is the typed variant of GetPrefix. Values that are not a T are skipped.
func QueryPrefix[T any](s *Store, prefix key.Key) map[key.Key]T {
	result := make(map[key.Key]T)
	for k, v := range s.GetPrefix(prefix) {
		if t, ok := v.(T); ok {
			result[k] = t
		}
	}
	return result
}

// Update mutates k with fn. fn receives the zero value of T if the key is
// absent or holds a value of another type.
func Update[T any](s *Store, k key.Key, fn func(current T) T) {
	s.Mutate(k, Updater(func(current any) any {
		t, _ := current.(T)
		return fn(t)
	}))
}

// UpdateAsync mutates k with the future returned by fn.
func UpdateAsync[T any](s *Store, k key.Key, fn func(current T) *Future[T]) {
	s.Mutate(k, Updater(func(current any) any {
		t, _ := current.(T)
		return fn(t)
	}))
}
