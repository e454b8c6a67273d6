package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/key"
)

const waitTimeout = 2 * time.Second

// recorder collects the notifications of a subscription
type recorder struct {
	ch chan notification
}

type notification struct {
	value any
	ok    bool
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan notification, 64)}
}

func (r *recorder) callback(value any, ok bool) {
	r.ch <- notification{value, ok}
}

// next waits for the next notification
func (r *recorder) next(t *testing.T) notification {
	t.Helper()
	select {
	case n := <-r.ch:
		return n
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for notification")
		return notification{}
	}
}

// expectNone asserts that no notification arrives within a short grace period
func (r *recorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case n := <-r.ch:
		t.Fatalf("Unexpected notification: %v (ok=%v)", n.value, n.ok)
	case <-time.After(50 * time.Millisecond):
	}
}

// eventually polls cond until it holds or the timeout expires
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Condition not met within %v: %s", waitTimeout, msg)
}

// --------------------------------------------------------------------------
// Read / Write
// --------------------------------------------------------------------------

func TestSetGet(t *testing.T) {
	s := New()

	tests := []struct {
		name  string
		key   key.Key
		value any
	}{
		{"int", key.Encode("a"), 1},
		{"string", key.Encode("b", "c"), "hello"},
		{"map", key.Encode("d"), map[string]any{"x": 1.5}},
		{"nil", key.Encode("e"), nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s.SetAll(Snapshot{tc.key: tc.value})
			v, ok := s.Get(tc.key)
			if !ok {
				t.Fatalf("Get(%q) found nothing", tc.key)
			}
			if tc.name == "map" {
				if v.(map[string]any)["x"] != 1.5 {
					t.Errorf("Get(%q) = %v", tc.key, v)
				}
				return
			}
			if v != tc.value {
				t.Errorf("Get(%q) = %v, want %v", tc.key, v, tc.value)
			}
			if !s.IsInitialized(tc.key) {
				t.Errorf("Key %q should be initialized", tc.key)
			}
		})
	}

	if _, ok := s.Get(key.Encode("unknown")); ok {
		t.Error("Unknown key should resolve to absent")
	}
}

func TestSetDoesNotNotify(t *testing.T) {
	s := New()
	k := key.Encode("k")
	rec := newRecorder()
	s.Subscribe(k, rec.callback)
	rec.next(t) // initial delivery

	commits := 0
	s.OnCommit(func(key.Key) { commits++ })

	s.Set(k, 1)
	rec.expectNone(t)
	if commits != 0 {
		t.Errorf("Set should not trigger commit hooks, got %d", commits)
	}
}

func TestGetPrefix_PrefixSafety(t *testing.T) {
	s := New()
	s.SetAll(Snapshot{
		key.Encode("A"):      1,
		key.Encode("AB"):     2,
		key.Encode("A", "x"): 3,
	})

	got := s.GetPrefix(key.Encode("A"))
	if len(got) != 2 {
		t.Fatalf("GetPrefix(A) returned %d entries, want 2: %v", len(got), got)
	}
	if got["A/"] != 1 || got["A/x/"] != 3 {
		t.Errorf("GetPrefix(A) = %v", got)
	}
	if _, ok := got["AB/"]; ok {
		t.Error("GetPrefix(A) must not contain the sibling key AB/")
	}

	if all := s.GetPrefix(key.Encode()); len(all) != 3 {
		t.Errorf("Empty prefix should match every key, got %d", len(all))
	}
}

func TestQueryPrefix(t *testing.T) {
	s := New()
	s.SetAll(Snapshot{
		key.Encode("n", "1"): 1,
		key.Encode("n", "2"): "two",
		key.Encode("n", "3"): 3,
	})

	got := QueryPrefix[int](s, key.Encode("n"))
	if len(got) != 2 || got["n/1/"] != 1 || got["n/3/"] != 3 {
		t.Errorf("QueryPrefix[int] = %v", got)
	}

	if _, ok := Query[int](s, key.Encode("n", "2")); ok {
		t.Error("Query[int] on a string value should report false")
	}
	if v, ok := Query[string](s, key.Encode("n", "2")); !ok || v != "two" {
		t.Errorf("Query[string] = %q, %v", v, ok)
	}
}

// --------------------------------------------------------------------------
// Clear / ResetAll
// --------------------------------------------------------------------------

func TestClear(t *testing.T) {
	s := New()
	withDefault := key.Encode("cfg", "a")
	withoutDefault := key.Encode("cfg", "b")
	other := key.Encode("cfgx")

	recA := newRecorder()
	s.Subscribe(withDefault, recA.callback, WithDefault("def"))
	if n := recA.next(t); n.value != "def" || !n.ok {
		t.Fatalf("Initial delivery = %v, want def", n.value)
	}

	recB := newRecorder()
	s.Subscribe(withoutDefault, recB.callback)
	recB.next(t)

	s.Mutate(withDefault, "x")
	s.Mutate(withoutDefault, "y")
	s.Mutate(other, "z")
	recA.next(t)
	recB.next(t)

	s.Clear(key.Encode("cfg"))

	if n := recA.next(t); n.value != "def" || !n.ok {
		t.Errorf("Subscriber of cleared key should receive its default, got %v (ok=%v)", n.value, n.ok)
	}
	if n := recB.next(t); n.value != nil || n.ok {
		t.Errorf("Subscriber of cleared key without default should receive absence, got %v (ok=%v)", n.value, n.ok)
	}

	if s.IsInitialized(withDefault) || s.IsInitialized(withoutDefault) {
		t.Error("Cleared keys must be removed from the initialized set")
	}
	if _, ok := s.Get(withDefault); ok {
		t.Error("Cleared key should be absent")
	}
	if v, _ := s.Get(other); v != "z" {
		t.Errorf("Key outside of the prefix should be untouched, got %v", v)
	}
	if v, ok := s.DefaultOf(withDefault); !ok || v != "def" {
		t.Error("Clear must keep recorded defaults")
	}
	if s.Subscribers(withDefault) != 1 {
		t.Error("Clear must keep subscribers")
	}
}

func TestResetAll(t *testing.T) {
	s := New()
	keys := []key.Key{key.Encode("a"), key.Encode("b", "c")}
	for i, k := range keys {
		s.Mutate(k, i)
	}
	s.Subscribe(key.Encode("d"), nil, WithDefault(1))

	intercepted := 0
	s.RegisterInterceptor(func(Snapshot, Snapshot) { intercepted++ })

	s.ResetAll()

	for _, k := range append(keys, key.Encode("d")) {
		if _, ok := s.Get(k); ok {
			t.Errorf("Key %q should be absent after ResetAll", k)
		}
		if s.IsInitialized(k) {
			t.Errorf("Key %q should not be initialized after ResetAll", k)
		}
	}
	if _, ok := s.DefaultOf(key.Encode("d")); ok {
		t.Error("ResetAll should drop recorded defaults")
	}
	if s.Subscribers(key.Encode("d")) != 0 {
		t.Error("ResetAll should drop subscribers")
	}

	s.Mutate(key.Encode("a"), 1)
	if intercepted != 1 {
		t.Errorf("Interceptors should survive ResetAll, got %d calls", intercepted)
	}
}

// --------------------------------------------------------------------------
// Subscriptions
// --------------------------------------------------------------------------

func TestSubscribe_FirstDefaultWins(t *testing.T) {
	s := New()
	k := key.Encode("counter")

	first := newRecorder()
	second := newRecorder()
	s.Subscribe(k, first.callback, WithDefault(1))
	s.Subscribe(k, second.callback, WithDefault(2))

	if v, _ := s.Get(k); v != 1 {
		t.Errorf("Stored value = %v, want 1", v)
	}
	if n := first.next(t); n.value != 1 {
		t.Errorf("First subscriber received %v, want 1", n.value)
	}
	if n := second.next(t); n.value != 1 {
		t.Errorf("Second subscriber received %v, want 1", n.value)
	}
	second.expectNone(t)
	if v, _ := s.DefaultOf(k); v != 1 {
		t.Errorf("Recorded default = %v, want 1", v)
	}
}

func TestSubscribe_DefaultNotifiesExistingSubscribers(t *testing.T) {
	s := New()
	k := key.Encode("k")

	early := newRecorder()
	s.Subscribe(k, early.callback)
	if n := early.next(t); n.ok {
		t.Fatalf("Initial delivery for an unset key should be absent, got %v", n.value)
	}

	var interceptorCalls []Snapshot
	s.RegisterInterceptor(func(newSnap, oldSnap Snapshot) {
		interceptorCalls = append(interceptorCalls, newSnap, oldSnap)
	})

	s.Subscribe(k, nil, WithDefaultFunc(func() any { return "lazy" }))

	if n := early.next(t); n.value != "lazy" {
		t.Errorf("Existing subscriber received %v, want lazy", n.value)
	}
	if len(interceptorCalls) != 2 {
		t.Fatalf("Default application should run interceptors once, got %d calls", len(interceptorCalls)/2)
	}
	if interceptorCalls[0][k] != "lazy" {
		t.Errorf("New snapshot = %v", interceptorCalls[0])
	}
	if _, ok := interceptorCalls[1][k]; ok {
		t.Errorf("Old snapshot should not contain %q", k)
	}
}

func TestSubscribe_DefaultIgnoredWhenInitialized(t *testing.T) {
	s := New()
	k := key.Encode("k")
	s.Set(k, "set")

	called := false
	s.Subscribe(k, nil, WithDefaultFunc(func() any {
		called = true
		return "default"
	}))

	if called {
		t.Error("Default thunk should not be evaluated for an initialized key")
	}
	if v, _ := s.Get(k); v != "set" {
		t.Errorf("Get = %v, want set", v)
	}
}

func TestUnsubscribe(t *testing.T) {
	s := New()
	k := key.Encode("k")
	rec := newRecorder()
	h := s.Subscribe(k, rec.callback)
	rec.next(t)

	s.Unsubscribe(h)
	s.Unsubscribe(h)
	s.Mutate(k, 1)

	rec.expectNone(t)
	if s.Subscribers(k) != 0 {
		t.Errorf("Subscribers = %d, want 0", s.Subscribers(k))
	}
}

func TestSubscribe_CallbackMayReenterStore(t *testing.T) {
	s := New()
	src := key.Encode("src")
	dst := key.Encode("dst")

	s.Subscribe(src, func(v any, ok bool) {
		if ok {
			s.Mutate(dst, v)
		}
	})
	s.Mutate(src, 42)

	if v, _ := s.Get(dst); v != 42 {
		t.Errorf("Get(dst) = %v, want 42", v)
	}
}

// --------------------------------------------------------------------------
// Mutation Engine
// --------------------------------------------------------------------------

func TestMutate_Sync(t *testing.T) {
	s := New()
	k := key.Encode("k")

	var newSnap, oldSnap Snapshot
	h := s.RegisterInterceptor(func(n, o Snapshot) {
		newSnap, oldSnap = n, o
	})
	defer s.UnregisterInterceptor(h)

	rec := newRecorder()
	s.Subscribe(k, rec.callback)
	rec.next(t)

	s.Mutate(k, 1)
	if n := rec.next(t); n.value != 1 {
		t.Errorf("Subscriber received %v, want 1", n.value)
	}
	if newSnap[k] != 1 {
		t.Errorf("Interceptor new snapshot = %v", newSnap)
	}
	if _, ok := oldSnap[k]; ok {
		t.Errorf("Interceptor old snapshot = %v", oldSnap)
	}

	s.Mutate(k, Updater(func(current any) any { return current.(int) + 1 }))
	if n := rec.next(t); n.value != 2 {
		t.Errorf("Updater result = %v, want 2", n.value)
	}
	if oldSnap[k] != 1 || newSnap[k] != 2 {
		t.Errorf("Interceptor snapshots = %v / %v", newSnap, oldSnap)
	}

	Update(s, k, func(n int) int { return n * 10 })
	if v, _ := Query[int](s, k); v != 20 {
		t.Errorf("Update result = %v, want 20", v)
	}
}

func TestMutate_AsyncLastResolvedWins(t *testing.T) {
	s := New()
	k := key.Encode("race")

	first, resolveFirst, _ := NewPromise[int]()
	second, resolveSecond, _ := NewPromise[int]()

	rec := newRecorder()
	s.Subscribe(k, rec.callback)
	rec.next(t)

	s.Mutate(k, func(any) any { return first })
	s.Mutate(k, func(any) any { return second })

	if s.IsInitialized(k) {
		t.Fatal("Async mutation must not change the store before it resolves")
	}

	resolveSecond(200)
	if n := rec.next(t); n.value != 200 {
		t.Fatalf("After second resolved got %v, want 200", n.value)
	}

	resolveFirst(100)
	if n := rec.next(t); n.value != 100 {
		t.Fatalf("After first resolved got %v, want 100", n.value)
	}
	if v, _ := s.Get(k); v != 100 {
		t.Errorf("Get = %v, want 100 (last resolved wins)", v)
	}
}

func TestMutate_AsyncFailure(t *testing.T) {
	s := New()
	k := key.Encode("k")
	s.Mutate(k, "before")

	rec := newRecorder()
	s.Subscribe(k, rec.callback)
	rec.next(t)

	commits := 0
	s.OnCommit(func(key.Key) { commits++ })

	failures := asyncFailuresTotal.Get()
	errBoom := errors.New("boom")
	f := Go(func() (string, error) { return "", errBoom })
	s.Mutate(k, f)

	if _, err := f.Await(context.Background()); !errors.Is(err, errBoom) {
		t.Errorf("Await error = %v, want %v", err, errBoom)
	}
	eventually(t, func() bool { return asyncFailuresTotal.Get() > failures }, "failure counter")

	rec.expectNone(t)
	if v, _ := s.Get(k); v != "before" {
		t.Errorf("Failed async mutation changed the store to %v", v)
	}
	if commits != 0 {
		t.Errorf("Failed async mutation triggered %d commit hooks", commits)
	}
}

func TestInterceptor_StaleOldSnapshotForAsync(t *testing.T) {
	s := New()
	a := key.Encode("a")
	b := key.Encode("b")

	type call struct{ newSnap, oldSnap Snapshot }
	var mu sync.Mutex
	var calls []call
	s.RegisterInterceptor(func(n, o Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, call{n, o})
	})

	fa, resolveA, _ := NewPromise[int]()
	fb, resolveB, _ := NewPromise[int]()
	s.Mutate(a, fa)
	s.Mutate(b, fb)

	mu.Lock()
	if len(calls) != 2 {
		t.Fatalf("Interceptors should fire immediately for async mutations, got %d calls", len(calls))
	}
	// neither call reflects the other pending mutation
	for i, c := range calls {
		if len(c.newSnap) != 0 || len(c.oldSnap) != 0 {
			t.Errorf("Call %d: snapshots should predate both writes, got %v / %v", i, c.newSnap, c.oldSnap)
		}
	}
	mu.Unlock()

	recB := newRecorder()
	s.Subscribe(b, recB.callback)
	recB.next(t)

	resolveA(1)
	resolveB(2)
	recB.next(t)
	eventually(t, func() bool {
		v, _ := s.Get(a)
		return v == 1
	}, "a resolved")

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 {
		t.Errorf("Interceptors must not fire again on resolution, got %d calls", len(calls))
	}
}

func TestMutate_EndToEnd(t *testing.T) {
	s := New()
	dataKey1 := key.Encode("DATA", "Key1")
	data := key.Encode("DATA")
	data2Key1 := key.Encode("DATA2", "Key1")

	s.Mutate(dataKey1, 100)
	s.Mutate(data, 100)
	s.Mutate(data2Key1, Resolved(200))
	slow, resolveSlow, _ := NewPromise[int]()
	s.Mutate(data, slow)

	got := s.GetPrefix(data)
	if got["DATA/Key1/"] != 100 || got["DATA/"] != 100 {
		t.Errorf("After sync effects GetPrefix(DATA) = %v", got)
	}
	if _, ok := got["DATA2/Key1/"]; ok {
		t.Error("GetPrefix(DATA) must not contain DATA2 keys")
	}

	resolveSlow(200)
	eventually(t, func() bool {
		v1, _ := s.Get(data)
		v2, _ := s.Get(data2Key1)
		return v1 == 200 && v2 == 200
	}, "async mutations resolved")

	got = s.GetPrefix(data)
	if got["DATA/Key1/"] != 100 || got["DATA/"] != 200 {
		t.Errorf("After async effects GetPrefix(DATA) = %v", got)
	}
}

// --------------------------------------------------------------------------
// Merge / Commit Hooks
// --------------------------------------------------------------------------

func TestMerge(t *testing.T) {
	s := New()
	k := key.Encode("cache")

	rec := newRecorder()
	s.Subscribe(k, rec.callback)
	rec.next(t)

	intercepted := 0
	s.RegisterInterceptor(func(Snapshot, Snapshot) { intercepted++ })
	commits := 0
	s.OnCommit(func(key.Key) { commits++ })

	s.Merge(Snapshot{k: 3.0, key.Encode("other"): "x"})

	if n := rec.next(t); n.value != 3.0 || !n.ok {
		t.Errorf("Subscriber received %v, want 3", n.value)
	}
	if !s.IsInitialized(k) {
		t.Error("Merged key should be initialized")
	}
	if intercepted != 0 || commits != 0 {
		t.Errorf("Merge must not run interceptors (%d) or commit hooks (%d)", intercepted, commits)
	}
}

func TestOnCommit(t *testing.T) {
	s := New()
	var mu sync.Mutex
	var committed []key.Key
	release := s.OnCommit(func(k key.Key) {
		mu.Lock()
		defer mu.Unlock()
		committed = append(committed, k)
	})

	s.Mutate(key.Encode("sync"), 1)
	s.Subscribe(key.Encode("default"), nil, WithDefault(1))
	s.Mutate(key.Encode("async"), Resolved(1))
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(committed) == 3
	}, "three commits")

	release()
	release()
	s.Mutate(key.Encode("sync"), 2)

	mu.Lock()
	defer mu.Unlock()
	if len(committed) != 3 {
		t.Errorf("Released hook should not be called, got %d commits", len(committed))
	}
}

// --------------------------------------------------------------------------
// Future
// --------------------------------------------------------------------------

func TestFuture(t *testing.T) {
	t.Run("resolve once", func(t *testing.T) {
		f, resolve, reject := NewPromise[string]()
		resolve("a")
		resolve("b")
		reject(errors.New("ignored"))
		v, err := f.Await(context.Background())
		if err != nil || v != "a" {
			t.Errorf("Await = %q, %v", v, err)
		}
	})

	t.Run("await timeout", func(t *testing.T) {
		f, _, _ := NewPromise[int]()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if _, err := f.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Await error = %v, want deadline exceeded", err)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		errBoom := errors.New("boom")
		v, err := Rejected[int](errBoom).Result()
		if v != nil || !errors.Is(err, errBoom) {
			t.Errorf("Result = %v, %v", v, err)
		}
	})
}
