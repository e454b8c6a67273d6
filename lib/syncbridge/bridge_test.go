package syncbridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/channel/memory"
	"github.com/ValentinKolb/rKV/lib/key"
	"github.com/ValentinKolb/rKV/lib/store"
)

const waitTimeout = 2 * time.Second

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// fakeChannel records publications. While gate is open Publish returns right
// away, otherwise it blocks until the gate is opened.
type fakeChannel struct {
	mu         sync.Mutex
	published  [][]byte
	subscribed int
	cancelled  int
	receive    func([]byte)
	subErr     error

	started chan struct{}
	gate    chan struct{}
}

func newFakeChannel() *fakeChannel {
	gate := make(chan struct{})
	close(gate)
	return &fakeChannel{started: make(chan struct{}, 16), gate: gate}
}

func (f *fakeChannel) Publish(_ string, payload []byte) error {
	f.started <- struct{}{}
	<-f.gate
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeChannel) Subscribe(_ string, fn func([]byte)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.subscribed++
	f.receive = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled++
	}, nil
}

func (f *fakeChannel) snapshots(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.published))
	for _, p := range f.published {
		var m map[string]any
		if err := json.Unmarshal(p, &m); err != nil {
			t.Fatalf("published payload is not a JSON object: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func flush(t *testing.T, b *Bridge) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func enable(t *testing.T, b *Bridge) {
	t.Helper()
	if err := b.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	t.Cleanup(b.Close)
}

// --------------------------------------------------------------------------
// Incoming Snapshots
// --------------------------------------------------------------------------

func TestReceive_MergesSnapshot(t *testing.T) {
	bus := memory.NewBus()
	local, remote := bus.Endpoint(), bus.Endpoint()

	s := store.New()
	k := key.Encode("cache")

	values := make(chan any, 4)
	s.Subscribe(k, func(value any, ok bool) {
		if ok {
			values <- value
		}
	})

	enable(t, New(s, local))

	if err := remote.Publish(DefaultChannelName, []byte(`{"cache/":3}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if v, ok := s.Get(k); !ok || v != float64(3) {
		t.Errorf("expected 3, got %v (found %v)", v, ok)
	}
	select {
	case v := <-values:
		if v != float64(3) {
			t.Errorf("subscriber got %v, expected 3", v)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("subscriber was not notified")
	}
}

func TestReceive_DiscardsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"NotJSON", "not json"},
		{"Array", "[1,2,3]"},
		{"Null", "null"},
		{"Truncated", `{"a/":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newFakeChannel()
			s := store.New()
			s.Set(key.Encode("keep"), "me")
			enable(t, New(s, ch))

			before := malformedTotal.Get()
			ch.receive([]byte(tt.payload))

			if got := malformedTotal.Get() - before; got != 1 {
				t.Errorf("expected malformed counter to increase by 1, got %d", got)
			}
			if s.Len() != 1 {
				t.Errorf("store was modified by a malformed payload: %v", s.Snapshot())
			}
		})
	}
}

func TestReceive_SkipsNonCanonicalKeys(t *testing.T) {
	ch := newFakeChannel()
	s := store.New()
	enable(t, New(s, ch))

	ch.receive([]byte(`{"a/":1,"no-separator":2,"bad%zz/":3}`))

	if v, ok := s.Get(key.Encode("a")); !ok || v != float64(1) {
		t.Errorf("expected canonical key to be merged, got %v (found %v)", v, ok)
	}
	if s.Len() != 1 {
		t.Errorf("expected only the canonical key, got %v", s.Snapshot().Keys())
	}
}

func TestReceive_DoesNotPublish(t *testing.T) {
	ch := newFakeChannel()
	s := store.New()
	b := New(s, ch)
	enable(t, b)

	ch.receive([]byte(`{"a/":1}`))
	flush(t, b)

	if got := len(ch.snapshots(t)); got != 0 {
		t.Errorf("merged snapshot was published %d times", got)
	}
}

// --------------------------------------------------------------------------
// Outgoing Snapshots
// --------------------------------------------------------------------------

func TestPublish_OnMutation(t *testing.T) {
	ch := newFakeChannel()
	s := store.New()
	b := New(s, ch)
	enable(t, b)

	s.Set(key.Encode("seed"), "hydrated")
	s.Mutate(key.Encode("user", "name"), "ada")
	flush(t, b)

	snaps := ch.snapshots(t)
	if len(snaps) != 1 {
		t.Fatalf("expected 1 publication, got %d", len(snaps))
	}
	want := map[string]any{"seed/": "hydrated", "user/name/": "ada"}
	for k, v := range want {
		if snaps[0][k] != v {
			t.Errorf("expected %q=%v in published snapshot, got %v", k, v, snaps[0])
		}
	}
}

func TestPublish_OnDefaultApplication(t *testing.T) {
	ch := newFakeChannel()
	s := store.New()
	b := New(s, ch)
	enable(t, b)

	s.Subscribe(key.Encode("theme"), nil, store.WithDefault("light"))
	flush(t, b)

	snaps := ch.snapshots(t)
	if len(snaps) != 1 || snaps[0]["theme/"] != "light" {
		t.Errorf("expected the applied default to be published, got %v", snaps)
	}
}

func TestPublish_NotOnClear(t *testing.T) {
	ch := newFakeChannel()
	s := store.New()
	b := New(s, ch)
	enable(t, b)

	s.Set(key.Encode("a"), 1)
	s.Clear("")
	flush(t, b)

	if got := len(ch.snapshots(t)); got != 0 {
		t.Errorf("clear was published %d times", got)
	}
}

func TestPublish_Coalesces(t *testing.T) {
	ch := newFakeChannel()
	ch.gate = make(chan struct{})
	s := store.New()
	b := New(s, ch)
	enable(t, b)

	k := key.Encode("n")
	s.Mutate(k, 1)

	// the first publication is in flight, the next ones replace each other
	select {
	case <-ch.started:
	case <-time.After(waitTimeout):
		t.Fatalf("publication did not start")
	}
	before := coalescedTotal.Get()
	s.Mutate(k, 2)
	s.Mutate(k, 3)
	close(ch.gate)
	flush(t, b)

	snaps := ch.snapshots(t)
	if len(snaps) != 2 {
		t.Fatalf("expected 2 publications, got %d", len(snaps))
	}
	if snaps[0]["n/"] != float64(1) || snaps[1]["n/"] != float64(3) {
		t.Errorf("expected n=1 then n=3, got %v", snaps)
	}
	if got := coalescedTotal.Get() - before; got != 1 {
		t.Errorf("expected 1 coalesced publication, got %d", got)
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func TestEnable_Idempotent(t *testing.T) {
	ch := newFakeChannel()
	b := New(store.New(), ch, WithChannelName("custom"))
	enable(t, b)
	enable(t, b)

	if b.Name() != "custom" {
		t.Errorf("expected channel name %q, got %q", "custom", b.Name())
	}
	if ch.subscribed != 1 {
		t.Errorf("expected 1 subscription, got %d", ch.subscribed)
	}
}

func TestEnable_SubscribeError(t *testing.T) {
	ch := newFakeChannel()
	ch.subErr = errors.New("boom")
	b := New(store.New(), ch)

	if err := b.Enable(); !errors.Is(err, ch.subErr) {
		t.Fatalf("expected wrapped subscribe error, got %v", err)
	}
	if b.Enabled() {
		t.Errorf("bridge must stay disabled")
	}
}

func TestDisable(t *testing.T) {
	ch := newFakeChannel()
	s := store.New()
	b := New(s, ch)
	enable(t, b)
	receive := ch.receive

	b.Disable()
	b.Disable()

	if b.Enabled() {
		t.Fatalf("bridge still enabled")
	}
	if ch.cancelled != 1 {
		t.Errorf("expected subscription to be cancelled once, got %d", ch.cancelled)
	}

	// a late delivery of the channel is ignored
	receive([]byte(`{"a/":1}`))
	if s.Len() != 0 {
		t.Errorf("disabled bridge merged a snapshot")
	}

	s.Mutate(key.Encode("b"), 2)
	flush(t, b)
	if got := len(ch.snapshots(t)); got != 0 {
		t.Errorf("disabled bridge published %d snapshots", got)
	}

	// re-enable
	enable(t, b)
	s.Mutate(key.Encode("c"), 3)
	flush(t, b)
	if got := len(ch.snapshots(t)); got != 1 {
		t.Errorf("expected 1 publication after re-enabling, got %d", got)
	}
}

func TestDisable_FlushesQueuedPublication(t *testing.T) {
	ch := newFakeChannel()
	ch.gate = make(chan struct{})
	s := store.New()
	b := New(s, ch)
	enable(t, b)

	s.Mutate(key.Encode("a"), 1)
	<-ch.started
	b.Disable()
	close(ch.gate)
	flush(t, b)

	if got := len(ch.snapshots(t)); got != 1 {
		t.Errorf("expected the queued publication to be sent, got %d", got)
	}
}

func TestClose(t *testing.T) {
	b := New(store.New(), newFakeChannel())
	enable(t, b)
	b.Close()

	if err := b.Enable(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestFlush_ContextDone(t *testing.T) {
	ch := newFakeChannel()
	ch.gate = make(chan struct{})
	s := store.New()
	b := New(s, ch)
	enable(t, b)

	s.Mutate(key.Encode("a"), 1)
	<-ch.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	close(ch.gate)
	flush(t, b)
}
