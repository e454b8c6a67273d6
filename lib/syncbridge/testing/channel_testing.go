package testing

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/key"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/lib/syncbridge"
)

// EndpointFactory creates a new endpoint of a network, every endpoint has its
// own origin
type EndpointFactory func() syncbridge.Channel

// NetworkFactory creates a fresh network for a single test. Resources should
// be released with t.Cleanup.
type NetworkFactory func(t *testing.T) EndpointFactory

const (
	// waitTimeout bounds every expected delivery
	waitTimeout = 2 * time.Second
	// quietPeriod is how long a test waits to assert that nothing is delivered
	quietPeriod = 100 * time.Millisecond
)

// RunChannelTests runs the contract suite for a syncbridge.Channel implementation.
func RunChannelTests(t *testing.T, name string, factory NetworkFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("NoEcho", func(t *testing.T) {
			testNoEcho(t, factory(t))
		})

		t.Run("ReplayRetained", func(t *testing.T) {
			testReplayRetained(t, factory(t))
		})

		t.Run("NoReplayOfOwnPayload", func(t *testing.T) {
			testNoReplayOfOwnPayload(t, factory(t))
		})

		t.Run("CancelStopsDelivery", func(t *testing.T) {
			testCancelStopsDelivery(t, factory(t))
		})

		t.Run("ChannelsAreIsolated", func(t *testing.T) {
			testChannelsAreIsolated(t, factory(t))
		})

		t.Run("LastPayloadWins", func(t *testing.T) {
			testLastPayloadWins(t, factory(t))
		})

		t.Run("BridgedStoresConverge", func(t *testing.T) {
			testBridgedStoresConverge(t, factory(t))
		})

		t.Run("LateJoinerStartsFromSharedState", func(t *testing.T) {
			testLateJoiner(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// inbox collects the payloads delivered to a subscription
type inbox chan []byte

func newInbox() inbox {
	return make(inbox, 128)
}

func (in inbox) fn(payload []byte) {
	in <- payload
}

func (in inbox) next(t *testing.T) []byte {
	t.Helper()
	select {
	case payload := <-in:
		return payload
	case <-time.After(waitTimeout):
		t.Fatalf("no payload delivered within %s", waitTimeout)
		return nil
	}
}

func (in inbox) expectNone(t *testing.T) {
	t.Helper()
	select {
	case payload := <-in:
		t.Fatalf("unexpected payload %q", payload)
	case <-time.After(quietPeriod):
	}
}

func subscribe(t *testing.T, ch syncbridge.Channel, name string, in inbox) func() {
	t.Helper()
	cancel, err := ch.Subscribe(name, in.fn)
	if err != nil {
		t.Fatalf("Subscribe(%q) failed: %v", name, err)
	}
	return cancel
}

func publish(t *testing.T, ch syncbridge.Channel, name string, payload string) {
	t.Helper()
	if err := ch.Publish(name, []byte(payload)); err != nil {
		t.Fatalf("Publish(%q) failed: %v", name, err)
	}
}

// eventually polls cond until it holds or the wait timeout is reached
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func bridge(t *testing.T, s *store.Store, ch syncbridge.Channel) *syncbridge.Bridge {
	t.Helper()
	b := syncbridge.New(s, ch, syncbridge.WithChannelName("contract"))
	if err := b.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func flush(t *testing.T, b *syncbridge.Bridge) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testNoEcho(t *testing.T, endpoint EndpointFactory) {
	a, b := endpoint(), endpoint()

	own, other := newInbox(), newInbox()
	subscribe(t, a, "ch", own)
	subscribe(t, b, "ch", other)

	publish(t, a, "ch", "hello")

	if got := other.next(t); string(got) != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
	own.expectNone(t)
}

func testReplayRetained(t *testing.T, endpoint EndpointFactory) {
	a, b := endpoint(), endpoint()

	publish(t, a, "ch", "first")
	publish(t, a, "ch", "second")

	in := newInbox()
	subscribe(t, b, "ch", in)

	if got := in.next(t); string(got) != "second" {
		t.Errorf("expected retained payload %q, got %q", "second", got)
	}
	in.expectNone(t)
}

func testNoReplayOfOwnPayload(t *testing.T, endpoint EndpointFactory) {
	a := endpoint()

	publish(t, a, "ch", "mine")

	in := newInbox()
	subscribe(t, a, "ch", in)
	in.expectNone(t)
}

func testCancelStopsDelivery(t *testing.T, endpoint EndpointFactory) {
	a, b := endpoint(), endpoint()

	in := newInbox()
	cancel := subscribe(t, b, "ch", in)

	publish(t, a, "ch", "before")
	if got := in.next(t); string(got) != "before" {
		t.Fatalf("expected %q, got %q", "before", got)
	}

	cancel()
	cancel() // idempotent

	publish(t, a, "ch", "after")
	in.expectNone(t)
}

func testChannelsAreIsolated(t *testing.T, endpoint EndpointFactory) {
	a, b := endpoint(), endpoint()

	x, y := newInbox(), newInbox()
	subscribe(t, b, "x", x)
	subscribe(t, b, "y", y)

	publish(t, a, "x", "only-x")

	if got := x.next(t); string(got) != "only-x" {
		t.Errorf("expected %q, got %q", "only-x", got)
	}
	y.expectNone(t)
}

func testLastPayloadWins(t *testing.T, endpoint EndpointFactory) {
	a, b := endpoint(), endpoint()

	in := newInbox()
	subscribe(t, b, "ch", in)

	const n = 50
	for i := 1; i <= n; i++ {
		publish(t, a, "ch", fmt.Sprintf("%03d", i))
	}

	// snapshots may be coalesced, but never reordered
	var last []byte
	for !bytes.Equal(last, []byte(fmt.Sprintf("%03d", n))) {
		got := in.next(t)
		if last != nil && bytes.Compare(got, last) <= 0 {
			t.Fatalf("payload %q delivered after %q", got, last)
		}
		last = got
	}
}

func testBridgedStoresConverge(t *testing.T, endpoint EndpointFactory) {
	s1, s2 := store.New(), store.New()
	b1 := bridge(t, s1, endpoint())
	b2 := bridge(t, s2, endpoint())

	count := key.Encode("counter")
	name := key.Encode("user", "name")

	s1.Mutate(count, 1)
	flush(t, b1)
	eventually(t, "counter on second store", func() bool {
		v, ok := s2.Get(count)
		return ok && v == float64(1)
	})

	s2.Mutate(name, "ada")
	flush(t, b2)
	eventually(t, "name on first store", func() bool {
		v, ok := s1.Get(name)
		return ok && v == "ada"
	})

	eventually(t, "equal snapshots", func() bool {
		return reflect.DeepEqual(s1.Snapshot().Keys(), s2.Snapshot().Keys())
	})
}

func testLateJoiner(t *testing.T, endpoint EndpointFactory) {
	s1 := store.New()
	b1 := bridge(t, s1, endpoint())

	k := key.Encode("config", "theme")
	s1.Mutate(k, "dark")
	flush(t, b1)

	s2 := store.New()
	called := make(chan any, 4)
	s2.Subscribe(k, func(value any, ok bool) {
		if ok {
			called <- value
		}
	})
	bridge(t, s2, endpoint())

	select {
	case v := <-called:
		if v != "dark" {
			t.Errorf("expected %q, got %v", "dark", v)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("late joiner did not receive the shared state")
	}
}
