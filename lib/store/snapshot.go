package store

import (
	"sort"

	"github.com/ValentinKolb/rKV/lib/key"
)

// Snapshot is a flat mapping of canonical keys to values.
// Snapshots handed out by the store are copies and may be kept by the receiver,
// the values inside them are shared and should be treated as read-only.
type Snapshot map[key.Key]any

// Clone returns a shallow copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	c := make(Snapshot, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Keys returns the keys of the snapshot in canonical order.
func (s Snapshot) Keys() []key.Key {
	keys := make([]key.Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Pair binds key segments to a value, see SeedFrom.
type Pair struct {
	Segments []string
	Value    any
}

// P is a shorthand constructor for a Pair.
func P(value any, segments ...string) Pair {
	return Pair{Segments: segments, Value: value}
}

// SeedFrom builds a snapshot from segment/value pairs. It is meant to create
// the seed of a scoped store, later pairs win on key collision.
func SeedFrom(pairs ...Pair) Snapshot {
	s := make(Snapshot, len(pairs))
	for _, p := range pairs {
		s[key.Encode(p.Segments...)] = p.Value
	}
	return s
}
