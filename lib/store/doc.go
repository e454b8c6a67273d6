// Package store provides a shared, mutable, key-addressed value store that
// notifies observers when a value changes.
//
// The package focuses on:
//   - Reading values directly (Get, GetPrefix, Snapshot) and writing them through
//     the mutation engine (Mutate) or the hydration path (Set, SetAll)
//   - Lazily supplied default values which are applied exactly once per key
//   - Asynchronous value resolution through Future
//   - Hooks for keeping independent store instances convergent (see the
//     syncbridge package)
//
// Key Components:
//
//   - Store: The value store itself. Values are kept in an ordered index so
//     prefix queries are a single range scan. Keys are canonical keys produced
//     by the key package, values are opaque to the store. A process wide
//     instance is available through Default, further instances can be created
//     with New (e.g. for scoped stores, see the scope package).
//
//   - Subscriber Registry: Subscribe registers a callback for a single key and
//     returns a Handle. Removal is by handle only. A subscription may carry a
//     default value (WithDefault, WithDefaultFunc) that initializes the key if
//     nothing has been written to it yet. If several subscriptions compete, the
//     first one wins.
//
//   - Interceptors: Global callbacks that receive the full store snapshot after
//     and before every accepted mutation.
//
//   - Mutation Engine: Mutate accepts a literal value, an Updater or an Async
//     result. Literal values and updater results are applied synchronously,
//     Async results are applied once they resolve, the last resolved one wins.
//
//   - Commit Hooks: OnCommit registers a hook that is called after every local
//     commit. Merges of external snapshots (Merge) never trigger commit hooks,
//     which keeps mirrored stores from echoing each other's writes.
//
// Usage:
//
//	s := store.New()
//	k := key.Encode("DATA", "Key1")
//
//	h := s.Subscribe(k, func(v any, ok bool) {
//		fmt.Println("new value:", v, ok)
//	}, store.WithDefault(0))
//	defer s.Unsubscribe(h)
//
//	s.Mutate(k, 100)
//	store.Update(s, k, func(n int) int { return n + 1 })
//	s.Mutate(k, store.Go(func() (any, error) { return fetch() }))
//
// Thread-safety: All operations are safe for concurrent use. Synchronous
// mutations issued from one goroutine are applied and notified in issue order,
// asynchronous mutations are applied in completion order.
package store
