// Package syncbridge mirrors a store.Store to other, independent stores over a
// named publish/subscribe channel.
//
// A Bridge publishes the full snapshot of its store after every local commit
// (sync mutations, resolved async mutations and applied subscribe defaults)
// and merges every snapshot it receives into the store. Merged snapshots
// notify subscribers but are never published again, so two bridged stores do
// not ping-pong. Cleared keys are not propagated, a snapshot merge cannot
// express a deletion.
//
// Channel implementations:
//
//   - lib/channel/memory: stores within one process
//   - rpc/client: stores in different processes connected through a hub
//
// Usage:
//
//	b := syncbridge.New(store.Default(), ch, syncbridge.WithChannelName("app"))
//	if err := b.Enable(); err != nil {
//		return err
//	}
//	defer b.Close()
//
// Publications are queued and sent by a single goroutine. While a publication
// is in flight only the newest snapshot stays queued. Flush waits until the
// queue is empty.
//
// The shared contract of channel implementations is tested by the suite in
// lib/syncbridge/testing.
package syncbridge
