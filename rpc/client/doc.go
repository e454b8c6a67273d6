// Package client implements the client side of the hub protocol.
//
// RPCChannel implements syncbridge.Channel on top of a single connection to a
// hub, so independent stores in different processes can be bridged.
//
// Key Components:
//
//   - NewRPCChannel: Factory function that connects a channel over the given
//     transport and serializer.
//
//   - Dial: Creates transport and serializer from the names in a
//     common.ClientConfig and connects a channel.
//
// Usage Example:
//
//	ch, err := client.Dial(common.ClientConfig{
//	  Transport: common.TransportConfig{
//	    Endpoint: "localhost:8080",
//	    Type:     common.TransportTCP,
//	  },
//	  Serializer:    common.SerializerBinary,
//	  TimeoutSecond: 5,
//	})
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer ch.Close()
//
//	b := syncbridge.New(store.Default(), ch)
//	if err := b.Enable(); err != nil {
//	  log.Fatal(err)
//	}
//
// The channel neither reconnects nor retries. A failed publish is reported to
// the caller (the bridge logs and drops it), the next commit publishes the full
// state again.
//
// Thread Safety:
//
//	All methods are thread-safe. Snapshots are delivered by a dedicated
//	goroutine in the order they were received per channel.
package client
