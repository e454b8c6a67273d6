// Package server implements the hub: a relay that lets independent stores in
// different processes share their state over a sync channel.
//
// The hub keeps no key-value state of its own. Clients subscribe to named
// channels and publish full store snapshots, the hub pushes every snapshot to
// the subscribers of the channel except the publishing origin and retains the
// last snapshot per channel for late subscribers.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for server adapters,
//     with the Handle method that processes incoming requests of a peer.
//
//   - NewChannelServerAdapter: Factory function creating the adapter that
//     manages channels, subscribers and retained snapshots.
//
//   - NewRPCServer: Factory function creating a configured hub with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Transport: common.TransportConfig{
//	    Endpoint: "0.0.0.0:8080",
//	    Type:     common.TransportTCP,
//	  },
//	  Serializer:      common.SerializerBinary,
//	  MetricsEndpoint: "0.0.0.0:9090",
//	  LogLevel:        "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// If a metrics endpoint is configured, /metrics (prometheus text format) and
// /healthz are served there. The ws transport serves both routes on its own
// endpoint as well.
//
// Thread Safety:
//
//	Requests of different connections are handled concurrently, the requests
//	of a single connection are handled in order. Snapshots of one publisher are
//	therefore relayed in the order they were published.
//	Serve should be called only once.
package server
