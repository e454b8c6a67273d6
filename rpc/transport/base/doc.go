// Package base provides a foundation for stream based transport layers,
// implementing core functionality for RPC communication independent of the
// specific network protocol (TCP, Unix sockets). It serves as a base layer that
// can be extended with protocol-specific connectors.
//
// The package focuses on:
//   - Protocol-agnostic client and server transport implementations
//   - Frame-based message protocol with requestID tracking
//   - Automatic response correlation and server pushes on the same connection
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Core client implementation that sends requests over a single
//     connection and correlates responses by request ID. Frames with request ID 0
//     are pushes and are handed to the registered push handler.
//
//   - serverTransport: Core server implementation that accepts connections and
//     passes requests to the registered handler. Each connection is exposed to the
//     handler as a transport.Peer which can push frames to the client.
//
// Performance Optimizations:
//
//   - Buffer Pooling: The server uses a sync.Pool to reuse read buffers, reducing
//     GC pressure and memory allocations.
//
//   - Frame Batching: The transport uses net.Buffers to reduce syscalls when
//     writing frames, combining header and payload into a single write operation.
//
// Thread Safety:
//
//	All public methods are thread-safe. Writes to a connection are serialized
//	with a mutex, while the server creates a dedicated goroutine for each connection.
//	Requests of a single connection are handled in order.
package base
