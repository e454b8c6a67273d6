// Package transport defines the interfaces and abstractions for the RPC
// communication between a hub and its clients. It provides a common contract
// that all transport implementations must fulfill, enabling protocol-agnostic
// communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Request/response correlation plus unsolicited pushes from server to client
//   - Enabling multiple transport implementations (TCP, Unix sockets, WebSocket)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management, request sending and push delivery.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to the registered handler.
//
//   - Peer: The server side view of a client connection, used to push frames.
package transport
