// Package rpc connects stores in different processes. It implements the hub,
// a relay for store snapshots, and the client side sync channel that bridges
// a store to a hub.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, WebSocket), supporting requests and server pushes.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: The sync channel implementation used by syncbridge.Bridge to
//     exchange snapshots through a hub.
//
//   - server: The hub, which relays snapshots between the subscribers of named
//     channels and retains the last snapshot of every channel.
package rpc
