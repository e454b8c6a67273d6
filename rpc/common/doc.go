// Package common provides the data structures and utilities shared by the hub,
// its clients and the command line interface.
//
// The package focuses on:
//   - Message protocol definition for the communication between hub and clients
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with the dragonboat logger facade
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication, with a flexible
//     structure that adapts to different operation types. Includes factory
//     methods for creating the various requests, responses and pushes.
//
//   - MessageType: Enumeration defining all supported operation types,
//     categorized into channel operations, pushes and control messages.
//
//   - ServerConfig: Configuration of a hub, including transport, serializer,
//     timeouts and the metrics endpoint.
//
//   - ClientConfig: Configuration for client components, controlling the
//     connection parameters and timeouts.
//
//   - Logger: Custom logging implementation that plugs into dragonboat's
//     logging facade while providing consistent formatting across the application.
package common
