// Package tcp implements a TCP socket based transport for the hub protocol.
// It provides concrete implementations of the base package's connector
// interfaces.
//
// This package builds on the base package's transport functionality, inheriting its
// framing, buffer reuse and push delivery. See the base package documentation for
// detailed information on the underlying transport mechanisms.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector, applies
//     the socket settings (no delay, keep-alive, linger, buffer sizes) of the
//     transport configuration to accepted connections.
package tcp
