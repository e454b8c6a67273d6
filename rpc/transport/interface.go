package transport

import (
	"github.com/ValentinKolb/rKV/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// Peer is the server side view of a single client connection
type Peer interface {
	// ID returns the id of the connection, unique within the server transport
	ID() uint64
	// Push sends an unsolicited frame to the client
	// It is safe to call Push concurrently with the request handling of the connection
	Push(data []byte) error
}

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes the requesting peer and the request as parameters and returns a response
// Requests of one connection are handled one after another in the order they were sent
// The request buffer is only valid until the function returns
type ServerHandleFunc func(peer Peer, req []byte) (resp []byte)

// ServerDisconnectFunc is called once after the connection of a peer was closed
type ServerDisconnectFunc func(peer Peer)

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a ServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers the handlers for the transport layer
	// The handler should be called when a request is received, onDisconnect
	// after a connection was closed
	RegisterHandler(handler ServerHandleFunc, onDisconnect ServerDisconnectFunc)
	// Listen starts the transport layer and listens for incoming requests
	// It blocks until the transport is closed
	Listen(config common.ServerConfig) error
	// Addr returns the address the transport listens on, empty if it is not listening
	Addr() string
	// Close stops listening and closes all connections
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// PushHandleFunc handles frames pushed by the server
// It is called from the reader goroutine of the connection and must not block
type PushHandleFunc func(data []byte)

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// RegisterPushHandler registers the handler for frames pushed by the server
	// It must be called before Connect
	RegisterPushHandler(handler PushHandleFunc)
	// Send sends a request to the server and returns the response
	Send(req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
