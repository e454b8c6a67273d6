package server

import (
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/transport"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request of peer and returns a response
	// If an error occurs, it should be set in the response
	Handle(peer transport.Peer, req *common.Message) (resp *common.Message)
	// Disconnected releases everything held for peer
	Disconnected(peer transport.Peer)
}
