package client

import (
	"fmt"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/ValentinKolb/rKV/rpc/transport/tcp"
	"github.com/ValentinKolb/rKV/rpc/transport/unix"
	"github.com/ValentinKolb/rKV/rpc/transport/ws"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// invokeRPCRequest is a helper function used to send requests to the hub
// It takes a request message, a transport layer and a serializer as parameters
// It returns the response message and an error if any occurs
// This method also checks if the response is an error response
func invokeRPCRequest(req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s request: %w", req.MsgType, err)
	}

	// Send the request
	respBytes, err := transport.Send(reqBytes)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", req.MsgType, err)
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("failed to deserialize %s response: %w", req.MsgType, err)
	}

	// Check if the response is an error response
	if err := resp.AsError(); err != nil {
		return nil, err
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != common.MsgTSuccess {
		return nil, fmt.Errorf("unexpected message type: %s, expected %s", resp.MsgType, common.MsgTSuccess)
	}

	return resp, nil
}

// NewTransport creates the client transport of the given type
func NewTransport(t common.TransportType) (transport.IRPCClientTransport, error) {
	switch t {
	case common.TransportTCP:
		return tcp.NewTCPClientTransport(), nil
	case common.TransportUnix:
		return unix.NewUnixClientTransport(), nil
	case common.TransportWebsocket:
		return ws.NewWebsocketClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %q", t)
	}
}

// Dial creates the transport and serializer named in config and connects a
// channel to the hub.
func Dial(config common.ClientConfig) (*RPCChannel, error) {
	t, err := NewTransport(config.Transport.Type)
	if err != nil {
		return nil, err
	}
	s, err := serializer.New(config.Serializer)
	if err != nil {
		return nil, err
	}
	return NewRPCChannel(config, t, s)
}
