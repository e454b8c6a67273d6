package base

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// ErrNotConnected is returned when sending on a transport without an open connection
var ErrNotConnected = errors.New("transport: not connected")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection based on the provided configuration
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
//
// A client uses a single connection: subscriptions live on the hub side of a
// connection, so requests cannot be spread over several connections.
type clientTransport struct {
	connector    IClientConnector
	config       common.ClientConfig
	push         transport.PushHandleFunc
	requestChans *xsync.MapOf[uint64, chan responseResult]

	connMu sync.Mutex // protects writes to the connection
	conn   net.Conn

	nextRequestID atomic.Uint64 // Atomic counter for unique request IDs
	stopping      atomic.Bool   // Signals shutdown
	done          chan struct{} // Closed when the reader goroutine exits
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector:    connector,
		requestChans: xsync.NewMapOf[uint64, chan responseResult](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) RegisterPushHandler(handler transport.PushHandleFunc) {
	t.push = handler
}

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if config.Transport.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}
	if t.conn != nil {
		return fmt.Errorf("already connected")
	}

	// Store the config
	t.config = config

	conn, err := t.connector.Connect(config.Transport.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", config.Transport.Endpoint, err)
	}
	t.conn = conn
	t.done = make(chan struct{})

	Logger.Infof("Connected to %s using %s transport", config.Transport.Endpoint, t.connector.GetName())

	// Start the response reader
	go t.readResponses()
	return nil
}

func (t *clientTransport) Send(req []byte) (resp []byte, err error) {
	if t.conn == nil || t.stopping.Load() {
		return nil, ErrNotConnected
	}

	// Generate a unique request ID, 0 is reserved for pushes
	requestID := t.nextRequestID.Add(1)

	// Create a channel for the response
	respCh := make(chan responseResult, 1)

	// Register the request
	t.requestChans.Store(requestID, respCh)

	// Ensure we clean up when done
	defer t.requestChans.Delete(requestID)

	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	// Lock the connection only for writing
	t.connMu.Lock()
	if timeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err = writeFrame(t.conn, requestID, req)
	t.connMu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	// Wait for response or timeout
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case result := <-respCh:
		return result.data, result.err
	case <-t.done:
		return nil, ErrNotConnected
	case <-timeoutCh:
		return nil, fmt.Errorf("request timed out")
	}
}

func (t *clientTransport) Close() error {
	if t.conn == nil || !t.stopping.CompareAndSwap(false, true) {
		return nil
	}
	err := t.conn.Close()
	<-t.done
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// readResponses reads frames in a loop and distributes them to waiting requests
// or to the push handler
func (t *clientTransport) readResponses() {
	defer close(t.done)

	for {
		// No read deadline, pushes may arrive at any time
		requestID, data, err := readFrame(t.conn, nil)
		if err != nil {
			if !t.stopping.Load() {
				Logger.Errorf("Connection to %s lost: %v", t.config.Transport.Endpoint, err)
			}
			return
		}

		// Case push
		if requestID == pushRequestID {
			if t.push != nil {
				t.push(data)
			} else {
				Logger.Warningf("Dropping push, no handler registered")
			}
			continue
		}

		// Find the corresponding request channel
		if respCh, found := t.requestChans.Load(requestID); found {
			respCh <- responseResult{data, nil}
		} else {
			Logger.Warningf("Received response for unknown request ID %d", requestID)
		}
	}
}
