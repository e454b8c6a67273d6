package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/transport"
)

const defaultBufferSize = 64 * 1024 // 64 KB

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector    IServerConnector
	handler      transport.ServerHandleFunc
	onDisconnect transport.ServerDisconnectFunc
	config       common.ServerConfig
	bufferPool   *sync.Pool

	mu       sync.Mutex // protects listener, closed and conns
	listener net.Listener
	closed   bool
	conns    map[uint64]*serverConn

	nextConnID atomic.Uint64
}

// serverConn is a single accepted connection, it implements transport.Peer
type serverConn struct {
	id      uint64
	conn    net.Conn
	writeMu sync.Mutex // protects writes to the connection
	timeout time.Duration
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with the specified connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		conns:     make(map[uint64]*serverConn),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc, onDisconnect transport.ServerDisconnectFunc) {
	t.handler = handler
	t.onDisconnect = onDisconnect
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	bufferSize := config.Transport.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	t.bufferPool = &sync.Pool{
		New: func() interface{} {
			return make([]byte, bufferSize)
		},
	}

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		listener.Close()
		return nil
	}
	t.listener = listener
	t.mu.Unlock()

	Logger.Infof("Starting %s server on %s", t.connector.GetName(), listener.Addr())

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		if err := t.connector.UpgradeConnection(conn, config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		// Handle the connection in a goroutine
		go t.handleConnection(conn)
	}
}

func (t *serverTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

func (t *serverTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	listener := t.listener
	conns := make([]*serverConn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	for _, c := range conns {
		c.conn.Close()
	}
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *serverTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// handleConnection handles incoming requests for one connection
// Requests are handled one after another so the order of a connection is preserved
func (t *serverTransport) handleConnection(conn net.Conn) {
	c := &serverConn{
		id:      t.nextConnID.Add(1),
		conn:    conn,
		timeout: time.Duration(t.config.TimeoutSecond) * time.Second,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conns[c.id] = c
	t.mu.Unlock()

	defer func() {
		conn.Close()

		t.mu.Lock()
		delete(t.conns, c.id)
		t.mu.Unlock()

		if t.onDisconnect != nil {
			t.onDisconnect(c)
		}
	}()

	Logger.Debugf("Accepted connection %d from %s", c.id, conn.RemoteAddr())

	for {
		// Get a buffer from the pool
		buf := t.bufferPool.Get().([]byte)

		// Read the frame with requestID
		// No read deadline: subscribers may stay idle for a long time
		requestID, data, err := readFrame(conn, buf)

		// Case EOF: Connection closed by client
		if err == io.EOF {
			t.bufferPool.Put(buf)
			Logger.Debugf("Connection %d closed by client", c.id)
			return
		}

		// Case error: log and close connection
		if err != nil {
			t.bufferPool.Put(buf)
			if !t.isClosed() {
				Logger.Errorf("Error reading request on connection %d: %v", c.id, err)
			}
			return
		}

		// Process the request
		start := time.Now()
		resp := t.handler(c, data)
		t.bufferPool.Put(buf)
		Logger.Debugf("Processed request %d on connection %d in %s", requestID, c.id, time.Since(start))

		// Write the response with the same requestID
		if err := c.write(requestID, resp); err != nil {
			Logger.Errorf("Failed to write response on connection %d: %v", c.id, err)
			return
		}
	}
}

// --------------------------------------------------------------------------
// Peer Methods (docu see transport.Peer)
// --------------------------------------------------------------------------

func (c *serverConn) ID() uint64 {
	return c.id
}

func (c *serverConn) Push(data []byte) error {
	return c.write(pushRequestID, data)
}

// write writes a single frame, protected by the write mutex
func (c *serverConn) write(requestID uint64, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	return writeFrame(c.conn, requestID, data)
}
