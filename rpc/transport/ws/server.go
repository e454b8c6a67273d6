package ws

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

// ServerTransport serves the hub protocol over websocket connections.
// Besides the websocket route, arbitrary http routes can be added through
// Router (e.g. metrics and health checks).
type ServerTransport struct {
	handler      transport.ServerHandleFunc
	onDisconnect transport.ServerDisconnectFunc
	config       common.ServerConfig
	router       chi.Router
	upgrader     websocket.Upgrader

	mu       sync.Mutex // protects server, listener, closed and conns
	server   *http.Server
	listener net.Listener
	closed   bool
	conns    map[uint64]*serverConn

	nextConnID atomic.Uint64
}

// serverConn is a single websocket connection, it implements transport.Peer
type serverConn struct {
	id      uint64
	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla connections support one concurrent writer
	timeout time.Duration
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewWebsocketServerTransport creates a new websocket server transport
func NewWebsocketServerTransport() *ServerTransport {
	t := &ServerTransport{
		router: chi.NewRouter(),
		conns:  make(map[uint64]*serverConn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // clients are not browsers
			},
		},
	}
	t.router.Get(WebsocketPath, t.handleWebSocket)
	return t
}

// Router returns the router of the transport to register additional routes.
func (t *ServerTransport) Router() chi.Router {
	return t.router
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *ServerTransport) RegisterHandler(handler transport.ServerHandleFunc, onDisconnect transport.ServerDisconnectFunc) {
	t.handler = handler
	t.onDisconnect = onDisconnect
}

func (t *ServerTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	listener, err := net.Listen("tcp", config.Transport.Endpoint)
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
	t.server = &http.Server{Handler: t.router}
	server := t.server
	t.mu.Unlock()

	Logger.Infof("Starting ws server on %s%s", listener.Addr(), WebsocketPath)

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (t *ServerTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

func (t *ServerTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	server := t.server
	conns := make([]*serverConn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	var err error
	if server != nil {
		// hijacked websocket connections are not closed by the http server
		err = server.Close()
	}
	for _, c := range conns {
		c.conn.Close()
	}
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleWebSocket upgrades the request and handles the requests of the connection in order
func (t *ServerTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Logger.Warningf("Websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

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

	Logger.Debugf("Accepted websocket connection %d from %s", c.id, r.RemoteAddr)

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				Logger.Debugf("Connection %d closed by client", c.id)
			} else {
				Logger.Debugf("Error reading from connection %d: %v", c.id, err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			Logger.Warningf("Ignoring non-binary message on connection %d", c.id)
			continue
		}

		requestID, data, err := decodeFrame(frame)
		if err != nil {
			Logger.Errorf("Invalid frame on connection %d: %v", c.id, err)
			return
		}

		resp := t.handler(c, data)
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

func (c *serverConn) write(requestID uint64, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, encodeFrame(requestID, data))
}
