package ws

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrNotConnected is returned when sending on a transport without an open connection
var ErrNotConnected = errors.New("ws: not connected")

type responseResult struct {
	data []byte
	err  error
}

// clientTransport implements transport.IRPCClientTransport over a single
// websocket connection
type clientTransport struct {
	config       common.ClientConfig
	push         transport.PushHandleFunc
	requestChans *xsync.MapOf[uint64, chan responseResult]

	writeMu sync.Mutex // gorilla connections support one concurrent writer
	conn    *websocket.Conn

	nextRequestID atomic.Uint64
	stopping      atomic.Bool
	done          chan struct{}
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewWebsocketClientTransport creates a new websocket client transport
func NewWebsocketClientTransport() transport.IRPCClientTransport {
	return &clientTransport{
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
	t.config = config

	url := endpointURL(config.Transport.Endpoint)
	dialer := *websocket.DefaultDialer
	if config.TimeoutSecond > 0 {
		dialer.HandshakeTimeout = time.Duration(config.TimeoutSecond) * time.Second
	}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	t.conn = conn
	t.done = make(chan struct{})

	Logger.Infof("Connected to %s using ws transport", url)

	go t.readResponses()
	return nil
}

func (t *clientTransport) Send(req []byte) ([]byte, error) {
	if t.conn == nil || t.stopping.Load() {
		return nil, ErrNotConnected
	}

	requestID := t.nextRequestID.Add(1)
	respCh := make(chan responseResult, 1)
	t.requestChans.Store(requestID, respCh)
	defer t.requestChans.Delete(requestID)

	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	t.writeMu.Lock()
	if timeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err := t.conn.WriteMessage(websocket.BinaryMessage, encodeFrame(requestID, req))
	t.writeMu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

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

	// Try to say goodbye, the hub may already be gone
	t.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	t.writeMu.Unlock()

	err := t.conn.Close()
	<-t.done
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *clientTransport) readResponses() {
	defer close(t.done)

	for {
		_, frame, err := t.conn.ReadMessage()
		if err != nil {
			if !t.stopping.Load() {
				Logger.Errorf("Connection to %s lost: %v", t.config.Transport.Endpoint, err)
			}
			return
		}

		requestID, data, err := decodeFrame(frame)
		if err != nil {
			Logger.Warningf("Dropping invalid frame: %v", err)
			continue
		}

		if requestID == pushRequestID {
			if t.push != nil {
				t.push(data)
			}
			continue
		}

		if respCh, found := t.requestChans.Load(requestID); found {
			respCh <- responseResult{data, nil}
		} else {
			Logger.Warningf("Received response for unknown request ID %d", requestID)
		}
	}
}

// endpointURL turns host:port into the websocket url of the hub
func endpointURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return endpoint
	}
	return "ws://" + endpoint + WebsocketPath
}
