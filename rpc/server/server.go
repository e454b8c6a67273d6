package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/go-chi/chi/v5"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("hub")

// routerTransport is implemented by transports that serve http themselves
// (e.g. ws), the metrics routes are mounted on their router as well
type routerTransport interface {
	Router() chi.Router
}

// NewRPCServer creates a new hub
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created hub")
	Logger.Infof("%s", config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		adapter:    NewChannelServerAdapter(serializer),
	}
}

// RPCServer relays snapshots between the clients connected through its transport.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	adapter    IRPCServerAdapter

	mu            sync.Mutex
	metricsServer *http.Server
	metricsAddr   string
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(peer transport.Peer, req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		// Decode the request
		if err := s.serializer.Deserialize(req, &msg); err != nil {
			invalidTotal.Inc()
			respMsg = common.NewErrorResponse("failed to deserialize request: %s", err)
		} else {
			// Let the adapter handle the request
			respMsg = s.adapter.Handle(peer, &msg)
		}

		// Return result
		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse("failed to serialize response: %s", err))
		}
		return val
	}, s.adapter.Disconnected)
}

func (s *RPCServer) init() error {

	// Init logger
	if s.config.LogLevel != "" {
		common.InitLoggers(s.config.LogLevel)
	}

	// Routes on the transport itself
	if rt, ok := s.transport.(routerTransport); ok {
		mountRoutes(rt.Router())
	}

	// Dedicated metrics server
	if s.config.MetricsEndpoint != "" {
		listener, err := net.Listen("tcp", s.config.MetricsEndpoint)
		if err != nil {
			return fmt.Errorf("failed to listen on metrics endpoint: %w", err)
		}

		r := chi.NewRouter()
		mountRoutes(r)
		server := &http.Server{
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}

		s.mu.Lock()
		s.metricsServer = server
		s.metricsAddr = listener.Addr().String()
		s.mu.Unlock()

		go func() {
			Logger.Infof("Serving metrics on %s", listener.Addr())
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Logger.Errorf("metrics server failed: %v", err)
			}
		}()
	}

	Logger.Infof("rKV hub setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// Serve starts the hub
// This function initializes the loggers and the metrics server and blocks
// while the transport layer is listening
func (s *RPCServer) Serve() error {
	err := s.init()
	if err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Addr returns the address the transport listens on, empty if it is not listening yet
func (s *RPCServer) Addr() string {
	return s.transport.Addr()
}

// MetricsAddr returns the address of the metrics server, empty if it is disabled
func (s *RPCServer) MetricsAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metricsAddr
}

// Close stops the transport and the metrics server. Serve returns afterwards.
func (s *RPCServer) Close() error {
	s.mu.Lock()
	server := s.metricsServer
	s.metricsServer = nil
	s.mu.Unlock()

	err := s.transport.Close()
	if server != nil {
		err = errors.Join(err, server.Close())
	}
	return err
}
