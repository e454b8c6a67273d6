package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// TransportType names a transport implementation (see rpc/transport)
type TransportType string

const (
	TransportTCP       TransportType = "tcp"
	TransportUnix      TransportType = "unix"
	TransportWebsocket TransportType = "ws"
)

// SerializerType names a serializer implementation (see rpc/serializer)
type SerializerType string

const (
	SerializerJSON   SerializerType = "json"
	SerializerGOB    SerializerType = "gob"
	SerializerBinary SerializerType = "binary"
)

// TransportConfig holds the socket level settings shared by server and client
type TransportConfig struct {
	// Endpoint is the address to listen on / connect to (host:port or socket path)
	Endpoint string
	// Type of the transport
	Type TransportType

	// Socket settings (tcp only)
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
	WriteBufferSize int
	ReadBufferSize  int

	// BufferSize is the size of the pooled frame buffers
	BufferSize int
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of a hub.
type ServerConfig struct {
	Transport TransportConfig

	// Serializer used for all messages
	Serializer SerializerType

	// TimeoutSecond is the write deadline of a connection, 0 disables it
	TimeoutSecond int64

	// MetricsEndpoint is the address of the http server that exposes /metrics
	// and /healthz. Empty disables the server. For the ws transport the routes
	// are served on the transport endpoint as well.
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Transport", string(c.Transport.Type))
	addField("Serializer", string(c.Serializer))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	if c.Transport.Type == TransportTCP {
		addSection("TCP")
		addField("No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))
		addField("Keep Alive", fmt.Sprintf("%d sec", c.Transport.TCPKeepAliveSec))
		addField("Linger", fmt.Sprintf("%d sec", c.Transport.TCPLingerSec))
	}

	// Metrics
	addSection("Metrics")
	if c.MetricsEndpoint == "" {
		addField("Endpoint", "disabled")
	} else {
		addField("Endpoint", c.MetricsEndpoint)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds all configuration parameters of a hub client.
type ClientConfig struct {
	Transport TransportConfig

	// Serializer used for all messages, must match the hub
	Serializer SerializerType

	// TimeoutSecond bounds every request, 0 disables the timeout
	TimeoutSecond int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Transport", string(c.Transport.Type))
	addField("Serializer", string(c.Serializer))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	return sb.String()
}
