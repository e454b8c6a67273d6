package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/ValentinKolb/rKV/rpc/transport/tcp"
	"github.com/ValentinKolb/rKV/rpc/transport/unix"
	"github.com/ValentinKolb/rKV/rpc/transport/ws"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of a single request to the hub"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the rKV hub (e.g. localhost:8080, /tmp/rkv.sock)"))

	SetupSocketFlags(cmd)
}

// SetupSocketFlags adds the socket settings shared by hub and client to a command
func SetupSocketFlags(cmd *cobra.Command) {
	key := "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB, tcp only)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB, tcp only)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY for the transport (tcp only)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval for the transport (in seconds, tcp only)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time for the transport (in seconds, tcp only)"))
}

// InitConfig loads the env files and makes viper read RKV_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("rkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetTransportConfig reads the transport configuration from viper
func GetTransportConfig() common.TransportConfig {
	return common.TransportConfig{
		Endpoint:        viper.GetString("endpoint"),
		Type:            common.TransportType(viper.GetString("transport")),
		TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
		ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
	}
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Transport:     GetTransportConfig(),
		Serializer:    common.SerializerType(viper.GetString("serializer")),
		TimeoutSecond: viper.GetInt("timeout"),
	}
}

// GetServerTransport creates the hub transport of the given type
func GetServerTransport(t common.TransportType) (transport.IRPCServerTransport, error) {
	switch t {
	case common.TransportTCP:
		return tcp.NewTCPServerTransport(), nil
	case common.TransportUnix:
		return unix.NewUnixServerTransport(), nil
	case common.TransportWebsocket:
		return ws.NewWebsocketServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", t)
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
