package serve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the rKV hub",
		Long:    `Start the rKV hub that relays store snapshots between clients. The configuration can be set via command line flags or environment variables. The format of the environment variables is RKV_<flag> (e.g. RKV_METRICS_ENDPOINT=0.0.0.0:9090)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the hub will listen (e.g. 0.0.0.0:8080, /tmp/rkv.sock, ...)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Write timeout of a connection in seconds (0 disables it)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address of the http server exposing /metrics and /healthz (empty disables it)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	cmdUtil.SetupSocketFlags(ServeCmd)
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Transport = cmdUtil.GetTransportConfig()
	serveCmdConfig.Serializer = common.SerializerType(viper.GetString("serializer"))
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	switch strings.ToLower(serveCmdConfig.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q (expected one of: debug, info, warn, error)", serveCmdConfig.LogLevel)
	}

	if serveCmdConfig.Transport.Endpoint == "" {
		return fmt.Errorf("no endpoint configured")
	}
	return nil
}

// run starts the rKV hub and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {

	// parse the serializer
	s, err := serializer.New(serveCmdConfig.Serializer)
	if err != nil {
		return err
	}

	// parse the transport
	t, err := cmdUtil.GetServerTransport(serveCmdConfig.Transport.Type)
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- serv.Serve() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		server.Logger.Infof("shutting down")
		return errors.Join(serv.Close(), <-errCh)
	}
}
