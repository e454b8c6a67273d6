package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/rKV/cmd/kv"
	"github.com/ValentinKolb/rKV/cmd/serve"
	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "rkv",
		Short: "reactive key-value store",
		Long: fmt.Sprintf(`rKV (v%s)

A reactive, hierarchical key-value store library written in Go.
Independent stores are kept in sync over named channels, either
in-process or across processes through an rKV hub.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of rKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rKV v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix, ws)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
