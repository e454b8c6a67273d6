package kv

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/lib/syncbridge"
	"github.com/ValentinKolb/rKV/rpc/client"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	localStore *store.Store
	channel    *client.RPCChannel
	bridge     *syncbridge.Bridge

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:   "kv",
		Short: "Join a sync channel and perform key-value operations",
		Long: `Join a sync channel of an rKV hub as an independent store instance.
The local store is seeded with the shared state of the channel before a
command runs, mutations are published to every other member of the channel.`,
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: teardownKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	KeyValueCommands.PersistentFlags().String("channel", syncbridge.DefaultChannelName, util.WrapString("Name of the sync channel to join"))
	KeyValueCommands.PersistentFlags().Int("sync-timeout", 1000, util.WrapString("How long to wait for the shared state of the channel (in milliseconds)"))
	KeyValueCommands.PersistentFlags().String("log-level", "error", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	// Add subcommands
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(listCmd)
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(clearCmd)
	KeyValueCommands.AddCommand(watchCmd)
}

// setupKVClient connects to the hub, bridges a fresh store to the channel and
// waits for the shared state
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	common.InitLoggers(viper.GetString("log-level"))

	// Get client configuration
	config := util.GetClientConfig()

	var err error
	channel, err = client.Dial(*config)
	if err != nil {
		return err
	}

	ch := newSyncedChannel(channel)
	localStore = store.New()
	bridge = syncbridge.New(localStore, ch, syncbridge.WithChannelName(viper.GetString("channel")))
	if err := bridge.Enable(); err != nil {
		channel.Close()
		return err
	}

	// an empty channel never delivers, the timeout is not an error
	timeout := time.Duration(viper.GetInt("sync-timeout")) * time.Millisecond
	select {
	case <-ch.synced:
	case <-time.After(timeout):
	}
	return nil
}

// teardownKVClient publishes pending mutations and leaves the channel
func teardownKVClient(_ *cobra.Command, _ []string) error {
	if bridge == nil {
		return nil
	}

	timeout := time.Duration(viper.GetInt("timeout")) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := bridge.Flush(ctx)
	bridge.Close()
	return errors.Join(err, channel.Close())
}

// syncedChannel reports the first payload delivered to the bridge
type syncedChannel struct {
	syncbridge.Channel
	once   sync.Once
	synced chan struct{}
}

func newSyncedChannel(ch syncbridge.Channel) *syncedChannel {
	return &syncedChannel{Channel: ch, synced: make(chan struct{})}
}

func (c *syncedChannel) Subscribe(name string, fn func(payload []byte)) (func(), error) {
	return c.Channel.Subscribe(name, func(payload []byte) {
		fn(payload)
		c.once.Do(func() { close(c.synced) })
	})
}
