package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/rKV/lib/key"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key (e.g. users/42/name)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k := key.Parse(args[0])
			value, ok := localStore.Get(k)
			fmt.Printf("key=%s, found=%v, value=%s\n", k.Path(), ok, formatValue(value, ok))
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list [prefix]",
		Short: "Lists all keys below a prefix (all keys if omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var prefix key.Key
			if len(args) == 1 {
				prefix = key.Parse(args[0])
			}
			snap := localStore.GetPrefix(prefix)
			for _, k := range snap.Keys() {
				fmt.Printf("%s=%s\n", k.Path(), formatValue(snap[k], true))
			}
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key and publishes it to the channel",
		Long:  `Sets the value for a key. The value is parsed as JSON (e.g. 42, true, {"a":1}), values that are no valid JSON are stored as a string.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			localStore.Mutate(key.Parse(args[0]), parseValue(args[1]))
			fmt.Println("set successfully")
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear [prefix]",
		Short: "Clears all keys below a prefix in the local store",
		Long:  `Clears all keys below a prefix in the local store. Clearing is not propagated to the other members of the channel.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var prefix key.Key
			if len(args) == 1 {
				prefix = key.Parse(args[0])
			}
			n := len(localStore.GetPrefix(prefix))
			localStore.Clear(prefix)
			fmt.Printf("cleared %d keys locally\n", n)
			return nil
		},
	}
	watchCmd = &cobra.Command{
		Use:   "watch [key]",
		Short: "Prints every change of a key until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k := key.Parse(args[0])
			h := localStore.Subscribe(k, func(value any, ok bool) {
				fmt.Printf("key=%s, found=%v, value=%s\n", k.Path(), ok, formatValue(value, ok))
			})
			defer localStore.Unsubscribe(h)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)
			<-sig
			return nil
		},
	}
)

// parseValue parses a command line value as JSON, falling back to the raw string
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// formatValue renders a value as JSON
func formatValue(value any, ok bool) string {
	if !ok {
		return "<none>"
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(b)
}
