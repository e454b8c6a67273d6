// Package cmd implements the command-line interface of rKV. It provides a
// hierarchical command structure for running a hub and for joining a sync
// channel as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands that join a sync channel with a local store (get, list, set, clear, watch)
//   - serve: Commands for starting and configuring the rKV hub
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can be set through RKV_* environment variables or .env files.
// See rkv -help for a list of all commands.
package cmd
