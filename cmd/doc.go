// Package cmd implements the command-line interface of sentinel. It provides a
// hierarchical command structure for talking to the service cluster and for
// running a local stub server.
//
// The package is organized into several subpackages:
//
//   - cluster: call, members, ping and stats commands
//   - kv: Commands for key-value operations (get, set, del, has, keys, ttl, expire, perf)
//   - serve: Starts a stub server speaking the wire protocol
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through the environment with the RELOCK_ prefix
// (e.g. RELOCK_SERVICE_ENDPOINTS, RELOCK_SERVICE_POOL, RELOCK_SERVICE_PING) or
// in a .env / .env.local file.
//
// See sentinel -help for a list of all commands.
package cmd
