// Package common provides core data structures and utilities shared across
// the cluster client. It defines fundamental types, configuration structures,
// and protocol elements used by other packages.
//
// The package focuses on:
//   - Reserved protocol tokens (PING, PONG, SHUTDOWN) and reserved routes
//   - The Response result type returned by every call
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat's logger package
//   - Error classification (transport faults vs. everything else)
//
// Key Components:
//
//   - Response: Outcome of one exchange. Its Kind distinguishes a valid
//     response, a payload that could not be decoded, and the case where no
//     cluster member was reachable at all.
//
//   - Address / Member: Cluster member identity, and the entries of a members
//     response (decoded with mapstructure, so ports may arrive as numbers or
//     strings).
//
//   - ClientConfig: Static host list, pool size, refresh interval, liveness
//     check flag, retry and backoff parameters, socket settings.
//
//   - ServerConfig: Configuration of the wire-contract stub server.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system, with optional rotating file output.
package common
