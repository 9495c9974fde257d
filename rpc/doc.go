// Package rpc provides a fault-tolerant client for a cluster of servers that
// speak a length-prefixed request/response protocol over TCP.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the system,
//     including the protocol tokens, the Response type, configuration
//     structures, errors and logging.
//
//   - serializer: Frame payload encoding (JSON objects, raw bytes and the
//     True/False/None literals) and response classification.
//
//   - transport: The frame codec, connections, connection pools and the
//     server side transport, with a TCP implementation.
//
//   - cluster: Servers (one pool per member) and the thread-safe cluster
//     index with round-robin selection and pruning of dead members.
//
//   - client: The dispatcher, which routes calls to members, retries on
//     transport faults, refreshes membership in the background and rebuilds
//     the cluster from the static host list when every member is gone.
//
//   - server: A stub server implementing the members and missing routes,
//     used for local testing and by the serve command.
package rpc
