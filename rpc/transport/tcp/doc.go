// Package tcp implements the TCP connectors of the wire protocol. It provides
// concrete implementations of the base package's connector interfaces.
//
// Key Components:
//
//   - clientConnector: dials with SO_REUSEADDR and SO_REUSEPORT enabled (set through
//     golang.org/x/sys/unix before connect) and an optional dial timeout. Used by
//     every base.Connection of a client pool.
//
//   - serverConnector: listens on the configured endpoint and upgrades accepted
//     connections. Used by the stub server in the rpc/server package.
//
// Both connectors apply the same socket options: TCP_NODELAY, keep-alive period,
// a positive linger and the read/write buffer sizes.
//
// The default server buffer size is 512 KB. Larger frames are read into a
// temporary buffer.
package tcp
