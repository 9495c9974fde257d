// Package base provides the protocol-agnostic core of the transport layer: the
// frame format, the client side Connection and Pool, and a frame-serving server
// transport. Protocol specifics (dialing, listening, socket options) are injected
// through the IClientConnector and IServerConnector interfaces.
//
// Frame Format:
//
//	+----------------------+----------------------+
//	| length (4 bytes, BE) | payload (length B)   |
//	+----------------------+----------------------+
//
// The payloads PING, PONG and SHUTDOWN are reserved. A PING is answered with PONG
// by whichever side receives it and is never delivered to a caller or handler.
// SHUTDOWN closes the connection it arrives on without a reply.
//
// Key Components:
//
//   - Connection: one lazily connected socket to one address. An exchange writes
//     exactly one request frame and reads exactly one response frame. All frame
//     reads and writes are done while holding the IOLock from ConnOptions, a
//     single mutex that the owner shares between every Connection it creates.
//     Alive performs the PING/PONG liveness probe; a probe that gets no data
//     within the probe timeout counts as tentatively alive.
//
//   - Pool: a fixed-capacity set of Connections to one address. Next hands them
//     out round-robin, probes expired connections and replaces dead ones in the
//     same slot. A pool that can not produce a connection fails with
//     common.ErrPoolExhausted.
//
//   - serverTransport: accepts connections and hands every application frame to
//     the registered handler. Frames of one connection are handled in order.
//
// Thread Safety:
//
//	All exported methods are safe for concurrent use. Exchanges on the same
//	Connection are serialized, exchanges on different Connections interleave
//	frame by frame on the shared IOLock.
package base
