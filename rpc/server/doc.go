// Package server implements a small server for the wire contract of the service
// cluster. It is not the service itself; it exists to run clients against
// something real (tests, the serve command, local development).
//
// Requests are decoded with the serializer and dispatched by their route:
//
//   - members: answers id -> {addr, port} for the configured peers
//   - missing: records the reported member, see Missing
//   - any route registered with Handle
//   - everything else is echoed back unchanged
//
// RegisterMemoryStore adds in-memory handlers for the key/value routes used by
// the client convenience methods. PING, PONG and SHUTDOWN never reach the
// route handlers, they are handled by the transport.
//
// Thread Safety:
//
//	The server handles connections concurrently; route handlers must be safe
//	for concurrent use. Frames of one connection are handled in order.
package server
