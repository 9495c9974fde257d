package transport

import (
	"net"

	"github.com/relock/sentinel/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer for every frame that is
// not a reserved protocol token. It takes the request payload and returns the
// response payload, which is sent back as exactly one frame.
type ServerHandleFunc func(req []byte) (resp []byte)

// IRPCServerTransport is the interface for the server side of the wire protocol
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	RegisterHandler(handler ServerHandleFunc)
	// Start creates the listener and accepts connections in the background
	Start(config common.ServerConfig) error
	// Listen starts the transport layer and blocks until it is closed
	Listen(config common.ServerConfig) error
	// Addr returns the address of the listener (nil before Start)
	Addr() net.Addr
	// Close stops accepting and closes all open connections
	Close() error
}
