package common

import (
	"errors"
	"io"
	"net"
	"syscall"
)

var (
	// ErrHostDown is returned when a connection to an address is refused or times out
	ErrHostDown = errors.New("host is down")
	// ErrPoolExhausted is returned when a pool has no usable connection and cannot create one
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrConnectionClosed is returned when a closed connection is used
	ErrConnectionClosed = errors.New("connection is closed")
	// ErrShutdown is returned when the peer sent SHUTDOWN
	ErrShutdown = errors.New("peer requested shutdown")
	// ErrNotAlive is returned when a liveness probe fails
	ErrNotAlive = errors.New("liveness probe failed")
	// ErrUnreachable is returned when a server candidate fails its pre-connect probe
	ErrUnreachable = errors.New("server is unreachable")
	// ErrNoEndpoints is returned when a client is configured without endpoints
	ErrNoEndpoints = errors.New("no endpoints provided")
	// ErrClusterEmpty is returned when a cluster has no member to hand out
	ErrClusterEmpty = errors.New("cluster has no members")
)

// IsTransportFault reports whether err means the server at the other end must be
// considered dead (refused, reset, closed, pool exhausted, timeout, ...)
func IsTransportFault(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrHostDown),
		errors.Is(err, ErrPoolExhausted),
		errors.Is(err, ErrConnectionClosed),
		errors.Is(err, ErrShutdown),
		errors.Is(err, ErrNotAlive),
		errors.Is(err, ErrUnreachable),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
