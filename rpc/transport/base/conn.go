package base

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/relock/sentinel/rpc/common"
	"github.com/relock/sentinel/rpc/serializer"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	// A timeout of 0 uses the OS default
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g. "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Connection
// -----------------------------------------------------------

// ConnState is the state of a Connection
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// ConnOptions bundles everything a Connection shares with its Pool
type ConnOptions struct {
	Connector  IClientConnector
	Serializer serializer.IRPCSerializer
	Config     common.ClientConfig
	// IOLock serializes all frame reads and writes of every connection it is passed to
	IOLock *sync.Mutex
}

// Connection is one lazily connected socket to one address.
// Exchanges on the same Connection are serialized, a request frame is always
// followed by exactly one response frame before the next request is written.
type Connection struct {
	id      uint64
	addr    string
	options ConnOptions

	callMu sync.Mutex // held for a whole exchange or probe

	mu     sync.Mutex // protects the fields below
	conn   net.Conn
	state  ConnState
	expire time.Time

	closeOnce sync.Once
	closeErr  error
}

// NewConnection creates a disconnected connection, use Connect or any exchange to open it
func NewConnection(id uint64, addr string, options ConnOptions) *Connection {
	c := &Connection{
		id:      id,
		addr:    addr,
		options: options,
		state:   StateDisconnected,
	}
	c.Renew()
	return c
}

// ID returns the ordinal id of the connection within its pool
func (c *Connection) ID() uint64 {
	return c.id
}

// Addr returns the address the connection was created for
func (c *Connection) Addr() string {
	return c.addr
}

// State returns the current state
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Expired reports whether the connection passed its expiry timestamp
func (c *Connection) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().After(c.expire)
}

// Renew moves the expiry timestamp one expiry period into the future
func (c *Connection) Renew() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expire = time.Now().Add(c.options.Config.ConnExpire())
}

// Connect opens the socket if it is not open yet.
// Refusal and timeouts are returned as common.ErrHostDown, they are not retried here.
func (c *Connection) Connect() error {
	_, err := c.ensureConnected()
	return err
}

// Call writes one request frame for the route and reads exactly one response frame
func (c *Connection) Call(route string, kwargs map[string]any) (common.Response, error) {
	payload, err := c.options.Serializer.EncodeRequest(route, kwargs)
	if err != nil {
		return common.Response{}, err
	}
	return c.Send(payload)
}

// Send writes one raw payload as a frame and reads exactly one response frame
func (c *Connection) Send(payload []byte) (common.Response, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	frame, err := c.exchange(payload)
	if err != nil {
		return common.Response{}, err
	}
	return c.options.Serializer.Decode(frame), nil
}

// Alive is the liveness probe. It connects lazily, sends PING and waits a short
// time for the answer: PONG means alive, no data yet means tentatively alive, any
// error means dead. A dead connection is moved to StateDisconnected.
func (c *Connection) Alive() bool {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	err := c.probe()
	if err != nil {
		Logger.Debugf("Liveness probe of connection %d to %s failed: %v", c.id, c.addr, err)
		c.markBroken(err)
		return false
	}
	return true
}

// Close sends a best-effort SHUTDOWN and closes the socket. Close is idempotent.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn, state := c.conn, c.state
		c.conn = nil
		c.state = StateClosed
		c.mu.Unlock()

		if conn == nil {
			return
		}

		// never wait for the i/o lock here, another exchange may block on it
		if state == StateConnected && c.options.IOLock.TryLock() {
			_ = conn.SetWriteDeadline(time.Now().Add(c.options.Config.ProbeTimeout()))
			_ = writeFrame(conn, common.TokenShutdown)
			c.options.IOLock.Unlock()
		}

		c.closeErr = conn.Close()
		Logger.Debugf("Client disconnected from server %s (connection %d)", c.addr, c.id)
	})
	return c.closeErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// ensureConnected returns the open socket, connecting first if needed
func (c *Connection) ensureConnected() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return nil, common.ErrConnectionClosed
	case StateConnected:
		return c.conn, nil
	}

	c.state = StateConnecting
	conn, err := c.options.Connector.Connect(c.addr, c.options.Config.Timeout())
	if err != nil {
		c.state = StateDisconnected
		Logger.Debugf("Connection refused %s, host is down: %v", c.addr, err)
		return nil, fmt.Errorf("%w: %s: %v", common.ErrHostDown, c.addr, err)
	}

	if err := c.options.Connector.UpgradeConnection(conn, c.options.Config); err != nil {
		_ = conn.Close()
		c.state = StateDisconnected
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", c.addr, err)
	}

	c.conn = conn
	c.state = StateConnected
	return conn, nil
}

// markBroken drops the socket after a transport fault, the next exchange reconnects
func (c *Connection) markBroken(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	Logger.Debugf("Connection %d to %s disconnected: %v", c.id, c.addr, cause)
}

// setDeadline applies the configured i/o timeout, or clears the deadline if none is configured
func (c *Connection) setDeadline(conn net.Conn) {
	if timeout := c.options.Config.Timeout(); timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	} else {
		_ = conn.SetDeadline(time.Time{})
	}
}

// writeLocked writes one frame while holding the shared i/o lock
func (c *Connection) writeLocked(conn net.Conn, payload []byte) error {
	c.options.IOLock.Lock()
	c.setDeadline(conn)
	err := writeFrame(conn, payload)
	c.options.IOLock.Unlock()
	runtime.Gosched()
	return err
}

// exchange writes one frame and returns the next application frame.
// PING frames are answered inline, stray PONG frames (late answers to a tentative probe) are skipped.
// The caller must hold callMu.
func (c *Connection) exchange(payload []byte) ([]byte, error) {
	conn, err := c.ensureConnected()
	if err != nil {
		return nil, err
	}

	if err := c.writeLocked(conn, payload); err != nil {
		c.markBroken(err)
		return nil, err
	}

	for {
		c.options.IOLock.Lock()
		c.setDeadline(conn)
		frame, err := readFrame(conn, nil)
		if err == nil && common.IsToken(frame, common.TokenPing) {
			err = writeFrame(conn, common.TokenPong)
		}
		c.options.IOLock.Unlock()
		runtime.Gosched()

		if err != nil {
			c.markBroken(err)
			return nil, err
		}

		switch {
		case common.IsToken(frame, common.TokenPing), common.IsToken(frame, common.TokenPong):
			continue
		case common.IsToken(frame, common.TokenShutdown):
			Logger.Infof("Server %s requested shutdown of connection %d", c.addr, c.id)
			c.markBroken(common.ErrShutdown)
			return nil, common.ErrShutdown
		default:
			return frame, nil
		}
	}
}

// probe performs the PING/PONG exchange. The caller must hold callMu.
func (c *Connection) probe() error {
	conn, err := c.ensureConnected()
	if err != nil {
		return err
	}

	if err := c.writeLocked(conn, common.TokenPing); err != nil {
		return err
	}

	c.options.IOLock.Lock()
	defer func() {
		c.options.IOLock.Unlock()
		runtime.Gosched()
	}()

	// a short read: no data within the probe timeout counts as tentatively alive
	var header [headerSize]byte
	_ = conn.SetReadDeadline(time.Now().Add(c.options.Config.ProbeTimeout()))
	n, err := io.ReadFull(conn, header[:])
	if err != nil {
		if n == 0 && errors.Is(err, os.ErrDeadlineExceeded) {
			c.setDeadline(conn)
			return nil
		}
		return err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", length)
	}
	c.setDeadline(conn)
	frame := make([]byte, length)
	if _, err := io.ReadFull(conn, frame); err != nil {
		return err
	}

	switch {
	case common.IsToken(frame, common.TokenPong):
		return nil
	case common.IsToken(frame, common.TokenPing):
		return writeFrame(conn, common.TokenPong)
	case common.IsToken(frame, common.TokenShutdown):
		return common.ErrShutdown
	default:
		return fmt.Errorf("%w: socket did not reply with PONG", common.ErrNotAlive)
	}
}
