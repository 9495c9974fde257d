package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/relock/sentinel/rpc/common"
	"github.com/relock/sentinel/rpc/transport"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g. "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the server side of the wire protocol.
// Frames of one connection are handled strictly in order, since the protocol
// has no request ids to correlate out of order responses.
type serverTransport struct {
	connector  IServerConnector
	handler    transport.ServerHandleFunc
	config     common.ServerConfig
	listener   net.Listener
	listenerMu sync.RWMutex
	conns      *xsync.MapOf[net.Conn, struct{}]
	bufferPool *sync.Pool
	stopping   atomic.Bool
	done       chan struct{}
	wg         sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport
func NewBaseServerTransport(connector IServerConnector, bufferSize int) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		conns:     xsync.NewMapOf[net.Conn, struct{}](),
		done:      make(chan struct{}),
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, bufferSize)
			},
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Start(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	t.listenerMu.Lock()
	t.listener = listener
	t.listenerMu.Unlock()

	Logger.Infof("Starting %s server on %s", t.connector.GetName(), listener.Addr())

	t.wg.Add(1)
	go t.acceptLoop(listener)
	return nil
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if err := t.Start(config); err != nil {
		return err
	}
	<-t.done
	return nil
}

func (t *serverTransport) Addr() net.Addr {
	t.listenerMu.RLock()
	defer t.listenerMu.RUnlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *serverTransport) Close() error {
	if !t.stopping.CompareAndSwap(false, true) {
		return nil
	}

	var result *multierror.Error

	t.listenerMu.RLock()
	listener := t.listener
	t.listenerMu.RUnlock()
	if listener != nil {
		if err := listener.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	t.conns.Range(func(conn net.Conn, _ struct{}) bool {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
		return true
	})

	t.wg.Wait()
	close(t.done)
	return result.ErrorOrNil()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// acceptLoop accepts connections until the listener is closed
func (t *serverTransport) acceptLoop(listener net.Listener) {
	defer t.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.stopping.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		t.conns.Store(conn, struct{}{})
		t.wg.Add(1)
		go t.handleConnection(conn)
	}
}

// handleConnection handles incoming frames for one connection
func (t *serverTransport) handleConnection(conn net.Conn) {
	defer func() {
		t.conns.Delete(conn)
		_ = conn.Close()
		t.wg.Done()
	}()

	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	// handleFrame processes one frame, it returns false if the connection must be closed
	handleFrame := func() (bool, error) {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return false, fmt.Errorf("failed to set read deadline: %w", err)
			}
		}

		buf := t.bufferPool.Get().([]byte)
		defer t.bufferPool.Put(buf)

		data, err := readFrame(conn, buf)
		if err != nil {
			return false, err
		}

		var resp []byte
		switch {
		case common.IsToken(data, common.TokenPing):
			resp = common.TokenPong
		case common.IsToken(data, common.TokenPong):
			return true, nil
		case common.IsToken(data, common.TokenShutdown):
			Logger.Debugf("Client %s requested shutdown", conn.RemoteAddr())
			return false, nil
		default:
			start := time.Now()
			resp = t.handler(data)
			Logger.Debugf("Processed request from %s took %s", conn.RemoteAddr(), time.Since(start))
		}

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				return false, fmt.Errorf("failed to set write deadline: %w", err)
			}
		}
		return true, writeFrame(conn, resp)
	}

	for {
		keep, err := handleFrame()

		// Case EOF: Connection closed by client
		if errors.Is(err, io.EOF) {
			Logger.Debugf("Connection closed by client %s", conn.RemoteAddr())
			return
		}

		// Case error: log and close connection
		if err != nil {
			if !t.stopping.Load() {
				Logger.Errorf("Error handling request: %v", err)
			}
			return
		}

		if !keep {
			return
		}
	}
}
