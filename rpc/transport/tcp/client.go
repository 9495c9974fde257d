package tcp

import (
	"net"
	"syscall"
	"time"

	"github.com/relock/sentinel/rpc/common"
	"github.com/relock/sentinel/rpc/transport/base"
	"golang.org/x/sys/unix"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout: timeout,
		Control: reuseControl,
	}
	return dialer.Dial("tcp", endpoint)
}

// UpgradeConnection applies the TCPConf and SocketConf values of the client config
func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return upgrade(conn, config.Transport.TCPConf, config.Transport.SocketConf)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// reuseControl enables address and port reuse on a socket before it is connected
func reuseControl(_, _ string, rc syscall.RawConn) error {
	var sockErr error
	err := rc.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// upgrade applies performance and lifecycle options to a TCP connection
func upgrade(conn net.Conn, tcpConf common.TCPConf, sockConf common.SocketConf) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Disable Nagle's algorithm (TCPNoDelay) if configured
	if err := tcpConn.SetNoDelay(tcpConf.TCPNoDelay); err != nil {
		return err
	}

	if sockConf.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(sockConf.WriteBufferSize); err != nil {
			return err
		}
	}

	if sockConf.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(sockConf.ReadBufferSize); err != nil {
			return err
		}
	}

	if tcpConf.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		keepAlivePeriod := time.Duration(tcpConf.TCPKeepAliveSec) * time.Second
		if err := tcpConn.SetKeepAlivePeriod(keepAlivePeriod); err != nil {
			return err
		}
	}

	// only a positive linger is applied, 0 would discard unsent data on close
	if tcpConf.TCPLingerSec > 0 {
		if err := tcpConn.SetLinger(tcpConf.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Client Connector Factory Method
// --------------------------------------------------------------------------

// NewTCPClientConnector creates a new TCP connector for client pools
func NewTCPClientConnector() base.IClientConnector {
	return &clientConnector{}
}
