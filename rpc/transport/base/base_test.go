package base

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relock/sentinel/rpc/common"
	"github.com/relock/sentinel/rpc/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Test connectors (plain sockets, no socket options)
// --------------------------------------------------------------------------

type testClientConnector struct{}

func (c *testClientConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", endpoint, timeout)
}

func (c *testClientConnector) GetName() string { return "test" }

func (c *testClientConnector) UpgradeConnection(net.Conn, common.ClientConfig) error { return nil }

type testServerConnector struct{}

func (c *testServerConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	return net.Listen("tcp", config.Transport.Endpoint)
}

func (c *testServerConnector) GetName() string { return "test" }

func (c *testServerConnector) UpgradeConnection(net.Conn, common.ServerConfig) error { return nil }

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func testOptions() ConnOptions {
	config := common.ClientConfig{TimeoutSecond: 2}.WithDefaults()
	return ConnOptions{
		Connector:  &testClientConnector{},
		Serializer: serializer.NewJSONSerializer(),
		Config:     config,
		IOLock:     &sync.Mutex{},
	}
}

// startServer starts a frame server on a random loopback port
func startServer(t *testing.T, handler func([]byte) []byte) *serverTransport {
	t.Helper()
	return startServerAt(t, "127.0.0.1:0", handler)
}

// startServerAt starts a frame server on the given address
func startServerAt(t *testing.T, addr string, handler func([]byte) []byte) *serverTransport {
	t.Helper()
	srv := NewBaseServerTransport(&testServerConnector{}, 4096).(*serverTransport)
	srv.RegisterHandler(handler)
	require.NoError(t, srv.Start(common.ServerConfig{
		TimeoutSecond: 5,
		Transport:     common.ServerTransportConfig{Endpoint: addr},
	}))
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// closedAddr returns a loopback address nobody listens on
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func echo(req []byte) []byte { return req }

// --------------------------------------------------------------------------
// Frames
// --------------------------------------------------------------------------

// TestFrameRoundTrip tests that frames of different sizes survive a socket
func TestFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payloads := [][]byte{[]byte("PING"), {}, make([]byte, 70000)}
	go func() {
		for _, p := range payloads {
			_ = writeFrame(client, p)
		}
	}()

	buf := make([]byte, 16)
	for _, p := range payloads {
		frame, err := readFrame(server, buf)
		require.NoError(t, err)
		assert.Equal(t, p, frame)
	}
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// TestServerAnswersPing tests that a PING frame is answered with PONG and never reaches the handler
func TestServerAnswersPing(t *testing.T) {
	var handled atomic.Int32
	srv := startServer(t, func(req []byte) []byte {
		handled.Add(1)
		return req
	})

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, writeFrame(conn, common.TokenPing))
		frame, err := readFrame(conn, nil)
		require.NoError(t, err)
		assert.Equal(t, common.TokenPong, frame)
	}
	assert.Equal(t, int32(0), handled.Load())
}

// TestConnectionAnswersPing tests that a PING sent by the peer during an exchange is answered inline
func TestConnectionAnswersPing(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	gotPong := make(chan bool, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := readFrame(conn, nil); err != nil {
			return
		}
		// probe the client before answering
		_ = writeFrame(conn, common.TokenPing)
		frame, err := readFrame(conn, nil)
		gotPong <- err == nil && common.IsToken(frame, common.TokenPong)
		_ = writeFrame(conn, []byte(`{"answer":42}`))
	}()

	c := NewConnection(1, l.Addr().String(), testOptions())
	defer c.Close()

	resp, err := c.Call("question", nil)
	require.NoError(t, err)
	assert.Equal(t, common.ResponseOK, resp.Kind)
	assert.Equal(t, map[string]any{"answer": float64(42)}, resp.Value)
	assert.True(t, <-gotPong)
}

// TestConnectionLazyConnect tests that a connection only dials on first use
func TestConnectionLazyConnect(t *testing.T) {
	srv := startServer(t, echo)

	c := NewConnection(1, srv.Addr().String(), testOptions())
	defer c.Close()
	assert.Equal(t, StateDisconnected, c.State())

	resp, err := c.Call("hello", map[string]any{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, map[string]any{"route": "hello", "n": float64(1)}, resp.Value)

	assert.True(t, c.Alive())
}

// TestConnectionHostDown tests that a refused connection is reported as host down
func TestConnectionHostDown(t *testing.T) {
	c := NewConnection(1, closedAddr(t), testOptions())
	defer c.Close()

	err := c.Connect()
	require.ErrorIs(t, err, common.ErrHostDown)
	assert.True(t, common.IsTransportFault(err))
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.Alive())
}

// TestConnectionDecodeFailure tests that an undecodable response does not break the connection
func TestConnectionDecodeFailure(t *testing.T) {
	var calls atomic.Int32
	srv := startServer(t, func(req []byte) []byte {
		if calls.Add(1) == 1 {
			return []byte(`{"broken`)
		}
		return []byte("True")
	})

	c := NewConnection(1, srv.Addr().String(), testOptions())
	defer c.Close()

	resp, err := c.Call("first", nil)
	require.NoError(t, err)
	assert.Equal(t, common.ResponseDecodeFailure, resp.Kind)
	assert.Equal(t, []byte(`{"broken`), resp.Value)

	resp, err = c.Call("second", nil)
	require.NoError(t, err)
	assert.Equal(t, true, resp.Value)
}

// TestConnectionCloseSendsShutdown tests that the server drops the connection after SHUTDOWN
func TestConnectionCloseSendsShutdown(t *testing.T) {
	srv := startServer(t, echo)

	c := NewConnection(1, srv.Addr().String(), testOptions())
	require.NoError(t, c.Connect())
	require.Eventually(t, func() bool { return srv.conns.Size() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	require.Eventually(t, func() bool { return srv.conns.Size() == 0 }, time.Second, 10*time.Millisecond)

	// close is idempotent and the connection can not be reused
	require.NoError(t, c.Close())
	_, err := c.Call("again", nil)
	assert.ErrorIs(t, err, common.ErrConnectionClosed)
}

// TestConnectionBrokenReconnects tests that a connection reconnects after the peer dropped it
func TestConnectionBrokenReconnects(t *testing.T) {
	srv := startServer(t, echo)

	c := NewConnection(1, srv.Addr().String(), testOptions())
	defer c.Close()
	require.NoError(t, c.Connect())
	require.Eventually(t, func() bool { return srv.conns.Size() == 1 }, time.Second, 10*time.Millisecond)

	srv.conns.Range(func(conn net.Conn, _ struct{}) bool {
		_ = conn.Close()
		return true
	})

	_, err := c.Call("lost", nil)
	require.Error(t, err)
	assert.True(t, common.IsTransportFault(err))
	assert.Equal(t, StateDisconnected, c.State())

	resp, err := c.Call("found", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"route": "found"}, resp.Value)
}

// TestConnectionShutdownFromServer tests that a SHUTDOWN answer drops the socket and the next call reconnects
func TestConnectionShutdownFromServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	go func() {
		// the first connection is shut down, the second one answers
		for i := 0; i < 2; i++ {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			if _, err := readFrame(conn, nil); err != nil {
				_ = conn.Close()
				return
			}
			if i == 0 {
				_ = writeFrame(conn, common.TokenShutdown)
			} else {
				_ = writeFrame(conn, []byte(`{"answer":42}`))
			}
			_ = conn.Close()
		}
	}()

	c := NewConnection(1, l.Addr().String(), testOptions())
	defer c.Close()

	_, err = c.Call("first", nil)
	require.ErrorIs(t, err, common.ErrShutdown)
	assert.True(t, common.IsTransportFault(err))
	assert.Equal(t, StateDisconnected, c.State())

	resp, err := c.Call("second", nil)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, map[string]any{"answer": float64(42)}, resp.Value)
}

// --------------------------------------------------------------------------
// Pool
// --------------------------------------------------------------------------

// TestPoolRoundRobin tests that K borrows visit K distinct slots and the next one wraps
func TestPoolRoundRobin(t *testing.T) {
	srv := startServer(t, echo)

	const k = 3
	p, err := NewPool(srv.Addr().String(), k, testOptions())
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, k, p.Len())

	seen := make(map[uint64]bool)
	var first *Connection
	for i := 0; i < k; i++ {
		conn, err := p.Next()
		require.NoError(t, err)
		if first == nil {
			first = conn
		}
		seen[conn.ID()] = true
	}
	assert.Len(t, seen, k)

	conn, err := p.Next()
	require.NoError(t, err)
	assert.Same(t, first, conn)
}

// TestPoolReplacesExpired tests that an expired connection failing its probe is replaced in the same slot
func TestPoolReplacesExpired(t *testing.T) {
	srv := startServer(t, echo)

	p, err := NewPool(srv.Addr().String(), 1, testOptions())
	require.NoError(t, err)
	defer p.Close()

	old, err := p.Next()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.conns.Size() == 1 }, time.Second, 10*time.Millisecond)

	// drop the socket on the server side and let the connection expire
	srv.conns.Range(func(conn net.Conn, _ struct{}) bool {
		_ = conn.Close()
		return true
	})
	old.mu.Lock()
	old.expire = time.Now().Add(-time.Second)
	old.mu.Unlock()

	fresh, err := p.Next()
	require.NoError(t, err)
	assert.NotSame(t, old, fresh)
	assert.Equal(t, StateClosed, old.State())
	assert.Equal(t, []*Connection{fresh}, p.Connections())

	resp, err := fresh.Call("again", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"route": "again"}, resp.Value)
}

// TestPoolExpiredAliveIsRenewed tests that an expired but healthy connection is kept
func TestPoolExpiredAliveIsRenewed(t *testing.T) {
	srv := startServer(t, echo)

	p, err := NewPool(srv.Addr().String(), 1, testOptions())
	require.NoError(t, err)
	defer p.Close()

	conn, err := p.Next()
	require.NoError(t, err)
	conn.mu.Lock()
	conn.expire = time.Now().Add(-time.Second)
	conn.mu.Unlock()

	again, err := p.Next()
	require.NoError(t, err)
	assert.Same(t, conn, again)
	assert.False(t, again.Expired())
}

// TestPoolHostDown tests pool construction and exhaustion against a dead address
func TestPoolHostDown(t *testing.T) {
	_, err := NewPool(closedAddr(t), 2, testOptions())
	require.ErrorIs(t, err, common.ErrHostDown)

	srv := startServer(t, echo)
	p, err := NewPool(srv.Addr().String(), 1, testOptions())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	_, err = p.Next()
	assert.ErrorIs(t, err, common.ErrPoolExhausted)
}

// TestPoolExhaustedAfterServerStop tests that a pool of a stopped server fails to borrow
func TestPoolExhaustedAfterServerStop(t *testing.T) {
	srv := startServer(t, echo)

	options := testOptions()
	options.Config.Ping = true
	p, err := NewPool(srv.Addr().String(), 2, options)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, srv.Close())

	_, err = p.Next()
	require.ErrorIs(t, err, common.ErrPoolExhausted)
	assert.True(t, common.IsTransportFault(err))
	assert.Equal(t, 0, p.Len())
}

// TestPoolGrowsToCapacity tests that a pool below its capacity opens one more connection on Next
func TestPoolGrowsToCapacity(t *testing.T) {
	srv := startServer(t, echo)

	p, err := NewPool(srv.Addr().String(), 2, testOptions())
	require.NoError(t, err)
	defer p.Close()

	// drop the second slot
	p.mu.Lock()
	dropped := p.slots[1]
	p.slots = p.slots[:1]
	p.mu.Unlock()
	require.NoError(t, dropped.Close())
	require.Equal(t, 1, p.Len())

	conn, err := p.Next()
	require.NoError(t, err)
	assert.NotSame(t, dropped, conn)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, p.Cap(), p.Len())
}

// TestPoolRecoversAfterExhaustion tests that an exhausted pool grows again once the server is back
func TestPoolRecoversAfterExhaustion(t *testing.T) {
	srv := startServer(t, echo)
	addr := srv.Addr().String()

	options := testOptions()
	options.Config.Ping = true
	p, err := NewPool(addr, 2, options)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, srv.Close())
	_, err = p.Next()
	require.ErrorIs(t, err, common.ErrPoolExhausted)
	require.Equal(t, 0, p.Len())

	startServerAt(t, addr, echo)

	conn, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())

	resp, err := conn.Call("back", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"route": "back"}, resp.Value)

	_, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
}
