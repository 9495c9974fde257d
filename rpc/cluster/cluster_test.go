package cluster

import (
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/relock/sentinel/rpc/common"
	"github.com/relock/sentinel/rpc/serializer"
	"github.com/relock/sentinel/rpc/transport"
	"github.com/relock/sentinel/rpc/transport/base"
	"github.com/relock/sentinel/rpc/transport/tcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() base.ConnOptions {
	return base.ConnOptions{
		Connector:  tcp.NewTCPClientConnector(),
		Serializer: serializer.NewJSONSerializer(),
		Config:     common.ClientConfig{TimeoutSecond: 2}.WithDefaults(),
		IOLock:     &sync.Mutex{},
	}
}

// startServer starts an echo server and returns its address
func startServer(t *testing.T) (common.Address, transport.IRPCServerTransport) {
	t.Helper()
	srv := tcp.NewTCPServerTransport()
	srv.RegisterHandler(func(req []byte) []byte { return req })
	require.NoError(t, srv.Start(common.ServerConfig{
		Transport: common.ServerTransportConfig{Endpoint: "127.0.0.1:0"},
	}))
	t.Cleanup(func() { _ = srv.Close() })

	addr, err := common.ParseAddress(srv.Addr().String())
	require.NoError(t, err)
	return addr, srv
}

func closedAddr(t *testing.T) common.Address {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, _ := net.SplitHostPort(l.Addr().String())
	require.NoError(t, l.Close())
	p, _ := strconv.Atoi(port)
	return common.Address{Host: "127.0.0.1", Port: p}
}

// TestAddIdempotent tests that adding a known address is a no-op
func TestAddIdempotent(t *testing.T) {
	addr, _ := startServer(t)

	c := NewCluster(testOptions())
	defer c.Close()

	first, err := c.Add(addr.Host, addr.Port)
	require.NoError(t, err)
	second, err := c.Add(addr.Host, addr.Port)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains(addr))
	assert.True(t, first.Alive())
}

// TestAddConcurrent tests that concurrent adds of one address create one member
func TestAddConcurrent(t *testing.T) {
	addr, _ := startServer(t)

	c := NewCluster(testOptions())
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Add(addr.Host, addr.Port)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}

// TestAddUnreachable tests that an unreachable candidate is never added
func TestAddUnreachable(t *testing.T) {
	c := NewCluster(testOptions())
	defer c.Close()

	addr := closedAddr(t)
	s, err := c.Add(addr.Host, addr.Port)
	require.ErrorIs(t, err, common.ErrUnreachable)
	assert.Nil(t, s)
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Contains(addr))
}

// TestRemove tests removal by identity and by address
func TestRemove(t *testing.T) {
	a, _ := startServer(t)
	b, _ := startServer(t)

	c := NewCluster(testOptions())
	defer c.Close()

	sa, err := c.Add(a.Host, a.Port)
	require.NoError(t, err)
	_, err = c.Add(b.Host, b.Port)
	require.NoError(t, err)

	assert.True(t, c.Remove(sa))
	assert.False(t, c.Remove(sa))
	assert.False(t, c.Contains(a))
	assert.False(t, sa.Alive())
	_, err = sa.Borrow()
	assert.ErrorIs(t, err, common.ErrPoolExhausted)

	// a different server value with the same address matches too
	assert.True(t, c.Remove(&Server{addr: b}))
	assert.Equal(t, 0, c.Len())

	_, err = c.Next()
	assert.ErrorIs(t, err, common.ErrClusterEmpty)

	// an address can be added again after it was removed
	_, err = c.Add(a.Host, a.Port)
	require.NoError(t, err)
	assert.True(t, c.RemoveAddr(a))
	assert.Equal(t, 0, c.Len())
}

// TestEvictStaleServer tests that evicting a replaced server keeps its successor
func TestEvictStaleServer(t *testing.T) {
	addr, _ := startServer(t)

	c := NewCluster(testOptions())
	defer c.Close()

	stale, err := c.Add(addr.Host, addr.Port)
	require.NoError(t, err)
	require.True(t, c.Remove(stale))

	fresh, err := c.Add(addr.Host, addr.Port)
	require.NoError(t, err)
	require.NotSame(t, stale, fresh)

	assert.False(t, c.Evict(stale))
	assert.Equal(t, 1, c.Len())
	got, ok := c.Get(addr)
	require.True(t, ok)
	assert.Same(t, fresh, got)

	assert.True(t, c.Evict(fresh))
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Contains(addr))
}

// TestNextRoundRobin tests that servers are handed out in order, skipping removed ones
func TestNextRoundRobin(t *testing.T) {
	c := NewCluster(testOptions())
	defer c.Close()

	var servers []*Server
	for i := 0; i < 3; i++ {
		addr, _ := startServer(t)
		s, err := c.Add(addr.Host, addr.Port)
		require.NoError(t, err)
		servers = append(servers, s)
	}

	for round := 0; round < 2; round++ {
		for _, expected := range servers {
			s, err := c.Next()
			require.NoError(t, err)
			assert.Same(t, expected, s)
		}
	}

	require.True(t, c.Remove(servers[1]))
	for round := 0; round < 2; round++ {
		for _, expected := range []*Server{servers[0], servers[2]} {
			s, err := c.Next()
			require.NoError(t, err)
			assert.Same(t, expected, s)
		}
	}
	assert.Equal(t, []*Server{servers[0], servers[2]}, c.Servers())
}

// TestCompact tests that the arena drops tombstones without breaking the rotation
func TestCompact(t *testing.T) {
	c := NewCluster(testOptions())
	defer c.Close()

	var servers []*Server
	for i := 0; i < 4; i++ {
		addr, _ := startServer(t)
		s, err := c.Add(addr.Host, addr.Port)
		require.NoError(t, err)
		servers = append(servers, s)
	}

	s, err := c.Next()
	require.NoError(t, err)
	assert.Same(t, servers[0], s)

	require.True(t, c.Remove(servers[0]))
	require.True(t, c.Remove(servers[1]))
	require.True(t, c.Remove(servers[2]))
	assert.Len(t, c.arena, 1)

	s, err = c.Next()
	require.NoError(t, err)
	assert.Same(t, servers[3], s)
}

// TestPrune tests that stopped servers are removed by a prune
func TestPrune(t *testing.T) {
	a, srvA := startServer(t)
	b, _ := startServer(t)

	c := NewCluster(testOptions())
	defer c.Close()

	_, err := c.Add(a.Host, a.Port)
	require.NoError(t, err)
	_, err = c.Add(b.Host, b.Port)
	require.NoError(t, err)

	assert.Equal(t, 0, c.Prune())
	require.NoError(t, srvA.Close())

	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains(b))
}
