package server

import (
	"sync"
	"testing"

	"github.com/relock/sentinel/rpc/common"
	"github.com/relock/sentinel/rpc/serializer"
	"github.com/relock/sentinel/rpc/transport/base"
	"github.com/relock/sentinel/rpc/transport/tcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, peers ...string) (*RPCServer, *base.Connection) {
	t.Helper()
	s := NewRPCServer(common.ServerConfig{
		Peers:     peers,
		Transport: common.ServerTransportConfig{Endpoint: "127.0.0.1:0"},
	}, tcp.NewTCPServerTransport(), serializer.NewJSONSerializer())
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Close() })

	conn := base.NewConnection(1, s.Addr().String(), base.ConnOptions{
		Connector:  tcp.NewTCPClientConnector(),
		Serializer: serializer.NewJSONSerializer(),
		Config:     common.ClientConfig{TimeoutSecond: 2}.WithDefaults(),
		IOLock:     &sync.Mutex{},
	})
	t.Cleanup(func() { _ = conn.Close() })
	return s, conn
}

// TestMembersRoute tests that the configured peers are advertised
func TestMembersRoute(t *testing.T) {
	_, conn := startServer(t, "10.0.0.1:8111", "invalid", "10.0.0.2:8112")

	resp, err := conn.Call(common.RouteMembers, nil)
	require.NoError(t, err)

	members, err := common.DecodeMembers(resp.Value)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, common.Address{Host: "10.0.0.1", Port: 8111}, members[0].ToAddress())
	assert.Equal(t, common.Address{Host: "10.0.0.2", Port: 8112}, members[1].ToAddress())
}

// TestMissingRoute tests that missing reports are recorded
func TestMissingRoute(t *testing.T) {
	s, conn := startServer(t)

	member := common.Member{Addr: "10.0.0.9", Port: 9000}
	resp, err := conn.Call(common.RouteMissing, member.Kwargs())
	require.NoError(t, err)
	assert.Equal(t, true, resp.Value)

	missing := s.Missing()
	require.Len(t, missing, 1)
	assert.Equal(t, member.ToAddress(), missing[0].ToAddress())
}

// TestEchoAndHandlers tests unknown routes and custom handlers
func TestEchoAndHandlers(t *testing.T) {
	s, conn := startServer(t)

	resp, err := conn.Call("unknown", map[string]any{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"route": "unknown", "a": "b"}, resp.Value)

	resp, err = conn.Send([]byte("raw bytes"))
	require.NoError(t, err)
	assert.Equal(t, []byte("raw bytes"), resp.Value)

	s.Handle("answer", func(map[string]any) any { return 42 })
	resp, err = conn.Call("answer", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(42), resp.Value)

	s.Handle("nothing", func(map[string]any) any { return nil })
	resp, err = conn.Call("nothing", nil)
	require.NoError(t, err)
	assert.True(t, resp.IsNone())
}

// TestMemoryStore tests the in-memory key/value routes
func TestMemoryStore(t *testing.T) {
	s, conn := startServer(t)
	s.RegisterMemoryStore()

	call := func(route string, kwargs map[string]any) any {
		resp, err := conn.Call(route, kwargs)
		require.NoError(t, err)
		return resp.Value
	}

	assert.Nil(t, call("get", map[string]any{"key": "a"}))
	assert.Equal(t, true, call("set", map[string]any{"key": "a", "value": "1"}))
	assert.Equal(t, true, call("set", map[string]any{"key": "ab", "value": float64(2)}))
	assert.Equal(t, "1", call("get", map[string]any{"key": "a"}))
	assert.Equal(t, true, call("exists", map[string]any{"key": "ab"}))
	assert.Equal(t, []any{"a", "ab"}, call("keys", map[string]any{"key": "a*"}))
	assert.Equal(t, true, call("delete", map[string]any{"key": "a"}))
	assert.Equal(t, false, call("exists", map[string]any{"key": "a"}))
}
