package server

import (
	"net"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/relock/sentinel/rpc/common"
	"github.com/relock/sentinel/rpc/serializer"
	"github.com/relock/sentinel/rpc/transport"
)

var Logger = logger.GetLogger("server")

// RouteHandler handles one decoded request mapping. The returned value is encoded
// with the payload rules of the serializer (nil and booleans as literals, []byte
// raw, everything else as json).
type RouteHandler func(req map[string]any) any

// NewRPCServer creates a server speaking the wire contract of the cluster.
// It answers the members route from the configured peers, records missing
// reports and echoes every route without a registered handler.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	s := &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		routes:     xsync.NewMapOf[string, RouteHandler](),
		peers:      config.Peers,
	}
	s.Handle(common.RouteMembers, s.handleMembers)
	s.Handle(common.RouteMissing, s.handleMissing)
	s.transport.RegisterHandler(s.handle)
	return s
}

type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	routes     *xsync.MapOf[string, RouteHandler]

	mu      sync.Mutex // protects peers and missing
	peers   []string
	missing []common.Member
}

// Handle registers the handler for the route, replacing any previous one
func (s *RPCServer) Handle(route string, handler RouteHandler) {
	s.routes.Store(route, handler)
}

// SetPeers replaces the peers advertised on the members route
func (s *RPCServer) SetPeers(peers []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = append([]string(nil), peers...)
}

// Missing returns the members reported as unreachable by clients
func (s *RPCServer) Missing() []common.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]common.Member(nil), s.missing...)
}

// Start starts the transport and returns once the server accepts connections
func (s *RPCServer) Start() error {
	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())
	return s.transport.Start(s.config)
}

// Serve starts the transport and blocks until the server is closed
func (s *RPCServer) Serve() error {
	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())
	return s.transport.Listen(s.config)
}

// Addr returns the address the server listens on
func (s *RPCServer) Addr() net.Addr {
	return s.transport.Addr()
}

// Close stops the server and drops all connections
func (s *RPCServer) Close() error {
	return s.transport.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handle decodes a request frame and dispatches it by route
func (s *RPCServer) handle(req []byte) []byte {
	resp := s.serializer.Decode(req)
	msg, ok := resp.Map()
	if !ok {
		return req
	}
	route, _ := msg[common.RouteKey].(string)

	handler, ok := s.routes.Load(route)
	if !ok {
		Logger.Debugf("No handler for route %q, echoing request", route)
		return req
	}

	payload, err := s.serializer.Encode(handler(msg), nil)
	if err != nil {
		Logger.Errorf("Failed to encode response of route %q: %v", route, err)
		payload, _ = s.serializer.Encode(nil, nil)
	}
	return payload
}

// handleMembers answers with the configured peers as id -> {addr, port}
func (s *RPCServer) handleMembers(map[string]any) any {
	s.mu.Lock()
	peers := append([]string(nil), s.peers...)
	s.mu.Unlock()

	members := make(map[string]any, len(peers))
	for i, peer := range peers {
		addr, err := common.ParseAddress(peer)
		if err != nil {
			Logger.Warningf("Skipping invalid peer %q: %v", peer, err)
			continue
		}
		members[strconv.Itoa(i+1)] = map[string]any{
			"addr": addr.Host,
			"port": addr.Port,
		}
	}
	return members
}

// handleMissing records a member reported as unreachable
func (s *RPCServer) handleMissing(req map[string]any) any {
	members, err := common.DecodeMembers(map[string]any{"missing": req})
	if err != nil || len(members) == 0 {
		Logger.Warningf("Invalid missing report: %v", req)
		return false
	}

	s.mu.Lock()
	s.missing = append(s.missing, members[0])
	s.mu.Unlock()

	Logger.Infof("Client reported server %s as missing", members[0].ToAddress())
	return true
}
