package cluster

import (
	"fmt"
	"sync/atomic"

	"github.com/relock/sentinel/rpc/common"
	"github.com/relock/sentinel/rpc/transport/base"
)

// Server pairs a cluster member address with its connection pool
type Server struct {
	addr      common.Address
	pool      *base.Pool
	connector base.IClientConnector
	config    common.ClientConfig
	alive     atomic.Bool
}

// NewServer creates a server and eagerly fills its pool
func NewServer(addr common.Address, options base.ConnOptions) (*Server, error) {
	pool, err := base.NewPool(addr.String(), options.Config.Transport.PoolSize, options)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrUnreachable, addr, err)
	}
	s := &Server{
		addr:      addr,
		pool:      pool,
		connector: options.Connector,
		config:    options.Config,
	}
	s.alive.Store(true)
	return s, nil
}

// Addr returns the address of the server
func (s *Server) Addr() common.Address {
	return s.addr
}

// Pool returns the connection pool of the server
func (s *Server) Pool() *base.Pool {
	return s.pool
}

// Alive returns the last known liveness, see Probe
func (s *Server) Alive() bool {
	return s.alive.Load()
}

// Probe checks whether the server accepts connections. It dials a new socket
// (independent of the pooled connections) and closes it right away.
func (s *Server) Probe() bool {
	conn, err := s.connector.Connect(s.addr.String(), s.config.ProbeTimeout())
	if err != nil {
		Logger.Debugf("Probe of server %s failed: %v", s.addr, err)
		s.alive.Store(false)
		return false
	}
	_ = conn.Close()
	s.alive.Store(true)
	return true
}

// Borrow returns the next connection of the pool. A failure marks the server as not alive.
func (s *Server) Borrow() (*base.Connection, error) {
	conn, err := s.pool.Next()
	if err != nil {
		s.alive.Store(false)
		return nil, err
	}
	return conn, nil
}

// Close closes all pooled connections
func (s *Server) Close() error {
	s.alive.Store(false)
	return s.pool.Close()
}

func (s *Server) String() string {
	return s.addr.String()
}
