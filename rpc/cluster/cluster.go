package cluster

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/relock/sentinel/rpc/common"
	"github.com/relock/sentinel/rpc/transport/base"
	"github.com/sourcegraph/conc/iter"
)

var Logger = logger.GetLogger("cluster")

// Cluster is the ordered, duplicate free set of known servers.
//
// Servers live in an append-only arena; a removed server leaves a nil tombstone
// so that the round-robin cursor stays stable. The arena is compacted once more
// than half of it are tombstones.
type Cluster struct {
	options base.ConnOptions

	// addMu serializes Add, so that two concurrent adds of one address build only one pool
	addMu sync.Mutex

	mu     sync.Mutex // protects arena, live and cursor
	arena  []*Server
	live   int
	cursor int

	index *xsync.MapOf[string, *Server]
}

// NewCluster creates an empty cluster. The options are passed to the pool of every server.
func NewCluster(options base.ConnOptions) *Cluster {
	return &Cluster{
		options: options,
		index:   xsync.NewMapOf[string, *Server](),
	}
}

// Add adds the server at host:port. It is a no-op (returning the existing server)
// if the address is already a member. Otherwise the server's pool is built and the
// server is appended only if it passes its probe; an unreachable candidate is never
// added and an error wrapping common.ErrUnreachable is returned.
func (c *Cluster) Add(host string, port int) (*Server, error) {
	addr := common.Address{Host: host, Port: port}
	key := addr.String()

	if s, ok := c.index.Load(key); ok {
		return s, nil
	}

	c.addMu.Lock()
	defer c.addMu.Unlock()

	if s, ok := c.index.Load(key); ok {
		return s, nil
	}

	s, err := NewServer(addr, c.options)
	if err != nil {
		Logger.Debugf("Server %s not added: %v", addr, err)
		return nil, err
	}
	if !s.Probe() {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %s failed its probe", common.ErrUnreachable, addr)
	}

	c.mu.Lock()
	c.arena = append(c.arena, s)
	c.live++
	c.index.Store(key, s)
	c.mu.Unlock()

	Logger.Infof("Server %s added to cluster", addr)
	return s, nil
}

// Remove removes the server, matched by identity or by address, and closes its pool.
// It reports whether a server was removed.
func (c *Cluster) Remove(s *Server) bool {
	if s == nil {
		return false
	}
	return c.remove(func(candidate *Server) bool {
		return candidate == s || candidate.addr == s.addr
	})
}

// Evict removes exactly this server instance and closes its pool. A newer member
// with the same address is left alone.
func (c *Cluster) Evict(s *Server) bool {
	if s == nil {
		return false
	}
	return c.remove(func(candidate *Server) bool {
		return candidate == s
	})
}

// RemoveAddr removes the server with the given address and closes its pool
func (c *Cluster) RemoveAddr(addr common.Address) bool {
	return c.remove(func(candidate *Server) bool {
		return candidate.addr == addr
	})
}

// Contains reports whether a server with the address is a member
func (c *Cluster) Contains(addr common.Address) bool {
	_, ok := c.index.Load(addr.String())
	return ok
}

// Get returns the member with the address
func (c *Cluster) Get(addr common.Address) (*Server, bool) {
	return c.index.Load(addr.String())
}

// Len returns the number of members
func (c *Cluster) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Servers returns the members in arena order
func (c *Cluster) Servers() []*Server {
	c.mu.Lock()
	defer c.mu.Unlock()

	servers := make([]*Server, 0, c.live)
	for _, s := range c.arena {
		if s != nil {
			servers = append(servers, s)
		}
	}
	return servers
}

// Next returns the next member in round-robin order, skipping tombstones.
// It fails with common.ErrClusterEmpty if there is no member.
func (c *Cluster) Next() (*Server, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live == 0 {
		return nil, common.ErrClusterEmpty
	}
	for i := 0; i < len(c.arena); i++ {
		idx := c.cursor % len(c.arena)
		c.cursor = idx + 1
		if s := c.arena[idx]; s != nil {
			return s, nil
		}
	}
	return nil, common.ErrClusterEmpty
}

// Prune probes all members in parallel and removes the ones that do not answer.
// It returns the number of removed servers.
func (c *Cluster) Prune() int {
	servers := c.Servers()
	alive := iter.Map(servers, func(s **Server) bool {
		return (*s).Probe()
	})

	removed := 0
	for i, s := range servers {
		if !alive[i] && c.Remove(s) {
			Logger.Infof("Server %s pruned from cluster", s.addr)
			removed++
		}
	}
	return removed
}

// Close removes all members and closes their pools
func (c *Cluster) Close() error {
	c.mu.Lock()
	servers := c.arena
	c.arena = nil
	c.live = 0
	c.cursor = 0
	c.index.Clear()
	c.mu.Unlock()

	var result *multierror.Error
	for _, s := range servers {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close server %s: %w", s.addr, err))
		}
	}
	return result.ErrorOrNil()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// remove tombstones the first server matching fn and closes it outside the lock
func (c *Cluster) remove(match func(*Server) bool) bool {
	c.mu.Lock()
	var victim *Server
	for i, s := range c.arena {
		if s != nil && match(s) {
			victim = s
			c.arena[i] = nil
			c.live--
			c.index.Compute(s.addr.String(), func(current *Server, loaded bool) (*Server, bool) {
				// keep the entry if it already belongs to a newer server
				return current, !loaded || current == s
			})
			break
		}
	}
	if victim != nil {
		c.compact()
	}
	c.mu.Unlock()

	if victim == nil {
		return false
	}
	if err := victim.Close(); err != nil {
		Logger.Debugf("Failed to close server %s: %v", victim.addr, err)
	}
	Logger.Infof("Server %s removed from cluster", victim.addr)
	return true
}

// compact drops the tombstones once they make up more than half of the arena.
// The cursor keeps pointing at the same successor. The caller must hold mu.
func (c *Cluster) compact() {
	if len(c.arena)-c.live <= len(c.arena)/2 {
		return
	}

	compacted := make([]*Server, 0, c.live)
	cursor := 0
	for i, s := range c.arena {
		if s == nil {
			continue
		}
		if i < c.cursor {
			cursor++
		}
		compacted = append(compacted, s)
	}
	c.arena = compacted
	c.cursor = cursor
}
