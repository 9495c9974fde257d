package base

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/relock/sentinel/rpc/common"
)

// Pool is a fixed-capacity set of connections to one address.
// Connections are handed out round-robin; a borrowed connection is not removed
// from the pool, it stays part of the rotation while it is being used.
type Pool struct {
	addr    string
	size    int
	options ConnOptions

	mu     sync.Mutex // protects the fields below, never held by an exchange
	slots  []*Connection
	cursor int
	nextID uint64
	closed bool
}

// NewPool creates a pool for the address and eagerly opens size connections.
// It fails if any of these connections can not be established.
func NewPool(addr string, size int, options ConnOptions) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		addr:    addr,
		size:    size,
		options: options,
		slots:   make([]*Connection, 0, size),
	}

	for i := 0; i < size; i++ {
		conn, err := p.dial()
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.slots = append(p.slots, conn)
		Logger.Debugf("Connected to %s (connection %d/%d)", addr, i+1, size)
	}
	return p, nil
}

// Addr returns the address of the pool
func (p *Pool) Addr() string {
	return p.addr
}

// Cap returns the fixed capacity of the pool
func (p *Pool) Cap() int {
	return p.size
}

// Len returns the number of connections currently held
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Connections returns a snapshot of the current slots
func (p *Pool) Connections() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Connection(nil), p.slots...)
}

// Next returns the next usable connection in round-robin order.
//
// If the pool holds fewer connections than its capacity it grows by one first.
// A connection that passed its expiry (or any connection, when liveness checks
// are enabled) is probed; if the probe fails it is closed and replaced in the
// same slot by a fresh connection, which is then selected. If no connection is
// left and none can be created, an error wrapping common.ErrPoolExhausted is returned.
func (p *Pool) Next() (*Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("%w: pool for %s is closed", common.ErrPoolExhausted, p.addr)
	}

	if len(p.slots) < p.size {
		if conn, err := p.dial(); err == nil {
			p.slots = append(p.slots, conn)
		} else {
			Logger.Debugf("Failed to grow pool for %s: %v", p.addr, err)
		}
	}

	// each slot is visited at most twice: once with the old and once with a fresh connection
	for attempts := 0; attempts < 2*p.size; attempts++ {
		if len(p.slots) == 0 {
			break
		}

		idx := p.cursor % len(p.slots)
		p.cursor = idx + 1
		conn := p.slots[idx]

		closed := conn.State() == StateClosed
		if !closed && !conn.Expired() && !p.options.Config.Ping {
			return conn, nil
		}
		if !closed && conn.Alive() {
			conn.Renew()
			return conn, nil
		}

		// retire and replace in the same slot
		_ = conn.Close()
		fresh, err := p.dial()
		if err != nil {
			Logger.Debugf("Failed to replace connection %d to %s: %v", conn.ID(), p.addr, err)
			p.slots = append(p.slots[:idx], p.slots[idx+1:]...)
			p.cursor = idx
			continue
		}
		Logger.Debugf("Replaced connection %d to %s with connection %d", conn.ID(), p.addr, fresh.ID())
		p.slots[idx] = fresh
		p.cursor = idx
	}

	return nil, fmt.Errorf("%w: no live connection to %s", common.ErrPoolExhausted, p.addr)
}

// Close closes all connections, the pool can not be used afterward
func (p *Pool) Close() error {
	p.mu.Lock()
	slots := p.slots
	p.slots = nil
	p.closed = true
	p.mu.Unlock()

	var result *multierror.Error
	for _, conn := range slots {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// dial creates and connects the next connection of the pool. The caller must hold mu
// (or own the pool exclusively during construction).
func (p *Pool) dial() (*Connection, error) {
	p.nextID++
	conn := NewConnection(p.nextID, p.addr, p.options)
	if err := conn.Connect(); err != nil {
		return nil, err
	}
	return conn, nil
}
