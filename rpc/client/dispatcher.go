package client

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/relock/sentinel/rpc/cluster"
	"github.com/relock/sentinel/rpc/common"
	"github.com/relock/sentinel/rpc/serializer"
	"github.com/relock/sentinel/rpc/transport/base"
)

// Dispatcher is the public call surface of the client. It picks a server, borrows
// a connection of its pool and performs one exchange. Transport faults never reach
// the caller: the failed server is removed, the membership is refreshed and the call
// is retried against the remaining servers.
type Dispatcher struct {
	id        string
	config    common.ClientConfig
	endpoints []common.Address
	cluster   *cluster.Cluster
	metrics   *dispatcherMetrics

	// refreshMu serializes membership refreshes (caller driven and background)
	refreshMu sync.Mutex

	exposedMu sync.Mutex
	exposed   []string

	loopMu      sync.Mutex // protects the transition of loopStarted and closed
	loopStarted atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closed      atomic.Bool
}

// NewDispatcher creates a dispatcher for the endpoints of the config and adds every
// reachable endpoint to its cluster. Unreachable endpoints are not an error: a
// dispatcher without members answers every call with an unavailable response.
// The background refresh loop starts as soon as one member was reached.
func NewDispatcher(config common.ClientConfig, connector base.IClientConnector, ser serializer.IRPCSerializer) (*Dispatcher, error) {
	config = config.WithDefaults()

	endpoints, err := common.ParseAddresses(config.Transport.Endpoints)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, common.ErrNoEndpoints
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		id:        uuid.NewString(),
		config:    config,
		endpoints: endpoints,
		cluster: cluster.NewCluster(base.ConnOptions{
			Connector:  connector,
			Serializer: ser,
			Config:     config,
			// one lock for every connection this dispatcher creates
			IOLock: &sync.Mutex{},
		}),
		ctx:    ctx,
		cancel: cancel,
	}
	d.metrics = newDispatcherMetrics(func() float64 {
		return float64(d.cluster.Len())
	})

	if n := d.make(); n > 0 {
		d.startRefreshLoop()
	}
	Logger.Infof("Dispatcher %s created with %d of %d endpoints reachable", d.id, d.cluster.Len(), len(endpoints))
	return d, nil
}

// ID returns the unique id of the dispatcher
func (d *Dispatcher) ID() string {
	return d.id
}

// Cluster returns the membership set of the dispatcher
func (d *Dispatcher) Cluster() *cluster.Cluster {
	return d.cluster
}

// Config returns the effective configuration (defaults applied)
func (d *Dispatcher) Config() common.ClientConfig {
	return d.config
}

// Call sends the route with its keyword arguments to one member and returns the answer.
//
// If the cluster is empty the call returns an unavailable response right away.
// Otherwise it tries up to RetryCount times; after every transport fault the failing
// server is removed and the membership refreshed. If the cluster runs empty it is
// rebuilt from the configured endpoints, with exponential backoff between the
// attempts. Only if that fails too the call gives up with an unavailable response.
func (d *Dispatcher) Call(ctx context.Context, route string, kwargs map[string]any) common.Response {
	start := time.Now()
	d.metrics.calls.Inc()
	defer d.metrics.duration.UpdateDuration(start)

	if d.closed.Load() {
		d.metrics.unavailable.Inc()
		return common.Unavailable(common.ErrConnectionClosed)
	}
	if d.cluster.Len() == 0 {
		d.metrics.unavailable.Inc()
		return common.Unavailable(common.ErrClusterEmpty)
	}

	var lastErr error
	for attempt := 0; attempt < d.config.Transport.RetryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		if attempt > 0 {
			d.metrics.retries.Inc()
		}

		server, err := d.cluster.Next()
		if err != nil {
			lastErr = err
			if d.rebuild(ctx) == 0 {
				break
			}
			continue
		}

		resp, err := d.exchange(server, route, kwargs)
		if err == nil {
			d.startRefreshLoop()
			return resp
		}
		lastErr = err

		if !common.IsTransportFault(err) {
			// the request itself is broken, another server would fail the same way
			Logger.Errorf("Call of route %q failed: %v", route, err)
			break
		}

		d.metrics.failures.Inc()
		Logger.Debugf("Route to %s no longer exists, host has gone down: %v", server, err)
		if d.Refresh(ctx, server) == 0 && d.rebuild(ctx) == 0 {
			break
		}
	}

	d.metrics.unavailable.Inc()
	Logger.Warningf("Call of route %q is unavailable: %v", route, lastErr)
	return common.Unavailable(lastErr)
}

// Refresh runs the membership protocol and returns the resulting number of members.
//
// The dead server (optional) is removed first, matched by identity. A remaining member is asked for the
// members route and every advertised member that is not known yet is added; a
// candidate that can not be added is reported on the missing route. If the members
// route gets no answer, every member is probed and the dead ones are pruned. An
// empty cluster is rebuilt from the configured endpoints.
func (d *Dispatcher) Refresh(ctx context.Context, dead *cluster.Server) int {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()
	d.metrics.refreshes.Inc()

	// a server re-added under the same address in the meantime stays a member
	if dead != nil && d.cluster.Evict(dead) {
		Logger.Infof("Server %s is down", dead)
	}

	for pass := 0; pass < 2 && d.cluster.Len() > 0 && ctx.Err() == nil; pass++ {
		resp, ok := d.members()
		if ok {
			d.merge(resp)
			break
		}

		Logger.Debugf("Members route unanswered, probing %d servers", d.cluster.Len())
		if d.cluster.Prune() == 0 {
			break
		}
	}

	if d.cluster.Len() == 0 {
		d.make()
	}
	n := d.cluster.Len()
	if n > 0 {
		d.startRefreshLoop()
	}
	Logger.Debugf("Rounding routes, available: %d", n)
	return n
}

// Close stops the background refresh loop and closes all connections
func (d *Dispatcher) Close() error {
	d.loopMu.Lock()
	if !d.closed.CompareAndSwap(false, true) {
		d.loopMu.Unlock()
		return nil
	}
	d.loopMu.Unlock()

	d.cancel()
	d.wg.Wait()
	Logger.Infof("Dispatcher %s closed", d.id)
	return d.cluster.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// exchange performs one request on a borrowed connection of the server, without any retry
func (d *Dispatcher) exchange(server *cluster.Server, route string, kwargs map[string]any) (common.Response, error) {
	conn, err := server.Borrow()
	if err != nil {
		return common.Response{}, err
	}
	return conn.Call(route, kwargs)
}

// members asks the next member for the membership, a missing or non mapping answer is not ok
func (d *Dispatcher) members() ([]common.Member, bool) {
	server, err := d.cluster.Next()
	if err != nil {
		return nil, false
	}
	resp, err := d.exchange(server, common.RouteMembers, nil)
	if err != nil || !resp.OK() || !resp.Truthy() {
		Logger.Debugf("Members route of %s failed: %v", server, err)
		return nil, false
	}
	members, err := common.DecodeMembers(resp.Value)
	if err != nil {
		Logger.Warningf("Invalid members response from %s: %v", server, err)
		return nil, false
	}
	return members, true
}

// merge adds every advertised member that is not known yet
func (d *Dispatcher) merge(members []common.Member) {
	for _, member := range members {
		addr := member.ToAddress()
		if d.cluster.Contains(addr) {
			continue
		}
		if _, err := d.cluster.Add(addr.Host, addr.Port); err != nil {
			d.reportMissing(member)
			continue
		}
		Logger.Infof("New server %s in pool", addr)
	}
}

// reportMissing tells a member about an unreachable candidate, failures are swallowed
func (d *Dispatcher) reportMissing(member common.Member) {
	addr := member.ToAddress()
	server, err := d.cluster.Next()
	if err == nil {
		_, err = d.exchange(server, common.RouteMissing, member.Kwargs())
	}
	if err != nil {
		Logger.Infof("The attempt to remove the dead server %s from the ring is unsuccessful: %v", addr, err)
		return
	}
	Logger.Infof("Remove an unreachable server %s from the ring", addr)
}

// make adds every configured endpoint to the cluster and returns the member count
func (d *Dispatcher) make() int {
	for _, addr := range d.endpoints {
		if _, err := d.cluster.Add(addr.Host, addr.Port); err != nil {
			Logger.Debugf("Endpoint %s unreachable: %v", addr, err)
		}
	}
	return d.cluster.Len()
}

// rebuild retries make with exponential backoff and a small random jitter (+-10%)
func (d *Dispatcher) rebuild(ctx context.Context) int {
	backoffMs := d.config.BackoffMillisecond
	for attempt := 0; attempt < d.config.RebuildAttempts; attempt++ {
		jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
		select {
		case <-ctx.Done():
			return d.cluster.Len()
		case <-d.ctx.Done():
			return d.cluster.Len()
		case <-time.After(time.Duration(jitter) * time.Millisecond):
		}

		d.metrics.rebuilds.Inc()
		d.refreshMu.Lock()
		n := d.make()
		d.refreshMu.Unlock()
		if n > 0 {
			Logger.Infof("Cluster rebuilt with %d members after %d attempts", n, attempt+1)
			return n
		}
		backoffMs *= 2
	}
	return 0
}

// startRefreshLoop starts the background refresh loop once
func (d *Dispatcher) startRefreshLoop() {
	if d.loopStarted.Load() {
		return
	}

	d.loopMu.Lock()
	defer d.loopMu.Unlock()

	if d.loopStarted.Load() || d.closed.Load() {
		return
	}
	d.loopStarted.Store(true)
	d.wg.Add(1)
	go d.refreshLoop()
}

// refreshLoop refreshes the membership every refresh interval until the dispatcher is closed
func (d *Dispatcher) refreshLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			n := d.Refresh(d.ctx, nil)
			Logger.Debugf("Background refresh of dispatcher %s: %d members", d.id, n)
		}
	}
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("Dispatcher(%s, %d members)", d.id, d.cluster.Len())
}
