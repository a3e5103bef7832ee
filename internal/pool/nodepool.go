// Package pool implements a per-node bounded connection pool: Get
// returns a warm connection or nil (the caller creates a new one), Put
// returns a healthy connection if there's room, and a background
// tender closes connections idle past a configured threshold.
//
// Grounded on rpc/transport/base/client.go's clientTransport/
// clientConnection management, generalized from "one fixed list of
// connections per transport" to "one bounded pool per node", and on
// its xsync.MapOf usage elsewhere in that file for the per-node
// registry.
package pool

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/dkv-io/async-client/internal/netio"
	dkvmetrics "github.com/dkv-io/async-client/metrics"
)

// NodePool is a bounded queue of live connections to one node.
type NodePool struct {
	node        string
	capacity    int
	maxIdle     time.Duration
	conns       chan *netio.Connection
	mu          sync.Mutex
	size        int // number of connections currently tracked (idle + checked out)
	stopReaper  chan struct{}
	reaperOnce  sync.Once
}

// NewNodePool creates a pool bounded to `capacity` warm connections for
// a single node, reaping connections idle longer than maxIdle.
func NewNodePool(node string, capacity int, maxIdle time.Duration) *NodePool {
	p := &NodePool{
		node:       node,
		capacity:   capacity,
		maxIdle:    maxIdle,
		conns:      make(chan *netio.Connection, capacity),
		stopReaper: make(chan struct{}),
	}
	go p.tend()
	return p
}

// Get returns an existing warm connection, or nil if none is
// available; the caller is then responsible for dialing a new one and
// eventually calling Put or Close+Forget.
func (p *NodePool) Get() *netio.Connection {
	select {
	case c := <-p.conns:
		if c.IdleSince() > p.maxIdle && p.maxIdle > 0 {
			p.forget()
			_ = c.Close()
			dkvmetrics.ForNode(p.node).IncClosed("idle_on_get")
			return p.Get()
		}
		return c
	default:
		return nil
	}
}

// Track registers a freshly dialed connection as belonging to this
// pool's accounting (so capacity limits apply to in-flight connections
// too, not only idle ones). Callers should call Track immediately after
// a successful Dial and before first use.
func (p *NodePool) Track() {
	p.mu.Lock()
	p.size++
	p.mu.Unlock()
	dkvmetrics.ForNode(p.node).IncCreated()
}

// forget decrements the tracked size without requiring a *Connection
// (used when a pulled idle connection is discarded rather than
// returned).
func (p *NodePool) forget() {
	p.mu.Lock()
	if p.size > 0 {
		p.size--
	}
	p.mu.Unlock()
}

// Put returns a connection to the pool if it is healthy (the caller
// determines healthiness via the keep_connection hint on any error it
// saw) and the pool isn't full. If the pool is full or the connection
// is unhealthy, the caller should close it instead; Put never closes a
// connection itself -- Forget must be called separately when the
// caller closes instead.
func (p *NodePool) Put(c *netio.Connection, healthy bool) (accepted bool) {
	if !healthy {
		return false
	}
	c.UpdateLastUsed()
	select {
	case p.conns <- c:
		return true
	default:
		return false
	}
}

// Forget decrements the tracked size after the caller has closed a
// connection that was not returned to the pool (unhealthy, or the pool
// was full).
func (p *NodePool) Forget() {
	p.forget()
}

// Size returns the number of connections currently tracked (idle plus
// checked out) against this pool's capacity.
func (p *NodePool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Idle returns the number of connections currently sitting warm in the
// pool.
func (p *NodePool) Idle() int { return len(p.conns) }

// Capacity returns the pool's configured maximum.
func (p *NodePool) Capacity() int { return p.capacity }

// HasRoom reports whether a new connection may be created/tracked
// without exceeding capacity.
func (p *NodePool) HasRoom() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity <= 0 || p.size < p.capacity
}

// tend is the background reaper goroutine closing idle > maxIdle
// connections.
func (p *NodePool) tend() {
	if p.maxIdle <= 0 {
		return
	}
	t := time.NewTicker(p.maxIdle / 2)
	defer t.Stop()
	for {
		select {
		case <-p.stopReaper:
			return
		case <-t.C:
			p.reapOnce()
		}
	}
}

func (p *NodePool) reapOnce() {
	n := len(p.conns)
	for i := 0; i < n; i++ {
		select {
		case c := <-p.conns:
			if c.IdleSince() > p.maxIdle {
				p.forget()
				_ = c.Close()
				dkvmetrics.ForNode(p.node).IncClosed("idle_reaper")
			} else {
				select {
				case p.conns <- c:
				default:
					p.forget()
					_ = c.Close()
				}
			}
		default:
			return
		}
	}
}

// Close stops the reaper and closes every idle connection. In-flight
// (checked-out) connections are the caller's responsibility.
func (p *NodePool) Close() {
	p.reaperOnce.Do(func() { close(p.stopReaper) })
	for {
		select {
		case c := <-p.conns:
			_ = c.Close()
			p.forget()
		default:
			return
		}
	}
}

// Registry is the cluster-wide collection of per-node pools, keyed by
// node id. Grounded on rpc/server/server.go's xsync.MapOf-backed
// shardMap.
type Registry struct {
	capacity int
	maxIdle  time.Duration
	pools    *xsync.MapOf[string, *NodePool]
}

// NewRegistry creates a Registry whose per-node pools share the given
// capacity and idle threshold.
func NewRegistry(capacityPerNode int, maxIdle time.Duration) *Registry {
	return &Registry{
		capacity: capacityPerNode,
		maxIdle:  maxIdle,
		pools:    xsync.NewMapOf[string, *NodePool](),
	}
}

// For returns (creating if necessary) the pool for a node.
func (r *Registry) For(node string) *NodePool {
	p, _ := r.pools.LoadOrCompute(node, func() *NodePool {
		return NewNodePool(node, r.capacity, r.maxIdle)
	})
	return p
}

// CloseAll closes every tracked node pool; used on client shutdown.
func (r *Registry) CloseAll() {
	r.pools.Range(func(node string, p *NodePool) bool {
		p.Close()
		return true
	})
}
