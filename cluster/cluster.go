// Package cluster defines the collaborator interface the core
// consumes to resolve partition keys to nodes and obtain per-node
// connection pools: cluster topology discovery and partition-map
// maintenance are treated as an external collaborator's concern, not
// this core's. This package also
// provides a minimal reference implementation (a static node list with
// simple modulo partitioning) so the core is exercised by something
// real in tests, without pretending to be a production topology
// manager.
package cluster

import (
	"time"

	"github.com/dkv-io/async-client/internal/buffer"
	"github.com/dkv-io/async-client/internal/pool"
	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/types"
)

// Node is a single server node's identity and address.
type Node struct {
	ID       string
	Endpoint string
}

// Cluster is what the command/executor layers depend on: node
// resolution, buffer pool ownership, and connection pool access. It
// owns the BufferPool so that every command in the cluster shares
// one arena and its generation counter.
type Cluster interface {
	// NodeForKey resolves a partition key to a node under the given
	// replica policy. Returns InvalidNode if the cluster map has no
	// owner for the key's partition right now.
	NodeForKey(key types.Key, replica policy.Replica) (Node, error)
	// Nodes returns every node currently known, used by multi-node
	// fan-out (batch/scan/query).
	Nodes() ([]Node, error)
	// Pools returns the connection-pool registry shared across all
	// nodes.
	Pools() *pool.Registry
	// Buffers returns the shared buffer arena.
	Buffers() *buffer.Pool
	// User reports the authentication principal to send on connect,
	// and whether authentication is required at all.
	User() (user string, required bool)
}

// StaticCluster is a minimal reference Cluster: a fixed node list with
// digest-modulo partitioning. It exists so the core's tests and the
// cmd/dkvbench harness have a real, if simplistic, topology
// collaborator to drive against -- production users are expected to
// supply their own Cluster backed by actual partition-map discovery,
// which is out of scope for this core.
type StaticCluster struct {
	nodes   []Node
	pools   *pool.Registry
	buffers *buffer.Pool
	user    string
}

// NewStaticCluster builds a StaticCluster over a fixed node list.
func NewStaticCluster(nodes []Node, poolCapacity int, maxIdle time.Duration, bufferCutoff int, user string) *StaticCluster {
	return &StaticCluster{
		nodes:   nodes,
		pools:   pool.NewRegistry(poolCapacity, maxIdle),
		buffers: buffer.NewPool(bufferCutoff),
		user:    user,
	}
}

func (c *StaticCluster) NodeForKey(key types.Key, _ policy.Replica) (Node, error) {
	if len(c.nodes) == 0 {
		return Node{}, types.New(types.KindInvalidNode, "no nodes in cluster map")
	}
	d := key.Digest()
	var sum uint32
	for _, b := range d {
		sum = sum*31 + uint32(b)
	}
	idx := int(sum % uint32(len(c.nodes)))
	return c.nodes[idx], nil
}

func (c *StaticCluster) Nodes() ([]Node, error) {
	if len(c.nodes) == 0 {
		return nil, types.New(types.KindInvalidNode, "no nodes in cluster map")
	}
	out := make([]Node, len(c.nodes))
	copy(out, c.nodes)
	return out, nil
}

func (c *StaticCluster) Pools() *pool.Registry  { return c.pools }
func (c *StaticCluster) Buffers() *buffer.Pool  { return c.buffers }
func (c *StaticCluster) User() (string, bool)   { return c.user, c.user != "" }
