// Package client is the top-level façade: it wires a cluster.Cluster,
// an internal/admission.Queue, an internal/timeout.Supervisor and an
// executor.MultiExecutor together behind the Get/Put/Delete/Exists/
// Append/Prepend/BatchGet/Scan/Query surface, so callers never touch
// the internal packages directly. Grounded on rpc/client/client_istore.go's
// constructor/method-set shape: one struct embedding the shared
// collaborators, one method per operation building a command and
// running it.
package client

import (
	"time"

	"github.com/dkv-io/async-client/cluster"
	"github.com/dkv-io/async-client/command"
	"github.com/dkv-io/async-client/executor"
	"github.com/dkv-io/async-client/internal/admission"
	"github.com/dkv-io/async-client/internal/event"
	"github.com/dkv-io/async-client/internal/timeout"
	"github.com/dkv-io/async-client/internal/multi"
	"github.com/dkv-io/async-client/log"
	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/types"
)

var logger = log.Get("client")

// Config collects the knobs a Client needs beyond per-call policy:
// event-context pool sizing, admission mode, and the supervisor's
// sweep interval.
type Config struct {
	// EventContextPoolSize bounds how many commands may be in flight
	// across the whole client at once.
	EventContextPoolSize int
	// AdmissionMode selects Blocking (park) or NonBlocking (reject)
	// behavior once the pool is exhausted.
	AdmissionMode admission.Mode
	// SupervisorInterval is how often the timeout supervisor sweeps
	// in-flight commands for expired deadlines.
	SupervisorInterval time.Duration
}

// DefaultConfig returns sane defaults: a pool of 256 contexts, blocking
// admission, and a 20ms supervisor sweep.
func DefaultConfig() Config {
	return Config{
		EventContextPoolSize: 256,
		AdmissionMode:        admission.Blocking,
		SupervisorInterval:   20 * time.Millisecond,
	}
}

// Client is the asynchronous key-value client. Every operation method
// returns immediately after dispatching; results and errors arrive on
// the supplied listener.
type Client struct {
	cluster    cluster.Cluster
	admission  *admission.Queue
	supervisor *timeout.Supervisor
}

// New builds a Client over cl, sizing its own EventContext pool and
// starting its own TimeoutSupervisor goroutine. Close must be called to
// stop the supervisor when the client is no longer needed.
func New(cl cluster.Cluster, cfg Config) *Client {
	pool := event.NewPool(cfg.EventContextPoolSize, cl.Buffers())
	return &Client{
		cluster:    cl,
		admission:  admission.NewQueue(pool, cfg.AdmissionMode),
		supervisor: timeout.New(cfg.SupervisorInterval),
	}
}

// Close stops the background supervisor and every node pool's idle
// reaper. The Client must not be used afterward.
func (c *Client) Close() {
	c.supervisor.Stop()
	c.cluster.Pools().CloseAll()
}

// Get reads a record, optionally restricted to binNames (nil or empty
// reads every bin). listener is notified exactly once.
func (c *Client) Get(key types.Key, binNames []string, pol policy.Policy, listener command.GetListener) {
	cmd := command.NewGet(c.cluster, pol, c.admission, c.supervisor, key, binNames, listener)
	go cmd.Run()
}

// Put writes bins to key under pol's RecordExistsAction/Generation
// semantics. listener is notified exactly once.
func (c *Client) Put(key types.Key, bins map[string]types.Value, pol policy.Policy, listener command.WriteListener) {
	cmd := command.NewPut(c.cluster, pol, c.admission, c.supervisor, key, bins, listener)
	go cmd.Run()
}

// Delete removes key. Deleting an absent key is success, not failure.
func (c *Client) Delete(key types.Key, pol policy.Policy, listener command.WriteListener) {
	cmd := command.NewDelete(c.cluster, pol, c.admission, c.supervisor, key, listener)
	go cmd.Run()
}

// Exists checks for key's presence without transferring bin data.
func (c *Client) Exists(key types.Key, pol policy.Policy, listener command.ExistsListener) {
	cmd := command.NewExists(c.cluster, pol, c.admission, c.supervisor, key, listener)
	go cmd.Run()
}

// Append concatenates value onto the end of bin's existing string/blob
// value (or creates it).
func (c *Client) Append(key types.Key, bin string, value types.Value, pol policy.Policy, listener command.WriteListener) {
	cmd := command.NewAppend(c.cluster, pol, c.admission, c.supervisor, key, bin, value, listener)
	go cmd.Run()
}

// Prepend concatenates value onto the front of bin's existing
// string/blob value (or creates it).
func (c *Client) Prepend(key types.Key, bin string, value types.Value, pol policy.Policy, listener command.WriteListener) {
	cmd := command.NewPrepend(c.cluster, pol, c.admission, c.supervisor, key, bin, value, listener)
	go cmd.Run()
}

// Touch resets key's expiration to pol.Expiration without reading or
// rewriting its bins.
func (c *Client) Touch(key types.Key, pol policy.Policy, listener command.WriteListener) {
	cmd := command.NewTouch(c.cluster, pol, c.admission, c.supervisor, key, listener)
	go cmd.Run()
}

// BatchGet fans a multi-key read out across every node owning at least
// one of keys, grouped by namespace/set, and returns a RecordSet the
// caller drains. Keys not found are delivered as nil records so the
// result count still matches the key count.
func (c *Client) BatchGet(keys []types.Key, binNames []string, pol policy.BatchPolicy) *multi.RecordSet {
	children := groupBatchChildren(c.cluster, keys, binNames, false)
	ex := executor.New(c.cluster, pol.Timeout, pol.Concurrency, pol.AllowPartialResults)
	return ex.Execute(children)
}

// BatchExists checks for the presence of every key in keys without
// transferring bin data, the batch analogue of Exists. Keys not found
// are delivered as nil records, same as BatchGet, so the result count
// still matches the key count. Results of one (node, namespace, set)
// group arrive in that group's key order; results of different groups
// interleave in no defined order.
func (c *Client) BatchExists(keys []types.Key, pol policy.BatchPolicy) *multi.RecordSet {
	children := groupBatchChildren(c.cluster, keys, nil, true)
	ex := executor.New(c.cluster, pol.Timeout, pol.Concurrency, pol.AllowPartialResults)
	return ex.Execute(children)
}

// Scan reads every record of namespace/set across every known node.
func (c *Client) Scan(namespace, set string, pol policy.ScanQueryPolicy) *multi.RecordSet {
	nodes, err := c.cluster.Nodes()
	if err != nil {
		rs := multi.NewRecordSet(1)
		rs.Fail(err)
		rs.Finish()
		return rs
	}
	children := make([]executor.Child, 0, len(nodes))
	for _, n := range nodes {
		children = append(children, executor.Child{
			Node: n,
			Req:  &command.ScanChild{Namespace: namespace, Set: set, Pol: pol},
		})
	}
	ex := executor.New(c.cluster, pol.Timeout, pol.ConcurrentNodes, false)
	return ex.Execute(children)
}

// Query reads every record of namespace/set whose filter bin falls in
// [min, max], across every known node.
func (c *Client) Query(namespace, set string, filter command.RangeFilter, pol policy.ScanQueryPolicy) *multi.RecordSet {
	nodes, err := c.cluster.Nodes()
	if err != nil {
		rs := multi.NewRecordSet(1)
		rs.Fail(err)
		rs.Finish()
		return rs
	}
	children := make([]executor.Child, 0, len(nodes))
	for _, n := range nodes {
		children = append(children, executor.Child{
			Node: n,
			Req:  &command.QueryChild{Namespace: namespace, Set: set, Filter: filter, Pol: pol},
		})
	}
	ex := executor.New(c.cluster, pol.Timeout, pol.ConcurrentNodes, false)
	return ex.Execute(children)
}

// groupBatchChildren partitions keys by (owning node, namespace, set)
// so each BatchChild's DIGEST_RIPE_ARRAY only ever covers one
// namespace/set pair, matching what the wire format's single pair of
// NAMESPACE/SET fields can express per request.
func groupBatchChildren(cl cluster.Cluster, keys []types.Key, binNames []string, noBinData bool) []executor.Child {
	type groupKey struct {
		node      string
		namespace string
		set       string
	}
	groups := make(map[groupKey]*command.BatchChild)
	nodesByID := make(map[string]cluster.Node)
	order := make([]groupKey, 0)

	for _, k := range keys {
		node, err := cl.NodeForKey(k, policy.MASTER)
		if err != nil {
			logger.Warningf("batch: key in namespace %s has no owning node: %v", k.Namespace, err)
			continue
		}
		nodesByID[node.ID] = node
		gk := groupKey{node: node.ID, namespace: k.Namespace, set: k.Set}
		bc, ok := groups[gk]
		if !ok {
			bc = &command.BatchChild{Namespace: k.Namespace, Set: k.Set, BinNames: binNames, NoBinData: noBinData}
			groups[gk] = bc
			order = append(order, gk)
		}
		bc.Keys = append(bc.Keys, k)
	}

	children := make([]executor.Child, 0, len(order))
	for _, gk := range order {
		children = append(children, executor.Child{Node: nodesByID[gk.node], Req: groups[gk]})
	}
	return children
}
