// Package executor implements the MultiExecutor fan-out coordinator:
// dispatch one child command per node (batch, scan, query), respecting
// a Concurrency bound, merging every child's records into one
// aggregate RecordSet, and surfacing the first failure unless the
// caller's policy allows partial results.
//
// The per-child error bookkeeping uses an xsync.MapOf the way
// rpc/server/server.go's shardMap tracks per-shard state, generalized
// from "per-shard connection tracking" to "per-child node error
// tracking"; the reader-goroutine-per-connection shape follows
// rpc/transport/base/client.go, which internal/multi.MultiCommand
// itself also follows.
package executor

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/dkv-io/async-client/cluster"
	"github.com/dkv-io/async-client/command"
	"github.com/dkv-io/async-client/internal/multi"
	"github.com/dkv-io/async-client/internal/netio"
	"github.com/dkv-io/async-client/log"
	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/types"
)

var logger = log.Get("executor")

// Child pairs a node with the request to run against it.
type Child struct {
	Node cluster.Node
	Req  multi.ChildRequest
}

// MultiExecutor fans a set of Children out across their nodes and
// merges results into one RecordSet.
type MultiExecutor struct {
	cl          cluster.Cluster
	timeout     time.Duration
	concurrency policy.Concurrency
	allowPartial bool
}

// New builds a MultiExecutor. timeout is applied as each child's I/O
// deadline. A failed child is not retried, neither by its
// MultiCommand nor by the executor.
func New(cl cluster.Cluster, timeout time.Duration, concurrency policy.Concurrency, allowPartial bool) *MultiExecutor {
	return &MultiExecutor{cl: cl, timeout: timeout, concurrency: concurrency, allowPartial: allowPartial}
}

// Execute dispatches every child and returns an aggregate RecordSet the
// caller drains like any other RecordSet. The aggregate's Err reports
// the first child failure once the stream ends, unless allowPartial
// was set, in which case the records that arrived are delivered and
// Err stays nil even when a child failed.
func (e *MultiExecutor) Execute(children []Child) *multi.RecordSet {
	aggregate := multi.NewRecordSet(256)
	if len(children) == 0 {
		aggregate.Finish()
		return aggregate
	}

	var sem chan struct{}
	switch {
	case e.concurrency == policy.ConcurrencySequential:
		sem = make(chan struct{}, 1)
	case e.concurrency > policy.ConcurrencySequential:
		sem = make(chan struct{}, int(e.concurrency))
	} // ConcurrencyUnbounded: sem stays nil, no limiting

	childErrors := xsync.NewMapOf[string, error]()
	var wg sync.WaitGroup
	var firstErrOnce sync.Once
	var firstErr error

	for _, c := range children {
		wg.Add(1)
		go func(c Child) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			if childErrors.Size() > 0 && !e.allowPartial {
				// A prior child already failed and partial results
				// aren't wanted; skip dispatching this one rather
				// than doing work whose results will be discarded.
				return
			}
			err := e.runChild(c, aggregate)
			if err != nil {
				childErrors.Store(c.Node.ID, err)
				firstErrOnce.Do(func() { firstErr = err })
				logger.Warningf("%s child on node %s failed: %v", c.Req.CommandName(), c.Node.ID, err)
			}
		}(c)
	}

	wg.Wait()

	if firstErr != nil && !e.allowPartial {
		aggregate.Fail(firstErr)
	}
	aggregate.Finish()
	return aggregate
}

// runChild acquires a connection to c.Node, runs the child command
// against a private per-child RecordSet, and forwards every record it
// produces into the shared aggregate -- the reason each child gets its
// own RecordSet rather than sharing the aggregate directly is that
// MultiCommand.Run closes its RecordSet when it returns; sharing one
// across concurrent children would close it as soon as the first child
// finished, while the others were still pushing.
func (e *MultiExecutor) runChild(c Child, aggregate *multi.RecordSet) error {
	np := e.cl.Pools().For(c.Node.ID)
	conn := np.Get()
	if conn == nil {
		dialed, err := netio.Dial(c.Node.ID, c.Node.Endpoint, e.connectTimeout())
		if err != nil {
			return types.ClassifyIOError(err)
		}
		np.Track()
		conn = dialed

		if user, required := e.cl.User(); required {
			if aerr := command.Authenticate(conn, user, e.deadline()); aerr != nil {
				_ = conn.Close()
				np.Forget()
				return aerr
			}
		}
	}

	childSet := multi.NewRecordSet(64)
	mc := multi.NewMultiCommand(conn, e.cl.Buffers(), c.Req, childSet)

	deadline := e.deadline()
	done := make(chan error, 1)
	go func() { done <- mc.Run(deadline) }()

	for rec := range childSet.Results() {
		if !aggregate.Push(rec) {
			childSet.Stop()
		}
	}
	runErr := <-done

	healthy := runErr == nil
	if healthy {
		if !np.Put(conn, true) {
			_ = conn.Close()
			np.Forget()
		}
	} else {
		_ = conn.Close()
		np.Forget()
	}
	return runErr
}

func (e *MultiExecutor) connectTimeout() time.Duration {
	if e.timeout > 0 {
		return e.timeout
	}
	return 5 * time.Second
}

func (e *MultiExecutor) deadline() time.Time {
	if e.timeout <= 0 {
		return time.Now().Add(30 * time.Second)
	}
	return time.Now().Add(e.timeout)
}
