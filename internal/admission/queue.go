// Package admission implements the command admission queue: when a
// command requests an EventContext but none is available, it is
// either rejected immediately (non-blocking mode) or parked on an
// internal FIFO until a context is released (blocking mode), with
// fairness guaranteed by a single-flight worker pattern so no parked
// command is overtaken indefinitely.
//
// Grounded on the CAS-guarded single-shot background-worker idiom
// maple's garbage collector uses (gcIsRunning atomic.Bool in
// lib/db/engines/maple/maple.go), generalized from "at most one GC
// pass running" to "at most one FIFO-draining worker running".
package admission

import (
	"sync"
	"sync/atomic"

	"github.com/dkv-io/async-client/internal/event"
	dkvmetrics "github.com/dkv-io/async-client/metrics"
	"github.com/dkv-io/async-client/types"
)

// Mode selects admission behavior when the EventContext pool is
// exhausted.
type Mode int

const (
	// Blocking parks the command on the FIFO until a context frees
	// up.
	Blocking Mode = iota
	// NonBlocking fails immediately with CommandRejected.
	NonBlocking
)

// parkedRequest is one FIFO entry: a channel the parked caller blocks
// on until it receives a Context handed over by a released one.
type parkedRequest struct {
	owner  interface{}
	result chan *event.Context
}

// Queue wraps an event.Pool with admission control.
type Queue struct {
	pool Pool
	mode Mode

	mu     sync.Mutex
	fifo   []*parkedRequest

	jobScheduled atomic.Bool
}

// Pool is the subset of *event.Pool the admission queue needs; defined
// as an interface so tests can substitute a fake pool.
type Pool interface {
	TryAcquire(owner interface{}) *event.Context
	Release(ctx *event.Context)
	Available() int
	Capacity() int
}

// NewQueue wraps pool with the given admission Mode.
func NewQueue(pool Pool, mode Mode) *Queue {
	return &Queue{pool: pool, mode: mode}
}

// Acquire attempts to get a Context for owner. In NonBlocking mode it
// returns a CommandRejected error immediately if the pool is
// exhausted. In Blocking mode it parks the caller and blocks until a
// context is released to it (still returning promptly if one is
// already free).
func (q *Queue) Acquire(owner interface{}) (*event.Context, error) {
	if ctx := q.pool.TryAcquire(owner); ctx != nil {
		return ctx, nil
	}

	if q.mode == NonBlocking {
		return nil, types.New(types.KindCommandRejected, "event context pool exhausted")
	}

	req := &parkedRequest{owner: owner, result: make(chan *event.Context, 1)}
	q.mu.Lock()
	q.fifo = append(q.fifo, req)
	dkvmetrics.AdmissionQueueDepth(len(q.fifo))
	q.mu.Unlock()

	// A context may have been released between our failed TryAcquire
	// and enqueuing above; make sure a drain pass runs regardless.
	q.scheduleDrain()

	ctx := <-req.result
	return ctx, nil
}

// Release returns ctx to the underlying pool. Every released context
// checks the FIFO before becoming available to a fresh (non-parked)
// Acquire call: the context released here is handed directly to the
// oldest parked request if one exists, never returned to the free
// pool first.
func (q *Queue) Release(ctx *event.Context) {
	q.mu.Lock()
	if len(q.fifo) > 0 {
		req := q.fifo[0]
		q.fifo = q.fifo[1:]
		dkvmetrics.AdmissionQueueDepth(len(q.fifo))
		q.mu.Unlock()

		ctx.Owner = req.owner
		req.result <- ctx
		return
	}
	q.mu.Unlock()

	q.pool.Release(ctx)
	// Releasing to the free pool may have made room for a parked
	// request that arrived concurrently with a fifo-empty check
	// elsewhere; schedule a drain to avoid a missed wake-up.
	q.scheduleDrain()
}

// scheduleDrain runs the single-flight FIFO-draining worker if one
// isn't already running. The CAS pattern (job_scheduled 0->1, drain,
// CAS back to 0 inside the lock, re-check to avoid missed wake-ups) is
// what keeps fairness and wake-up delivery intact without a dedicated
// dispatcher goroutine.
func (q *Queue) scheduleDrain() {
	if !q.jobScheduled.CompareAndSwap(false, true) {
		return // another goroutine already owns the drain pass
	}
	go q.drainLoop()
}

func (q *Queue) drainLoop() {
	for {
		q.mu.Lock()
		if len(q.fifo) == 0 {
			q.jobScheduled.Store(false)
			q.mu.Unlock()
			// Re-check after releasing the flag: a request may
			// have been enqueued in the gap between our empty
			// check above and clearing the flag.
			q.mu.Lock()
			if len(q.fifo) == 0 {
				q.mu.Unlock()
				return
			}
			if !q.jobScheduled.CompareAndSwap(false, true) {
				q.mu.Unlock()
				return // someone else picked it up
			}
			q.mu.Unlock()
			continue
		}
		req := q.fifo[0]
		q.mu.Unlock()

		ctx := q.pool.TryAcquire(req.owner)
		if ctx == nil {
			// Nothing free yet; stop this pass, a future Release
			// will reschedule a drain.
			q.jobScheduled.Store(false)
			return
		}

		q.mu.Lock()
		if len(q.fifo) > 0 && q.fifo[0] == req {
			q.fifo = q.fifo[1:]
			dkvmetrics.AdmissionQueueDepth(len(q.fifo))
		} else {
			// req was already serviced by a racing Release; put
			// the context back and retry the loop.
			q.mu.Unlock()
			q.pool.Release(ctx)
			continue
		}
		q.mu.Unlock()

		req.result <- ctx
	}
}
