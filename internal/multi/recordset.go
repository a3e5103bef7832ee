// Package multi implements streamed multi-record parsing: a child
// request that may receive many records in reply to one request,
// terminated by the server's INFO3_LAST flag, fed into a bounded
// RecordSet the caller (executor.MultiExecutor or a direct scan/query
// caller) drains as a channel.
//
// Grounded on readResponses's reader-goroutine pattern in
// rpc/transport/base/client.go (one reader goroutine per connection
// demultiplexing replies into per-request channels), generalized from
// "one reply per request" to "N framed records per request".
package multi

import (
	"sync"
	"sync/atomic"

	"github.com/dkv-io/async-client/types"
)

// RecordSet is a bounded producer/consumer queue of records. Producers
// (a MultiCommand's Run, or the executor's per-child goroutines
// forwarding into an aggregate set) push records, and finish is called
// once after every producer is done; any number of readers may range
// over Results concurrently with a single Stop call.
type RecordSet struct {
	records   chan *types.Record
	stopCh    chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	errVal    atomic.Value
}

// NewRecordSet creates a RecordSet buffering up to capacity records
// before a producer's push blocks.
func NewRecordSet(capacity int) *RecordSet {
	if capacity <= 0 {
		capacity = 64
	}
	return &RecordSet{
		records: make(chan *types.Record, capacity),
		stopCh:  make(chan struct{}),
	}
}

// Results returns the channel of records; it closes once the producer
// finishes (success, error, or Stop), at which point callers should
// check Err to distinguish a clean end from a failure.
func (rs *RecordSet) Results() <-chan *types.Record { return rs.records }

// Stop asks the producer to end the stream early, e.g. because the
// caller found what it needed. Idempotent.
func (rs *RecordSet) Stop() { rs.stopOnce.Do(func() { close(rs.stopCh) }) }

// Err returns the terminal error, if the stream ended abnormally (a
// server error, parse failure, or Stop-driven termination); nil if the
// stream ran to a clean INFO3_LAST end.
func (rs *RecordSet) Err() error {
	if v := rs.errVal.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (rs *RecordSet) stopped() bool {
	select {
	case <-rs.stopCh:
		return true
	default:
		return false
	}
}

// Push delivers rec to a consumer, or returns false if Stop was called
// first; a producer should treat false as "end the stream now,
// consumer-initiated". MultiCommand.Run then records a
// KindScanTerminated/KindQueryTerminated error via Fail. Any
// producer may call Push -- a MultiCommand feeding its own RecordSet,
// or an executor forwarding a child's records into an aggregate set.
func (rs *RecordSet) Push(rec *types.Record) bool {
	select {
	case rs.records <- rec:
		return true
	case <-rs.stopCh:
		return false
	}
}

// Fail records the terminal error for this set. It does not close the
// channel; call finish (or, for external producers, Finish) separately
// once no more records will be pushed.
func (rs *RecordSet) Fail(err error) {
	rs.errVal.Store(err)
}

// finish closes the records channel. Must be called exactly once by
// the producer, regardless of how the stream ended.
func (rs *RecordSet) finish() {
	rs.closeOnce.Do(func() { close(rs.records) })
}

// Finish is the exported form of finish, for producers outside this
// package (the executor finishing an aggregate RecordSet after all of
// its children have completed).
func (rs *RecordSet) Finish() { rs.finish() }
