// Package policy holds the per-command configuration types: timeout
// and retry behavior, replica selection, and the scan/query-specific
// additions. The shape follows rpc/common/config.go's ClientConfig/
// ServerConfig pattern -- a plain struct with sane zero values and a
// String() formatter for diagnostics -- generalized from "one config
// for the whole RPC client" to "one policy per command kind", since a
// scan's policy is not a single get's policy.
package policy

import (
	"fmt"
	"strings"
	"time"
)

// RecordExistsAction controls write semantics against an existing
// record.
type RecordExistsAction int

const (
	// UPDATE writes regardless of whether the record exists.
	UPDATE RecordExistsAction = iota
	// EXPECT_GEN_EQUAL writes only if the record's generation
	// matches Policy.Generation.
	EXPECT_GEN_EQUAL
	// EXPECT_GEN_GT writes only if Policy.Generation is greater
	// than the record's current generation.
	EXPECT_GEN_GT
	// FAIL fails the write if the record already exists.
	FAIL
)

// Replica selects which copies of a partition a read may be served
// from.
type Replica int

const (
	// MASTER reads only ever go to the partition's master node.
	MASTER Replica = iota
	// MASTER_PROLES allows reads from a master or a non-master
	// replica ("prole").
	MASTER_PROLES
)

// Concurrency controls how many child commands a batch/scan/query may
// have in flight at once: 0 means unbounded (one goroutine per node
// immediately), 1 means sequential, n>1 means bounded to n concurrent
// children.
type Concurrency int

const (
	ConcurrencyUnbounded Concurrency = 0
	ConcurrencySequential Concurrency = 1
)

// Policy configures a single-record command's timeout, retry and write
// semantics.
type Policy struct {
	// Timeout is the per-command deadline. Zero disables the
	// TimeoutSupervisor for this command entirely: the command may run
	// unbounded.
	Timeout time.Duration
	// MaxRetries is the number of retries attempted after the first
	// try; zero means a single attempt, one means at most two
	// attempts total.
	MaxRetries int
	// RetryOnTimeout, if true, makes a Timeout failure retryable and
	// restarts the deadline stopwatch on each retry; if false, a
	// retry (from a network-class failure) inherits the original
	// attempt's elapsed time against the same deadline.
	RetryOnTimeout bool
	// SleepBetweenRetries is the delay before a retried attempt is
	// re-dispatched.
	SleepBetweenRetries time.Duration
	// RecordExistsAction governs write-vs-existing-record behavior.
	RecordExistsAction RecordExistsAction
	// Generation is compared against EXPECT_GEN_EQUAL/EXPECT_GEN_GT.
	Generation uint32
	// Expiration is the record TTL in seconds written on Put.
	Expiration uint32
	// Replica selects which node copies may serve a read.
	Replica Replica
}

// DefaultPolicy returns the policy the client applies when the caller
// does not supply one explicitly.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:             1 * time.Second,
		MaxRetries:          2,
		RetryOnTimeout:      false,
		SleepBetweenRetries: 0,
		RecordExistsAction:  UPDATE,
		Replica:             MASTER,
	}
}

func (p Policy) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "timeout=%s max_retries=%d retry_on_timeout=%t replica=%v",
		p.Timeout, p.MaxRetries, p.RetryOnTimeout, p.Replica)
	return sb.String()
}

// BatchPolicy configures a batch-read command (multiple keys, one
// fan-out per (node, namespace) pair).
type BatchPolicy struct {
	Policy
	// Concurrency bounds how many node children run in parallel.
	Concurrency Concurrency
	// AllowPartialResults, if true, lets the executor surface
	// whatever results arrived before a failing child instead of
	// failing the whole batch.
	AllowPartialResults bool
}

// DefaultBatchPolicy returns the default batch policy.
func DefaultBatchPolicy() BatchPolicy {
	return BatchPolicy{
		Policy:      DefaultPolicy(),
		Concurrency: ConcurrencyUnbounded,
	}
}

// ScanQueryPolicy configures scans and queries, adding knobs a
// single-record Policy has no use for.
type ScanQueryPolicy struct {
	Policy
	// ConcurrentNodes bounds how many nodes are scanned/queried in
	// parallel; same semantics as Concurrency.
	ConcurrentNodes Concurrency
	// IncludeBinData, if false, requests metadata-only records
	// (NOBINDATA info1 flag).
	IncludeBinData bool
	// ScanPercent is the percentage (1-100) of each partition to
	// scan; 100 scans everything.
	ScanPercent uint8
	// FailOnClusterChange aborts the scan/query if cluster topology
	// changes mid-stream rather than silently continuing against a
	// stale node set.
	FailOnClusterChange bool
}

// DefaultScanQueryPolicy returns the default scan/query policy.
func DefaultScanQueryPolicy() ScanQueryPolicy {
	return ScanQueryPolicy{
		Policy:              DefaultPolicy(),
		ConcurrentNodes:     ConcurrencyUnbounded,
		IncludeBinData:      true,
		ScanPercent:         100,
		FailOnClusterChange: true,
	}
}
