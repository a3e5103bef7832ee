// Package command implements the asynchronous command state machine
// that is the heart of the core. Base is the shared engine every
// single-record command (Get, Put, Delete, Exists, Append/Prepend,
// Touch) holds; those commands supply the Executable methods Base calls
// at each step (GetNode, WriteBuffer, ParseCommand, ...). The
// multi-record children (BatchChild, ScanChild, QueryChild) do not use
// Base: internal/multi.MultiCommand runs them on connections the
// executor acquires.
//
// A non-blocking, callback-driven socket model is realized here as a
// single function (Base.attempt) run on its own goroutine, using
// blocking net.Conn calls with deadlines; retries loop the same
// function body rather than constructing a clone object, since Go has
// no equivalent of re-entering a callback with inherited stack state.
// The resource-release and exactly-once-notification invariants hold
// regardless of which I/O model realizes them.
package command

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dkv-io/async-client/cluster"
	"github.com/dkv-io/async-client/internal/admission"
	"github.com/dkv-io/async-client/internal/event"
	"github.com/dkv-io/async-client/internal/netio"
	"github.com/dkv-io/async-client/internal/timeout"
	"github.com/dkv-io/async-client/log"
	dkvmetrics "github.com/dkv-io/async-client/metrics"
	"github.com/dkv-io/async-client/policy"
	"github.com/dkv-io/async-client/proto"
	"github.com/dkv-io/async-client/types"
)

var logger = log.Get("command")

// State is the command's lifecycle state, held as an atomic int32.
// Every terminal transition is exactly one CAS winner, from
// StateInProgress to any of the terminal values.
type State int32

const (
	StateInProgress State = iota
	StateSuccess
	StateRetry
	StateFailTimeout
	StateFailNetworkInit
	StateFailNetworkError
	StateFailApplicationInit
	StateFailApplicationError
)

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "IN_PROGRESS"
	case StateSuccess:
		return "SUCCESS"
	case StateRetry:
		return "RETRY"
	case StateFailTimeout:
		return "FAIL_TIMEOUT"
	case StateFailNetworkInit:
		return "FAIL_NETWORK_INIT"
	case StateFailNetworkError:
		return "FAIL_NETWORK_ERROR"
	case StateFailApplicationInit:
		return "FAIL_APPLICATION_INIT"
	case StateFailApplicationError:
		return "FAIL_APPLICATION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Executable is what a concrete command supplies to Base. All methods
// are called from the single goroutine driving that command's
// attempts; none need to be concurrency-safe against each other, only
// against the supervisor's onTimeout (which never calls back into
// Executable).
type Executable interface {
	// CommandName labels metrics and log lines, e.g. "Get", "Put".
	CommandName() string
	// GetNode resolves the node this attempt should talk to. Called
	// fresh on every attempt (including retries), so it naturally
	// picks a new node if the cluster map changed.
	GetNode(c cluster.Cluster) (cluster.Node, error)
	// EstimateSize returns the upper bound on bytes WriteBuffer will
	// write, used to size (or grow) the segment before writing.
	EstimateSize() int
	// WriteBuffer fills buf (which is at least EstimateSize() bytes)
	// with the full outgoing frame (outer header, command header,
	// fields, ops) and returns the number of bytes actually written.
	WriteBuffer(buf []byte) (int, error)
	// ParseCommand interprets one parsed command header and its body
	// (the bytes after the 22-byte command header). Returning nil
	// means success. Returning a *types.ClientError lets the command
	// control connection disposition via KeepConn; any other error is
	// treated as a non-retryable parse failure that closes the
	// connection.
	ParseCommand(header proto.ParsedHeader, body []byte) error
	// OnSuccess is called exactly once, after resources are released,
	// when the command reaches StateSuccess.
	OnSuccess()
	// OnFailure is called exactly once, after resources are
	// released, when the command reaches any terminal failure state.
	OnFailure(err error)
}

// Base is the reusable AsyncCommand engine.
type Base struct {
	exe        Executable
	cl         cluster.Cluster
	pol        policy.Policy
	admission  *admission.Queue
	supervisor *timeout.Supervisor

	id        uuid.UUID
	createdAt time.Time

	state      int32
	iterations int

	stopwatchStarted bool
	stopwatchAt      time.Time
	watchRegistered  bool
	watchID          uint64

	ctx  *event.Context
	conn *netio.Connection
	node cluster.Node
}

// NewBase constructs the shared engine for a concrete command.
func NewBase(exe Executable, cl cluster.Cluster, pol policy.Policy, admissionQ *admission.Queue, sup *timeout.Supervisor) *Base {
	return &Base{
		exe:        exe,
		cl:         cl,
		pol:        pol,
		admission:  admissionQ,
		supervisor: sup,
		id:         uuid.New(),
		createdAt:  time.Now(),
	}
}

// State returns the current atomic state, mostly for tests/diagnostics.
func (b *Base) State() State { return State(atomic.LoadInt32(&b.state)) }

// Iterations returns how many retries have been started so far: 0
// during the first attempt, 1 during the second, and so on.
func (b *Base) Iterations() int { return b.iterations }

// Run drives the command to completion, looping over attempts until a
// terminal state is reached and the listener has been notified exactly
// once. Callers that want asynchronous behavior should invoke Run on
// its own goroutine; Run itself blocks until done.
func (b *Base) Run() {
	for b.attempt() {
	}
}

// attempt runs one full admit-connect-send-receive-parse cycle. It
// returns true if a retry was won and the caller should loop for
// another attempt, false once a terminal state has been reached and
// the listener notified.
func (b *Base) attempt() bool {
	if b.ctx == nil {
		ctx, err := b.admission.Acquire(b)
		if err != nil {
			// No context was ever acquired: nothing was registered
			// with the supervisor and nothing needs releasing, so
			// this is the one completion path that bypasses the
			// state CAS entirely -- there is no concurrent writer
			// that could possibly race it.
			logger.Debugf("%s %s: rejected at admission: %v", b.exe.CommandName(), b.id, err)
			dkvmetrics.CommandResult(b.exe.CommandName(), "fail")
			b.exe.OnFailure(err)
			return false
		}
		b.ctx = ctx
	}

	if b.pol.Timeout > 0 {
		if !b.stopwatchStarted || b.pol.RetryOnTimeout {
			b.stopwatchAt = time.Now()
			b.stopwatchStarted = true
		}
		b.watchID = b.supervisor.Register(b.exe.CommandName(), b.stopwatchAt.Add(b.pol.Timeout), b.isLive, b.onTimeout)
		b.watchRegistered = true
	}

	node, err := b.exe.GetNode(b.cl)
	if err != nil {
		return b.fail(asClientError(err, types.KindInvalidNode), StateFailNetworkInit, true, false)
	}
	b.node = node

	if b.conn == nil {
		np := b.cl.Pools().For(node.ID)
		freshlyDialed := false
		if c := np.Get(); c != nil {
			b.conn = c
		} else {
			c, derr := netio.Dial(node.ID, node.Endpoint, connectTimeout(b.pol))
			if derr != nil {
				return b.fail(asClientError(derr, types.KindConnection), StateFailNetworkInit, true, false)
			}
			np.Track()
			b.conn = c
			freshlyDialed = true
		}

		if user, required := b.cl.User(); required && freshlyDialed {
			if aerr := b.authenticate(user); aerr != nil {
				return b.fail(aerr, StateFailApplicationInit, false, true)
			}
		}
	}

	size := b.exe.EstimateSize()
	if b.ctx.Segment.Size < size {
		b.ctx.Segment.Grow(size, b.cl.Buffers())
	}
	n, werr := b.exe.WriteBuffer(b.ctx.Segment.Bytes())
	if werr != nil {
		return b.fail(types.Wrap(types.KindSerialize, werr, "write_buffer failed"), StateFailApplicationInit, false, false)
	}
	if n > size {
		// Actual outgoing length exceeded the pre-computed estimate:
		// fatal, never retried: a serializer lying about its own
		// output size is a programming error, not a transient fault.
		return b.fail(types.New(types.KindSerialize, fmt.Sprintf("wrote %d bytes, estimated %d", n, size)), StateFailApplicationInit, false, false)
	}

	if err := b.conn.Send(b.ctx.Segment.Bytes()[:n], b.ioDeadline()); err != nil {
		return b.fail(asClientError(err, types.KindConnection), StateFailNetworkError, true, true)
	}

	header := make([]byte, proto.HeaderSize)
	var bodyLen uint64
	for {
		if err := b.conn.Recv(header, b.ioDeadline()); err != nil {
			return b.fail(asClientError(err, types.KindConnection), StateFailNetworkError, true, true)
		}
		l, herr := proto.ReadOuterHeader(header)
		if herr != nil {
			return b.fail(types.Wrap(types.KindParse, herr, "malformed outer header"), StateFailApplicationError, false, true)
		}
		if l == 0 {
			continue // zero-length keep-alive frame; re-read the header
		}
		bodyLen = l
		break
	}

	if int(bodyLen) > b.ctx.Segment.Size {
		b.ctx.Segment.Grow(int(bodyLen), b.cl.Buffers())
	}
	body := b.ctx.Segment.Bytes()[:bodyLen]
	if err := b.conn.Recv(body, b.ioDeadline()); err != nil {
		return b.fail(asClientError(err, types.KindConnection), StateFailNetworkError, true, true)
	}

	cmdHeader, herr := proto.ParseCommandHeader(body)
	if herr != nil {
		return b.fail(types.Wrap(types.KindParse, herr, "malformed command header"), StateFailApplicationError, false, true)
	}

	if perr := b.exe.ParseCommand(cmdHeader, body[proto.CommandHeaderSize:]); perr != nil {
		cerr := asClientError(perr, types.KindParse)
		return b.fail(cerr, StateFailApplicationError, false, !cerr.KeepConn)
	}

	return b.succeed()
}

// fail is the single convergence point for every non-success exit from
// attempt(). It decides retry eligibility from the policy and error
// kind, CASes the state accordingly, and on the losing side of a race
// against the supervisor's own CAS (the fail-vs-retry race: the
// supervisor can independently CAS to a timeout state while attempt()
// is mid-flight) falls back to alreadyCompleted so the listener is
// still notified exactly once.
func (b *Base) fail(cerr *types.ClientError, terminal State, retryCandidate bool, closeConn bool) bool {
	cerr.Node = b.node.ID
	cerr.Iterations = b.iterations

	elapsed := time.Since(b.stopwatchAt)
	eligible := retryCandidate && cerr.IsRetryable() &&
		b.iterations < b.pol.MaxRetries &&
		(b.pol.Timeout == 0 || b.pol.RetryOnTimeout || elapsed < b.pol.Timeout)

	if eligible {
		// If the supervisor has already won its own CAS to
		// StateFailTimeout (see onTimeout below), this CAS always
		// loses regardless of how many retries remain: StateFailTimeout
		// is terminal, so a command whose deadline fires mid-attempt
		// completes on that single attempt rather than consuming the
		// rest of max_retries. Inherited (non-reset) stopwatches on a
		// later retry therefore never get a chance to time out a
		// second time -- there is no later retry once the supervisor
		// has already terminated the command.
		if atomic.CompareAndSwapInt32(&b.state, int32(StateInProgress), int32(StateRetry)) {
			b.iterations++
			dkvmetrics.CommandRetries(b.exe.CommandName())
			b.unregisterWatch()
			b.disposeConn(closeConn)
			atomic.StoreInt32(&b.state, int32(StateInProgress))
			if b.pol.SleepBetweenRetries > 0 {
				time.Sleep(b.pol.SleepBetweenRetries)
			}
			return true
		}
		return b.alreadyCompleted()
	}

	if atomic.CompareAndSwapInt32(&b.state, int32(StateInProgress), int32(terminal)) {
		b.finish(closeConn, cerr)
		return false
	}
	return b.alreadyCompleted()
}

// succeed CASes to StateSuccess and finishes, or falls back to
// alreadyCompleted if the supervisor won a concurrent timeout race in
// the window between the last I/O call returning and this CAS.
func (b *Base) succeed() bool {
	if atomic.CompareAndSwapInt32(&b.state, int32(StateInProgress), int32(StateSuccess)) {
		b.finish(false, nil)
		return false
	}
	return b.alreadyCompleted()
}

// alreadyCompleted handles the case where this goroutine discovers,
// after unblocking from I/O, that the supervisor already won the CAS to
// StateFailTimeout. The connection was already closed by the
// supervisor; this only needs to release the remaining resources and
// notify the listener with a timeout error.
func (b *Base) alreadyCompleted() bool {
	cerr := &types.ClientError{
		Kind:       types.KindTimeout,
		Msg:        "command already completed by timeout supervisor",
		Node:       b.node.ID,
		Iterations: b.iterations,
	}
	b.finish(true, cerr)
	return false
}

// finish is the single choke point for resource release and listener
// notification: every terminal path (success, ineligible failure,
// alreadyCompleted) ends here exactly once, which is what guarantees
// the "exactly one listener call, resources always released" invariant.
func (b *Base) finish(closeConn bool, cerr *types.ClientError) {
	b.unregisterWatch()
	b.disposeConn(closeConn)
	if b.ctx != nil {
		b.admission.Release(b.ctx)
		b.ctx = nil
	}

	dkvmetrics.CommandLatency(b.exe.CommandName(), time.Since(b.createdAt).Seconds())
	if cerr != nil {
		dkvmetrics.CommandResult(b.exe.CommandName(), "fail")
		b.exe.OnFailure(cerr)
		return
	}
	dkvmetrics.CommandResult(b.exe.CommandName(), "success")
	b.exe.OnSuccess()
}

// onTimeout is registered with the Supervisor. It deliberately never
// calls the listener: it only wins the CAS and closes the connection,
// forcing whichever I/O call is currently blocked on this command's own
// goroutine to return an error, which drives notification through
// fail()/alreadyCompleted() on that goroutine instead. This keeps
// notification and resource release confined to a single goroutine
// per command, even when the supervisor is the one forcing the exit.
func (b *Base) onTimeout() {
	if atomic.CompareAndSwapInt32(&b.state, int32(StateInProgress), int32(StateFailTimeout)) {
		if b.conn != nil {
			_ = b.conn.Close()
		}
	}
}

func (b *Base) isLive() bool {
	return atomic.LoadInt32(&b.state) == int32(StateInProgress)
}

// unregisterWatch removes the current watch (if any) from the
// supervisor without touching the stopwatch fields, so an inherited
// (non-reset) deadline survives a retry when RetryOnTimeout is false.
func (b *Base) unregisterWatch() {
	if b.watchRegistered {
		b.supervisor.Unregister(b.watchID)
		b.watchRegistered = false
	}
}

// disposeConn returns the connection to its node pool if healthy, or
// closes it, in both cases detaching it from b so the next attempt
// acquires a fresh one.
func (b *Base) disposeConn(closeConn bool) {
	if b.conn == nil {
		return
	}
	np := b.cl.Pools().For(b.node.ID)
	if closeConn {
		_ = b.conn.Close()
		np.Forget()
	} else if !np.Put(b.conn, true) {
		_ = b.conn.Close()
		np.Forget()
	}
	b.conn = nil
}

func connectTimeout(pol policy.Policy) time.Duration {
	if pol.Timeout > 0 {
		return pol.Timeout
	}
	return 5 * time.Second
}

func asClientError(err error, fallback types.Kind) *types.ClientError {
	if ce, ok := err.(*types.ClientError); ok {
		return ce
	}
	return types.Wrap(fallback, err, "")
}

// authenticate performs the small credential exchange over the freshly
// dialed connection, per the auth step called out in attempt() above.
func (b *Base) authenticate(user string) *types.ClientError {
	return Authenticate(b.conn, user, b.ioDeadline())
}

// Authenticate runs the credential exchange over a freshly dialed
// connection. Exported so callers that dial their own connections
// outside the Base state machine (the multi-node executor's per-child
// dials) can perform the same exchange instead of skipping it. The
// exact credential hashing scheme is an external collaborator's
// concern; this only frames the exchange.
func Authenticate(conn *netio.Connection, user string, deadline time.Time) *types.ClientError {
	size := proto.AuthRequestSize(user, user)
	buf := make([]byte, size)
	n := proto.WriteAuthRequest(buf, user, user)
	if err := conn.Send(buf[:n], deadline); err != nil {
		return asClientError(err, types.KindConnection)
	}
	resp := make([]byte, proto.AuthResponseSize)
	if err := conn.Recv(resp, deadline); err != nil {
		return asClientError(err, types.KindConnection)
	}
	code, perr := proto.ParseAuthResponse(resp)
	if perr != nil {
		return types.Wrap(types.KindParse, perr, "malformed auth response")
	}
	if code != proto.ResultOK {
		return &types.ClientError{Kind: types.KindServerError, ResultCode: code, Msg: "authentication failed", KeepConn: false}
	}
	return nil
}

// ioDeadline returns the deadline the next Send/Recv call should honor:
// the active stopwatch deadline if a timeout policy applies, otherwise
// a generous fixed ceiling so an unbounded-timeout command still can't
// wedge a goroutine forever on a dead socket.
func (b *Base) ioDeadline() time.Time {
	if b.pol.Timeout <= 0 {
		return time.Now().Add(30 * time.Second)
	}
	return b.stopwatchAt.Add(b.pol.Timeout)
}
