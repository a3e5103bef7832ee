// Package timeout implements the TimeoutSupervisor: a dedicated
// goroutine that periodically inspects in-flight commands with
// deadlines and, when one has elapsed, wins the CAS to a timeout state
// and closes its connection to force error propagation on whatever
// path is currently blocked in I/O. The supervisor never calls a
// listener itself -- completion is always published by whichever side
// first wins the state CAS.
//
// Grounded on the bounded-retry/backoff loop idiom in
// lib/store/dstore/store.go's write/read helpers, generalized from "one
// retry loop per call" into "one continuous supervisor watching every
// in-flight call's deadline".
package timeout

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/dkv-io/async-client/log"
	dkvmetrics "github.com/dkv-io/async-client/metrics"
)

var logger = log.Get("supervisor")

// Watch is one registered in-flight command. CommandName is used only
// for metrics/log labeling.
type Watch struct {
	ID          uint64
	CommandName string
	Deadline    time.Time
	// OnTimeout is invoked by the supervisor goroutine when it wins
	// the race to transition this command to the timeout state. It
	// must be safe to call concurrently with the command's own
	// goroutine (the whole point of the CAS) and must not block.
	OnTimeout func()
	// IsLive is polled by the supervisor before acting; if it
	// reports false (state already left IN_PROGRESS by some other
	// path), the watch is dropped without calling OnTimeout -- the
	// command has already completed elsewhere.
	IsLive func() bool
}

// Supervisor runs a single goroutine that periodically checks every
// registered Watch against its deadline.
type Supervisor struct {
	watches  *xsync.MapOf[uint64, *Watch]
	nextID   uint64
	idMu     sync.Mutex
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Supervisor polling at the given interval (typically a
// small fraction of the shortest policy timeout in use, e.g. 10-50ms)
// and starts its goroutine immediately.
func New(interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	s := &Supervisor{
		watches:  xsync.NewMapOf[uint64, *Watch](),
		interval: interval,
		stop:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Register adds a watch and returns its id, used later to Unregister
// once the command completes by any other path (success, non-timeout
// failure). Timeout == 0 policies should never call Register at all --
// a zero timeout disables the supervisor for that command entirely.
func (s *Supervisor) Register(commandName string, deadline time.Time, isLive func() bool, onTimeout func()) uint64 {
	s.idMu.Lock()
	s.nextID++
	id := s.nextID
	s.idMu.Unlock()

	s.watches.Store(id, &Watch{
		ID:          id,
		CommandName: commandName,
		Deadline:    deadline,
		OnTimeout:   onTimeout,
		IsLive:      isLive,
	})
	return id
}

// Unregister removes a watch, e.g. because the command it tracked
// completed via a non-timeout path.
func (s *Supervisor) Unregister(id uint64) {
	s.watches.Delete(id)
}

func (s *Supervisor) run() {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-t.C:
			s.sweep(now)
		}
	}
}

func (s *Supervisor) sweep(now time.Time) {
	var expired []uint64
	s.watches.Range(func(id uint64, w *Watch) bool {
		if w.IsLive != nil && !w.IsLive() {
			expired = append(expired, id)
			return true
		}
		if now.After(w.Deadline) {
			expired = append(expired, id)
			dkvmetrics.CommandTimeouts(w.CommandName)
			logger.Debugf("command %s exceeded deadline %s, triggering timeout transition", w.CommandName, w.Deadline)
			w.OnTimeout()
		}
		return true
	})
	for _, id := range expired {
		s.watches.Delete(id)
	}
}

// Len reports how many commands are currently under watch; useful for
// tests and diagnostics.
func (s *Supervisor) Len() int {
	return s.watches.Size()
}

// Stop halts the supervisor goroutine. Idempotent.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
