// Package event implements a reusable I/O context: a pooled handle
// carrying a buffer segment and a back-reference to whichever command
// currently owns it. The token that alternates between the owning
// command (in flight) and the resting buffer segment (pooled) is
// modeled here as two separate fields guarded by single-owner
// discipline rather than a shared interface{} tag -- Go's type system
// makes an explicit Owner pointer clearer than an untyped variant, and
// the invariant (never read Owner while nil is expected, never two
// owners at once) is the same either way.
package event

import (
	"fmt"

	"github.com/dkv-io/async-client/internal/buffer"
)

// Context is one pooled I/O scheduling slot.
type Context struct {
	id      int
	Segment *buffer.Segment
	Owner   interface{} // *command.Base while checked out; nil at rest
}

func (c *Context) String() string {
	return fmt.Sprintf("EventContext#%d", c.id)
}

// ID returns the context's pool slot index, useful for logging.
func (c *Context) ID() int { return c.id }

// Pool is the bounded pool of Contexts: capacity-limited, with
// blocking or non-blocking acquisition. The blocking/parking behavior
// lives in internal/admission, which wraps a Pool; Pool itself is the
// non-blocking primitive, a buffered channel of *Context.
type Pool struct {
	bufPool *buffer.Pool
	slots   chan *Context
}

// NewPool creates a Pool with `capacity` contexts, each initialized
// with a fresh buffer segment from bufPool.
func NewPool(capacity int, bufPool *buffer.Pool) *Pool {
	p := &Pool{
		bufPool: bufPool,
		slots:   make(chan *Context, capacity),
	}
	for i := 0; i < capacity; i++ {
		p.slots <- &Context{
			id:      i,
			Segment: bufPool.GetNext(bufPool.Cutoff()),
		}
	}
	return p
}

// TryAcquire returns a Context immediately available, or nil if the
// pool is currently exhausted. Acquiring binds the context to owner and
// clears its resting Segment ownership tag (the segment itself stays
// put; only the notional "who holds the user token" changes).
func (p *Pool) TryAcquire(owner interface{}) *Context {
	select {
	case ctx := <-p.slots:
		ctx.Owner = owner
		if p.bufPool.HasChanged(ctx.Segment) {
			// Arena was resized since this context was last used;
			// reset so the next size_buffer() call reallocates
			// against the new generation instead of reusing a
			// stale-generation slab.
			ctx.Segment = p.bufPool.GetNext(p.bufPool.Cutoff())
		}
		return ctx
	default:
		return nil
	}
}

// Release returns ctx to the pool, clearing Owner so the resting
// Segment becomes the sole occupant of the user-token slot again. If
// ctx's Segment overflowed past the arena's cutoff during the command
// that just finished with it, the original pooled slab is restored to
// the arena and ctx is handed a fresh pooled segment here -- it cannot
// keep referencing the one just restored, since that slab may already
// be checked out by a different GetNext caller by the time ctx is next
// acquired.
func (p *Pool) Release(ctx *Context) {
	if p.bufPool.Release(ctx.Segment) {
		ctx.Segment = p.bufPool.GetNext(p.bufPool.Cutoff())
	}
	ctx.Owner = nil
	select {
	case p.slots <- ctx:
	default:
		// Should not happen: releasing more contexts than were ever
		// acquired indicates a double-release bug upstream. Drop
		// rather than block or panic, since a full channel here
		// would mean capacity was miscomputed elsewhere.
	}
}

// Available reports how many contexts are currently free.
func (p *Pool) Available() int { return len(p.slots) }

// Capacity returns the pool's total size.
func (p *Pool) Capacity() int { return cap(p.slots) }
