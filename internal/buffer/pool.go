// Package buffer implements a fixed-capacity shared buffer arena: a
// bounded set of pooled slabs sized at BufferCutoff, with an overflow
// path for oversized messages that are allocated per-use and never
// cached.
//
// Grounded on readFrame's buffer-reuse-or-grow idiom in
// rpc/transport/base/util.go (reuse the caller's buffer when it is
// big enough, allocate a fresh one otherwise) generalized into a
// bounded pool with a generation counter so in-flight segments can
// detect a pool resize.
package buffer

import (
	"sync"
	"sync/atomic"
)

// DefaultCutoff is the default maximum size of a pooled slab, 128 KiB.
const DefaultCutoff = 128 * 1024

// Segment is a byte range, either backed by a pooled slab (Pooled ==
// true) or a standalone heap allocation used for an oversized message.
// Segments from the pool always have Size <= the pool's cutoff.
type Segment struct {
	Buffer     []byte
	Offset     int
	Size       int
	Pooled     bool
	generation uint64

	// orig holds the pooled state this segment overflowed from, so
	// Release can restore it and hand the original slab back to the
	// arena instead of caching the oversized buffer. Set only on the
	// first overflow of a given checkout; left untouched by any further
	// growth of an already-overflowed segment.
	orig *Segment
}

// Bytes returns the usable byte range of the segment.
func (s *Segment) Bytes() []byte {
	return s.Buffer[s.Offset : s.Offset+s.Size]
}

// Grow enlarges the segment to at least n bytes. If the segment is
// pooled and n exceeds the pool's cutoff, the segment is detached from
// the pool and becomes a standalone heap allocation (the overflow
// path); the pooled state it overflowed from is stashed in orig first,
// so Pool.Release can later restore the original slab and drop the
// overflow buffer instead of caching it.
func (s *Segment) Grow(n int, p *Pool) {
	if n <= s.Size {
		return
	}
	if s.Pooled && n <= p.cutoff {
		// still fits a pooled slab; just resize within the same backing array
		s.Size = n
		return
	}
	if s.Pooled {
		saved := *s
		saved.orig = nil
		s.orig = &saved
	}
	// overflow: standalone allocation, never cached
	buf := make([]byte, n)
	s.Buffer = buf
	s.Offset = 0
	s.Size = n
	s.Pooled = false
}

// Pool is a bounded arena of fixed-capacity slabs. It hands out
// Segments sized to at least the caller's request (growing in place up
// to cutoff) and recycles pooled segments on Release.
type Pool struct {
	cutoff     int
	generation atomic.Uint64
	slots      sync.Pool
}

// NewPool creates a Pool whose pooled slabs are `cutoff` bytes.
func NewPool(cutoff int) *Pool {
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	p := &Pool{cutoff: cutoff}
	p.slots.New = func() interface{} {
		return make([]byte, cutoff)
	}
	return p
}

// Cutoff returns the pool's slab size.
func (p *Pool) Cutoff() int { return p.cutoff }

// Generation returns the current arena generation. Bumped by Resize.
func (p *Pool) Generation() uint64 { return p.generation.Load() }

// Resize changes the pool's slab size for all future Get calls and
// bumps the generation counter so existing callers can detect the
// change via HasChanged and reset their segment's fields, forcing the
// next GetNext to reallocate against the new cutoff.
func (p *Pool) Resize(cutoff int) {
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	p.cutoff = cutoff
	p.slots.New = func() interface{} {
		return make([]byte, cutoff)
	}
	p.generation.Add(1)
}

// GetNext returns a Segment sized to at least `size` bytes. If size is
// within the pool's cutoff, a pooled slab is used (and enlarged to
// `size` within the slab's capacity, which is always cutoff); otherwise
// a standalone segment is allocated and will be dropped, not cached, on
// Release.
func (p *Pool) GetNext(size int) *Segment {
	if size > p.cutoff {
		return &Segment{
			Buffer:     make([]byte, size),
			Offset:     0,
			Size:       size,
			Pooled:     false,
			generation: p.generation.Load(),
		}
	}
	buf := p.slots.Get().([]byte)
	if cap(buf) < p.cutoff {
		buf = make([]byte, p.cutoff)
	}
	return &Segment{
		Buffer:     buf,
		Offset:     0,
		Size:       size,
		Pooled:     true,
		generation: p.generation.Load(),
	}
}

// HasChanged reports whether the pool's arena generation has advanced
// since s was checked out, meaning a resize occurred and s should be
// released (or reset) rather than reused as-is.
func (p *Pool) HasChanged(s *Segment) bool {
	return s.generation != p.generation.Load()
}

// Release returns a pooled segment to the arena. Standalone segments
// that never overflowed (oversized from their first GetNext) are
// simply dropped -- they are never cached.
//
// A segment that overflowed mid-command (Pooled == false but orig !=
// nil) is handled differently: its original pooled slab, saved by
// Grow, is handed back to the arena in place of the overflow buffer,
// and the overflow buffer is dropped. Release reports true in this
// case, telling the caller the segment it still holds a reference to
// no longer owns a private buffer and a fresh one must be fetched
// before reuse -- the slab just released may already be on its way to
// a different GetNext caller.
func (p *Pool) Release(s *Segment) bool {
	if s == nil {
		return false
	}
	if !s.Pooled {
		orig := s.orig
		s.orig = nil
		if orig == nil {
			return false // never pooled to begin with; nothing to recycle
		}
		if cap(orig.Buffer) == p.cutoff {
			p.slots.Put(orig.Buffer)
		}
		return true
	}
	if cap(s.Buffer) != p.cutoff {
		// arena was resized since checkout; drop rather than
		// poison the new-generation pool with a stale-size slab.
		return false
	}
	p.slots.Put(s.Buffer)
	return false
}
