package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkv-io/async-client/internal/buffer"
)

func TestTryAcquireAndReleaseRoundTrip(t *testing.T) {
	bp := buffer.NewPool(64)
	p := NewPool(1, bp)

	ctx := p.TryAcquire("owner-1")
	require.NotNil(t, ctx)
	assert.Nil(t, p.TryAcquire("owner-2"), "pool of capacity 1 should be exhausted")

	p.Release(ctx)
	assert.Equal(t, 1, p.Available())

	ctx2 := p.TryAcquire("owner-3")
	require.NotNil(t, ctx2)
	assert.Same(t, ctx, ctx2)
}

func TestReleaseAfterSegmentOverflowRestoresPooledSlab(t *testing.T) {
	bp := buffer.NewPool(64)
	p := NewPool(1, bp)

	ctx := p.TryAcquire("owner")
	require.NotNil(t, ctx)

	ctx.Segment.Grow(256, bp) // simulate an oversized command reply
	require.False(t, ctx.Segment.Pooled)
	overflowBuf := ctx.Segment.Buffer

	p.Release(ctx)

	reacquired := p.TryAcquire("owner-2")
	require.NotNil(t, reacquired)
	assert.True(t, reacquired.Segment.Pooled, "context should hold a fresh pooled segment, not the overflow buffer")
	assert.Equal(t, bp.Cutoff(), cap(reacquired.Segment.Buffer))
	assert.NotSame(t, &overflowBuf[0], &reacquired.Segment.Buffer[0], "the overflow heap buffer must be dropped, not handed back to the context")
}
