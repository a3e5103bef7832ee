package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNextWithinCutoffIsPooled(t *testing.T) {
	p := NewPool(1024)
	seg := p.GetNext(100)
	assert.True(t, seg.Pooled)
	assert.Equal(t, 100, seg.Size)
	assert.Len(t, seg.Bytes(), 100)
}

func TestGetNextOverflowIsStandalone(t *testing.T) {
	p := NewPool(64)
	seg := p.GetNext(128)
	assert.False(t, seg.Pooled)
	assert.Equal(t, 128, seg.Size)
}

func TestGrowWithinCutoffStaysPooled(t *testing.T) {
	p := NewPool(1024)
	seg := p.GetNext(64)
	seg.Grow(512, p)
	assert.True(t, seg.Pooled)
	assert.Equal(t, 512, seg.Size)
}

func TestGrowPastCutoffDetachesFromPool(t *testing.T) {
	p := NewPool(64)
	seg := p.GetNext(32)
	seg.Grow(256, p)
	assert.False(t, seg.Pooled)
	assert.Equal(t, 256, seg.Size)
}

func TestReleaseRecyclesPooledSegment(t *testing.T) {
	p := NewPool(64)
	seg := p.GetNext(32)
	p.Release(seg)

	seg2 := p.GetNext(16)
	require.True(t, seg2.Pooled)
	assert.Equal(t, 64, cap(seg2.Buffer))
}

func TestReleaseIgnoresStandaloneSegment(t *testing.T) {
	p := NewPool(64)
	seg := p.GetNext(256) // overflow, standalone
	assert.NotPanics(t, func() { p.Release(seg) })
}

func TestResizeBumpsGenerationAndDropsStaleSegments(t *testing.T) {
	p := NewPool(64)
	seg := p.GetNext(32)
	assert.False(t, p.HasChanged(seg))

	p.Resize(128)
	assert.True(t, p.HasChanged(seg))
	assert.Equal(t, 128, p.Cutoff())
}

func TestReleaseAfterResizeDropsStaleSlab(t *testing.T) {
	p := NewPool(64)
	seg := p.GetNext(32)
	p.Resize(128)
	// Stale-generation segment's backing array no longer matches the
	// pool's cutoff; Release must drop it rather than poison the pool.
	assert.NotPanics(t, func() { p.Release(seg) })
}

func TestReleaseAfterOverflowRestoresOriginalSlabAndDropsHeapBuffer(t *testing.T) {
	p := NewPool(64)
	seg := p.GetNext(32)
	origBuf := seg.Buffer
	seg.Grow(256, p) // overflow: detaches to a standalone heap buffer
	require.False(t, seg.Pooled)
	require.NotEqual(t, &origBuf[0], &seg.Buffer[0])

	restored := p.Release(seg)
	assert.True(t, restored, "Release should report the original slab was recycled")

	seg2 := p.GetNext(16)
	require.True(t, seg2.Pooled)
	assert.Same(t, &origBuf[0], &seg2.Buffer[0], "the original pre-overflow slab, not the heap buffer, should come back out of the arena")
}

func TestReleaseOfNeverPooledStandaloneSegmentReportsNoRestore(t *testing.T) {
	p := NewPool(64)
	seg := p.GetNext(256) // overflow from the start, never pooled
	assert.False(t, p.Release(seg))
}
