package timeout

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisorFiresOnTimeout(t *testing.T) {
	s := New(5 * time.Millisecond)
	defer s.Stop()

	var fired atomic.Bool
	var live atomic.Bool
	live.Store(true)

	s.Register("Get", time.Now().Add(10*time.Millisecond),
		func() bool { return live.Load() },
		func() { fired.Store(true) },
	)

	require.Eventually(t, fired.Load, 200*time.Millisecond, 5*time.Millisecond)
}

func TestSupervisorSkipsNonLiveWatch(t *testing.T) {
	s := New(5 * time.Millisecond)
	defer s.Stop()

	var fired atomic.Bool
	s.Register("Get", time.Now().Add(10*time.Millisecond),
		func() bool { return false }, // already completed elsewhere
		func() { fired.Store(true) },
	)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestUnregisterPreventsTimeout(t *testing.T) {
	s := New(5 * time.Millisecond)
	defer s.Stop()

	var fired atomic.Bool
	id := s.Register("Get", time.Now().Add(15*time.Millisecond),
		func() bool { return true },
		func() { fired.Store(true) },
	)
	s.Unregister(id)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
	assert.Zero(t, s.Len())
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(5 * time.Millisecond)
	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
}
