package flow

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadlineTimer_TicksWithRecomputedRemaining(t *testing.T) {
	var mu sync.Mutex
	var samples []time.Duration

	timer := newDeadlineTimer(time.Now().Add(100*time.Millisecond), 10*time.Millisecond, time.Now,
		func(remaining time.Duration) {
			mu.Lock()
			samples = append(samples, remaining)
			mu.Unlock()
		}, nil)
	defer timer.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(samples) >= 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(samples); i++ {
		assert.LessOrEqual(t, samples[i], samples[i-1], "remaining must not increase")
	}
	assert.LessOrEqual(t, samples[0], 100*time.Millisecond)
}

func TestDeadlineTimer_ExpiresExactlyOnce(t *testing.T) {
	var expired int32

	timer := newDeadlineTimer(time.Now().Add(30*time.Millisecond), 5*time.Millisecond, time.Now,
		nil, func() { atomic.AddInt32(&expired, 1) })
	defer timer.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&expired) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&expired))
}

func TestDeadlineTimer_PastInstantFiresImmediately(t *testing.T) {
	var expired int32
	var ticked int32

	timer := newDeadlineTimer(time.Now().Add(-time.Second), 10*time.Millisecond, time.Now,
		func(time.Duration) { atomic.AddInt32(&ticked, 1) },
		func() { atomic.AddInt32(&expired, 1) })
	defer timer.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&expired) == 1
	}, time.Second, time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&ticked), "an already-dead deadline never ticks")
}

func TestDeadlineTimer_StopPreventsExpiry(t *testing.T) {
	var expired int32

	timer := newDeadlineTimer(time.Now().Add(50*time.Millisecond), 5*time.Millisecond, time.Now,
		nil, func() { atomic.AddInt32(&expired, 1) })
	timer.Stop()
	timer.Stop() // idempotent

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&expired))
}

func TestDeadlineTimer_SuspendedClockCatchesUp(t *testing.T) {
	// A fake clock that jumps past the deadline between ticks, the way a
	// suspended laptop does.
	start := time.Now()
	var jumped int32
	clock := func() time.Time {
		if atomic.LoadInt32(&jumped) == 1 {
			return start.Add(time.Hour)
		}
		return start
	}

	var expired int32
	timer := newDeadlineTimer(start.Add(10*time.Minute), 5*time.Millisecond, clock,
		nil, func() { atomic.AddInt32(&expired, 1) })
	defer timer.Stop()

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, atomic.LoadInt32(&expired))

	atomic.StoreInt32(&jumped, 1)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&expired) == 1
	}, time.Second, 5*time.Millisecond, "the next tick after the jump must expire")
}

func TestDeadlineTimer_Remaining(t *testing.T) {
	timer := newDeadlineTimer(time.Now().Add(time.Hour), time.Minute, time.Now, nil, nil)
	defer timer.Stop()

	r := timer.Remaining()
	assert.Greater(t, r, 59*time.Minute)
	assert.LessOrEqual(t, r, time.Hour)

	past := newDeadlineTimer(time.Now().Add(-time.Hour), time.Minute, time.Now, nil, nil)
	defer past.Stop()
	assert.Equal(t, time.Duration(0), past.Remaining())
}
