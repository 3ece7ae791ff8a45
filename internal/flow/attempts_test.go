package flow

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdtu-ibank/payflow/internal/models"
	"github.com/tdtu-ibank/payflow/internal/store"
)

func TestAttemptLimiter_FreshBudget(t *testing.T) {
	l := NewAttemptLimiter(store.NewMemStore(), "pay-1", zerolog.Nop())

	assert.Equal(t, 0, l.Count())
	assert.Equal(t, models.OTPMaxAttempts, l.Remaining())
	assert.False(t, l.Exhausted())
}

func TestAttemptLimiter_RecordFailurePersists(t *testing.T) {
	s := store.NewMemStore()
	l := NewAttemptLimiter(s, "pay-1", zerolog.Nop())

	assert.Equal(t, models.OTPMaxAttempts-1, l.RecordFailure())
	assert.Equal(t, models.OTPMaxAttempts-2, l.RecordFailure())

	// A second limiter over the same store sees the consumed attempts.
	l2 := NewAttemptLimiter(s, "pay-1", zerolog.Nop())
	assert.Equal(t, 2, l2.Count())
	assert.Equal(t, models.OTPMaxAttempts-2, l2.Remaining())
}

func TestAttemptLimiter_ExhaustionBoundary(t *testing.T) {
	l := NewAttemptLimiter(store.NewMemStore(), "pay-1", zerolog.Nop())

	for i := 0; i < models.OTPMaxAttempts-1; i++ {
		l.RecordFailure()
		assert.False(t, l.Exhausted())
	}
	assert.Equal(t, 0, l.RecordFailure())
	assert.True(t, l.Exhausted())
}

func TestAttemptLimiter_CorruptCounterDegradesToZero(t *testing.T) {
	s := store.NewMemStore()
	require.NoError(t, s.Set(store.RetryKey("pay-1"), "banana"))

	l := NewAttemptLimiter(s, "pay-1", zerolog.Nop())
	assert.Equal(t, 0, l.Count(), "an unreadable counter is a fresh budget, not a crash")
}

func TestAttemptLimiter_OversizedCounterCapped(t *testing.T) {
	s := store.NewMemStore()
	require.NoError(t, s.Set(store.RetryKey("pay-1"), "99"))

	l := NewAttemptLimiter(s, "pay-1", zerolog.Nop())
	assert.True(t, l.Exhausted())
	assert.Equal(t, 0, l.Remaining())
}

func TestAttemptLimiter_SyncRemainingOnlyTightens(t *testing.T) {
	s := store.NewMemStore()
	l := NewAttemptLimiter(s, "pay-1", zerolog.Nop())
	l.RecordFailure()
	l.RecordFailure()

	// Server says more budget than local: local wins.
	l.SyncRemaining(models.OTPMaxAttempts)
	assert.Equal(t, 2, l.Count())

	// Server says less budget: server wins.
	l.SyncRemaining(1)
	assert.Equal(t, models.OTPMaxAttempts-1, l.Count())
	assert.Equal(t, 1, l.Remaining())
}

func TestAttemptLimiter_PerPaymentIsolation(t *testing.T) {
	s := store.NewMemStore()
	a := NewAttemptLimiter(s, "pay-a", zerolog.Nop())
	a.RecordFailure()

	b := NewAttemptLimiter(s, "pay-b", zerolog.Nop())
	assert.Equal(t, 0, b.Count(), "counts are scoped per payment id")
}

func TestAttemptLimiter_Clear(t *testing.T) {
	s := store.NewMemStore()
	l := NewAttemptLimiter(s, "pay-1", zerolog.Nop())
	l.RecordFailure()
	l.Clear()

	_, ok := s.Get(store.RetryKey("pay-1"))
	assert.False(t, ok)
}
