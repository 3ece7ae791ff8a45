package flow

import (
	"github.com/rs/zerolog"

	"github.com/tdtu-ibank/payflow/internal/models"
	"github.com/tdtu-ibank/payflow/internal/store"
)

// ==============================================
// ATTEMPT LIMITER
// ==============================================

// AttemptLimiter tracks failed OTP verifications for one payment id. The
// count is persisted under its own key, independent of the flow snapshot, so
// a reload cannot hand an attacker a fresh budget. The limiter is the only
// writer of that key for the lifetime of the payment.
type AttemptLimiter struct {
	store     store.Store
	paymentID string
	count     int
	log       zerolog.Logger
}

// NewAttemptLimiter loads any previously persisted count for the payment id.
// It must be constructed before the first verification is evaluated: attempts
// consumed in a prior session still count.
func NewAttemptLimiter(s store.Store, paymentID string, log zerolog.Logger) *AttemptLimiter {
	count := store.LoadCounter(s, store.RetryKey(paymentID))
	if count > models.OTPMaxAttempts {
		count = models.OTPMaxAttempts
	}
	if count > 0 {
		log.Debug().Str("payment_id", paymentID).Int("count", count).
			Msg("[ATTEMPTS] restored persisted retry count")
	}
	return &AttemptLimiter{store: s, paymentID: paymentID, count: count, log: log}
}

// Count returns the number of failed attempts so far.
func (l *AttemptLimiter) Count() int {
	return l.count
}

// Remaining returns how many attempts are left before the flow is voided.
func (l *AttemptLimiter) Remaining() int {
	remaining := models.OTPMaxAttempts - l.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Exhausted reports whether the attempt budget is spent.
func (l *AttemptLimiter) Exhausted() bool {
	return l.count >= models.OTPMaxAttempts
}

// RecordFailure increments and persists the counter, returning the remaining
// budget. The count is monotonically non-decreasing until Clear.
func (l *AttemptLimiter) RecordFailure() int {
	l.count++
	if err := store.SaveCounter(l.store, store.RetryKey(l.paymentID), l.count); err != nil {
		l.log.Warn().Err(err).Str("payment_id", l.paymentID).
			Msg("[ATTEMPTS] failed to persist retry count")
	}
	return l.Remaining()
}

// SyncRemaining adopts a server-reported attempts-remaining value when it is
// stricter than the local count. The local count never decreases.
func (l *AttemptLimiter) SyncRemaining(serverRemaining int) {
	serverCount := models.OTPMaxAttempts - serverRemaining
	if serverCount > l.count {
		l.count = serverCount
		if err := store.SaveCounter(l.store, store.RetryKey(l.paymentID), l.count); err != nil {
			l.log.Warn().Err(err).Str("payment_id", l.paymentID).
				Msg("[ATTEMPTS] failed to persist synced retry count")
		}
	}
}

// Clear erases the persisted counter. Invoked on every terminal disposition.
func (l *AttemptLimiter) Clear() {
	l.store.Remove(store.RetryKey(l.paymentID))
}
