package store

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/tdtu-ibank/payflow/internal/models"
)

// ==============================================
// FLOW SNAPSHOT CODEC
// ==============================================

// SaveFlowState serializes the flow state under KeyPaymentState. Called on
// every committed transition.
func SaveFlowState(s Store, state models.PaymentFlowState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.Set(KeyPaymentState, string(raw))
}

// LoadFlowState reads back the persisted snapshot. A missing key returns
// (nil, nil). An unparsable or invariant-violating snapshot returns
// models.ErrCorruptSnapshot and removes the offending key so the next mount
// starts clean.
func LoadFlowState(s Store) (*models.PaymentFlowState, error) {
	raw, ok := s.Get(KeyPaymentState)
	if !ok {
		return nil, nil
	}

	var state models.PaymentFlowState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		s.Remove(KeyPaymentState)
		return nil, models.ErrCorruptSnapshot
	}
	if err := state.Validate(); err != nil {
		s.Remove(KeyPaymentState)
		return nil, models.ErrCorruptSnapshot
	}
	return &state, nil
}

// ClearFlowState drops the snapshot only, leaving per-payment keys alone.
func ClearFlowState(s Store) {
	s.Remove(KeyPaymentState)
}

// ==============================================
// DEADLINE CODEC
// ==============================================

// SaveDeadline persists an absolute instant as epoch milliseconds. Deadlines
// are always stored absolute, never as remaining durations: durations drift
// across reloads and suspended processes, absolute instants do not.
func SaveDeadline(s Store, key string, at time.Time) error {
	return s.Set(key, strconv.FormatInt(at.UnixMilli(), 10))
}

// LoadDeadline reads an absolute instant back. Missing or unparsable values
// report ok=false; the caller treats that as "no deadline persisted".
func LoadDeadline(s Store, key string) (time.Time, bool) {
	raw, ok := s.Get(key)
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.Remove(key)
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// ==============================================
// COUNTER CODEC
// ==============================================

// SaveCounter persists a small non-negative integer as a string.
func SaveCounter(s Store, key string, n int) error {
	return s.Set(key, strconv.Itoa(n))
}

// LoadCounter reads a counter back, degrading to 0 on absence or parse
// failure.
func LoadCounter(s Store, key string) int {
	raw, ok := s.Get(key)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		s.Remove(key)
		return 0
	}
	return n
}
