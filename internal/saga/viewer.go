package saga

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tdtu-ibank/payflow/internal/models"
)

// ==============================================
// SAGA FETCHER INTERFACE (for testing)
// ==============================================

// Fetcher is the read-only slice of the gateway the viewer consumes. The
// viewer never mutates saga state; the server owns the audit trail.
type Fetcher interface {
	ListSagas(ctx context.Context) ([]*models.SagaRecord, error)
	GetSaga(ctx context.Context, paymentID string) (*models.SagaRecord, error)
	PaymentHistory(ctx context.Context) ([]models.PaymentSummary, error)
}

// ==============================================
// VIEWER
// ==============================================

// Viewer caches the last successfully fetched audit trail so the history
// screen still renders something while a refresh is failing.
type Viewer struct {
	fetcher Fetcher
	log     zerolog.Logger

	mu      sync.RWMutex
	records []*models.SagaRecord
	history []models.PaymentSummary
}

func NewViewer(fetcher Fetcher, log zerolog.Logger) *Viewer {
	return &Viewer{fetcher: fetcher, log: log}
}

// Refresh reloads both the saga list and the payment history. On failure the
// previously cached data is kept.
func (v *Viewer) Refresh(ctx context.Context) error {
	records, err := v.fetcher.ListSagas(ctx)
	if err != nil {
		v.log.Warn().Err(err).Msg("[SAGA] saga list refresh failed")
		return fmt.Errorf("failed to refresh saga list: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	history, err := v.fetcher.PaymentHistory(ctx)
	if err != nil {
		v.log.Warn().Err(err).Msg("[SAGA] payment history refresh failed")
		return fmt.Errorf("failed to refresh payment history: %w", err)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.After(history[j].CreatedAt)
	})

	v.mu.Lock()
	v.records = records
	v.history = history
	v.mu.Unlock()
	return nil
}

// Records returns the cached saga list, newest first.
func (v *Viewer) Records() []*models.SagaRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*models.SagaRecord, len(v.records))
	copy(out, v.records)
	return out
}

// History returns the cached payment summaries, newest first.
func (v *Viewer) History() []models.PaymentSummary {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.PaymentSummary, len(v.history))
	copy(out, v.history)
	return out
}

// Fetch loads the audit trail for one payment id, preferring the server's
// fresh copy and falling back to the cache on transport trouble.
func (v *Viewer) Fetch(ctx context.Context, paymentID string) (*models.SagaRecord, error) {
	record, err := v.fetcher.GetSaga(ctx, paymentID)
	if err == nil {
		return record, nil
	}
	if models.IsNotFoundError(err) {
		return nil, err
	}

	v.log.Warn().Err(err).Str("payment_id", paymentID).Msg("[SAGA] fetch failed, trying cache")
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, r := range v.records {
		if r.PaymentID == paymentID {
			return r, nil
		}
	}
	return nil, models.ErrSagaNotFound
}
