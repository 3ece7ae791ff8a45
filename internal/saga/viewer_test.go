package saga

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdtu-ibank/payflow/internal/models"
)

// ==============================================
// MOCK FETCHER
// ==============================================

type MockFetcher struct {
	ListSagasFunc      func(ctx context.Context) ([]*models.SagaRecord, error)
	GetSagaFunc        func(ctx context.Context, paymentID string) (*models.SagaRecord, error)
	PaymentHistoryFunc func(ctx context.Context) ([]models.PaymentSummary, error)
}

func (m *MockFetcher) ListSagas(ctx context.Context) ([]*models.SagaRecord, error) {
	if m.ListSagasFunc != nil {
		return m.ListSagasFunc(ctx)
	}
	return nil, nil
}

func (m *MockFetcher) GetSaga(ctx context.Context, paymentID string) (*models.SagaRecord, error) {
	if m.GetSagaFunc != nil {
		return m.GetSagaFunc(ctx, paymentID)
	}
	return nil, models.ErrSagaNotFound
}

func (m *MockFetcher) PaymentHistory(ctx context.Context) ([]models.PaymentSummary, error) {
	if m.PaymentHistoryFunc != nil {
		return m.PaymentHistoryFunc(ctx)
	}
	return nil, nil
}

func sagaAt(id string, at time.Time) *models.SagaRecord {
	return &models.SagaRecord{
		SagaID:    "saga-" + id,
		PaymentID: id,
		Status:    models.SagaCompleted,
		CreatedAt: at,
	}
}

// ==============================================
// TESTS
// ==============================================

func TestViewer_RefreshSortsNewestFirst(t *testing.T) {
	base := time.Now()
	v := NewViewer(&MockFetcher{
		ListSagasFunc: func(ctx context.Context) ([]*models.SagaRecord, error) {
			return []*models.SagaRecord{
				sagaAt("old", base.Add(-time.Hour)),
				sagaAt("new", base),
				sagaAt("mid", base.Add(-time.Minute)),
			}, nil
		},
		PaymentHistoryFunc: func(ctx context.Context) ([]models.PaymentSummary, error) {
			return []models.PaymentSummary{
				{PaymentID: "a", CreatedAt: base.Add(-time.Hour)},
				{PaymentID: "b", CreatedAt: base},
			}, nil
		},
	}, zerolog.Nop())

	require.NoError(t, v.Refresh(context.Background()))

	records := v.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "new", records[0].PaymentID)
	assert.Equal(t, "mid", records[1].PaymentID)
	assert.Equal(t, "old", records[2].PaymentID)

	history := v.History()
	require.Len(t, history, 2)
	assert.Equal(t, "b", history[0].PaymentID)
}

func TestViewer_RefreshFailureKeepsCache(t *testing.T) {
	failing := false
	v := NewViewer(&MockFetcher{
		ListSagasFunc: func(ctx context.Context) ([]*models.SagaRecord, error) {
			if failing {
				return nil, models.ErrTransport
			}
			return []*models.SagaRecord{sagaAt("saga-1", time.Now())}, nil
		},
	}, zerolog.Nop())

	require.NoError(t, v.Refresh(context.Background()))
	require.Len(t, v.Records(), 1)

	failing = true
	err := v.Refresh(context.Background())
	assert.ErrorIs(t, err, models.ErrTransport)
	assert.Len(t, v.Records(), 1, "a failed refresh must not wipe the last good data")
}

func TestViewer_FetchPrefersServer(t *testing.T) {
	v := NewViewer(&MockFetcher{
		GetSagaFunc: func(ctx context.Context, paymentID string) (*models.SagaRecord, error) {
			return &models.SagaRecord{PaymentID: paymentID, Status: models.SagaPending}, nil
		},
	}, zerolog.Nop())

	record, err := v.Fetch(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.SagaPending, record.Status)
}

func TestViewer_FetchFallsBackToCache(t *testing.T) {
	calls := 0
	v := NewViewer(&MockFetcher{
		ListSagasFunc: func(ctx context.Context) ([]*models.SagaRecord, error) {
			return []*models.SagaRecord{sagaAt("pay-1", time.Now())}, nil
		},
		GetSagaFunc: func(ctx context.Context, paymentID string) (*models.SagaRecord, error) {
			calls++
			return nil, models.ErrTransport
		},
	}, zerolog.Nop())
	require.NoError(t, v.Refresh(context.Background()))

	record, err := v.Fetch(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "pay-1", record.PaymentID)
	assert.Equal(t, 1, calls)
}

func TestViewer_FetchNotFoundIsNotMasked(t *testing.T) {
	v := NewViewer(&MockFetcher{}, zerolog.Nop())

	_, err := v.Fetch(context.Background(), "pay-gone")
	assert.ErrorIs(t, err, models.ErrSagaNotFound)
}

func TestViewer_EmptyBeforeFirstRefresh(t *testing.T) {
	v := NewViewer(&MockFetcher{}, zerolog.Nop())
	assert.Empty(t, v.Records())
	assert.Empty(t, v.History())
}
