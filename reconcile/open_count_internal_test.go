package reconcile

import (
	"context"
	"pixgate/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pagedStore struct {
	list []*models.Transaction
}

func (s *pagedStore) GetOpenTransactions(after *models.Cursor, limit int) ([]*models.Transaction, error) {
	start := 0
	if after != nil {
		for i, tx := range s.list {
			if tx.Id == after.Id {
				start = i + 1
			}
		}
	}
	end := start + limit
	if end > len(s.list) {
		end = len(s.list)
	}
	return s.list[start:end], nil
}

func (s *pagedStore) GetStatusSummary(string, time.Time, time.Time) ([]*models.StatusSummary, error) {
	return nil, nil
}

type idleSyncer struct{}

func (idleSyncer) Sync(context.Context, *models.Transaction) (bool, error) {
	return false, nil
}

func (idleSyncer) Expire(*models.Transaction) (bool, error) {
	return false, nil
}

func TestOpenCountsSpanWholePass(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &pagedStore{}
	for i, status := range []models.TransactionStatus{models.StatusPending, models.StatusPending, models.StatusProcessing} {
		store.list = append(store.list, &models.Transaction{
			Id:        string(rune('a' + i)),
			Status:    status,
			CreatedAt: created.Add(time.Duration(i) * time.Second),
		})
	}
	r := NewReconciler(store, idleSyncer{}, time.Minute, 2)
	ctx := context.Background()

	r.RunOnce(ctx)
	assert.Equal(t, 2, r.open[models.StatusPending])
	assert.NotNil(t, r.cursor)

	// second page wraps the pass; counts are published and reset
	result := r.RunOnce(ctx)
	assert.Equal(t, 1, result.Checked)
	assert.Nil(t, r.cursor)
	assert.Empty(t, r.open)
}
