package audit

import (
	"errors"
	"fmt"
	"pixgate/internal/memdb"
	"pixgate/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogTransaction(t *testing.T) {
	db := memdb.New()
	s := NewService(db, 0)

	tx := &models.Transaction{Id: "t1", MerchantId: "m1", Status: models.StatusFailed, Amount: 500, PayeePixKey: "52998224725", Type: models.TransactionTypeTransfer}
	s.LogTransaction(tx, "u1", "transaction.transfer", errors.New("rejected"))
	s.Close()

	list, total, err := db.GetAuditLogs(&models.AuditFilter{TransactionId: "t1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	entry := list[0]
	assert.Equal(t, "transaction.transfer", entry.Action)
	assert.Equal(t, ResourceTransaction, entry.Resource)
	assert.Equal(t, "rejected", entry.ErrorMessage)
	assert.NotEmpty(t, entry.Id)
	assert.NotEqual(t, "52998224725", entry.Metadata["payee_pix_key"])
}

func TestQueryAndAccessLog(t *testing.T) {
	db := memdb.New()
	s := NewService(db, 5)
	s.LogAPIAccess(ApiAccess{MerchantId: "m1", Method: "GET", Path: "/v1/transactions", Status: 200, Duration: 15 * time.Millisecond})
	s.LogAPIAccess(ApiAccess{MerchantId: "m1", Method: "POST", Path: "/v1/transactions/transfer", Status: 409})
	s.LogAuthentication("", "x@y.com", "10.0.0.1", "curl", false, "invalid password")
	s.Close()

	list, total, err := s.Query(models.AuditFilter{MerchantId: "m1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)

	list, _, err = s.Query(models.AuditFilter{Action: "auth.login_failed"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "x@y.com", list[0].Metadata["email"])
}

func TestCleanup(t *testing.T) {
	db := memdb.New()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.AddAuditLog(&models.AuditLog{Id: "old", Action: "a", CreatedAt: now.AddDate(-6, 0, 0)}))
	require.NoError(t, db.AddAuditLog(&models.AuditLog{Id: "new", Action: "a", CreatedAt: now.AddDate(-1, 0, 0)}))

	s := NewService(db, 5)
	s.now = func() time.Time { return now }
	defer s.Close()

	deleted, err := s.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, total, err := s.Query(models.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

type stalledStore struct {
	*memdb.DB
	release chan struct{}
}

func (s *stalledStore) AddAuditLog(entry *models.AuditLog) error {
	<-s.release
	return s.DB.AddAuditLog(entry)
}

func TestLogDropsWhenQueueIsFull(t *testing.T) {
	store := &stalledStore{DB: memdb.New(), release: make(chan struct{})}
	s := NewService(store, 5)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < queueSize+10; i++ {
			s.Log(&models.AuditLog{Action: "api.access", Resource: ResourceAPI})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Log blocked on a full queue")
	}

	close(store.release)
	s.Close()
	_, total, err := store.GetAuditLogs(&models.AuditFilter{})
	require.NoError(t, err)
	assert.Less(t, total, int64(queueSize+10))
	assert.GreaterOrEqual(t, total, int64(queueSize))

	assert.NotPanics(t, func() {
		s.Log(&models.AuditLog{Action: "late"})
		s.Close()
	})
}

func TestQueryLimit(t *testing.T) {
	assert.Equal(t, 100, Limit(0))
	assert.Equal(t, 100, Limit(-3))
	assert.Equal(t, 20, Limit(20))
	assert.Equal(t, 500, Limit(500))
	assert.Equal(t, 500, Limit(501))

	db := memdb.New()
	for i := 0; i < 120; i++ {
		require.NoError(t, db.AddAuditLog(&models.AuditLog{Id: fmt.Sprintf("a%d", i), Action: "a", CreatedAt: time.Now()}))
	}
	s := NewService(db, 5)
	defer s.Close()
	list, _, err := s.Query(models.AuditFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, list, 120)
}
