package reconcile_test

import (
	"context"
	"pixgate/cache"
	"pixgate/internal/memdb"
	"pixgate/models"
	"pixgate/payments"
	"pixgate/providers"
	"pixgate/providers/sandbox"
	"pixgate/reconcile"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plain struct{}

func (plain) Decrypt(encoded string) (string, error) {
	return encoded, nil
}

func TestRunOnce(t *testing.T) {
	db := memdb.New()
	require.NoError(t, db.AddProvider(&models.Provider{Id: "p1", Code: sandbox.Code, Active: true}))
	require.NoError(t, db.AddMerchantProvider(&models.MerchantProvider{
		Id: "mp1", MerchantId: "m1", ProviderId: "p1", ProviderCode: sandbox.Code, Active: true,
		ClientId: "m1", ClientSecret: "s", PixKey: "loja@example.com", PixKeyType: models.PixKeyTypeEmail,
	}))
	registry := providers.NewRegistry()
	registry.Register(sandbox.New())
	manager := providers.NewManager(registry, db, plain{}, cache.NewMemoryStore())
	service := payments.NewService(db, manager)

	ctx := context.Background()
	actor := payments.Actor{MerchantId: "m1"}
	processing, err := service.CreateTransfer(ctx, actor, &payments.TransferRequest{Amount: 1050, PayeePixKey: "52998224725", PayeePixKeyType: models.PixKeyTypeCPF})
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, processing.Status)

	charge, err := service.CreateQRCode(ctx, actor, &payments.QRCodeRequest{Amount: 500, ExpiresIn: 60})
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute)
	charge.QRCodeExpiresAt = &past
	require.NoError(t, db.UpdateTransaction(charge))

	r := reconcile.NewReconciler(db, service, time.Minute, 10)
	result := r.RunOnce(ctx)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, 0, result.Errors)

	stored, err := db.GetTransaction(processing.Id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	stored, err = db.GetTransaction(charge.Id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)

	result = r.RunOnce(ctx)
	assert.Equal(t, 0, result.Checked)
}

type stuckSyncer struct {
	seen []string
}

func (s *stuckSyncer) Sync(_ context.Context, tx *models.Transaction) (bool, error) {
	s.seen = append(s.seen, tx.Id)
	if tx.Id == "newest" {
		tx.Status = models.StatusCompleted
		return true, nil
	}
	return false, assert.AnError
}

func (s *stuckSyncer) Expire(*models.Transaction) (bool, error) {
	return false, nil
}

func TestRunOnceWalksPastStuckTransactions(t *testing.T) {
	db := memdb.New()
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c", "d", "newest"} {
		require.NoError(t, db.AddTransaction(&models.Transaction{
			Id: id, MerchantId: "m1", ExternalId: id, Status: models.StatusProcessing,
			Amount: 100, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	syncer := &stuckSyncer{}
	r := reconcile.NewReconciler(db, syncer, time.Minute, 2)
	ctx := context.Background()

	assert.Equal(t, 2, r.RunOnce(ctx).Errors)
	assert.Equal(t, 2, r.RunOnce(ctx).Errors)
	result := r.RunOnce(ctx)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, []string{"a", "b", "c", "d", "newest"}, syncer.seen)

	syncer.seen = nil
	r.RunOnce(ctx)
	assert.Equal(t, []string{"a", "b"}, syncer.seen)
}
