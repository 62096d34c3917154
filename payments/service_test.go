package payments

import (
	"context"
	"errors"
	"pixgate/cache"
	"pixgate/internal"
	"pixgate/internal/memdb"
	"pixgate/models"
	"pixgate/providers"
	"pixgate/providers/sandbox"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plain struct{}

func (plain) Decrypt(encoded string) (string, error) {
	return encoded, nil
}

type recorder struct {
	mutex  sync.Mutex
	events []string
	audits []string
}

func (r *recorder) OnTransactionEvent(event *internal.EventMessage) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, event.Type)
}

func (r *recorder) LogTransaction(_ *models.Transaction, _ string, action string, _ error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.audits = append(r.audits, action)
}

type fixture struct {
	db      *memdb.DB
	bank    *sandbox.Provider
	service *Service
	events  *recorder
}

var merchant = Actor{UserId: "u1", MerchantId: "m1"}

func setup(t *testing.T) *fixture {
	db := memdb.New()
	require.NoError(t, db.AddProvider(&models.Provider{Id: "p1", Code: sandbox.Code, Active: true, Priority: 1}))
	require.NoError(t, db.AddMerchantProvider(&models.MerchantProvider{
		Id:           "mp1",
		MerchantId:   "m1",
		ProviderId:   "p1",
		ProviderCode: sandbox.Code,
		Active:       true,
		ClientId:     "m1",
		ClientSecret: "secret",
		PixKey:       "loja@example.com",
		PixKeyType:   models.PixKeyTypeEmail,
	}))
	bank := sandbox.New()
	registry := providers.NewRegistry()
	registry.Register(bank)
	manager := providers.NewManager(registry, db, plain{}, cache.NewMemoryStore())

	rec := &recorder{}
	service := NewService(db, manager)
	service.SetAuditor(rec)
	service.AddEventListener(rec)
	return &fixture{db: db, bank: bank, service: service, events: rec}
}

func transfer(external string, amount int64) *TransferRequest {
	return &TransferRequest{
		ExternalId:      external,
		Amount:          amount,
		PayeeName:       "Maria",
		PayeePixKey:     "52998224725",
		PayeePixKeyType: models.PixKeyTypeCPF,
	}
}

func TestCreateTransferCompleted(t *testing.T) {
	f := setup(t)
	tx, err := f.service.CreateTransfer(context.Background(), merchant, transfer("order-1", 10000))
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, tx.Status)
	assert.Equal(t, sandbox.Code, tx.ProviderCode)
	assert.NotEmpty(t, tx.E2EId)
	assert.NotNil(t, tx.CompletedAt)

	stored, err := f.db.GetTransaction(tx.Id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, []string{models.EventTransactionCreated, models.EventTransactionCompleted}, f.events.events)
	assert.Equal(t, []string{"transaction.create", "transaction.transfer"}, f.events.audits)
}

func TestCreateTransferDuplicateExternalId(t *testing.T) {
	f := setup(t)
	_, err := f.service.CreateTransfer(context.Background(), merchant, transfer("order-1", 10000))
	require.NoError(t, err)
	_, err = f.service.CreateTransfer(context.Background(), merchant, transfer("order-1", 500))
	assert.ErrorIs(t, err, ErrDuplicateExternalID)
}

func TestCreateTransferValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.service.CreateTransfer(ctx, merchant, transfer("a", 0))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.service.CreateTransfer(ctx, merchant, &TransferRequest{Amount: 100})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req := transfer("b", 100)
	req.PayeePixKey = "11111111111"
	_, err = f.service.CreateTransfer(ctx, merchant, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.service.CreateTransfer(ctx, Actor{UserId: "admin", Admin: true}, transfer("c", 100))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.service.CreateTransfer(ctx, Actor{MerchantId: "m2"}, transfer("d", 100))
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestCreateTransferProviderRejects(t *testing.T) {
	f := setup(t)
	tx, err := f.service.CreateTransfer(context.Background(), merchant, transfer("order-66", 1066))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailure)
	require.NotNil(t, tx)
	assert.Equal(t, models.StatusFailed, tx.Status)
	assert.Equal(t, providers.CodeTransferFailed, tx.ErrorCode)

	stored, err := f.db.GetTransaction(tx.Id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, f.events.events, models.EventTransactionFailed)
}

func TestProcessingTransferRefresh(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tx, err := f.service.CreateTransfer(ctx, merchant, transfer("order-50", 1050))
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, tx.Status)

	refreshed, err := f.service.RefreshStatus(ctx, merchant, tx.Id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, refreshed.Status)

	changed, err := f.service.Sync(ctx, refreshed)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCancelTransfer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tx, err := f.service.CreateTransfer(ctx, merchant, transfer("order-50", 2050))
	require.NoError(t, err)

	cancelled, err := f.service.CancelTransaction(ctx, merchant, tx.Id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = f.service.CancelTransaction(ctx, merchant, tx.Id)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestQRCodeLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	f.service.now = func() time.Time { return now }

	tx, err := f.service.CreateQRCode(ctx, merchant, &QRCodeRequest{ExternalId: "qr-1", Amount: 2500, ExpiresIn: 600})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeQRCodeDynamic, tx.Type)
	assert.Equal(t, models.StatusPending, tx.Status)
	assert.NotEmpty(t, tx.QRCode)
	assert.Equal(t, "loja@example.com", tx.PayeePixKey)
	require.NotNil(t, tx.QRCodeExpiresAt)

	expired, err := f.service.Expire(tx)
	require.NoError(t, err)
	assert.False(t, expired)

	require.True(t, f.bank.Pay(tx.ProviderTxId))
	changed, err := f.service.Sync(ctx, tx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusCompleted, tx.Status)
}

func TestQRCodeExpiry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	f.service.now = func() time.Time { return now }

	tx, err := f.service.CreateQRCode(ctx, merchant, &QRCodeRequest{Amount: 100, ExpiresIn: 60})
	require.NoError(t, err)
	assert.Equal(t, tx.Id, tx.ExternalId)

	now = now.Add(2 * time.Minute)
	expired, err := f.service.Expire(tx)
	require.NoError(t, err)
	assert.True(t, expired)

	stored, err := f.db.GetTransaction(tx.Id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	assert.Equal(t, "EXPIRED", stored.ErrorCode)
}

func TestQRCodeValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.service.CreateQRCode(ctx, merchant, &QRCodeRequest{Type: "dynamic"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.service.CreateQRCode(ctx, merchant, &QRCodeRequest{Type: "weird", Amount: 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	tx, err := f.service.CreateQRCode(ctx, merchant, &QRCodeRequest{Type: QRCodeStatic})
	require.NoError(t, err)
	assert.Nil(t, tx.QRCodeExpiresAt)
}

func TestGetAndListScope(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := f.service.CreateTransfer(ctx, merchant, transfer(id, 100))
		require.NoError(t, err)
	}
	foreign := &models.Transaction{Id: "x", MerchantId: "m2", ExternalId: "x", Type: models.TransactionTypeTransfer, Status: models.StatusPending, Amount: 1, CreatedAt: time.Now()}
	require.NoError(t, f.db.AddTransaction(foreign))

	_, err := f.service.GetTransaction(ctx, merchant, "x")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.service.GetTransaction(ctx, merchant, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	page, err := f.service.ListTransactions(ctx, merchant, models.TransactionFilter{Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, maxLimit, page.Limit)

	page, err = f.service.ListTransactions(ctx, Actor{Admin: true}, models.TransactionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Len(t, page.Items, 2)

	page, err = f.service.ListTransactions(ctx, merchant, models.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, defaultLimit, page.Limit)

	_, err = f.service.ListTransactions(ctx, Actor{UserId: "u"}, models.TransactionFilter{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestValidatePixKey(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	info, err := f.service.ValidatePixKey(ctx, merchant, "52998224725", models.PixKeyTypeCPF, "")
	require.NoError(t, err)
	assert.True(t, info.Valid)
	assert.Equal(t, sandbox.ISPB, info.ISPB)

	info, err = f.service.ValidatePixKey(ctx, merchant, "not-an-email", models.PixKeyTypeEmail, "")
	require.NoError(t, err)
	assert.False(t, info.Valid)

	_, err = f.service.ValidatePixKey(ctx, merchant, "x", "bogus", "")
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}
