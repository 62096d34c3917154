package sandbox

import (
	"context"
	"pixgate/models"
	"pixgate/providers"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transferOf(amount int64) *providers.TransferRequest {
	return &providers.TransferRequest{Amount: amount, PayeePixKey: "loja@example.com", PayeePixKeyType: models.PixKeyTypeEmail}
}

func TestAuthenticate(t *testing.T) {
	p := New()
	token, err := p.Authenticate(context.Background(), providers.Credentials{ClientId: "m1", ClientSecret: "s"})
	require.NoError(t, err)
	assert.Equal(t, "sandbox-m1", token.AccessToken)

	_, err = p.Authenticate(context.Background(), providers.Credentials{ClientId: "m1", ClientSecret: "invalid"})
	require.Error(t, err)
	assert.True(t, providers.IsUnauthorized(err))
	assert.False(t, providers.IsRetryable(err))
}

func TestTransferOutcomes(t *testing.T) {
	p := New()
	ctx := context.Background()

	resp, err := p.CreateTransfer(ctx, transferOf(10000))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, resp.Status)
	assert.Len(t, resp.E2EId, 32)
	assert.True(t, strings.HasPrefix(resp.E2EId, "E"+ISPB))

	_, err = p.CreateTransfer(ctx, transferOf(1013))
	assert.True(t, providers.IsRetryable(err))

	_, err = p.CreateTransfer(ctx, transferOf(1066))
	require.Error(t, err)
	assert.False(t, providers.IsRetryable(err))

	resp, err = p.CreateTransfer(ctx, transferOf(1050))
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, resp.Status)
	got, err := p.GetTransfer(ctx, &providers.Lookup{Id: resp.ProviderTxId})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestCancel(t *testing.T) {
	p := New()
	ctx := context.Background()
	resp, err := p.CreateTransfer(ctx, transferOf(2050))
	require.NoError(t, err)
	require.NoError(t, p.CancelTransfer(ctx, &providers.Lookup{Id: resp.ProviderTxId}))

	got, err := p.GetTransfer(ctx, &providers.Lookup{Id: resp.ProviderTxId})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	assert.Error(t, p.CancelTransfer(ctx, &providers.Lookup{Id: resp.ProviderTxId}))
	assert.Error(t, p.CancelTransfer(ctx, &providers.Lookup{Id: "missing"}))
}

func TestQRCodeLifecycle(t *testing.T) {
	p := New()
	now := time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	ctx := context.Background()

	qr, err := p.CreateQRCodeDynamic(ctx, &providers.QRCodeRequest{Amount: 2500, PixKey: "loja@example.com", PayeeName: "Loja", ExpiresIn: 600})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(qr.QRCode, "000201"))
	require.NotNil(t, qr.ExpiresAt)

	assert.True(t, p.Pay(qr.QRCodeId))
	assert.False(t, p.Pay(qr.QRCodeId))
	got, err := p.GetQRCode(ctx, &providers.Lookup{Id: qr.QRCodeId})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	expiring, err := p.CreateQRCodeDynamic(ctx, &providers.QRCodeRequest{Amount: 100, PixKey: "loja@example.com", ExpiresIn: 60})
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	got, err = p.GetQRCode(ctx, &providers.Lookup{Id: expiring.QRCodeId})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	static, err := p.CreateQRCodeStatic(ctx, &providers.QRCodeRequest{PixKey: "loja@example.com"})
	require.NoError(t, err)
	assert.Nil(t, static.ExpiresAt)
}

func TestValidateKeyAndHealth(t *testing.T) {
	p := New()
	ctx := context.Background()

	info, err := p.ValidatePixKey(ctx, &providers.PixKeyRequest{PixKey: "52998224725", PixKeyType: models.PixKeyTypeCPF})
	require.NoError(t, err)
	assert.True(t, info.Valid)

	info, err = p.ValidatePixKey(ctx, &providers.PixKeyRequest{PixKey: "12345678900", PixKeyType: models.PixKeyTypeCPF})
	require.NoError(t, err)
	assert.False(t, info.Valid)

	assert.NoError(t, p.HealthCheck(ctx))
	p.SetHealthy(false)
	assert.Error(t, p.HealthCheck(ctx))
}
