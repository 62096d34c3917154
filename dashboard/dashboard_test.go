package dashboard

import (
	"fmt"
	"pixgate/internal/memdb"
	"pixgate/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatters(t *testing.T) {
	assert.Equal(t, "R$ 1.234.567,89", FormatBRL(123456789))
	assert.Equal(t, "R$ 150,00", FormatBRL(15000))
	assert.Equal(t, "R$ 0,05", FormatBRL(5))
	assert.Equal(t, "-R$ 1,00", FormatBRL(-100))
	assert.Equal(t, "1.234", FormatCount(1234))
	assert.Equal(t, "42", FormatCount(42))
	assert.Equal(t, "1.000.000", FormatCount(1000000))
	assert.Equal(t, "98.5%", FormatPercent(98.46))
	assert.Equal(t, "+12.5%", FormatChange(12.5))
	assert.Equal(t, "-3.2%", FormatChange(-3.2))
	assert.Equal(t, "+0.0%", FormatChange(0))
	assert.Equal(t, "+0.0%", FormatChange(-0.04))
}

func TestStatusBadge(t *testing.T) {
	assert.Equal(t, Badge{Label: "Concluída", Color: "green"}, StatusBadge(models.StatusCompleted))
	assert.Equal(t, Badge{Label: "Processando", Color: "yellow"}, StatusBadge(models.StatusProcessing))
	assert.Equal(t, "Falhou", StatusBadge(models.StatusFailed).Label)
	assert.Equal(t, "red", StatusBadge(models.StatusPending).Color)
}

func TestChange(t *testing.T) {
	assert.Equal(t, 100.0, change(5, 0))
	assert.Equal(t, 0.0, change(0, 0))
	assert.Equal(t, 50.0, change(150, 100))
	assert.Equal(t, -25.0, change(75, 100))
}

func TestEmptyView(t *testing.T) {
	b := NewBuilder(memdb.New(), time.UTC)
	view, err := b.Build(Scope{}, time.Now())
	require.NoError(t, err)
	require.Len(t, view.Stats, 4)
	for _, s := range view.Stats {
		assert.Equal(t, TrendUp, s.Trend)
		assert.Equal(t, "+0.0%", s.Change)
	}
	assert.Equal(t, "R$ 0,00", view.Stats[0].Value)
	assert.Equal(t, "0.0%", view.Stats[2].Value)
	assert.Empty(t, view.Recent)
}

func TestBuildFromLedger(t *testing.T) {
	db := memdb.New()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.AddMerchant(&models.Merchant{Id: "m1", Name: "Loja ABC"}))
	require.NoError(t, db.AddMerchant(&models.Merchant{Id: "m2", Name: "Empresa XYZ"}))

	add := func(id, merchant string, status models.TransactionStatus, amount int64, at time.Time) {
		require.NoError(t, db.AddTransaction(&models.Transaction{
			Id: id, MerchantId: merchant, ExternalId: id, Type: models.TransactionTypeTransfer,
			Status: status, Amount: amount, CreatedAt: at,
		}))
	}
	// previous period: two completed transactions of one merchant
	add("p1", "m1", models.StatusCompleted, 10000, now.Add(-40*24*time.Hour))
	add("p2", "m1", models.StatusCompleted, 10000, now.Add(-45*24*time.Hour))
	// current period: three completed and one failed over two merchants
	for i := 0; i < 3; i++ {
		add(fmt.Sprintf("c%d", i), "m1", models.StatusCompleted, 10000, now.Add(-time.Duration(i+1)*time.Hour))
	}
	add("f1", "m2", models.StatusFailed, 8990, now.Add(-10*time.Minute))
	add("x1", "m2", models.StatusProcessing, 500, now.Add(-5*time.Minute))
	add("x2", "m2", models.StatusProcessing, 500, now.Add(-4*time.Minute))

	view, err := NewBuilder(db, time.UTC).Build(Scope{}, now)
	require.NoError(t, err)

	volume := view.Stats[0]
	assert.Equal(t, "Volume Total", volume.Title)
	assert.Equal(t, "R$ 300,00", volume.Value)
	assert.Equal(t, "+50.0%", volume.Change)
	assert.Equal(t, TrendUp, volume.Trend)

	count := view.Stats[1]
	assert.Equal(t, "6", count.Value)
	assert.Equal(t, "+200.0%", count.Change)

	rate := view.Stats[2]
	assert.Equal(t, "50.0%", rate.Value)
	assert.Equal(t, "-50.0%", rate.Change)
	assert.Equal(t, TrendDown, rate.Trend)

	merchants := view.Stats[3]
	assert.Equal(t, "2", merchants.Value)
	assert.Equal(t, "+100.0%", merchants.Change)

	require.Len(t, view.Recent, 5)
	assert.Equal(t, "x2", view.Recent[0].Id)
	assert.Equal(t, "Empresa XYZ", view.Recent[0].Merchant)
	assert.Equal(t, "R$ 5,00", view.Recent[0].Amount)
	assert.Equal(t, "Processando", view.Recent[0].Badge.Label)
	assert.Equal(t, "2024-03-01 11:56", view.Recent[0].Date)

	scoped, err := NewBuilder(db, time.UTC).Build(Scope{MerchantId: "m1"}, now)
	require.NoError(t, err)
	assert.Equal(t, "3", scoped.Stats[1].Value)
	assert.Equal(t, "100.0%", scoped.Stats[2].Value)
	assert.Equal(t, "+0.0%", scoped.Stats[2].Change)
	assert.Equal(t, "Loja ABC", scoped.Recent[0].Merchant)
}
