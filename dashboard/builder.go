// Package dashboard computes the overview shown on the dashboard page,
// the /v1/dashboard endpoint and the live feed.
package dashboard

import (
	"errors"
	"pixgate/internal"
	"pixgate/models"
	"time"
)

const (
	period     = 30 * 24 * time.Hour
	recentRows = 5

	TrendUp   = "up"
	TrendDown = "down"
)

type Store interface {
	GetStatusSummary(merchantId string, from, to time.Time) ([]*models.StatusSummary, error)
	CountActiveMerchants(merchantId string, from, to time.Time) (int64, error)
	GetTransactions(filter *models.TransactionFilter) ([]*models.Transaction, int64, error)
	GetMerchant(id string) (*models.Merchant, error)
}

// Scope limits the view to one merchant; empty means the whole platform
type Scope struct {
	MerchantId string
}

type Stat struct {
	Title  string `json:"title"`
	Value  string `json:"value"`
	Change string `json:"change"`
	Trend  string `json:"trend"`
	Icon   string `json:"icon"`
}

type Row struct {
	Id       string                   `json:"id"`
	Merchant string                   `json:"merchant"`
	Amount   string                   `json:"amount"`
	Status   models.TransactionStatus `json:"status"`
	Badge    Badge                    `json:"badge"`
	Date     string                   `json:"date"`
}

type View struct {
	Stats       []Stat    `json:"stats"`
	Recent      []Row     `json:"recent"`
	GeneratedAt time.Time `json:"generated_at"`
}

// totals of one period
type totals struct {
	volume    int64
	count     int64
	completed int64
	merchants int64
}

func (t totals) successRate() float64 {
	if t.count == 0 {
		return 0
	}
	return float64(t.completed) / float64(t.count) * 100
}

type Builder struct {
	store    Store
	location *time.Location
}

func NewBuilder(store Store, location *time.Location) *Builder {
	if location == nil {
		location = time.UTC
	}
	return &Builder{store: store, location: location}
}

func (b *Builder) Build(scope Scope, now time.Time) (*View, error) {
	current, err := b.totals(scope, now.Add(-period), now)
	if err != nil {
		return nil, err
	}
	previous, err := b.totals(scope, now.Add(-2*period), now.Add(-period))
	if err != nil {
		return nil, err
	}

	view := &View{
		Stats: []Stat{
			stat("Volume Total", FormatBRL(current.volume), change(float64(current.volume), float64(previous.volume)), "dollar-sign"),
			stat("Transações", FormatCount(current.count), change(float64(current.count), float64(previous.count)), "activity"),
			stat("Taxa de Sucesso", FormatPercent(current.successRate()), current.successRate()-previous.successRate(), "credit-card"),
			stat("Merchants Ativos", FormatCount(current.merchants), change(float64(current.merchants), float64(previous.merchants)), "users"),
		},
		GeneratedAt: now.UTC(),
	}
	view.Recent, err = b.recent(scope)
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (b *Builder) totals(scope Scope, from, to time.Time) (totals, error) {
	var t totals
	summary, err := b.store.GetStatusSummary(scope.MerchantId, from, to)
	if err != nil {
		return t, err
	}
	for _, s := range summary {
		t.count += s.Count
		if s.Status == models.StatusCompleted {
			t.completed += s.Count
			t.volume += s.Amount
		}
	}
	t.merchants, err = b.store.CountActiveMerchants(scope.MerchantId, from, to)
	return t, err
}

func (b *Builder) recent(scope Scope) ([]Row, error) {
	list, _, err := b.store.GetTransactions(&models.TransactionFilter{MerchantId: scope.MerchantId, Limit: recentRows})
	if err != nil {
		return nil, err
	}
	names := make(map[string]string)
	rows := make([]Row, 0, len(list))
	for _, tx := range list {
		rows = append(rows, Row{
			Id:       tx.Id,
			Merchant: b.merchantName(tx, names),
			Amount:   FormatBRL(tx.Amount),
			Status:   tx.Status,
			Badge:    StatusBadge(tx.Status),
			Date:     tx.CreatedAt.In(b.location).Format(DateLayout),
		})
	}
	return rows, nil
}

func (b *Builder) merchantName(tx *models.Transaction, cache map[string]string) string {
	if tx.MerchantName != "" {
		return tx.MerchantName
	}
	if name, ok := cache[tx.MerchantId]; ok {
		return name
	}
	name := tx.MerchantId
	merchant, err := b.store.GetMerchant(tx.MerchantId)
	if err == nil && merchant.Name != "" {
		name = merchant.Name
	} else if err != nil && !errors.Is(err, internal.ErrNotFound) {
		return name
	}
	cache[tx.MerchantId] = name
	return name
}

func stat(title, value string, delta float64, icon string) Stat {
	trend := TrendUp
	if round1(delta) < 0 {
		trend = TrendDown
	}
	return Stat{Title: title, Value: value, Change: FormatChange(delta), Trend: trend, Icon: icon}
}

// change is the relative difference in percent; growth from zero counts as +100%
func change(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return (current - previous) / previous * 100
}
