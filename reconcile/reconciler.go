// Package reconcile periodically brings open transactions in line with the providers.
package reconcile

import (
	"context"
	"fmt"
	"pixgate/internal"
	"pixgate/metrics/counters"
	"pixgate/models"
	"time"
)

// Syncer updates single transactions; implemented by the payments service
type Syncer interface {
	Sync(ctx context.Context, tx *models.Transaction) (bool, error)
	Expire(tx *models.Transaction) (bool, error)
}

type Store interface {
	GetOpenTransactions(after *models.Cursor, limit int) ([]*models.Transaction, error)
	GetStatusSummary(merchantId string, from, to time.Time) ([]*models.StatusSummary, error)
}

// Result counts what one pass did
type Result struct {
	Checked int
	Updated int
	Expired int
	Errors  int
}

type Reconciler struct {
	store    Store
	syncer   Syncer
	logger   internal.LogHandler
	interval time.Duration
	batch    int
	cursor   *models.Cursor
	open     map[models.TransactionStatus]int
	location *time.Location
	now      func() time.Time
}

func NewReconciler(store Store, syncer Syncer, interval time.Duration, batch int) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Reconciler{
		store:    store,
		syncer:   syncer,
		interval: interval,
		batch:    batch,
		open:     make(map[models.TransactionStatus]int),
		location: time.UTC,
		now:      time.Now,
	}
}

func (r *Reconciler) SetLogger(logger internal.LogHandler) {
	r.logger = logger
}

// SetLocation sets the time zone that defines "today" for the daily gauges
func (r *Reconciler) SetLocation(location *time.Location) {
	if location != nil {
		r.location = location
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce checks the next page of open transactions; passes walk the whole set in
// creation order and start over after the newest, so stuck entries cannot hold the rest back
func (r *Reconciler) RunOnce(ctx context.Context) Result {
	var result Result
	list, err := r.store.GetOpenTransactions(r.cursor, r.batch)
	if err != nil {
		r.logError("reconcile: read open transactions", err)
		return result
	}
	wrapped := len(list) < r.batch
	if wrapped {
		r.cursor = nil
	} else {
		last := list[len(list)-1]
		r.cursor = &models.Cursor{CreatedAt: last.CreatedAt, Id: last.Id}
	}

	for _, tx := range list {
		if ctx.Err() != nil {
			break
		}
		result.Checked++
		expired, err := r.syncer.Expire(tx)
		if err != nil {
			result.Errors++
			r.logError(fmt.Sprintf("reconcile: expire %s", tx.Id), err)
			continue
		}
		if expired {
			result.Expired++
			continue
		}
		changed, err := r.syncer.Sync(ctx, tx)
		if err != nil {
			result.Errors++
			r.warn(fmt.Sprintf("reconcile: sync %s via %s: %v", tx.Id, tx.ProviderCode, err))
		}
		if changed {
			result.Updated++
		}
		if !tx.Status.IsFinal() {
			r.open[tx.Status]++
		}
	}
	// gauges are published once a pass has walked the whole open set
	if wrapped {
		if ctx.Err() == nil {
			counters.ObserveOpenTransactions(string(models.StatusPending), r.open[models.StatusPending])
			counters.ObserveOpenTransactions(string(models.StatusProcessing), r.open[models.StatusProcessing])
		}
		r.open = make(map[models.TransactionStatus]int)
	}
	r.observeToday()

	if result.Updated > 0 || result.Expired > 0 || result.Errors > 0 {
		r.event(fmt.Sprintf("checked %d, updated %d, expired %d, errors %d", result.Checked, result.Updated, result.Expired, result.Errors))
	}
	return result
}

func (r *Reconciler) observeToday() {
	now := r.now().In(r.location)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.location)
	summary, err := r.store.GetStatusSummary("", from, from.AddDate(0, 0, 1))
	if err != nil {
		r.logError("reconcile: daily summary", err)
		return
	}
	for _, s := range summary {
		counters.TransactionsToday(string(s.Status), s.Count)
	}
}

func (r *Reconciler) event(text string) {
	if r.logger != nil {
		r.logger.FeatureEvent("reconcile", "", text)
	}
}

func (r *Reconciler) warn(text string) {
	if r.logger != nil {
		r.logger.Warn(text)
	}
}

func (r *Reconciler) logError(text string, err error) {
	if r.logger != nil {
		r.logger.Error(text, err)
	}
}
