package errorlistener

import (
	"fmt"
	"pixgate/internal"
	"pixgate/metrics/counters"
	"pixgate/models"
	"time"
)

type Database interface {
	GetStatusSummary(merchantId string, from, to time.Time) ([]*models.StatusSummary, error)
}

// ErrorListener logs failed transactions and keeps today's status gauges current
type ErrorListener struct {
	db       Database
	log      internal.LogHandler
	location *time.Location
}

func NewErrorListener(db Database, log internal.LogHandler, location *time.Location) *ErrorListener {
	if location == nil {
		location = time.UTC
	}
	log.FeatureEvent("ErrorListener", "", "created")
	return &ErrorListener{db: db, log: log, location: location}
}

func (e ErrorListener) OnTransactionEvent(event *internal.EventMessage) {
	switch event.Type {
	case models.EventTransactionFailed:
		e.log.FeatureEvent("ErrorListener", event.TransactionId, fmt.Sprintf("%s failed at %s: %s", event.MerchantId, event.ProviderCode, event.Info))
	case models.EventTransactionCreated:
		return
	}
	go e.observeToday()
}

func (e ErrorListener) UpdateCounter() {
	go e.observeToday()
}

func (e ErrorListener) observeToday() {
	now := time.Now().In(e.location)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.location)
	summary, err := e.db.GetStatusSummary("", from, from.AddDate(0, 0, 1))
	if err != nil {
		e.log.Error("getting today's transaction summary", err)
		return
	}
	for _, s := range summary {
		counters.TransactionsToday(string(s.Status), s.Count)
	}
}
