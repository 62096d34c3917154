package counters

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "server",
	Name:      "connections_active",
	Help:      "Number of active ws connections",
}, []string{"feed"})

func ObserveConnections(feed string, count int) {
	if len(feed) == 0 {
		return
	}
	connectionsGauge.With(prometheus.Labels{"feed": feed}).Set(float64(count))
}

var httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "server",
	Name:      "http_requests_total",
	Help:      "Handled HTTP requests by route and status code.",
}, []string{"method", "route", "code"})

var httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "server",
	Name:      "http_request_seconds",
	Help:      "HTTP request latency.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route"})

func ObserveRequest(method, route string, code int, elapsed time.Duration) {
	if len(route) == 0 {
		return
	}
	httpRequests.With(prometheus.Labels{"method": method, "route": route, "code": strconv.Itoa(code)}).Inc()
	httpDuration.With(prometheus.Labels{"route": route}).Observe(elapsed.Seconds())
}

var rateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "server",
	Name:      "rate_limited_total",
	Help:      "Requests rejected by the rate limiter.",
})

func CountRateLimited() {
	rateLimited.Inc()
}

var transactionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pix",
	Name:      "transaction_count",
	Help:      "Transactions by provider, type and resulting status.",
}, []string{"provider", "type", "status"})

var amountCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pix",
	Name:      "transaction_amount_cents",
	Help:      "Amount moved by provider and status, in cents.",
}, []string{"provider", "status"})

func CountTransaction(provider, txType, status string, amount int64) {
	if len(provider) == 0 || len(status) == 0 {
		return
	}
	transactionCounter.With(prometheus.Labels{"provider": provider, "type": txType, "status": status}).Inc()
	amountCounter.With(prometheus.Labels{"provider": provider, "status": status}).Add(float64(amount))
}

var openTransactionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "pix",
	Name:      "transactions_open",
	Help:      "Transactions waiting for a final provider status.",
}, []string{"status"})

func ObserveOpenTransactions(status string, count int) {
	if len(status) == 0 {
		return
	}
	openTransactionsGauge.With(prometheus.Labels{"status": status}).Set(float64(count))
}

var transactionsTodayGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "pix",
	Name:      "transactions_today",
	Help:      "Transactions created today by status.",
}, []string{"status"})

func TransactionsToday(status string, count int64) {
	if len(status) == 0 {
		return
	}
	transactionsTodayGauge.With(prometheus.Labels{"status": status}).Set(float64(count))
}

var providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pix",
	Name:      "provider_requests_total",
	Help:      "Calls to provider APIs by operation and outcome.",
}, []string{"provider", "operation", "outcome"})

var providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "pix",
	Name:      "provider_request_seconds",
	Help:      "Provider API latency.",
	Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
}, []string{"provider", "operation"})

func ObserveProviderCall(provider, operation string, err error, elapsed time.Duration) {
	if len(provider) == 0 || len(operation) == 0 {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	providerCalls.With(prometheus.Labels{"provider": provider, "operation": operation, "outcome": outcome}).Inc()
	providerDuration.With(prometheus.Labels{"provider": provider, "operation": operation}).Observe(elapsed.Seconds())
}

var providerUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "pix",
	Name:      "provider_up",
	Help:      "1 when the last provider health check passed.",
}, []string{"provider"})

func ObserveProviderHealth(provider string, healthy bool) {
	if len(provider) == 0 {
		return
	}
	value := 0.0
	if healthy {
		value = 1
	}
	providerUp.With(prometheus.Labels{"provider": provider}).Set(value)
}

var breakerOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "pix",
	Name:      "provider_breaker_open",
	Help:      "1 while the provider circuit breaker rejects calls.",
}, []string{"provider"})

func ObserveBreaker(provider string, open bool) {
	if len(provider) == 0 {
		return
	}
	value := 0.0
	if open {
		value = 1
	}
	breakerOpen.With(prometheus.Labels{"provider": provider}).Set(value)
}

var webhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pix",
	Name:      "webhook_deliveries_total",
	Help:      "Webhook delivery attempts by outcome.",
}, []string{"event", "outcome"})

func CountWebhookDelivery(event, outcome string) {
	if len(event) == 0 || len(outcome) == 0 {
		return
	}
	webhookDeliveries.With(prometheus.Labels{"event": event, "outcome": outcome}).Inc()
}

var auditDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pix",
	Name:      "audit_dropped_total",
	Help:      "Audit records dropped because the write queue was full or closed.",
}, []string{"action"})

func CountAuditDropped(action string) {
	auditDropped.With(prometheus.Labels{"action": action}).Inc()
}
