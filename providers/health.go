package providers

import (
	"context"
	"fmt"
	"pixgate/internal"
	"pixgate/metrics/counters"
	"pixgate/models"
	"sync"
	"time"
)

const healthTimeout = 10 * time.Second

type HealthStore interface {
	UpdateProviderHealth(code, status string, at time.Time) error
}

type HealthReport struct {
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// HealthMonitor polls every registered provider and keeps the last result
type HealthMonitor struct {
	registry *Registry
	store    HealthStore
	log      internal.LogHandler
	interval time.Duration
	reports  sync.Map
}

func NewHealthMonitor(registry *Registry, store HealthStore, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthMonitor{
		registry: registry,
		store:    store,
		interval: interval,
	}
}

func (h *HealthMonitor) SetLogger(log internal.LogHandler) {
	h.log = log
}

func (h *HealthMonitor) Start(ctx context.Context) {
	h.CheckAll(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}

func (h *HealthMonitor) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, provider := range h.registry.All() {
		wg.Add(1)
		go func(p PixProvider) {
			defer wg.Done()
			h.check(ctx, p)
		}(provider)
	}
	wg.Wait()
}

func (h *HealthMonitor) check(ctx context.Context, provider PixProvider) {
	checkCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	start := time.Now()
	err := provider.HealthCheck(checkCtx)
	counters.ObserveProviderCall(provider.Code(), "health", err, time.Since(start))

	report := &HealthReport{
		Code:      provider.Code(),
		Status:    models.HealthHealthy,
		CheckedAt: time.Now().UTC(),
	}
	if err != nil {
		report.Status = models.HealthUnhealthy
		report.Error = err.Error()
	}
	previous := h.Status(provider.Code())
	h.reports.Store(provider.Code(), report)
	counters.ObserveProviderHealth(provider.Code(), err == nil)

	if previous != report.Status && h.log != nil {
		h.log.FeatureEvent("health", provider.Code(), fmt.Sprintf("%s -> %s %s", previous, report.Status, report.Error))
	}
	if h.store != nil {
		if err = h.store.UpdateProviderHealth(provider.Code(), report.Status, report.CheckedAt); err != nil && err != internal.ErrNotFound && h.log != nil {
			h.log.Error("update provider health", err)
		}
	}
}

func (h *HealthMonitor) Status(code string) string {
	if value, ok := h.reports.Load(code); ok {
		return value.(*HealthReport).Status
	}
	return models.HealthUnknown
}

func (h *HealthMonitor) Reports() []*HealthReport {
	var list []*HealthReport
	for _, provider := range h.registry.All() {
		if value, ok := h.reports.Load(provider.Code()); ok {
			list = append(list, value.(*HealthReport))
			continue
		}
		list = append(list, &HealthReport{Code: provider.Code(), Status: models.HealthUnknown})
	}
	return list
}
