// Package webhook pushes transaction events to merchant endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"pixgate/internal"
	"pixgate/metrics/counters"
	"pixgate/models"
	"pixgate/utility"
	"sync"
	"time"
)

const (
	SignatureHeader = "X-Pix-Signature"
	EventHeader     = "X-Pix-Event"
	DeliveryHeader  = "X-Pix-Delivery"

	queueSize = 1024
)

// Recorder receives the final outcome of each delivery; implemented by the audit service
type Recorder interface {
	LogWebhookDelivery(delivery *models.WebhookDelivery)
}

type job struct {
	webhook  *models.Webhook
	event    *internal.EventMessage
	delivery *models.WebhookDelivery
	body     []byte
	retries  int
}

type Dispatcher struct {
	store      internal.WebhookStore
	client     *http.Client
	audit      Recorder
	logger     internal.LogHandler
	workers    int
	maxRetries int
	backoff    time.Duration
	queue      chan *job
	mutex      sync.RWMutex
	stopped    bool
	inflight   sync.WaitGroup
	wg         sync.WaitGroup
	once       sync.Once
	guard      *targetGuard
	now        func() time.Time
}

func NewDispatcher(store internal.WebhookStore, workers int, timeout time.Duration, maxRetries int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	guard := &targetGuard{}
	return &Dispatcher{
		store:      store,
		client:     &http.Client{Timeout: timeout, Transport: guard.transport()},
		workers:    workers,
		maxRetries: maxRetries,
		backoff:    time.Second,
		queue:      make(chan *job, queueSize),
		guard:      guard,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) SetLogger(logger internal.LogHandler) {
	d.logger = logger
}

func (d *Dispatcher) SetRecorder(audit Recorder) {
	d.audit = audit
}

// AllowPrivateTargets lets deliveries reach loopback and private networks; call before Start
func (d *Dispatcher) AllowPrivateTargets(allow bool) {
	d.guard.allowPrivate = allow
}

// Start launches the worker pool. Once ctx is done, queued and waiting deliveries are
// left pending in the store instead of being attempted.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for j := range d.queue {
				if ctx.Err() != nil {
					d.abandon(j)
					continue
				}
				d.attempt(ctx, j)
			}
		}()
	}
}

// Stop refuses new events, waits for accepted deliveries to finish, then stops the workers
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		d.mutex.Lock()
		d.stopped = true
		d.mutex.Unlock()
		d.inflight.Wait()
		close(d.queue)
	})
	d.wg.Wait()
}

// OnTransactionEvent queues one delivery per subscribed webhook of the merchant
func (d *Dispatcher) OnTransactionEvent(event *internal.EventMessage) {
	if event.MerchantId == "" {
		return
	}
	webhooks, err := d.store.GetWebhooks(event.MerchantId)
	if err != nil {
		d.logError("webhooks of "+event.MerchantId, err)
		return
	}
	for _, w := range webhooks {
		if !w.Accepts(event.Type) {
			continue
		}
		j, err := d.newJob(w, event)
		if err != nil {
			d.logError("encode webhook payload", err)
			continue
		}
		if !d.accept(j) {
			counters.CountWebhookDelivery(event.Type, "dropped")
			d.warn(fmt.Sprintf("webhook queue closed or full, dropped %s for %s", event.Type, w.URL))
		}
	}
}

// accept queues a new delivery unless the dispatcher is stopped or the queue is full
func (d *Dispatcher) accept(j *job) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if d.stopped {
		return false
	}
	d.inflight.Add(1)
	select {
	case d.queue <- j:
		return true
	default:
		d.inflight.Done()
		return false
	}
}

func (d *Dispatcher) newJob(w *models.Webhook, event *internal.EventMessage) (*job, error) {
	delivery := &models.WebhookDelivery{
		Id:            utility.NewUUID(),
		WebhookId:     w.Id,
		MerchantId:    w.MerchantId,
		TransactionId: event.TransactionId,
		Event:         event.Type,
		Status:        models.DeliveryPending,
		CreatedAt:     d.now(),
	}
	delivery.Payload = map[string]interface{}{
		"id":         delivery.Id,
		"event":      event.Type,
		"created_at": event.Time,
		"data":       event.Payload,
	}
	body, err := json.Marshal(delivery.Payload)
	if err != nil {
		return nil, err
	}
	retries := d.maxRetries
	if w.MaxRetries > 0 {
		retries = w.MaxRetries
	}
	return &job{webhook: w, event: event, delivery: delivery, body: body, retries: retries}, nil
}

// attempt posts once; a failure with retries left is rescheduled without holding the worker
func (d *Dispatcher) attempt(ctx context.Context, j *job) {
	delivery := j.delivery
	delivery.Attempt++
	code, response, err := d.post(ctx, j.webhook, delivery, j.body)
	delivery.ResponseCode = code
	delivery.ResponseBody = response
	delivery.ErrorMessage = ""
	if err == nil {
		delivery.Status = models.DeliverySuccess
		delivery.NextRetryAt = nil
		delivery.DeliveredAt = timePtr(d.now())
		d.finish(j)
		return
	}
	delivery.ErrorMessage = err.Error()
	if delivery.Attempt > j.retries {
		delivery.Status = models.DeliveryFailed
		delivery.NextRetryAt = nil
		d.finish(j)
		return
	}
	wait := d.backoff << (delivery.Attempt - 1)
	delivery.NextRetryAt = timePtr(d.now().Add(wait))
	d.save(delivery)
	go d.retryAfter(ctx, j, wait)
}

func (d *Dispatcher) retryAfter(ctx context.Context, j *job, wait time.Duration) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		d.abandon(j)
	case <-timer.C:
		// the queue stays open while this job is in flight
		select {
		case d.queue <- j:
		case <-ctx.Done():
			d.abandon(j)
		}
	}
}

func (d *Dispatcher) finish(j *job) {
	defer d.inflight.Done()
	delivery := j.delivery
	d.save(delivery)
	counters.CountWebhookDelivery(delivery.Event, delivery.Status)
	if d.audit != nil {
		d.audit.LogWebhookDelivery(delivery)
	}
	if delivery.Status == models.DeliveryFailed {
		d.warn(fmt.Sprintf("webhook %s to %s failed after %d attempts: %s", delivery.Event, j.webhook.URL, delivery.Attempt, delivery.ErrorMessage))
	}
}

// abandon leaves a delivery pending in the store, with its next retry time if one was planned
func (d *Dispatcher) abandon(j *job) {
	defer d.inflight.Done()
	d.save(j.delivery)
	d.warn(fmt.Sprintf("webhook %s to %s left pending after %d attempts", j.delivery.Event, j.webhook.URL, j.delivery.Attempt))
}

func (d *Dispatcher) post(ctx context.Context, w *models.Webhook, delivery *models.WebhookDelivery, body []byte) (int, string, error) {
	timeout := d.client.Timeout
	if w.Timeout > 0 {
		timeout = time.Duration(w.Timeout) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pixgate-webhook/1.0")
	req.Header.Set(SignatureHeader, "sha256="+Sign(w.Secret, body))
	req.Header.Set(EventHeader, delivery.Event)
	req.Header.Set(DeliveryHeader, delivery.Id)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, string(data), fmt.Errorf("endpoint answered %d", resp.StatusCode)
	}
	return resp.StatusCode, string(data), nil
}

func (d *Dispatcher) save(delivery *models.WebhookDelivery) {
	if err := d.store.SaveWebhookDelivery(delivery); err != nil {
		d.logError("save webhook delivery", err)
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value of the form sha256=<hex>
func Verify(secret string, body []byte, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	return hmac.Equal([]byte(header[len(prefix):]), []byte(Sign(secret, body)))
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func (d *Dispatcher) warn(text string) {
	if d.logger != nil {
		d.logger.Warn(text)
	}
}

func (d *Dispatcher) logError(text string, err error) {
	if d.logger != nil {
		d.logger.Error(text, err)
	}
}
