// Package audit keeps the compliance trail of sensitive operations.
// Records are queued and written by a single goroutine so callers never wait on storage;
// when the queue is full the record is dropped and counted.
package audit

import (
	"fmt"
	"pixgate/internal"
	"pixgate/metrics/counters"
	"pixgate/models"
	"pixgate/utility"
	"sync"
	"time"
)

const (
	defaultRetentionYears = 5
	queueSize             = 256
	defaultQueryLimit     = 100
	maxQueryLimit         = 500
)

const (
	ResourceTransaction = "transaction"
	ResourceAuth        = "auth"
	ResourceAPI         = "api"
	ResourceProvider    = "provider"
	ResourceWebhook     = "webhook"
)

type Service struct {
	store          internal.AuditStore
	logger         internal.LogHandler
	retentionYears int
	queue          chan *models.AuditLog
	mutex          sync.RWMutex
	closed         bool
	done           chan struct{}
	now            func() time.Time
}

func NewService(store internal.AuditStore, retentionYears int) *Service {
	if retentionYears <= 0 {
		retentionYears = defaultRetentionYears
	}
	s := &Service{
		store:          store,
		retentionYears: retentionYears,
		queue:          make(chan *models.AuditLog, queueSize),
		done:           make(chan struct{}),
		now:            func() time.Time { return time.Now().UTC() },
	}
	go s.writer()
	return s
}

func (s *Service) SetLogger(logger internal.LogHandler) {
	s.logger = logger
}

func (s *Service) writer() {
	defer close(s.done)
	for entry := range s.queue {
		if err := s.store.AddAuditLog(entry); err != nil && s.logger != nil {
			s.logger.Error("write audit log", err)
		}
	}
}

// Close stops accepting records and waits until the queue is written
func (s *Service) Close() {
	s.mutex.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mutex.Unlock()
	<-s.done
}

func (s *Service) Log(entry *models.AuditLog) {
	if entry.Id == "" {
		entry.Id = utility.NewUUID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		counters.CountAuditDropped(entry.Action)
		return
	}
	select {
	case s.queue <- entry:
	default:
		counters.CountAuditDropped(entry.Action)
		if s.logger != nil {
			s.logger.Warn(fmt.Sprintf("audit queue full, dropped %s %s", entry.Action, entry.Resource))
		}
	}
}

func (s *Service) LogTransaction(tx *models.Transaction, userId, action string, err error) {
	entry := &models.AuditLog{
		MerchantId:    tx.MerchantId,
		UserId:        userId,
		TransactionId: tx.Id,
		Action:        action,
		Resource:      ResourceTransaction,
		Metadata: map[string]interface{}{
			"status":   string(tx.Status),
			"amount":   tx.Amount,
			"provider": tx.ProviderCode,
			"type":     string(tx.Type),
		},
	}
	if tx.PayeePixKey != "" {
		entry.Metadata["payee_pix_key"] = utility.Mask(tx.PayeePixKey)
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	s.Log(entry)
}

func (s *Service) LogAuthentication(userId, email, ip, userAgent string, success bool, reason string) {
	action := "auth.login"
	if !success {
		action = "auth.login_failed"
	}
	s.Log(&models.AuditLog{
		UserId:       userId,
		Action:       action,
		Resource:     ResourceAuth,
		IPAddress:    ip,
		UserAgent:    userAgent,
		ErrorMessage: reason,
		Metadata:     map[string]interface{}{"email": email},
	})
}

// ApiAccess describes one authenticated HTTP request
type ApiAccess struct {
	MerchantId string
	UserId     string
	Method     string
	Path       string
	IP         string
	UserAgent  string
	Status     int
	Duration   time.Duration
}

func (s *Service) LogAPIAccess(access ApiAccess) {
	entry := &models.AuditLog{
		MerchantId:   access.MerchantId,
		UserId:       access.UserId,
		Action:       "api.access",
		Resource:     ResourceAPI,
		Method:       access.Method,
		Path:         access.Path,
		IPAddress:    access.IP,
		UserAgent:    access.UserAgent,
		ResponseCode: access.Status,
		Duration:     access.Duration.Milliseconds(),
	}
	if access.Status >= 400 {
		entry.ErrorMessage = fmt.Sprintf("http %d", access.Status)
	}
	s.Log(entry)
}

func (s *Service) LogProviderOperation(merchantId, provider, operation string, err error, duration time.Duration) {
	entry := &models.AuditLog{
		MerchantId: merchantId,
		Action:     "provider." + operation,
		Resource:   ResourceProvider,
		Duration:   duration.Milliseconds(),
		Metadata:   map[string]interface{}{"provider": provider},
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	s.Log(entry)
}

func (s *Service) LogWebhookDelivery(delivery *models.WebhookDelivery) {
	s.Log(&models.AuditLog{
		MerchantId:    delivery.MerchantId,
		TransactionId: delivery.TransactionId,
		Action:        "webhook." + delivery.Status,
		Resource:      ResourceWebhook,
		ResponseCode:  delivery.ResponseCode,
		ErrorMessage:  delivery.ErrorMessage,
		Metadata: map[string]interface{}{
			"webhook_id": delivery.WebhookId,
			"event":      delivery.Event,
			"attempt":    delivery.Attempt,
		},
	})
}

// Limit is the page size Query applies for a requested limit
func Limit(limit int) int {
	switch {
	case limit <= 0:
		return defaultQueryLimit
	case limit > maxQueryLimit:
		return maxQueryLimit
	default:
		return limit
	}
}

func (s *Service) Query(filter models.AuditFilter) ([]*models.AuditLog, int64, error) {
	filter.Limit = Limit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.GetAuditLogs(&filter)
}

// Cleanup removes records older than the retention period
func (s *Service) Cleanup() (int64, error) {
	cutoff := s.now().AddDate(-s.retentionYears, 0, 0)
	deleted, err := s.store.DeleteAuditLogsBefore(cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 && s.logger != nil {
		s.logger.FeatureEvent("audit", "", fmt.Sprintf("removed %d records before %s", deleted, cutoff.Format(time.DateOnly)))
	}
	return deleted, nil
}
