// Package memdb keeps the gateway state in process memory. It backs tests and
// runs where mongo is disabled; nothing survives a restart.
package memdb

import (
	"fmt"
	"pixgate/internal"
	"pixgate/models"
	"sort"
	"sync"
	"time"
)

type DB struct {
	mutex             sync.RWMutex
	logs              []*internal.FeatureLogMessage
	merchants         map[string]*models.Merchant
	users             map[string]*models.User
	providers         map[string]*models.Provider
	merchantProviders []*models.MerchantProvider
	transactions      map[string]*models.Transaction
	audit             []*models.AuditLog
	webhooks          []*models.Webhook
	deliveries        map[string]*models.WebhookDelivery
	apiKeys           []*models.ApiKey
	refreshTokens     []*models.RefreshToken
	subscriptions     []models.UserSubscription
}

func New() *DB {
	return &DB{
		merchants:    make(map[string]*models.Merchant),
		users:        make(map[string]*models.User),
		providers:    make(map[string]*models.Provider),
		transactions: make(map[string]*models.Transaction),
		deliveries:   make(map[string]*models.WebhookDelivery),
	}
}

var _ internal.Database = (*DB)(nil)

func (db *DB) WriteLogMessage(data internal.Data) error {
	message, ok := data.(*internal.FeatureLogMessage)
	if !ok {
		return fmt.Errorf("unsupported log data type %s", data.DataType())
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.logs = append(db.logs, message)
	return nil
}

func (db *DB) ReadLog(limit int) ([]*internal.FeatureLogMessage, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if limit <= 0 || limit > len(db.logs) {
		limit = len(db.logs)
	}
	result := make([]*internal.FeatureLogMessage, 0, limit)
	for i := len(db.logs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, db.logs[i])
	}
	return result, nil
}

func (db *DB) AddMerchant(merchant *models.Merchant) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.merchants[merchant.Id]; ok {
		return fmt.Errorf("merchant %s: %w", merchant.Id, internal.ErrDuplicate)
	}
	m := *merchant
	db.merchants[merchant.Id] = &m
	return nil
}

func (db *DB) GetMerchant(id string) (*models.Merchant, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	merchant, ok := db.merchants[id]
	if !ok {
		return nil, internal.ErrNotFound
	}
	m := *merchant
	return &m, nil
}

func (db *DB) GetMerchants() ([]*models.Merchant, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	var list []*models.Merchant
	for _, merchant := range db.merchants {
		if merchant.DeletedAt != nil {
			continue
		}
		m := *merchant
		list = append(list, &m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (db *DB) UpdateMerchant(merchant *models.Merchant) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.merchants[merchant.Id]; !ok {
		return internal.ErrNotFound
	}
	m := *merchant
	db.merchants[merchant.Id] = &m
	return nil
}

func (db *DB) AddUser(user *models.User) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, u := range db.users {
		if u.Email == user.Email {
			return fmt.Errorf("user with email %s: %w", user.Email, internal.ErrDuplicate)
		}
	}
	u := *user
	db.users[user.Id] = &u
	return nil
}

func (db *DB) GetUser(id string) (*models.User, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	user, ok := db.users[id]
	if !ok {
		return nil, internal.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (db *DB) GetUserByEmail(email string) (*models.User, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	for _, user := range db.users {
		if user.Email == email {
			u := *user
			return &u, nil
		}
	}
	return nil, internal.ErrNotFound
}

func (db *DB) UpdateUser(user *models.User) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.users[user.Id]; !ok {
		return internal.ErrNotFound
	}
	u := *user
	db.users[user.Id] = &u
	return nil
}

func (db *DB) AddProvider(provider *models.Provider) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, p := range db.providers {
		if p.Code == provider.Code {
			return fmt.Errorf("provider %s: %w", provider.Code, internal.ErrDuplicate)
		}
	}
	p := *provider
	db.providers[provider.Id] = &p
	return nil
}

func (db *DB) GetProvider(id string) (*models.Provider, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	provider, ok := db.providers[id]
	if !ok {
		return nil, internal.ErrNotFound
	}
	p := *provider
	return &p, nil
}

func (db *DB) GetProviderByCode(code string) (*models.Provider, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	for _, provider := range db.providers {
		if provider.Code == code {
			p := *provider
			return &p, nil
		}
	}
	return nil, internal.ErrNotFound
}

func (db *DB) GetProviders() ([]*models.Provider, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	list := make([]*models.Provider, 0, len(db.providers))
	for _, provider := range db.providers {
		p := *provider
		list = append(list, &p)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority < list[j].Priority
		}
		return list[i].Code < list[j].Code
	})
	return list, nil
}

func (db *DB) UpdateProviderHealth(code, status string, at time.Time) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, provider := range db.providers {
		if provider.Code == code {
			provider.HealthStatus = status
			provider.LastHealthAt = &at
			return nil
		}
	}
	return internal.ErrNotFound
}

func (db *DB) AddMerchantProvider(mp *models.MerchantProvider) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	m := *mp
	db.merchantProviders = append(db.merchantProviders, &m)
	return nil
}

func (db *DB) GetMerchantProviders(merchantId string) ([]*models.MerchantProvider, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	var list []*models.MerchantProvider
	for _, mp := range db.merchantProviders {
		if mp.MerchantId == merchantId && mp.Active {
			m := *mp
			list = append(list, &m)
		}
	}
	return list, nil
}

func (db *DB) AddTransaction(tx *models.Transaction) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.transactions[tx.Id]; ok {
		return fmt.Errorf("transaction %s: %w", tx.Id, internal.ErrDuplicate)
	}
	for _, t := range db.transactions {
		if tx.ExternalId != "" && t.MerchantId == tx.MerchantId && t.ExternalId == tx.ExternalId {
			return fmt.Errorf("transaction with external id %s: %w", tx.ExternalId, internal.ErrDuplicate)
		}
	}
	t := *tx
	db.transactions[tx.Id] = &t
	return nil
}

func (db *DB) UpdateTransaction(tx *models.Transaction) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.transactions[tx.Id]; !ok {
		return internal.ErrNotFound
	}
	t := *tx
	db.transactions[tx.Id] = &t
	return nil
}

func (db *DB) GetTransaction(id string) (*models.Transaction, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	tx, ok := db.transactions[id]
	if !ok {
		return nil, internal.ErrNotFound
	}
	t := *tx
	return &t, nil
}

func (db *DB) GetTransactionByExternalId(merchantId, externalId string) (*models.Transaction, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	for _, tx := range db.transactions {
		if tx.MerchantId == merchantId && tx.ExternalId == externalId {
			t := *tx
			return &t, nil
		}
	}
	return nil, internal.ErrNotFound
}

func matchTransaction(tx *models.Transaction, f *models.TransactionFilter) bool {
	if f.MerchantId != "" && tx.MerchantId != f.MerchantId {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if !f.From.IsZero() && tx.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !tx.CreatedAt.Before(f.To) {
		return false
	}
	if f.MinAmount > 0 && tx.Amount < f.MinAmount {
		return false
	}
	if f.MaxAmount > 0 && tx.Amount > f.MaxAmount {
		return false
	}
	return true
}

// sorted returns copies of the matching transactions, newest first
func (db *DB) sorted(f *models.TransactionFilter) []*models.Transaction {
	var list []*models.Transaction
	for _, tx := range db.transactions {
		if matchTransaction(tx, f) {
			t := *tx
			list = append(list, &t)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].Id > list[j].Id
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

func (db *DB) GetTransactions(f *models.TransactionFilter) ([]*models.Transaction, int64, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	list := db.sorted(f)
	total := int64(len(list))
	if f.Offset >= len(list) {
		return []*models.Transaction{}, total, nil
	}
	list = list[f.Offset:]
	if f.Limit > 0 && len(list) > f.Limit {
		list = list[:f.Limit]
	}
	return list, total, nil
}

func (db *DB) GetOpenTransactions(after *models.Cursor, limit int) ([]*models.Transaction, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	list := db.sorted(&models.TransactionFilter{})
	var open []*models.Transaction
	for i := len(list) - 1; i >= 0; i-- {
		if after.Before(list[i]) {
			continue
		}
		status := list[i].Status
		if status == models.StatusPending || status == models.StatusProcessing {
			open = append(open, list[i])
		}
		if limit > 0 && len(open) == limit {
			break
		}
	}
	return open, nil
}

func (db *DB) GetStatusSummary(merchantId string, from, to time.Time) ([]*models.StatusSummary, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	filter := &models.TransactionFilter{MerchantId: merchantId, From: from, To: to}
	groups := make(map[models.TransactionStatus]*models.StatusSummary)
	for _, tx := range db.transactions {
		if !matchTransaction(tx, filter) {
			continue
		}
		group, ok := groups[tx.Status]
		if !ok {
			group = &models.StatusSummary{Status: tx.Status}
			groups[tx.Status] = group
		}
		group.Count++
		group.Amount += tx.Amount
	}
	summary := make([]*models.StatusSummary, 0, len(groups))
	for _, group := range groups {
		summary = append(summary, group)
	}
	sort.Slice(summary, func(i, j int) bool { return summary[i].Status < summary[j].Status })
	return summary, nil
}

func (db *DB) CountActiveMerchants(merchantId string, from, to time.Time) (int64, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	filter := &models.TransactionFilter{MerchantId: merchantId, From: from, To: to}
	merchants := make(map[string]struct{})
	for _, tx := range db.transactions {
		if matchTransaction(tx, filter) {
			merchants[tx.MerchantId] = struct{}{}
		}
	}
	return int64(len(merchants)), nil
}

func (db *DB) AddAuditLog(entry *models.AuditLog) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	e := *entry
	db.audit = append(db.audit, &e)
	return nil
}

func matchAudit(entry *models.AuditLog, f *models.AuditFilter) bool {
	if f.MerchantId != "" && entry.MerchantId != f.MerchantId {
		return false
	}
	if f.UserId != "" && entry.UserId != f.UserId {
		return false
	}
	if f.TransactionId != "" && entry.TransactionId != f.TransactionId {
		return false
	}
	if f.Action != "" && entry.Action != f.Action {
		return false
	}
	if f.Resource != "" && entry.Resource != f.Resource {
		return false
	}
	if !f.From.IsZero() && entry.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !entry.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

func (db *DB) GetAuditLogs(f *models.AuditFilter) ([]*models.AuditLog, int64, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	var list []*models.AuditLog
	for i := len(db.audit) - 1; i >= 0; i-- {
		if matchAudit(db.audit[i], f) {
			e := *db.audit[i]
			list = append(list, &e)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	total := int64(len(list))
	if f.Offset >= len(list) {
		return []*models.AuditLog{}, total, nil
	}
	list = list[f.Offset:]
	if f.Limit > 0 && len(list) > f.Limit {
		list = list[:f.Limit]
	}
	return list, total, nil
}

func (db *DB) DeleteAuditLogsBefore(t time.Time) (int64, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	kept := db.audit[:0]
	var deleted int64
	for _, entry := range db.audit {
		if entry.CreatedAt.Before(t) {
			deleted++
			continue
		}
		kept = append(kept, entry)
	}
	db.audit = kept
	return deleted, nil
}

func (db *DB) AddWebhook(webhook *models.Webhook) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	w := *webhook
	db.webhooks = append(db.webhooks, &w)
	return nil
}

func (db *DB) GetWebhooks(merchantId string) ([]*models.Webhook, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	var list []*models.Webhook
	for _, webhook := range db.webhooks {
		if webhook.MerchantId == merchantId {
			w := *webhook
			list = append(list, &w)
		}
	}
	return list, nil
}

func (db *DB) DeleteWebhook(merchantId, id string) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for i, webhook := range db.webhooks {
		if webhook.MerchantId == merchantId && webhook.Id == id {
			db.webhooks = append(db.webhooks[:i], db.webhooks[i+1:]...)
			return nil
		}
	}
	return internal.ErrNotFound
}

func (db *DB) SaveWebhookDelivery(delivery *models.WebhookDelivery) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	d := *delivery
	db.deliveries[delivery.Id] = &d
	return nil
}

// Deliveries returns recorded webhook deliveries of a transaction
func (db *DB) Deliveries(transactionId string) []*models.WebhookDelivery {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	var list []*models.WebhookDelivery
	for _, delivery := range db.deliveries {
		if delivery.TransactionId == transactionId {
			d := *delivery
			list = append(list, &d)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}

func (db *DB) AddApiKey(key *models.ApiKey) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	k := *key
	db.apiKeys = append(db.apiKeys, &k)
	return nil
}

func (db *DB) GetApiKeysByPrefix(prefix string) ([]*models.ApiKey, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	var list []*models.ApiKey
	for _, key := range db.apiKeys {
		if key.Prefix == prefix && key.Active {
			k := *key
			list = append(list, &k)
		}
	}
	return list, nil
}

func (db *DB) TouchApiKey(id string, at time.Time) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, key := range db.apiKeys {
		if key.Id == id {
			key.LastUsedAt = &at
			return nil
		}
	}
	return internal.ErrNotFound
}

func (db *DB) AddRefreshToken(token *models.RefreshToken) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	t := *token
	db.refreshTokens = append(db.refreshTokens, &t)
	return nil
}

func (db *DB) GetRefreshToken(hash string) (*models.RefreshToken, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	for _, token := range db.refreshTokens {
		if token.Hash == hash {
			t := *token
			return &t, nil
		}
	}
	return nil, internal.ErrNotFound
}

func (db *DB) RevokeRefreshTokens(userId string, at time.Time) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, token := range db.refreshTokens {
		if token.UserId == userId && !token.Revoked {
			token.Revoked = true
			revokedAt := at
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (db *DB) GetSubscriptions() ([]models.UserSubscription, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	list := make([]models.UserSubscription, len(db.subscriptions))
	copy(list, db.subscriptions)
	return list, nil
}

func (db *DB) AddSubscription(subscription *models.UserSubscription) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, s := range db.subscriptions {
		if s.UserID == subscription.UserID {
			return fmt.Errorf("user is already subscribed")
		}
	}
	db.subscriptions = append(db.subscriptions, *subscription)
	return nil
}

func (db *DB) DeleteSubscription(subscription *models.UserSubscription) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for i, s := range db.subscriptions {
		if s.UserID == subscription.UserID {
			db.subscriptions = append(db.subscriptions[:i], db.subscriptions[i+1:]...)
			return nil
		}
	}
	return nil
}
