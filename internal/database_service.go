package internal

import (
	"pixgate/models"
	"pixgate/utility"
	"time"
)

// ErrNotFound is returned by storage lookups that match no document
var ErrNotFound = utility.Err("not found")

// ErrDuplicate is returned when an insert violates a uniqueness rule
var ErrDuplicate = utility.Err("already exists")

type Data interface {
	DataType() string
}

type LogStore interface {
	WriteLogMessage(data Data) error
	ReadLog(limit int) ([]*FeatureLogMessage, error)
}

type MerchantStore interface {
	AddMerchant(merchant *models.Merchant) error
	GetMerchant(id string) (*models.Merchant, error)
	GetMerchants() ([]*models.Merchant, error)
	UpdateMerchant(merchant *models.Merchant) error
}

type UserStore interface {
	AddUser(user *models.User) error
	GetUser(id string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	UpdateUser(user *models.User) error
}

type ProviderStore interface {
	AddProvider(provider *models.Provider) error
	GetProvider(id string) (*models.Provider, error)
	GetProviderByCode(code string) (*models.Provider, error)
	GetProviders() ([]*models.Provider, error)
	UpdateProviderHealth(code, status string, at time.Time) error
	AddMerchantProvider(mp *models.MerchantProvider) error
	GetMerchantProviders(merchantId string) ([]*models.MerchantProvider, error)
}

type TransactionStore interface {
	AddTransaction(tx *models.Transaction) error
	UpdateTransaction(tx *models.Transaction) error
	GetTransaction(id string) (*models.Transaction, error)
	GetTransactionByExternalId(merchantId, externalId string) (*models.Transaction, error)
	GetTransactions(filter *models.TransactionFilter) ([]*models.Transaction, int64, error)
	// GetOpenTransactions returns pending or processing transactions after the cursor, oldest first;
	// a nil cursor starts from the beginning
	GetOpenTransactions(after *models.Cursor, limit int) ([]*models.Transaction, error)
	GetStatusSummary(merchantId string, from, to time.Time) ([]*models.StatusSummary, error)
	CountActiveMerchants(merchantId string, from, to time.Time) (int64, error)
}

type AuditStore interface {
	AddAuditLog(entry *models.AuditLog) error
	GetAuditLogs(filter *models.AuditFilter) ([]*models.AuditLog, int64, error)
	DeleteAuditLogsBefore(t time.Time) (int64, error)
}

type WebhookStore interface {
	AddWebhook(webhook *models.Webhook) error
	GetWebhooks(merchantId string) ([]*models.Webhook, error)
	DeleteWebhook(merchantId, id string) error
	SaveWebhookDelivery(delivery *models.WebhookDelivery) error
}

type KeyStore interface {
	AddApiKey(key *models.ApiKey) error
	GetApiKeysByPrefix(prefix string) ([]*models.ApiKey, error)
	TouchApiKey(id string, at time.Time) error
	AddRefreshToken(token *models.RefreshToken) error
	GetRefreshToken(hash string) (*models.RefreshToken, error)
	RevokeRefreshTokens(userId string, at time.Time) error
}

type SubscriptionStore interface {
	GetSubscriptions() ([]models.UserSubscription, error)
	AddSubscription(subscription *models.UserSubscription) error
	DeleteSubscription(subscription *models.UserSubscription) error
}

// Database is the full storage surface; consumers depend on the narrower stores above
type Database interface {
	LogStore
	MerchantStore
	UserStore
	ProviderStore
	TransactionStore
	AuditStore
	WebhookStore
	KeyStore
	SubscriptionStore
}
