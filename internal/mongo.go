package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"pixgate/internal/config"
	"pixgate/models"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionLog               = "sys_log"
	collectionMerchants         = "merchants"
	collectionUsers             = "users"
	collectionProviders         = "providers"
	collectionMerchantProviders = "merchant_providers"
	collectionTransactions      = "transactions"
	collectionAudit             = "audit_logs"
	collectionWebhooks          = "webhooks"
	collectionDeliveries        = "webhook_deliveries"
	collectionApiKeys           = "api_keys"
	collectionRefreshTokens     = "refresh_tokens"
	collectionSubscriptions     = "subscriptions"
)

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
	client        *mongo.Client
	mutex         sync.Mutex
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
	return client, nil
}

// connect returns the shared client, dialing on first use
func (m *MongoDB) connect() (*mongo.Client, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.client != nil {
		return m.client, nil
	}
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	m.client = connection
	return connection, nil
}

func (m *MongoDB) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.client == nil {
		return
	}
	if err := m.client.Disconnect(m.ctx); err != nil {
		log.Println("mongodb disconnect error;", err)
	}
	m.client = nil
}

func (m *MongoDB) collection(name string) (*mongo.Collection, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	return connection.Database(m.database).Collection(name), nil
}

// EnsureIndexes creates the unique and lookup indexes the gateway relies on
func (m *MongoDB) EnsureIndexes() error {
	indexes := map[string][]mongo.IndexModel{
		collectionTransactions: {
			{Keys: bson.D{{"transaction_id", 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{"merchant_id", 1}, {"external_id", 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{"status", 1}, {"created_at", 1}}},
		},
		collectionUsers: {
			{Keys: bson.D{{"email", 1}}, Options: options.Index().SetUnique(true)},
		},
		collectionProviders: {
			{Keys: bson.D{{"code", 1}}, Options: options.Index().SetUnique(true)},
		},
		collectionApiKeys: {
			{Keys: bson.D{{"prefix", 1}}},
		},
		collectionAudit: {
			{Keys: bson.D{{"created_at", -1}}},
		},
	}
	for name, list := range indexes {
		collection, err := m.collection(name)
		if err != nil {
			return err
		}
		if _, err = collection.Indexes().CreateMany(m.ctx, list); err != nil {
			return fmt.Errorf("create indexes on %s: %v", name, err)
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func (m *MongoDB) insert(name string, document interface{}) error {
	collection, err := m.collection(name)
	if err != nil {
		return err
	}
	_, err = collection.InsertOne(m.ctx, document)
	return err
}

func (m *MongoDB) findOne(name string, filter bson.D, result interface{}) error {
	collection, err := m.collection(name)
	if err != nil {
		return err
	}
	return notFound(collection.FindOne(m.ctx, filter).Decode(result))
}

func (m *MongoDB) findAll(name string, filter bson.D, opts *options.FindOptions, result interface{}) error {
	collection, err := m.collection(name)
	if err != nil {
		return err
	}
	cursor, err := collection.Find(m.ctx, filter, opts)
	if err != nil {
		return err
	}
	return cursor.All(m.ctx, result)
}

func (m *MongoDB) set(name string, filter bson.D, document interface{}) error {
	collection, err := m.collection(name)
	if err != nil {
		return err
	}
	result, err := collection.UpdateOne(m.ctx, filter, bson.M{"$set": document})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoDB) WriteLogMessage(data Data) error {
	return m.insert(collectionLog, data)
}

func (m *MongoDB) ReadLog(limit int) ([]*FeatureLogMessage, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var logMessages []*FeatureLogMessage
	opts := options.Find().SetSort(bson.D{{"timestamp", -1}}).SetLimit(int64(limit))
	if err := m.findAll(collectionLog, bson.D{}, opts, &logMessages); err != nil {
		return nil, err
	}
	return logMessages, nil
}

func (m *MongoDB) AddMerchant(merchant *models.Merchant) error {
	return m.insert(collectionMerchants, merchant)
}

func (m *MongoDB) GetMerchant(id string) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := m.findOne(collectionMerchants, bson.D{{"merchant_id", id}}, &merchant); err != nil {
		return nil, err
	}
	return &merchant, nil
}

func (m *MongoDB) GetMerchants() ([]*models.Merchant, error) {
	var merchants []*models.Merchant
	opts := options.Find().SetSort(bson.D{{"name", 1}})
	filter := bson.D{{"deleted_at", bson.D{{"$exists", false}}}}
	if err := m.findAll(collectionMerchants, filter, opts, &merchants); err != nil {
		return nil, err
	}
	return merchants, nil
}

func (m *MongoDB) UpdateMerchant(merchant *models.Merchant) error {
	return m.set(collectionMerchants, bson.D{{"merchant_id", merchant.Id}}, merchant)
}

func (m *MongoDB) AddUser(user *models.User) error {
	existed, _ := m.GetUserByEmail(user.Email)
	if existed != nil {
		return fmt.Errorf("user with email %s: %w", user.Email, ErrDuplicate)
	}
	return m.insert(collectionUsers, user)
}

func (m *MongoDB) GetUser(id string) (*models.User, error) {
	var user models.User
	if err := m.findOne(collectionUsers, bson.D{{"user_id", id}}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (m *MongoDB) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := m.findOne(collectionUsers, bson.D{{"email", email}}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (m *MongoDB) UpdateUser(user *models.User) error {
	return m.set(collectionUsers, bson.D{{"user_id", user.Id}}, user)
}

func (m *MongoDB) AddProvider(provider *models.Provider) error {
	existed, _ := m.GetProviderByCode(provider.Code)
	if existed != nil {
		return fmt.Errorf("provider %s: %w", provider.Code, ErrDuplicate)
	}
	return m.insert(collectionProviders, provider)
}

func (m *MongoDB) GetProvider(id string) (*models.Provider, error) {
	var provider models.Provider
	if err := m.findOne(collectionProviders, bson.D{{"provider_id", id}}, &provider); err != nil {
		return nil, err
	}
	return &provider, nil
}

func (m *MongoDB) GetProviderByCode(code string) (*models.Provider, error) {
	var provider models.Provider
	if err := m.findOne(collectionProviders, bson.D{{"code", code}}, &provider); err != nil {
		return nil, err
	}
	return &provider, nil
}

func (m *MongoDB) GetProviders() ([]*models.Provider, error) {
	var providers []*models.Provider
	opts := options.Find().SetSort(bson.D{{"priority", 1}, {"code", 1}})
	if err := m.findAll(collectionProviders, bson.D{}, opts, &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

func (m *MongoDB) UpdateProviderHealth(code, status string, at time.Time) error {
	update := bson.M{"health_status": status, "last_health_at": at}
	return m.set(collectionProviders, bson.D{{"code", code}}, update)
}

func (m *MongoDB) AddMerchantProvider(mp *models.MerchantProvider) error {
	return m.insert(collectionMerchantProviders, mp)
}

func (m *MongoDB) GetMerchantProviders(merchantId string) ([]*models.MerchantProvider, error) {
	var list []*models.MerchantProvider
	filter := bson.D{{"merchant_id", merchantId}, {"active", true}}
	if err := m.findAll(collectionMerchantProviders, filter, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *MongoDB) AddTransaction(tx *models.Transaction) error {
	err := m.insert(collectionTransactions, tx)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("transaction with external id %s: %w", tx.ExternalId, ErrDuplicate)
	}
	return err
}

func (m *MongoDB) UpdateTransaction(tx *models.Transaction) error {
	return m.set(collectionTransactions, bson.D{{"transaction_id", tx.Id}}, tx)
}

func (m *MongoDB) GetTransaction(id string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := m.findOne(collectionTransactions, bson.D{{"transaction_id", id}}, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (m *MongoDB) GetTransactionByExternalId(merchantId, externalId string) (*models.Transaction, error) {
	var tx models.Transaction
	filter := bson.D{{"merchant_id", merchantId}, {"external_id", externalId}}
	if err := m.findOne(collectionTransactions, filter, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func transactionFilter(f *models.TransactionFilter) bson.D {
	filter := bson.D{}
	if f.MerchantId != "" {
		filter = append(filter, bson.E{Key: "merchant_id", Value: f.MerchantId})
	}
	if f.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: f.Status})
	}
	if f.Type != "" {
		filter = append(filter, bson.E{Key: "type", Value: f.Type})
	}
	created := bson.D{}
	if !f.From.IsZero() {
		created = append(created, bson.E{Key: "$gte", Value: f.From})
	}
	if !f.To.IsZero() {
		created = append(created, bson.E{Key: "$lt", Value: f.To})
	}
	if len(created) > 0 {
		filter = append(filter, bson.E{Key: "created_at", Value: created})
	}
	amount := bson.D{}
	if f.MinAmount > 0 {
		amount = append(amount, bson.E{Key: "$gte", Value: f.MinAmount})
	}
	if f.MaxAmount > 0 {
		amount = append(amount, bson.E{Key: "$lte", Value: f.MaxAmount})
	}
	if len(amount) > 0 {
		filter = append(filter, bson.E{Key: "amount", Value: amount})
	}
	return filter
}

func (m *MongoDB) GetTransactions(f *models.TransactionFilter) ([]*models.Transaction, int64, error) {
	collection, err := m.collection(collectionTransactions)
	if err != nil {
		return nil, 0, err
	}
	filter := transactionFilter(f)
	total, err := collection.CountDocuments(m.ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetSort(bson.D{{"created_at", -1}}).SetSkip(int64(f.Offset))
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	var list []*models.Transaction
	cursor, err := collection.Find(m.ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	if err = cursor.All(m.ctx, &list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (m *MongoDB) GetOpenTransactions(after *models.Cursor, limit int) ([]*models.Transaction, error) {
	filter := bson.D{{"status", bson.D{{"$in", bson.A{models.StatusPending, models.StatusProcessing}}}}}
	if after != nil {
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{"created_at", bson.D{{"$gt", after.CreatedAt}}}},
			bson.D{{"created_at", after.CreatedAt}, {"transaction_id", bson.D{{"$gt", after.Id}}}},
		}})
	}
	opts := options.Find().SetSort(bson.D{{"created_at", 1}, {"transaction_id", 1}}).SetLimit(int64(limit))
	var list []*models.Transaction
	if err := m.findAll(collectionTransactions, filter, opts, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func periodMatch(merchantId string, from, to time.Time) bson.D {
	match := bson.D{{"created_at", bson.D{{"$gte", from}, {"$lt", to}}}}
	if merchantId != "" {
		match = append(match, bson.E{Key: "merchant_id", Value: merchantId})
	}
	return match
}

// GetStatusSummary groups transactions of the period by status with count and amount totals
func (m *MongoDB) GetStatusSummary(merchantId string, from, to time.Time) ([]*models.StatusSummary, error) {
	collection, err := m.collection(collectionTransactions)
	if err != nil {
		return nil, err
	}
	pipeline := bson.A{
		bson.D{{"$match", periodMatch(merchantId, from, to)}},
		bson.D{
			{"$group",
				bson.D{
					{"_id", "$status"},
					{"count", bson.D{{"$sum", 1}}},
					{"amount", bson.D{{"$sum", "$amount"}}},
				},
			},
		},
		bson.D{{"$sort", bson.D{{"_id", 1}}}},
	}
	cursor, err := collection.Aggregate(m.ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate status summary: %v", err)
	}
	var summary []*models.StatusSummary
	if err = cursor.All(m.ctx, &summary); err != nil {
		return nil, fmt.Errorf("decode status summary: %v", err)
	}
	return summary, nil
}

// CountActiveMerchants counts distinct merchants with at least one transaction in the period
func (m *MongoDB) CountActiveMerchants(merchantId string, from, to time.Time) (int64, error) {
	collection, err := m.collection(collectionTransactions)
	if err != nil {
		return 0, err
	}
	pipeline := bson.A{
		bson.D{{"$match", periodMatch(merchantId, from, to)}},
		bson.D{{"$group", bson.D{{"_id", "$merchant_id"}}}},
		bson.D{{"$count", "merchants"}},
	}
	cursor, err := collection.Aggregate(m.ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("aggregate active merchants: %v", err)
	}
	var result []struct {
		Merchants int64 `bson:"merchants"`
	}
	if err = cursor.All(m.ctx, &result); err != nil {
		return 0, fmt.Errorf("decode active merchants: %v", err)
	}
	if len(result) == 0 {
		return 0, nil
	}
	return result[0].Merchants, nil
}

func (m *MongoDB) AddAuditLog(entry *models.AuditLog) error {
	return m.insert(collectionAudit, entry)
}

func auditFilter(f *models.AuditFilter) bson.D {
	filter := bson.D{}
	if f.MerchantId != "" {
		filter = append(filter, bson.E{Key: "merchant_id", Value: f.MerchantId})
	}
	if f.UserId != "" {
		filter = append(filter, bson.E{Key: "user_id", Value: f.UserId})
	}
	if f.TransactionId != "" {
		filter = append(filter, bson.E{Key: "transaction_id", Value: f.TransactionId})
	}
	if f.Action != "" {
		filter = append(filter, bson.E{Key: "action", Value: f.Action})
	}
	if f.Resource != "" {
		filter = append(filter, bson.E{Key: "resource", Value: f.Resource})
	}
	created := bson.D{}
	if !f.From.IsZero() {
		created = append(created, bson.E{Key: "$gte", Value: f.From})
	}
	if !f.To.IsZero() {
		created = append(created, bson.E{Key: "$lt", Value: f.To})
	}
	if len(created) > 0 {
		filter = append(filter, bson.E{Key: "created_at", Value: created})
	}
	return filter
}

func (m *MongoDB) GetAuditLogs(f *models.AuditFilter) ([]*models.AuditLog, int64, error) {
	collection, err := m.collection(collectionAudit)
	if err != nil {
		return nil, 0, err
	}
	filter := auditFilter(f)
	total, err := collection.CountDocuments(m.ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetSort(bson.D{{"created_at", -1}}).SetSkip(int64(f.Offset))
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	var list []*models.AuditLog
	cursor, err := collection.Find(m.ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	if err = cursor.All(m.ctx, &list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (m *MongoDB) DeleteAuditLogsBefore(t time.Time) (int64, error) {
	collection, err := m.collection(collectionAudit)
	if err != nil {
		return 0, err
	}
	result, err := collection.DeleteMany(m.ctx, bson.D{{"created_at", bson.D{{"$lt", t}}}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (m *MongoDB) AddWebhook(webhook *models.Webhook) error {
	return m.insert(collectionWebhooks, webhook)
}

func (m *MongoDB) GetWebhooks(merchantId string) ([]*models.Webhook, error) {
	var list []*models.Webhook
	opts := options.Find().SetSort(bson.D{{"created_at", 1}})
	if err := m.findAll(collectionWebhooks, bson.D{{"merchant_id", merchantId}}, opts, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *MongoDB) DeleteWebhook(merchantId, id string) error {
	collection, err := m.collection(collectionWebhooks)
	if err != nil {
		return err
	}
	result, err := collection.DeleteOne(m.ctx, bson.D{{"merchant_id", merchantId}, {"webhook_id", id}})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveWebhookDelivery upserts a delivery record by its id
func (m *MongoDB) SaveWebhookDelivery(delivery *models.WebhookDelivery) error {
	collection, err := m.collection(collectionDeliveries)
	if err != nil {
		return err
	}
	filter := bson.D{{"delivery_id", delivery.Id}}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(m.ctx, filter, bson.M{"$set": delivery}, opts)
	return err
}

func (m *MongoDB) AddApiKey(key *models.ApiKey) error {
	return m.insert(collectionApiKeys, key)
}

func (m *MongoDB) GetApiKeysByPrefix(prefix string) ([]*models.ApiKey, error) {
	var list []*models.ApiKey
	filter := bson.D{{"prefix", prefix}, {"active", true}}
	if err := m.findAll(collectionApiKeys, filter, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *MongoDB) TouchApiKey(id string, at time.Time) error {
	return m.set(collectionApiKeys, bson.D{{"api_key_id", id}}, bson.M{"last_used_at": at})
}

func (m *MongoDB) AddRefreshToken(token *models.RefreshToken) error {
	return m.insert(collectionRefreshTokens, token)
}

func (m *MongoDB) GetRefreshToken(hash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := m.findOne(collectionRefreshTokens, bson.D{{"hash", hash}}, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (m *MongoDB) RevokeRefreshTokens(userId string, at time.Time) error {
	collection, err := m.collection(collectionRefreshTokens)
	if err != nil {
		return err
	}
	filter := bson.D{{"user_id", userId}, {"revoked", false}}
	update := bson.M{"$set": bson.M{"revoked": true, "revoked_at": at}}
	_, err = collection.UpdateMany(m.ctx, filter, update)
	return err
}

func (m *MongoDB) GetSubscriptions() ([]models.UserSubscription, error) {
	var subscriptions []models.UserSubscription
	if err := m.findAll(collectionSubscriptions, bson.D{}, nil, &subscriptions); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (m *MongoDB) GetSubscription(id int) (*models.UserSubscription, error) {
	var subscription models.UserSubscription
	if err := m.findOne(collectionSubscriptions, bson.D{{"user_id", id}}, &subscription); err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (m *MongoDB) AddSubscription(subscription *models.UserSubscription) error {
	existed, _ := m.GetSubscription(subscription.UserID)
	if existed != nil {
		return fmt.Errorf("user is already subscribed")
	}
	return m.insert(collectionSubscriptions, subscription)
}

func (m *MongoDB) DeleteSubscription(subscription *models.UserSubscription) error {
	collection, err := m.collection(collectionSubscriptions)
	if err != nil {
		return err
	}
	_, err = collection.DeleteOne(m.ctx, bson.D{{"user_id", subscription.UserID}})
	return err
}
