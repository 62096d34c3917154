package models

import "time"

const (
	EventTransactionCreated   = "transaction.created"
	EventTransactionCompleted = "transaction.completed"
	EventTransactionFailed    = "transaction.failed"
	EventTransactionCancelled = "transaction.cancelled"
	EventTransactionUpdated   = "transaction.updated"
)

const (
	DeliveryPending = "pending"
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
)

type Webhook struct {
	Id         string    `json:"id" bson:"webhook_id"`
	MerchantId string    `json:"merchant_id" bson:"merchant_id"`
	URL        string    `json:"url" bson:"url"`
	Events     []string  `json:"events" bson:"events"`
	Secret     string    `json:"-" bson:"secret"`
	Active     bool      `json:"active" bson:"active"`
	MaxRetries int       `json:"max_retries" bson:"max_retries"`
	Timeout    int       `json:"timeout" bson:"timeout"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`
}

// Accepts reports whether the webhook is subscribed to the event; an empty list means all events
func (w *Webhook) Accepts(event string) bool {
	if !w.Active {
		return false
	}
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

type WebhookDelivery struct {
	Id            string                 `json:"id" bson:"delivery_id"`
	WebhookId     string                 `json:"webhook_id" bson:"webhook_id"`
	MerchantId    string                 `json:"merchant_id" bson:"merchant_id"`
	TransactionId string                 `json:"transaction_id" bson:"transaction_id"`
	Event         string                 `json:"event" bson:"event"`
	Payload       map[string]interface{} `json:"payload" bson:"payload"`
	Attempt       int                    `json:"attempt" bson:"attempt"`
	Status        string                 `json:"status" bson:"status"`
	ResponseCode  int                    `json:"response_code" bson:"response_code"`
	ResponseBody  string                 `json:"response_body,omitempty" bson:"response_body,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty" bson:"error_message,omitempty"`
	NextRetryAt   *time.Time             `json:"next_retry_at,omitempty" bson:"next_retry_at,omitempty"`
	DeliveredAt   *time.Time             `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at" bson:"created_at"`
}
