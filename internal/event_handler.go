package internal

import (
	"pixgate/models"
	"time"
)

// EventHandler receives transaction lifecycle events; implementations must not block
type EventHandler interface {
	OnTransactionEvent(event *EventMessage)
}

type EventMessage struct {
	Type          string              `json:"type" bson:"type"`
	MerchantId    string              `json:"merchant_id" bson:"merchant_id"`
	TransactionId string              `json:"transaction_id" bson:"transaction_id"`
	ProviderCode  string              `json:"provider" bson:"provider"`
	Status        string              `json:"status" bson:"status"`
	Amount        int64               `json:"amount" bson:"amount"`
	Time          time.Time           `json:"time" bson:"time"`
	Info          string              `json:"info,omitempty" bson:"info"`
	Payload       *models.Transaction `json:"payload,omitempty" bson:"payload"`
}

// NewTransactionEvent builds an event from the current state of a transaction
func NewTransactionEvent(eventType string, tx *models.Transaction) *EventMessage {
	return &EventMessage{
		Type:          eventType,
		MerchantId:    tx.MerchantId,
		TransactionId: tx.Id,
		ProviderCode:  tx.ProviderCode,
		Status:        string(tx.Status),
		Amount:        tx.Amount,
		Time:          time.Now().UTC(),
		Info:          tx.ErrorMessage,
		Payload:       tx,
	}
}

// EventTypeFor maps a transaction status to the event published for it
func EventTypeFor(status models.TransactionStatus) string {
	switch status {
	case models.StatusCompleted:
		return models.EventTransactionCompleted
	case models.StatusFailed:
		return models.EventTransactionFailed
	case models.StatusCancelled:
		return models.EventTransactionCancelled
	default:
		return models.EventTransactionUpdated
	}
}
