package models

import (
	"fmt"
	"time"
)

type TransactionType string

const (
	TransactionTypeTransfer      TransactionType = "transfer"
	TransactionTypeQRCodeStatic  TransactionType = "qrcode_static"
	TransactionTypeQRCodeDynamic TransactionType = "qrcode_dynamic"
)

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"
	StatusRefunded   TransactionStatus = "refunded"
)

// ErrorOutcomeUnknown marks a transfer whose creation may have reached the bank without an answer.
// It stays open until reconciliation learns the bank side status.
const ErrorOutcomeUnknown = "OUTCOME_UNKNOWN"

var transitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:  {StatusRefunded},
}

// CanMoveTo reports whether a transaction in status s may change to next
func (s TransactionStatus) CanMoveTo(next TransactionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsFinal reports whether no further provider updates are expected
func (s TransactionStatus) IsFinal() bool {
	return s == StatusFailed || s == StatusCancelled || s == StatusRefunded || s == StatusCompleted
}

func (s TransactionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Transaction is a PIX operation executed through a provider; amounts are in cents
type Transaction struct {
	Id           string            `json:"id" bson:"transaction_id"`
	MerchantId   string            `json:"merchant_id" bson:"merchant_id"`
	MerchantName string            `json:"merchant_name" bson:"merchant_name"`
	ProviderId   string            `json:"provider_id" bson:"provider_id"`
	ProviderCode string            `json:"provider" bson:"provider_code"`
	ExternalId   string            `json:"external_id" bson:"external_id"`
	ProviderTxId string            `json:"provider_tx_id,omitempty" bson:"provider_tx_id"`
	E2EId        string            `json:"e2e_id,omitempty" bson:"e2e_id"`
	Type         TransactionType   `json:"type" bson:"type"`
	Status       TransactionStatus `json:"status" bson:"status"`
	Amount       int64             `json:"amount" bson:"amount"`
	Currency     string            `json:"currency" bson:"currency"`
	Description  string            `json:"description" bson:"description"`

	PayerName          string     `json:"payer_name,omitempty" bson:"payer_name"`
	PayerDocument      string     `json:"payer_document,omitempty" bson:"payer_document"`
	PayerPixKey        string     `json:"payer_pix_key,omitempty" bson:"payer_pix_key"`
	PayerPixKeyType    PixKeyType `json:"payer_pix_key_type,omitempty" bson:"payer_pix_key_type"`
	PayerAccountAgency string     `json:"payer_account_agency,omitempty" bson:"payer_account_agency"`
	PayerAccountNumber string     `json:"payer_account_number,omitempty" bson:"payer_account_number"`
	PayerBank          string     `json:"payer_bank,omitempty" bson:"payer_bank"`

	PayeeName          string     `json:"payee_name,omitempty" bson:"payee_name"`
	PayeeDocument      string     `json:"payee_document,omitempty" bson:"payee_document"`
	PayeePixKey        string     `json:"payee_pix_key,omitempty" bson:"payee_pix_key"`
	PayeePixKeyType    PixKeyType `json:"payee_pix_key_type,omitempty" bson:"payee_pix_key_type"`
	PayeeAccountAgency string     `json:"payee_account_agency,omitempty" bson:"payee_account_agency"`
	PayeeAccountNumber string     `json:"payee_account_number,omitempty" bson:"payee_account_number"`
	PayeeBank          string     `json:"payee_bank,omitempty" bson:"payee_bank"`

	QRCode          string     `json:"qr_code,omitempty" bson:"qr_code"`
	QRCodeImage     string     `json:"qr_code_image,omitempty" bson:"qr_code_image"`
	QRCodeExpiresAt *time.Time `json:"qr_code_expires_at,omitempty" bson:"qr_code_expires_at,omitempty"`

	Metadata     map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	ErrorCode    string                 `json:"error_code,omitempty" bson:"error_code"`
	ErrorMessage string                 `json:"error_message,omitempty" bson:"error_message"`

	ProcessedAt *time.Time `json:"processed_at,omitempty" bson:"processed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
}

// SetStatus applies a status change, stamping the matching timestamp;
// setting the current status again is a no-op
func (t *Transaction) SetStatus(next TransactionStatus, now time.Time) error {
	if t.Status == next {
		return nil
	}
	if !t.Status.CanMoveTo(next) {
		return fmt.Errorf("transaction %s: illegal status change %s -> %s", t.Id, t.Status, next)
	}
	t.Status = next
	t.UpdatedAt = now
	switch next {
	case StatusProcessing:
		t.ProcessedAt = &now
	case StatusCompleted:
		if t.ProcessedAt == nil {
			t.ProcessedAt = &now
		}
		t.CompletedAt = &now
	case StatusCancelled:
		t.CancelledAt = &now
	}
	return nil
}

func (t *Transaction) IsQRCode() bool {
	return t.Type == TransactionTypeQRCodeStatic || t.Type == TransactionTypeQRCodeDynamic
}

// TransactionFilter narrows transaction listings; zero values are ignored
type TransactionFilter struct {
	MerchantId string
	Status     TransactionStatus
	Type       TransactionType
	From       time.Time
	To         time.Time
	MinAmount  int64
	MaxAmount  int64
	Limit      int
	Offset     int
}

// Cursor is a position in (created_at, id) order
type Cursor struct {
	CreatedAt time.Time
	Id        string
}

// Before reports whether tx sorts at or before the cursor
func (c *Cursor) Before(tx *Transaction) bool {
	if c == nil {
		return false
	}
	if tx.CreatedAt.Equal(c.CreatedAt) {
		return tx.Id <= c.Id
	}
	return tx.CreatedAt.Before(c.CreatedAt)
}

// StatusSummary is an aggregate of transactions grouped by status
type StatusSummary struct {
	Status TransactionStatus `json:"status" bson:"_id"`
	Count  int64             `json:"count" bson:"count"`
	Amount int64             `json:"amount" bson:"amount"`
}
