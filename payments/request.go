package payments

import (
	"fmt"
	"pixgate/models"
	"strings"
)

const (
	QRCodeStatic  = "static"
	QRCodeDynamic = "dynamic"

	defaultLimit  = 50
	maxLimit      = 100
	maxExpiresIn  = 7 * 24 * 3600
	defaultExpiry = 3600
)

// Actor is the authenticated principal on whose behalf an operation runs
type Actor struct {
	UserId     string
	MerchantId string
	Admin      bool
}

func (a Actor) canSee(tx *models.Transaction) bool {
	return a.Admin || (a.MerchantId != "" && a.MerchantId == tx.MerchantId)
}

type TransferRequest struct {
	ExternalId  string `json:"external_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Provider    string `json:"provider,omitempty"`

	PayerName     string `json:"payer_name,omitempty"`
	PayerDocument string `json:"payer_document,omitempty"`

	PayeeName          string            `json:"payee_name,omitempty"`
	PayeeDocument      string            `json:"payee_document,omitempty"`
	PayeePixKey        string            `json:"payee_pix_key,omitempty"`
	PayeePixKeyType    models.PixKeyType `json:"payee_pix_key_type,omitempty"`
	PayeeAccountAgency string            `json:"payee_account_agency,omitempty"`
	PayeeAccountNumber string            `json:"payee_account_number,omitempty"`
	PayeeAccountType   string            `json:"payee_account_type,omitempty"`
	PayeeISPB          string            `json:"payee_ispb,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (r *TransferRequest) validate() error {
	if r.Amount <= 0 {
		return invalid("amount must be greater than zero")
	}
	r.PayeePixKey = strings.TrimSpace(r.PayeePixKey)
	if r.PayeePixKey == "" {
		if r.PayeeAccountNumber == "" || r.PayeeAccountAgency == "" {
			return invalid("payee pix key or bank account is required")
		}
		return nil
	}
	if r.PayeePixKeyType != "" {
		if err := models.ValidatePixKey(r.PayeePixKey, r.PayeePixKeyType); err != nil {
			return invalid(err.Error())
		}
	}
	return nil
}

type QRCodeRequest struct {
	ExternalId  string            `json:"external_id"`
	Type        string            `json:"type"`
	Amount      int64             `json:"amount"`
	Description string            `json:"description"`
	Provider    string            `json:"provider,omitempty"`
	ExpiresIn   int               `json:"expires_in,omitempty"`
	AllowChange bool              `json:"allow_change,omitempty"`
	PayeeName   string            `json:"payee_name,omitempty"`
	Document    string            `json:"payee_document,omitempty"`
	PixKey      string            `json:"pix_key,omitempty"`
	PixKeyType  models.PixKeyType `json:"pix_key_type,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (r *QRCodeRequest) validate() error {
	if r.Type == "" {
		r.Type = QRCodeDynamic
	}
	switch r.Type {
	case QRCodeStatic:
		if r.Amount < 0 {
			return invalid("amount must not be negative")
		}
	case QRCodeDynamic:
		if r.Amount <= 0 {
			return invalid("amount must be greater than zero")
		}
		if r.ExpiresIn <= 0 {
			r.ExpiresIn = defaultExpiry
		}
		if r.ExpiresIn > maxExpiresIn {
			return invalid("expires_in exceeds seven days")
		}
	default:
		return invalid(fmt.Sprintf("unknown qr code type %q", r.Type))
	}
	if r.PixKey != "" && r.PixKeyType != "" {
		if err := models.ValidatePixKey(r.PixKey, r.PixKeyType); err != nil {
			return invalid(err.Error())
		}
	}
	return nil
}

func (r *QRCodeRequest) transactionType() models.TransactionType {
	if r.Type == QRCodeStatic {
		return models.TransactionTypeQRCodeStatic
	}
	return models.TransactionTypeQRCodeDynamic
}

// Page is one slice of a transaction listing
type Page struct {
	Items  []*models.Transaction `json:"items"`
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

func normalizePage(f *models.TransactionFilter) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

func invalid(message string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, message)
}
