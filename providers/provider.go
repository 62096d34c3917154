// Package providers defines the contract every bank adapter implements and
// the machinery that selects, authenticates and protects them.
package providers

import (
	"context"
	"pixgate/models"
	"pixgate/utility"
	"time"
)

const (
	MethodTransfer      = "transfer"
	MethodQRCodeStatic  = "qrcode_static"
	MethodQRCodeDynamic = "qrcode_dynamic"
	MethodGetTransfer   = "get_transfer"
	MethodGetQRCode     = "get_qrcode"
	MethodCancel        = "cancel"
	MethodValidateKey   = "validate_key"
)

type PixProvider interface {
	Code() string
	Name() string
	Initialize(config Config) error
	Authenticate(ctx context.Context, credentials Credentials) (*AuthToken, error)
	CreateTransfer(ctx context.Context, req *TransferRequest) (*TransferResponse, error)
	GetTransfer(ctx context.Context, req *Lookup) (*TransferResponse, error)
	CancelTransfer(ctx context.Context, req *Lookup) error
	CreateQRCodeStatic(ctx context.Context, req *QRCodeRequest) (*QRCodeResponse, error)
	CreateQRCodeDynamic(ctx context.Context, req *QRCodeRequest) (*QRCodeResponse, error)
	GetQRCode(ctx context.Context, req *Lookup) (*QRCodeResponse, error)
	ValidatePixKey(ctx context.Context, req *PixKeyRequest) (*PixKeyInfo, error)
	HealthCheck(ctx context.Context) error
	SupportedMethods() []string
}

type Config struct {
	BaseURL      string
	AuthURL      string
	Timeout      int
	MaxRetries   int
	RequiresMTLS bool
	CertFile     string
	KeyFile      string
}

// Credentials are the decrypted account settings of one merchant at one provider
type Credentials struct {
	AccountId     string
	ClientId      string
	ClientSecret  string
	AccountAgency string
	AccountNumber string
	AccountType   string
	PixKey        string
	PixKeyType    models.PixKeyType
}

type AuthToken struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int
	ExpiresAt   time.Time
	Scope       string
}

type TransferRequest struct {
	ExternalId  string
	Amount      int64
	Description string

	PayerName          string
	PayerDocument      string
	PayerPixKey        string
	PayerAccountAgency string
	PayerAccountNumber string
	PayerAccountType   string

	PayeeName          string
	PayeeDocument      string
	PayeePixKey        string
	PayeePixKeyType    models.PixKeyType
	PayeeAccountAgency string
	PayeeAccountNumber string
	PayeeAccountType   string
	PayeeISPB          string

	AuthToken string
	ClientId  string
}

type TransferResponse struct {
	ProviderTxId string
	E2EId        string
	Status       models.TransactionStatus
	Amount       int64
	ProcessedAt  *time.Time
	CompletedAt  *time.Time
	ErrorCode    string
	ErrorMessage string
}

// Lookup addresses a previously created transfer or QR code. ExternalId is the
// gateway id sent on creation, used when the bank id was never received.
type Lookup struct {
	Id         string
	ExternalId string
	Reason     string
	AuthToken  string
	ClientId   string
}

// LookupId returns the bank id to query. Banks that keep the gateway external id
// as their own id pass adoptsExternal.
func LookupId(l *Lookup, adoptsExternal bool) (string, error) {
	if l.Id != "" {
		return l.Id, nil
	}
	if adoptsExternal && l.ExternalId != "" {
		return l.ExternalId, nil
	}
	return "", NewProviderError(CodeNotSupported, "lookup without a provider id")
}

type QRCodeRequest struct {
	ExternalId    string
	Amount        int64
	Description   string
	PayeeName     string
	PayeeDocument string
	PixKey        string
	PixKeyType    models.PixKeyType
	ExpiresIn     int
	AllowChange   bool
	AuthToken     string
	ClientId      string
}

type QRCodeResponse struct {
	QRCodeId    string
	QRCode      string
	QRCodeImage string
	Amount      int64
	Status      models.TransactionStatus
	ExpiresAt   *time.Time
}

type PixKeyRequest struct {
	PixKey     string
	PixKeyType models.PixKeyType
	AuthToken  string
	ClientId   string
}

type PixKeyInfo struct {
	Valid       bool              `json:"valid"`
	PixKey      string            `json:"pix_key"`
	PixKeyType  models.PixKeyType `json:"pix_key_type"`
	Name        string            `json:"name,omitempty"`
	Document    string            `json:"document,omitempty"`
	Bank        string            `json:"bank,omitempty"`
	ISPB        string            `json:"ispb,omitempty"`
	AccountType string            `json:"account_type,omitempty"`
}

// AmountString renders cents as the decimal reais string banks expect, 10050 -> "100.50"
func AmountString(cents int64) string {
	return utility.IntAsPrice(cents)
}

// AmountFloat renders cents as reais for banks that take a JSON number
func AmountFloat(cents int64) float64 {
	return float64(cents) / 100
}

func TimePtr(t time.Time) *time.Time {
	return &t
}
