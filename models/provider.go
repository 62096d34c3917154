package models

import "time"

type ProviderType string

const (
	ProviderTypeBank        ProviderType = "bank"
	ProviderTypeDigital     ProviderType = "digital_bank"
	ProviderTypeCooperative ProviderType = "cooperative"
	ProviderTypeFintech     ProviderType = "fintech"
	ProviderTypePSP         ProviderType = "psp"
)

const (
	HealthUnknown   = "unknown"
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// Provider is a financial institution able to execute PIX operations
type Provider struct {
	Id           string         `json:"id" bson:"provider_id"`
	Code         string         `json:"code" bson:"code"`
	Name         string         `json:"name" bson:"name"`
	ISPB         string         `json:"ispb" bson:"ispb"`
	Type         ProviderType   `json:"type" bson:"type"`
	Active       bool           `json:"active" bson:"active"`
	Config       ProviderConfig `json:"config" bson:"config"`
	Priority     int            `json:"priority" bson:"priority"`
	HealthStatus string         `json:"health_status" bson:"health_status"`
	LastHealthAt *time.Time     `json:"last_health_at,omitempty" bson:"last_health_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" bson:"updated_at"`
}

type ProviderConfig struct {
	BaseURL          string            `json:"base_url" bson:"base_url"`
	AuthURL          string            `json:"auth_url" bson:"auth_url"`
	SandboxURL       string            `json:"sandbox_url,omitempty" bson:"sandbox_url,omitempty"`
	AuthType         string            `json:"auth_type" bson:"auth_type"`
	Timeout          int               `json:"timeout" bson:"timeout"`
	MaxRetries       int               `json:"max_retries" bson:"max_retries"`
	RequiresMTLS     bool              `json:"requires_mtls" bson:"requires_mtls"`
	SupportedMethods []string          `json:"supported_methods" bson:"supported_methods"`
	CustomHeaders    map[string]string `json:"custom_headers,omitempty" bson:"custom_headers,omitempty"`
}

// MerchantProvider binds a merchant to a provider account; credentials are stored encrypted
type MerchantProvider struct {
	Id              string     `json:"id" bson:"merchant_provider_id"`
	MerchantId      string     `json:"merchant_id" bson:"merchant_id"`
	ProviderId      string     `json:"provider_id" bson:"provider_id"`
	ProviderCode    string     `json:"provider_code" bson:"provider_code"`
	Active          bool       `json:"active" bson:"active"`
	ClientId        string     `json:"-" bson:"client_id"`
	ClientSecret    string     `json:"-" bson:"client_secret"`
	CertificateData string     `json:"-" bson:"certificate_data"`
	PrivateKeyData  string     `json:"-" bson:"private_key_data"`
	AccountAgency   string     `json:"account_agency" bson:"account_agency"`
	AccountNumber   string     `json:"account_number" bson:"account_number"`
	AccountType     string     `json:"account_type" bson:"account_type"`
	PixKey          string     `json:"pix_key,omitempty" bson:"pix_key"`
	PixKeyType      PixKeyType `json:"pix_key_type,omitempty" bson:"pix_key_type"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" bson:"updated_at"`
}

type PixKeyType string

const (
	PixKeyTypeCPF     PixKeyType = "cpf"
	PixKeyTypeCNPJ    PixKeyType = "cnpj"
	PixKeyTypeEmail   PixKeyType = "email"
	PixKeyTypePhone   PixKeyType = "phone"
	PixKeyTypeRandom  PixKeyType = "random"
	PixKeyTypeAccount PixKeyType = "account"
)
