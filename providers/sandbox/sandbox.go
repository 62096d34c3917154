// Package sandbox is an in-process bank with deterministic outcomes, used for
// development and tests. The cents part of an amount selects the outcome:
// 13 fails with a retryable 503, 66 is rejected, 50 settles on the next lookup.
package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"pixgate/models"
	"pixgate/providers"
	"pixgate/utility"
	"strings"
	"sync"
	"time"
)

const (
	Code = "sandbox"
	ISPB = "00000000"

	invalidSecret = "invalid"
)

type transfer struct {
	response providers.TransferResponse
	settle   bool
}

type Provider struct {
	mutex     sync.Mutex
	transfers map[string]*transfer
	external  map[string]string
	qrcodes   map[string]*providers.QRCodeResponse
	healthy   bool
	now       func() time.Time
}

func New() *Provider {
	return &Provider{
		transfers: make(map[string]*transfer),
		external:  make(map[string]string),
		qrcodes:   make(map[string]*providers.QRCodeResponse),
		healthy:   true,
		now:       time.Now,
	}
}

func (p *Provider) Code() string {
	return Code
}

func (p *Provider) Name() string {
	return "Sandbox Bank"
}

func (p *Provider) Initialize(_ providers.Config) error {
	return nil
}

// SetHealthy switches the outcome of HealthCheck
func (p *Provider) SetHealthy(healthy bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.healthy = healthy
}

func (p *Provider) Authenticate(_ context.Context, credentials providers.Credentials) (*providers.AuthToken, error) {
	if credentials.ClientSecret == invalidSecret {
		return nil, &providers.ProviderError{
			Code:       providers.CodeAuthFailed,
			Message:    "invalid client credentials",
			StatusCode: http.StatusUnauthorized,
		}
	}
	return &providers.AuthToken{
		AccessToken: "sandbox-" + credentials.ClientId,
		TokenType:   "Bearer",
		ExpiresIn:   3600,
		ExpiresAt:   p.now().Add(time.Hour),
	}, nil
}

func (p *Provider) endToEndId(at time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(utility.NewUUID(), "-", ""))
	return "E" + ISPB + at.UTC().Format("200601021504") + random[:11]
}

func (p *Provider) CreateTransfer(_ context.Context, req *providers.TransferRequest) (*providers.TransferResponse, error) {
	if req.Amount <= 0 {
		return nil, &providers.ProviderError{Code: providers.CodeTransferFailed, Message: "amount must be positive", StatusCode: http.StatusUnprocessableEntity}
	}
	if req.PayeePixKey == "" && req.PayeeAccountNumber == "" {
		return nil, &providers.ProviderError{Code: providers.CodeTransferFailed, Message: "payee is required", StatusCode: http.StatusUnprocessableEntity}
	}
	switch req.Amount % 100 {
	case 13:
		return nil, &providers.ProviderError{Code: providers.CodeUnavailable, Message: "sandbox bank unavailable", StatusCode: http.StatusServiceUnavailable, Retryable: true}
	case 66:
		return nil, &providers.ProviderError{Code: providers.CodeTransferFailed, Message: "payee account rejected", StatusCode: http.StatusUnprocessableEntity}
	}

	now := p.now()
	t := &transfer{
		response: providers.TransferResponse{
			ProviderTxId: "sbx-" + utility.NewUUID(),
			E2EId:        p.endToEndId(now),
			Status:       models.StatusCompleted,
			Amount:       req.Amount,
			ProcessedAt:  providers.TimePtr(now),
			CompletedAt:  providers.TimePtr(now),
		},
	}
	if req.Amount%100 == 50 {
		t.response.Status = models.StatusProcessing
		t.response.CompletedAt = nil
		t.settle = true
	}

	p.mutex.Lock()
	p.transfers[t.response.ProviderTxId] = t
	if req.ExternalId != "" {
		p.external[req.ExternalId] = t.response.ProviderTxId
	}
	p.mutex.Unlock()

	resp := t.response
	return &resp, nil
}

func (p *Provider) GetTransfer(_ context.Context, req *providers.Lookup) (*providers.TransferResponse, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	id := req.Id
	if id == "" {
		id = p.external[req.ExternalId]
	}
	t, ok := p.transfers[id]
	if !ok {
		return nil, &providers.ProviderError{Code: providers.CodeGetFailed, Message: "transfer not found", StatusCode: http.StatusNotFound}
	}
	if t.settle {
		t.settle = false
		t.response.Status = models.StatusCompleted
		t.response.CompletedAt = providers.TimePtr(p.now())
	}
	resp := t.response
	return &resp, nil
}

func (p *Provider) CancelTransfer(_ context.Context, req *providers.Lookup) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	t, ok := p.transfers[req.Id]
	if !ok {
		return &providers.ProviderError{Code: providers.CodeTransferFailed, Message: "transfer not found", StatusCode: http.StatusNotFound}
	}
	if t.response.Status.IsFinal() {
		return &providers.ProviderError{Code: providers.CodeTransferFailed, Message: fmt.Sprintf("transfer is %s", t.response.Status), StatusCode: http.StatusConflict}
	}
	t.settle = false
	t.response.Status = models.StatusCancelled
	return nil
}

func (p *Provider) CreateQRCodeStatic(_ context.Context, req *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	return p.createQRCode(req, false)
}

func (p *Provider) CreateQRCodeDynamic(_ context.Context, req *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	return p.createQRCode(req, true)
}

func (p *Provider) createQRCode(req *providers.QRCodeRequest, dynamic bool) (*providers.QRCodeResponse, error) {
	if req.PixKey == "" {
		return nil, &providers.ProviderError{Code: providers.CodeQRCodeFailed, Message: "pix key is required", StatusCode: http.StatusUnprocessableEntity}
	}
	id := strings.ReplaceAll(utility.NewUUID(), "-", "")
	code := providers.BRCode{
		Key:          req.PixKey,
		Description:  req.Description,
		MerchantName: req.PayeeName,
		MerchantCity: "SAO PAULO",
		TxId:         id[:25],
		Amount:       req.Amount,
		SingleUse:    dynamic,
	}
	resp := &providers.QRCodeResponse{
		QRCodeId: id[:25],
		QRCode:   code.String(),
		Amount:   req.Amount,
		Status:   models.StatusPending,
	}
	if dynamic {
		expiresIn := req.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = 3600
		}
		resp.ExpiresAt = providers.TimePtr(p.now().Add(time.Duration(expiresIn) * time.Second))
	}

	p.mutex.Lock()
	stored := *resp
	p.qrcodes[resp.QRCodeId] = &stored
	p.mutex.Unlock()
	return resp, nil
}

func (p *Provider) GetQRCode(_ context.Context, req *providers.Lookup) (*providers.QRCodeResponse, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	qr, ok := p.qrcodes[req.Id]
	if !ok {
		return nil, &providers.ProviderError{Code: providers.CodeGetFailed, Message: "qr code not found", StatusCode: http.StatusNotFound}
	}
	if qr.Status == models.StatusPending && qr.ExpiresAt != nil && p.now().After(*qr.ExpiresAt) {
		qr.Status = models.StatusCancelled
	}
	resp := *qr
	return &resp, nil
}

// Pay marks a QR code as paid, simulating the payer side
func (p *Provider) Pay(qrCodeId string) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	qr, ok := p.qrcodes[qrCodeId]
	if !ok || qr.Status != models.StatusPending {
		return false
	}
	qr.Status = models.StatusCompleted
	return true
}

func (p *Provider) ValidatePixKey(_ context.Context, req *providers.PixKeyRequest) (*providers.PixKeyInfo, error) {
	info := &providers.PixKeyInfo{
		PixKey:     req.PixKey,
		PixKeyType: req.PixKeyType,
	}
	if err := models.ValidatePixKey(req.PixKey, req.PixKeyType); err != nil {
		return info, nil
	}
	info.Valid = true
	info.Name = "Sandbox Account Holder"
	info.Bank = "Sandbox Bank"
	info.ISPB = ISPB
	info.AccountType = "checking"
	return info, nil
}

func (p *Provider) HealthCheck(_ context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.healthy {
		return &providers.ProviderError{Code: providers.CodeHealthFailed, Message: "sandbox marked unhealthy", StatusCode: http.StatusServiceUnavailable, Retryable: true}
	}
	return nil
}

func (p *Provider) SupportedMethods() []string {
	return []string{
		providers.MethodTransfer,
		providers.MethodQRCodeStatic,
		providers.MethodQRCodeDynamic,
		providers.MethodGetTransfer,
		providers.MethodGetQRCode,
		providers.MethodCancel,
		providers.MethodValidateKey,
	}
}
