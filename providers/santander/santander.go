// Package santander adapts the Santander PIX API.
package santander

import (
	"context"
	"fmt"
	"pixgate/models"
	"pixgate/providers"
	"time"
)

const Code = "santander"

type Provider struct {
	config providers.Config
	client *providers.HttpClient
	tracer providers.Tracer
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Code() string {
	return Code
}

func (p *Provider) Name() string {
	return "Santander"
}

func (p *Provider) SetTracer(tracer providers.Tracer) {
	p.tracer = tracer
	if p.client != nil {
		p.client.SetTracer(tracer)
	}
}

func (p *Provider) Initialize(config providers.Config) error {
	client, err := providers.NewHttpClient(config)
	if err != nil {
		return err
	}
	client.SetTracer(p.tracer)
	p.config = config
	p.client = client
	return nil
}

func (p *Provider) Authenticate(ctx context.Context, credentials providers.Credentials) (*providers.AuthToken, error) {
	form := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     credentials.ClientId,
		"client_secret": credentials.ClientSecret,
	}
	body, err := p.client.PostForm(ctx, p.config.AuthURL, form)
	if err != nil {
		return nil, providers.Wrap(providers.CodeAuthFailed, "authentication failed", err)
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return &providers.AuthToken{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresIn:   resp.ExpiresIn,
		ExpiresAt:   time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

type paymentResponse struct {
	TransactionId string `json:"transactionId"`
	EndToEndId    string `json:"endToEndId"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
}

func (r *paymentResponse) transfer() *providers.TransferResponse {
	resp := &providers.TransferResponse{
		ProviderTxId: r.TransactionId,
		E2EId:        r.EndToEndId,
		Status:       mapStatus(r.Status),
	}
	if resp.Status == models.StatusFailed {
		resp.ErrorCode = r.Status
		resp.ErrorMessage = r.Reason
	}
	return resp
}

func (p *Provider) CreateTransfer(ctx context.Context, req *providers.TransferRequest) (*providers.TransferResponse, error) {
	payee := map[string]interface{}{
		"name":     req.PayeeName,
		"document": req.PayeeDocument,
	}
	if req.PayeePixKey != "" {
		payee["pixKey"] = req.PayeePixKey
	} else {
		payee["bankAccount"] = map[string]string{
			"ispb":   req.PayeeISPB,
			"branch": req.PayeeAccountAgency,
			"number": req.PayeeAccountNumber,
			"type":   req.PayeeAccountType,
		}
	}
	payload := map[string]interface{}{
		"amount": map[string]interface{}{
			"value":    req.Amount,
			"currency": "BRL",
		},
		"payee":       payee,
		"description": req.Description,
		"externalId":  req.ExternalId,
	}
	body, err := p.client.Post(ctx, p.config.BaseURL+"/pix/v1/payments", payload, req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeTransferFailed, "create transfer", err)
	}
	var resp paymentResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	transfer := resp.transfer()
	transfer.ProcessedAt = providers.TimePtr(time.Now())
	return transfer, nil
}

func (p *Provider) GetTransfer(ctx context.Context, req *providers.Lookup) (*providers.TransferResponse, error) {
	id, err := providers.LookupId(req, false)
	if err != nil {
		return nil, err
	}
	body, err := p.client.Get(ctx, fmt.Sprintf("%s/pix/v1/payments/%s", p.config.BaseURL, id), req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeGetFailed, "get transfer", err)
	}
	var resp paymentResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return resp.transfer(), nil
}

func (p *Provider) CancelTransfer(ctx context.Context, req *providers.Lookup) error {
	if _, err := p.client.Delete(ctx, fmt.Sprintf("%s/pix/v1/payments/%s", p.config.BaseURL, req.Id), req.AuthToken); err != nil {
		return providers.Wrap(providers.CodeTransferFailed, "cancel transfer", err)
	}
	return nil
}

type qrResponse struct {
	QRCodeId string `json:"qrcodeId"`
	QRCode   string `json:"qrcode"`
	Image    string `json:"image"`
	Status   string `json:"status"`
}

func (p *Provider) CreateQRCodeStatic(ctx context.Context, req *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	payload := map[string]interface{}{
		"amount":      req.Amount,
		"pixKey":      req.PixKey,
		"description": req.Description,
	}
	return p.postQRCode(ctx, "/pix/v1/qrcodes/static", payload, req)
}

func (p *Provider) CreateQRCodeDynamic(ctx context.Context, req *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	payload := map[string]interface{}{
		"amount":      req.Amount,
		"pixKey":      req.PixKey,
		"description": req.Description,
		"expiration":  req.ExpiresIn,
		"externalId":  req.ExternalId,
	}
	return p.postQRCode(ctx, "/pix/v1/qrcodes/dynamic", payload, req)
}

func (p *Provider) postQRCode(ctx context.Context, path string, payload map[string]interface{}, req *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	body, err := p.client.Post(ctx, p.config.BaseURL+path, payload, req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeQRCodeFailed, "create qr code", err)
	}
	var resp qrResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return &providers.QRCodeResponse{
		QRCodeId:    resp.QRCodeId,
		QRCode:      resp.QRCode,
		QRCodeImage: resp.Image,
		Amount:      req.Amount,
		Status:      models.StatusPending,
	}, nil
}

func (p *Provider) GetQRCode(ctx context.Context, req *providers.Lookup) (*providers.QRCodeResponse, error) {
	body, err := p.client.Get(ctx, fmt.Sprintf("%s/pix/v1/qrcodes/%s", p.config.BaseURL, req.Id), req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeGetFailed, "get qr code", err)
	}
	var resp qrResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return &providers.QRCodeResponse{
		QRCodeId:    resp.QRCodeId,
		QRCode:      resp.QRCode,
		QRCodeImage: resp.Image,
		Status:      mapQRStatus(resp.Status),
	}, nil
}

func (p *Provider) ValidatePixKey(ctx context.Context, req *providers.PixKeyRequest) (*providers.PixKeyInfo, error) {
	body, err := p.client.Get(ctx, fmt.Sprintf("%s/pix/v1/keys/%s", p.config.BaseURL, req.PixKey), req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeGetFailed, "lookup pix key", err)
	}
	var resp struct {
		Key         string `json:"key"`
		Name        string `json:"name"`
		Document    string `json:"document"`
		Bank        string `json:"bank"`
		ISPB        string `json:"ispb"`
		AccountType string `json:"accountType"`
	}
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return &providers.PixKeyInfo{
		Valid:       resp.Key != "",
		PixKey:      req.PixKey,
		PixKeyType:  req.PixKeyType,
		Name:        resp.Name,
		Document:    resp.Document,
		Bank:        resp.Bank,
		ISPB:        resp.ISPB,
		AccountType: resp.AccountType,
	}, nil
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.Get(ctx, p.config.BaseURL+"/health", ""); err != nil {
		return providers.Wrap(providers.CodeHealthFailed, "provider unavailable", err)
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

func mapStatus(status string) models.TransactionStatus {
	switch status {
	case "COMPLETED", "SETTLED":
		return models.StatusCompleted
	case "PROCESSING", "PENDING":
		return models.StatusProcessing
	case "CANCELLED", "REJECTED":
		return models.StatusCancelled
	case "FAILED":
		return models.StatusFailed
	default:
		return models.StatusPending
	}
}

func mapQRStatus(status string) models.TransactionStatus {
	switch status {
	case "PAID", "COMPLETED":
		return models.StatusCompleted
	case "EXPIRED", "CANCELLED":
		return models.StatusCancelled
	default:
		return models.StatusPending
	}
}
