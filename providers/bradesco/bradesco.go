// Package bradesco adapts the Bradesco SPI transfer API.
package bradesco

import (
	"context"
	"errors"
	"fmt"
	"pixgate/models"
	"pixgate/providers"
	"strings"
	"time"
)

const (
	Code = "bradesco"
	ISPB = "60746948"
)

type Provider struct {
	config providers.Config
	client *providers.HttpClient
	tracer providers.Tracer
	now    func() time.Time
}

func New() *Provider {
	return &Provider{now: time.Now}
}

func (p *Provider) Code() string {
	return Code
}

func (p *Provider) Name() string {
	return "Bradesco"
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

// Authenticate posts the client credentials as JSON, the bank does not take a form here
func (p *Provider) Authenticate(ctx context.Context, credentials providers.Credentials) (*providers.AuthToken, error) {
	payload := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     credentials.ClientId,
		"client_secret": credentials.ClientSecret,
	}
	body, err := p.client.Post(ctx, p.config.AuthURL, payload, "")
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
		ExpiresAt:   p.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

type transferResponse struct {
	IdTransacao string  `json:"idTransacao"`
	EndToEndId  string  `json:"endToEndId"`
	Status      string  `json:"status"`
	Valor       float64 `json:"valor"`
	DataHora    string  `json:"dataHora"`
	Motivo      string  `json:"motivo"`
}

func (r *transferResponse) transfer() *providers.TransferResponse {
	resp := &providers.TransferResponse{
		ProviderTxId: r.IdTransacao,
		E2EId:        r.EndToEndId,
		Status:       mapStatus(r.Status),
		Amount:       int64(r.Valor*100 + 0.5),
	}
	if done, err := time.Parse(time.RFC3339, r.DataHora); err == nil && resp.Status == models.StatusCompleted {
		resp.CompletedAt = &done
	}
	if resp.Status == models.StatusFailed {
		resp.ErrorCode = r.Status
		resp.ErrorMessage = r.Motivo
	}
	return resp
}

func party(pixKey, document, bank, agency, account, accountType string) map[string]interface{} {
	m := make(map[string]interface{})
	if pixKey != "" {
		m["chavePix"] = pixKey
	} else {
		m["banco"] = bank
		m["agencia"] = agency
		m["conta"] = account
		m["tipoConta"] = accountType
	}
	if document != "" {
		m["cpfCnpj"] = document
	}
	return m
}

func (p *Provider) CreateTransfer(ctx context.Context, req *providers.TransferRequest) (*providers.TransferResponse, error) {
	payload := map[string]interface{}{
		"idTransacao": req.ExternalId,
		"valor":       providers.AmountFloat(req.Amount),
		"descricao":   req.Description,
		"pagador":     party(req.PayerPixKey, req.PayerDocument, ISPB, req.PayerAccountAgency, req.PayerAccountNumber, req.PayerAccountType),
		"recebedor":   party(req.PayeePixKey, req.PayeeDocument, req.PayeeISPB, req.PayeeAccountAgency, req.PayeeAccountNumber, req.PayeeAccountType),
	}
	body, err := p.client.Post(ctx, p.config.BaseURL+"/v1/spi/solicitar-transferencia", payload, req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeTransferFailed, "create transfer", err)
	}
	var resp transferResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	transfer := resp.transfer()
	if transfer.Amount == 0 {
		transfer.Amount = req.Amount
	}
	transfer.ProcessedAt = providers.TimePtr(p.now())
	return transfer, nil
}

// GetTransfer looks transfers up by idTransacao, which is the external id sent on creation
func (p *Provider) GetTransfer(ctx context.Context, req *providers.Lookup) (*providers.TransferResponse, error) {
	id, err := providers.LookupId(req, true)
	if err != nil {
		return nil, err
	}
	body, err := p.client.Get(ctx, fmt.Sprintf("%s/v1/spi/consultar-transferencia/%s", p.config.BaseURL, id), req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeGetFailed, "get transfer", err)
	}
	var resp transferResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return resp.transfer(), nil
}

func (p *Provider) CancelTransfer(_ context.Context, _ *providers.Lookup) error {
	return providers.NewProviderError(providers.CodeNotSupported, "bradesco does not cancel transfers")
}

// CreateQRCodeStatic builds the BR Code locally; static codes carry no bank side state
func (p *Provider) CreateQRCodeStatic(_ context.Context, req *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	if req.PixKey == "" {
		return nil, providers.NewProviderError(providers.CodeQRCodeFailed, "pix key is required")
	}
	txId := strings.ReplaceAll(req.ExternalId, "-", "")
	code := providers.BRCode{
		Key:          req.PixKey,
		Description:  req.Description,
		MerchantName: req.PayeeName,
		TxId:         txId,
		Amount:       req.Amount,
	}
	return &providers.QRCodeResponse{
		QRCodeId: txId,
		QRCode:   code.String(),
		Amount:   req.Amount,
		Status:   models.StatusPending,
	}, nil
}

func (p *Provider) CreateQRCodeDynamic(_ context.Context, _ *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	return nil, providers.NewProviderError(providers.CodeNotSupported, "bradesco does not issue dynamic qr codes")
}

func (p *Provider) GetQRCode(_ context.Context, _ *providers.Lookup) (*providers.QRCodeResponse, error) {
	return nil, providers.NewProviderError(providers.CodeNotSupported, "bradesco does not track qr codes")
}

func (p *Provider) ValidatePixKey(_ context.Context, _ *providers.PixKeyRequest) (*providers.PixKeyInfo, error) {
	return nil, providers.NewProviderError(providers.CodeNotSupported, "bradesco does not expose key lookup")
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Get(ctx, p.config.BaseURL, "")
	var pe *providers.ProviderError
	if errors.As(err, &pe) && pe.StatusCode > 0 && pe.StatusCode < 500 {
		return nil
	}
	if err != nil {
		return providers.Wrap(providers.CodeHealthFailed, "provider unavailable", err)
	}
	return nil
}

func (p *Provider) SupportedMethods() []string {
	return []string{
		providers.MethodTransfer,
		providers.MethodGetTransfer,
		providers.MethodQRCodeStatic,
	}
}

func mapStatus(status string) models.TransactionStatus {
	switch status {
	case "EM_PROCESSAMENTO":
		return models.StatusProcessing
	case "CONCLUIDA":
		return models.StatusCompleted
	case "REJEITADA", "ERRO":
		return models.StatusFailed
	case "CANCELADA":
		return models.StatusCancelled
	default:
		return models.StatusPending
	}
}
