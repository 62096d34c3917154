// Package bb adapts the Banco do Brasil PIX API.
package bb

import (
	"context"
	"fmt"
	"pixgate/models"
	"pixgate/providers"
	"time"
)

const (
	Code = "bb"
	ISPB = "00000000"
)

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
	return "Banco do Brasil"
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

type authResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (p *Provider) Authenticate(ctx context.Context, credentials providers.Credentials) (*providers.AuthToken, error) {
	form := map[string]string{
		"grant_type": "client_credentials",
		"scope":      "cob.write cob.read pix.write pix.read",
	}
	body, err := p.client.PostFormBasicAuth(ctx, p.config.AuthURL, form, credentials.ClientId, credentials.ClientSecret)
	if err != nil {
		return nil, providers.Wrap(providers.CodeAuthFailed, "authentication failed", err)
	}
	var resp authResponse
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

type pixResponse struct {
	EndToEndId string `json:"endToEndId"`
	TxId       string `json:"txid"`
	Status     string `json:"status"`
	Valor      string `json:"valor"`
}

func (p *Provider) CreateTransfer(ctx context.Context, req *providers.TransferRequest) (*providers.TransferResponse, error) {
	payload := map[string]interface{}{
		"valor":     providers.AmountString(req.Amount),
		"descricao": req.Description,
		"txid":      req.ExternalId,
	}
	if req.PayeePixKey != "" {
		payload["chave"] = req.PayeePixKey
	} else {
		payload["favorecido"] = map[string]interface{}{
			"nome":      req.PayeeName,
			"cpfCnpj":   req.PayeeDocument,
			"banco":     req.PayeeISPB,
			"agencia":   req.PayeeAccountAgency,
			"conta":     req.PayeeAccountNumber,
			"tipoConta": accountType(req.PayeeAccountType),
		}
	}
	body, err := p.client.Post(ctx, p.config.BaseURL+"/pix/v1/pix", payload, req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeTransferFailed, "create transfer", err)
	}
	var resp pixResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return &providers.TransferResponse{
		ProviderTxId: resp.TxId,
		E2EId:        resp.EndToEndId,
		Status:       mapStatus(resp.Status),
		ProcessedAt:  providers.TimePtr(time.Now()),
	}, nil
}

func (p *Provider) GetTransfer(ctx context.Context, req *providers.Lookup) (*providers.TransferResponse, error) {
	id, err := providers.LookupId(req, true)
	if err != nil {
		return nil, err
	}
	body, err := p.client.Get(ctx, fmt.Sprintf("%s/pix/v1/pix/%s", p.config.BaseURL, id), req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeGetFailed, "get transfer", err)
	}
	var resp pixResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return &providers.TransferResponse{
		ProviderTxId: resp.TxId,
		E2EId:        resp.EndToEndId,
		Status:       mapStatus(resp.Status),
	}, nil
}

func (p *Provider) CancelTransfer(_ context.Context, _ *providers.Lookup) error {
	return providers.NewProviderError(providers.CodeNotSupported, "banco do brasil does not cancel transfers")
}

type qrResponse struct {
	TxId         string `json:"txid"`
	QRCode       string `json:"qrcode"`
	ImagemQRCode string `json:"imagemQrcode"`
	Status       string `json:"status"`
}

func (p *Provider) CreateQRCodeStatic(ctx context.Context, req *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	return p.createQRCode(ctx, req)
}

// CreateQRCodeDynamic uses the same charge endpoint with an expiration
func (p *Provider) CreateQRCodeDynamic(ctx context.Context, req *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	return p.createQRCode(ctx, req)
}

func (p *Provider) createQRCode(ctx context.Context, req *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	payload := map[string]interface{}{
		"valor": map[string]interface{}{
			"original": providers.AmountString(req.Amount),
		},
		"chave":              req.PixKey,
		"solicitacaoPagador": req.Description,
	}
	if req.ExpiresIn > 0 {
		payload["calendario"] = map[string]interface{}{"expiracao": req.ExpiresIn}
	}
	body, err := p.client.Post(ctx, p.config.BaseURL+"/pix/v1/cobqrcode", payload, req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeQRCodeFailed, "create qr code", err)
	}
	var resp qrResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return &providers.QRCodeResponse{
		QRCodeId:    resp.TxId,
		QRCode:      resp.QRCode,
		QRCodeImage: resp.ImagemQRCode,
		Amount:      req.Amount,
		Status:      models.StatusPending,
	}, nil
}

func (p *Provider) GetQRCode(ctx context.Context, req *providers.Lookup) (*providers.QRCodeResponse, error) {
	body, err := p.client.Get(ctx, fmt.Sprintf("%s/pix/v1/cobqrcode/%s", p.config.BaseURL, req.Id), req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeGetFailed, "get qr code", err)
	}
	var resp qrResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return &providers.QRCodeResponse{
		QRCodeId:    resp.TxId,
		QRCode:      resp.QRCode,
		QRCodeImage: resp.ImagemQRCode,
		Status:      mapChargeStatus(resp.Status),
	}, nil
}

func (p *Provider) ValidatePixKey(_ context.Context, _ *providers.PixKeyRequest) (*providers.PixKeyInfo, error) {
	return nil, providers.NewProviderError(providers.CodeNotSupported, "banco do brasil does not expose key lookup")
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.Get(ctx, p.config.BaseURL+"/pix/v1/health", ""); err != nil {
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
	}
}

func mapStatus(status string) models.TransactionStatus {
	switch status {
	case "ATIVA", "CONCLUIDA":
		return models.StatusCompleted
	case "PENDENTE", "EM_PROCESSAMENTO":
		return models.StatusProcessing
	case "REMOVIDA_PELO_USUARIO_RECEBEDOR", "REMOVIDA_PELO_PSP":
		return models.StatusCancelled
	default:
		return models.StatusPending
	}
}

// mapChargeStatus differs from transfers: an ATIVA charge is still waiting for the payer
func mapChargeStatus(status string) models.TransactionStatus {
	if status == "ATIVA" {
		return models.StatusPending
	}
	return mapStatus(status)
}

func accountType(t string) string {
	if t == "savings" {
		return "POUPANCA"
	}
	return "CORRENTE"
}
