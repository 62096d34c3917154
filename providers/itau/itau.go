// Package itau adapts the Itaú SISPAG PIX API.
package itau

import (
	"context"
	"errors"
	"fmt"
	"pixgate/models"
	"pixgate/providers"
	"time"
)

const Code = "itau"

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
	return "Itaú Unibanco"
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
		"scope":         "sispag",
	}
	body, err := p.client.PostForm(ctx, p.config.AuthURL, form)
	if err != nil {
		return nil, providers.Wrap(providers.CodeAuthFailed, "authentication failed", err)
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
		Scope       string `json:"scope"`
	}
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return &providers.AuthToken{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresIn:   resp.ExpiresIn,
		ExpiresAt:   time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		Scope:       resp.Scope,
	}, nil
}

type paymentResponse struct {
	IdRequisicao  string  `json:"id_requisicao"`
	EndToEndId    string  `json:"end_to_end_id"`
	Status        string  `json:"status"`
	Valor         float64 `json:"valor"`
	DataPagamento string  `json:"data_pagamento"`
	Motivo        string  `json:"motivo"`
}

func (r *paymentResponse) transfer() *providers.TransferResponse {
	resp := &providers.TransferResponse{
		ProviderTxId: r.IdRequisicao,
		E2EId:        r.EndToEndId,
		Status:       mapStatus(r.Status),
		Amount:       int64(r.Valor*100 + 0.5),
	}
	if paid, err := time.Parse(time.RFC3339, r.DataPagamento); err == nil && resp.Status == models.StatusCompleted {
		resp.CompletedAt = &paid
	}
	if resp.Status == models.StatusFailed {
		resp.ErrorCode = r.Status
		resp.ErrorMessage = r.Motivo
	}
	return resp
}

func (p *Provider) CreateTransfer(ctx context.Context, req *providers.TransferRequest) (*providers.TransferResponse, error) {
	payload := map[string]interface{}{
		"id_requisicao": req.ExternalId,
		"valor":         providers.AmountFloat(req.Amount),
		"descricao":     req.Description,
	}
	if req.PayerPixKey != "" {
		payload["chave_pagador"] = req.PayerPixKey
	} else {
		payload["conta_pagador"] = map[string]interface{}{
			"agencia": req.PayerAccountAgency,
			"conta":   req.PayerAccountNumber,
			"tipo":    req.PayerAccountType,
		}
	}
	if req.PayeePixKey != "" {
		payload["chave_recebedor"] = req.PayeePixKey
		payload["tipo_chave"] = keyType(req.PayeePixKeyType)
	} else {
		payload["conta_recebedor"] = map[string]interface{}{
			"ispb":    req.PayeeISPB,
			"agencia": req.PayeeAccountAgency,
			"conta":   req.PayeeAccountNumber,
			"tipo":    req.PayeeAccountType,
		}
	}
	if req.PayeeDocument != "" {
		payload["cpf_cnpj_recebedor"] = req.PayeeDocument
	}
	body, err := p.client.Post(ctx, p.config.BaseURL+"/sispag/v1/pagamentos/pix", payload, req.AuthToken)
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
	id, err := providers.LookupId(req, true)
	if err != nil {
		return nil, err
	}
	body, err := p.client.Get(ctx, fmt.Sprintf("%s/sispag/v1/pagamentos/pix/%s", p.config.BaseURL, id), req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeGetFailed, "get transfer", err)
	}
	var resp paymentResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return resp.transfer(), nil
}

func (p *Provider) CancelTransfer(_ context.Context, _ *providers.Lookup) error {
	return providers.NewProviderError(providers.CodeNotSupported, "itau does not cancel transfers")
}

type qrResponse struct {
	IdQRCode    string  `json:"id_qrcode"`
	QRCode      string  `json:"qrcode"`
	QRCodeImage string  `json:"qrcode_imagem"`
	Expiracao   string  `json:"expiracao"`
	Status      string  `json:"status"`
	Valor       float64 `json:"valor"`
}

func (r *qrResponse) qrcode() *providers.QRCodeResponse {
	resp := &providers.QRCodeResponse{
		QRCodeId:    r.IdQRCode,
		QRCode:      r.QRCode,
		QRCodeImage: r.QRCodeImage,
		Amount:      int64(r.Valor*100 + 0.5),
		Status:      mapQRStatus(r.Status),
	}
	if expires, err := time.Parse(time.RFC3339, r.Expiracao); err == nil {
		resp.ExpiresAt = &expires
	}
	return resp
}

func (p *Provider) CreateQRCodeStatic(ctx context.Context, req *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	payload := map[string]interface{}{
		"chave_pix": req.PixKey,
		"valor":     providers.AmountFloat(req.Amount),
		"descricao": req.Description,
	}
	return p.postQRCode(ctx, "/sispag/v1/qrcodes/estatico", payload, req.AuthToken)
}

func (p *Provider) CreateQRCodeDynamic(ctx context.Context, req *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	payload := map[string]interface{}{
		"chave_pix":       req.PixKey,
		"valor":           providers.AmountFloat(req.Amount),
		"descricao":       req.Description,
		"expiracao":       req.ExpiresIn,
		"permite_alterar": req.AllowChange,
	}
	return p.postQRCode(ctx, "/sispag/v1/qrcodes/dinamico", payload, req.AuthToken)
}

func (p *Provider) postQRCode(ctx context.Context, path string, payload map[string]interface{}, token string) (*providers.QRCodeResponse, error) {
	body, err := p.client.Post(ctx, p.config.BaseURL+path, payload, token)
	if err != nil {
		return nil, providers.Wrap(providers.CodeQRCodeFailed, "create qr code", err)
	}
	var resp qrResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return resp.qrcode(), nil
}

func (p *Provider) GetQRCode(ctx context.Context, req *providers.Lookup) (*providers.QRCodeResponse, error) {
	body, err := p.client.Get(ctx, fmt.Sprintf("%s/sispag/v1/qrcodes/%s", p.config.BaseURL, req.Id), req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeGetFailed, "get qr code", err)
	}
	var resp qrResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return resp.qrcode(), nil
}

func (p *Provider) ValidatePixKey(_ context.Context, _ *providers.PixKeyRequest) (*providers.PixKeyInfo, error) {
	return nil, providers.NewProviderError(providers.CodeNotSupported, "itau does not expose key lookup")
}

// HealthCheck treats any answer below 500 from the base URL as alive
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
		providers.MethodQRCodeStatic,
		providers.MethodQRCodeDynamic,
		providers.MethodGetTransfer,
		providers.MethodGetQRCode,
	}
}

func mapStatus(status string) models.TransactionStatus {
	switch status {
	case "PROCESSANDO", "AGENDADO":
		return models.StatusProcessing
	case "LIQUIDADO", "CONCLUIDO":
		return models.StatusCompleted
	case "REJEITADO", "ERRO":
		return models.StatusFailed
	case "CANCELADO":
		return models.StatusCancelled
	default:
		return models.StatusPending
	}
}

func mapQRStatus(status string) models.TransactionStatus {
	switch status {
	case "PAGO", "CONCLUIDO":
		return models.StatusCompleted
	case "EXPIRADO", "CANCELADO":
		return models.StatusCancelled
	default:
		return models.StatusPending
	}
}

func keyType(t models.PixKeyType) string {
	switch t {
	case models.PixKeyTypeCNPJ:
		return "CNPJ"
	case models.PixKeyTypeEmail:
		return "EMAIL"
	case models.PixKeyTypePhone:
		return "TELEFONE"
	case models.PixKeyTypeRandom:
		return "CHAVE_ALEATORIA"
	case models.PixKeyTypeAccount:
		return "AGENCIA_CONTA"
	default:
		return "CPF"
	}
}
