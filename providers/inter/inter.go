// Package inter adapts the Banco Inter banking API.
package inter

import (
	"context"
	"fmt"
	"pixgate/models"
	"pixgate/providers"
	"time"
)

const Code = "inter"

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
	return "Banco Inter"
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
		"client_id":     credentials.ClientId,
		"client_secret": credentials.ClientSecret,
		"grant_type":    "client_credentials",
		"scope":         "pagamento-pix.write pagamento-pix.read cob.write cob.read",
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
	CodigoSolicitacao string `json:"codigoSolicitacao"`
	EndToEndId        string `json:"endToEndId"`
	Status            string `json:"status"`
	Motivo            string `json:"motivo"`
}

func (r *paymentResponse) transfer() *providers.TransferResponse {
	resp := &providers.TransferResponse{
		ProviderTxId: r.CodigoSolicitacao,
		E2EId:        r.EndToEndId,
		Status:       mapStatus(r.Status),
	}
	if resp.Status == models.StatusFailed {
		resp.ErrorCode = r.Status
		resp.ErrorMessage = r.Motivo
	}
	return resp
}

func (p *Provider) CreateTransfer(ctx context.Context, req *providers.TransferRequest) (*providers.TransferResponse, error) {
	destination := map[string]interface{}{
		"nome":    req.PayeeName,
		"cpfCnpj": req.PayeeDocument,
	}
	if req.PayeePixKey != "" {
		destination["tipo"] = "CHAVE"
		destination["chave"] = req.PayeePixKey
	} else {
		destination["tipo"] = "DADOS_BANCARIOS"
		destination["contaCorrente"] = req.PayeeAccountNumber
		destination["agencia"] = req.PayeeAccountAgency
		destination["instituicaoFinanceira"] = map[string]string{"ispb": req.PayeeISPB}
	}
	payload := map[string]interface{}{
		"valor":        providers.AmountFloat(req.Amount),
		"descricao":    req.Description,
		"destinatario": destination,
	}
	body, err := p.client.Post(ctx, p.config.BaseURL+"/banking/v2/pix", payload, req.AuthToken)
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
	body, err := p.client.Get(ctx, fmt.Sprintf("%s/banking/v2/pix/%s", p.config.BaseURL, id), req.AuthToken)
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
	return providers.NewProviderError(providers.CodeNotSupported, "inter does not cancel transfers")
}

type qrResponse struct {
	TxId          string `json:"txid"`
	PixCopiaECola string `json:"pixCopiaECola"`
	Status        string `json:"status"`
}

func (p *Provider) CreateQRCodeStatic(ctx context.Context, req *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	payload := map[string]interface{}{
		"valor":              providers.AmountFloat(req.Amount),
		"chave":              req.PixKey,
		"solicitacaoPagador": req.Description,
	}
	return p.postQRCode(ctx, "/banking/v2/pix/qrcode-estatico", payload, req)
}

func (p *Provider) CreateQRCodeDynamic(ctx context.Context, req *providers.QRCodeRequest) (*providers.QRCodeResponse, error) {
	payload := map[string]interface{}{
		"valor": map[string]interface{}{
			"original":            providers.AmountString(req.Amount),
			"modalidadeAlteracao": boolInt(req.AllowChange),
		},
		"chave":              req.PixKey,
		"solicitacaoPagador": req.Description,
	}
	if req.ExpiresIn > 0 {
		payload["calendario"] = map[string]interface{}{"expiracao": req.ExpiresIn}
	}
	return p.postQRCode(ctx, "/banking/v2/pix/qrcode-dinamico", payload, req)
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
		QRCodeId: resp.TxId,
		QRCode:   resp.PixCopiaECola,
		Amount:   req.Amount,
		Status:   models.StatusPending,
	}, nil
}

func (p *Provider) GetQRCode(ctx context.Context, req *providers.Lookup) (*providers.QRCodeResponse, error) {
	body, err := p.client.Get(ctx, fmt.Sprintf("%s/banking/v2/pix/qrcode/%s", p.config.BaseURL, req.Id), req.AuthToken)
	if err != nil {
		return nil, providers.Wrap(providers.CodeGetFailed, "get qr code", err)
	}
	var resp qrResponse
	if err = providers.Decode(body, &resp); err != nil {
		return nil, err
	}
	return &providers.QRCodeResponse{
		QRCodeId: resp.TxId,
		QRCode:   resp.PixCopiaECola,
		Status:   mapChargeStatus(resp.Status),
	}, nil
}

func (p *Provider) ValidatePixKey(_ context.Context, _ *providers.PixKeyRequest) (*providers.PixKeyInfo, error) {
	return nil, providers.NewProviderError(providers.CodeNotSupported, "inter does not expose key lookup")
}

// HealthCheck is a no-op, inter publishes no health endpoint
func (p *Provider) HealthCheck(_ context.Context) error {
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
	case "REALIZADO", "CONCLUIDO":
		return models.StatusCompleted
	case "EM_PROCESSAMENTO", "PENDENTE":
		return models.StatusProcessing
	case "CANCELADO", "DEVOLVIDO":
		return models.StatusCancelled
	case "ERRO", "REJEITADO":
		return models.StatusFailed
	default:
		return models.StatusPending
	}
}

func mapChargeStatus(status string) models.TransactionStatus {
	switch status {
	case "CONCLUIDA":
		return models.StatusCompleted
	case "REMOVIDA_PELO_USUARIO_RECEBEDOR", "REMOVIDA_PELO_PSP":
		return models.StatusCancelled
	default:
		return models.StatusPending
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
