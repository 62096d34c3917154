package inter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"pixgate/models"
	"pixgate/providers"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "client", r.FormValue("client_id"))
		assert.Equal(t, "secret", r.FormValue("client_secret"))
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/banking/v2/pix", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, 12.5, payload["valor"])
		_, _ = w.Write([]byte(`{"codigoSolicitacao":"inter-9","endToEndId":"E0041696820240120","status":"REALIZADO"}`))
	})
	mux.HandleFunc("/banking/v2/pix/inter-9", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"codigoSolicitacao":"inter-9","status":"REJEITADO","motivo":"conta encerrada"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := New()
	require.NoError(t, p.Initialize(providers.Config{BaseURL: server.URL, AuthURL: server.URL + "/oauth/v2/token"}))
	ctx := context.Background()

	token, err := p.Authenticate(ctx, providers.Credentials{ClientId: "client", ClientSecret: "secret"})
	require.NoError(t, err)

	resp, err := p.CreateTransfer(ctx, &providers.TransferRequest{Amount: 1250, PayeePixKey: "+5511987654321", AuthToken: token.AccessToken})
	require.NoError(t, err)
	assert.Equal(t, "inter-9", resp.ProviderTxId)
	assert.Equal(t, models.StatusCompleted, resp.Status)

	got, err := p.GetTransfer(ctx, &providers.Lookup{Id: "inter-9", AuthToken: token.AccessToken})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "conta encerrada", got.ErrorMessage)
}

func TestServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	p := New()
	require.NoError(t, p.Initialize(providers.Config{BaseURL: server.URL}))
	_, err := p.CreateTransfer(context.Background(), &providers.TransferRequest{Amount: 100})
	require.Error(t, err)
	assert.True(t, providers.IsRetryable(err))
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, models.StatusProcessing, mapStatus("EM_PROCESSAMENTO"))
	assert.Equal(t, models.StatusCancelled, mapStatus("DEVOLVIDO"))
	assert.Equal(t, models.StatusPending, mapStatus(""))
	assert.Equal(t, models.StatusCompleted, mapChargeStatus("CONCLUIDA"))
}
