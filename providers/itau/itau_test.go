package itau

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"pixgate/models"
	"pixgate/providers"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sispag/v1/pagamentos/pix", r.URL.Path)
		var payload map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "EMAIL", payload["tipo_chave"])
		assert.Equal(t, "52998224725", payload["cpf_cnpj_recebedor"])
		_, _ = w.Write([]byte(`{"id_requisicao":"it-1","end_to_end_id":"E60701190","status":"LIQUIDADO","valor":10.5,"data_pagamento":"2024-01-20T10:30:00Z"}`))
	}))
	defer server.Close()

	p := New()
	require.NoError(t, p.Initialize(providers.Config{BaseURL: server.URL}))
	resp, err := p.CreateTransfer(context.Background(), &providers.TransferRequest{
		ExternalId:      "order-1",
		Amount:          1050,
		PayeePixKey:     "financeiro@loja.com.br",
		PayeePixKeyType: models.PixKeyTypeEmail,
		PayeeDocument:   "52998224725",
		AuthToken:       "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, resp.Status)
	assert.Equal(t, int64(1050), resp.Amount)
	require.NotNil(t, resp.CompletedAt)
}

func TestHealthCheckAcceptsClientErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	p := New()
	require.NoError(t, p.Initialize(providers.Config{BaseURL: server.URL}))
	assert.NoError(t, p.HealthCheck(context.Background()))

	status.Store(http.StatusInternalServerError)
	assert.Error(t, p.HealthCheck(context.Background()))
}

func TestMappings(t *testing.T) {
	assert.Equal(t, models.StatusProcessing, mapStatus("AGENDADO"))
	assert.Equal(t, models.StatusFailed, mapStatus("ERRO"))
	assert.Equal(t, "TELEFONE", keyType(models.PixKeyTypePhone))
	assert.Equal(t, "CPF", keyType(""))
}
