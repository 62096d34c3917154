package telegram

import (
	"pixgate/dashboard"
	"pixgate/internal"
	"pixgate/models"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, `R$ 1\.234,56`, sanitize("R$ 1.234,56"))
	assert.Equal(t, `\+12\.5%`, sanitize("+12.5%"))
	assert.Equal(t, `a\_b\-c`, sanitize("a_b-c"))
}

func TestTransactionMessage(t *testing.T) {
	event := &internal.EventMessage{
		Type:          models.EventTransactionFailed,
		MerchantId:    "m1",
		TransactionId: "t-1",
		ProviderCode:  "bb",
		Amount:        15000,
		Info:          "payee rejected",
	}
	msg := transactionMessage(event)
	assert.Contains(t, msg, "`FAILED`")
	assert.Contains(t, msg, `R$ 150,00`)
	assert.Contains(t, msg, `t\-1`)
	assert.Contains(t, msg, "Info: payee rejected")

	event.Type = models.EventTransactionUpdated
	assert.Empty(t, transactionMessage(event))
}

func TestStatusMessage(t *testing.T) {
	view := &dashboard.View{Stats: []dashboard.Stat{{Title: "Transações", Value: "1.234", Change: "+8.2%"}}}
	msg := statusMessage(view, 2)
	assert.Contains(t, msg, "*Transações*: `1\\.234` \\+8\\.2%")
	assert.Contains(t, msg, "Active subscriptions: 2")
}
