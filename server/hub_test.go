package server

import (
	"encoding/json"
	"pixgate/dashboard"
	"pixgate/internal"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type views struct {
	mutex  sync.Mutex
	builds []string
}

func (v *views) Build(scope dashboard.Scope, now time.Time) (*dashboard.View, error) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.builds = append(v.builds, scope.MerchantId)
	return &dashboard.View{GeneratedAt: now}, nil
}

func client(merchantId string) *WebSocket {
	return &WebSocket{id: "u-" + merchantId, scope: dashboard.Scope{MerchantId: merchantId}, send: make(chan []byte, 2)}
}

func TestHubJoinSendsInitialView(t *testing.T) {
	hub := NewHub(&views{}, time.Second)
	ws := client("m1")
	hub.Join(ws)
	assert.Equal(t, 1, hub.Count())

	data := <-ws.send
	var msg feedMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "dashboard", msg.Type)
	assert.NotNil(t, msg.View)

	hub.Leave(ws)
	hub.Leave(ws)
	assert.Equal(t, 0, hub.Count())
	_, open := <-ws.send
	assert.False(t, open)
}

func TestHubFlushOnlyDirtyScopes(t *testing.T) {
	source := &views{}
	hub := NewHub(source, time.Second)
	m1, m2, admin := client("m1"), client("m2"), client("")
	for _, ws := range []*WebSocket{m1, m2, admin} {
		hub.Join(ws)
		<-ws.send
	}

	hub.Flush()
	assert.Len(t, m1.send, 0)

	hub.OnTransactionEvent(&internal.EventMessage{MerchantId: "m1"})
	hub.OnTransactionEvent(&internal.EventMessage{MerchantId: "m1"})
	hub.Flush()
	assert.Len(t, m1.send, 1)
	assert.Len(t, m2.send, 0)
	assert.Len(t, admin.send, 1)

	source.mutex.Lock()
	defer source.mutex.Unlock()
	// three initial views plus one rebuild per dirty scope
	assert.Len(t, source.builds, 5)
}

func TestHubDropsUpdatesForSlowClients(t *testing.T) {
	hub := NewHub(&views{}, time.Second)
	ws := client("m1")
	hub.Join(ws)
	for i := 0; i < 3; i++ {
		hub.OnTransactionEvent(&internal.EventMessage{MerchantId: "m1"})
		hub.Flush()
	}
	assert.Len(t, ws.send, cap(ws.send))
	hub.closeAll()
	assert.Equal(t, 0, hub.Count())
}
