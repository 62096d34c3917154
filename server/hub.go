package server

import (
	"context"
	"encoding/json"
	"fmt"
	"pixgate/dashboard"
	"pixgate/internal"
	"pixgate/metrics/counters"
	"sync"
	"time"
)

const feedName = "dashboard"

// ViewSource builds dashboard views; implemented by dashboard.Builder
type ViewSource interface {
	Build(scope dashboard.Scope, now time.Time) (*dashboard.View, error)
}

type feedMessage struct {
	Type string          `json:"type"`
	View *dashboard.View `json:"view"`
}

// Hub pushes dashboard views to connected websocket clients.
// Transaction events mark scopes dirty; views are rebuilt at most once per interval.
type Hub struct {
	mutex    sync.Mutex
	clients  map[*WebSocket]struct{}
	dirty    map[string]bool
	source   ViewSource
	interval time.Duration
	logger   internal.LogHandler
	now      func() time.Time
}

func NewHub(source ViewSource, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Hub{
		clients:  make(map[*WebSocket]struct{}),
		dirty:    make(map[string]bool),
		source:   source,
		interval: interval,
		now:      time.Now,
	}
}

func (h *Hub) SetLogger(logger internal.LogHandler) {
	h.logger = logger
}

func (h *Hub) Join(ws *WebSocket) {
	h.mutex.Lock()
	h.clients[ws] = struct{}{}
	count := len(h.clients)
	h.mutex.Unlock()
	counters.ObserveConnections(feedName, count)

	data, err := h.render(ws.scope)
	if err != nil {
		h.logError("initial dashboard view", err)
		return
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[ws]; ok {
		h.push(ws, data)
	}
}

// Leave removes the client and closes its send queue; safe to call twice
func (h *Hub) Leave(ws *WebSocket) {
	h.mutex.Lock()
	_, ok := h.clients[ws]
	if ok {
		delete(h.clients, ws)
		close(ws.send)
	}
	count := len(h.clients)
	h.mutex.Unlock()
	if ok {
		counters.ObserveConnections(feedName, count)
	}
}

func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

func (h *Hub) OnTransactionEvent(event *internal.EventMessage) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.dirty[""] = true
	if event.MerchantId != "" {
		h.dirty[event.MerchantId] = true
	}
}

func (h *Hub) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.Flush()
		}
	}
}

// Flush rebuilds views for dirty scopes and pushes them to subscribed clients
func (h *Hub) Flush() {
	h.mutex.Lock()
	dirty := h.dirty
	h.dirty = make(map[string]bool)
	scopes := make(map[string]dashboard.Scope)
	for ws := range h.clients {
		if dirty[ws.scope.MerchantId] {
			scopes[ws.scope.MerchantId] = ws.scope
		}
	}
	h.mutex.Unlock()
	if len(scopes) == 0 {
		return
	}

	views := make(map[string][]byte, len(scopes))
	for key, scope := range scopes {
		data, err := h.render(scope)
		if err != nil {
			h.logError(fmt.Sprintf("dashboard view for scope %q", key), err)
			continue
		}
		views[key] = data
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for ws := range h.clients {
		if data, ok := views[ws.scope.MerchantId]; ok {
			h.push(ws, data)
		}
	}
}

func (h *Hub) render(scope dashboard.Scope) ([]byte, error) {
	view, err := h.source.Build(scope, h.now())
	if err != nil {
		return nil, err
	}
	return json.Marshal(&feedMessage{Type: "dashboard", View: view})
}

// push must be called with the mutex held; slow clients drop updates
func (h *Hub) push(ws *WebSocket, data []byte) {
	select {
	case ws.send <- data:
	default:
		if h.logger != nil {
			h.logger.Warn(fmt.Sprintf("dashboard feed of %s is full, update dropped", ws.id))
		}
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for ws := range h.clients {
		delete(h.clients, ws)
		close(ws.send)
	}
	counters.ObserveConnections(feedName, 0)
}

func (h *Hub) logError(text string, err error) {
	if h.logger != nil {
		h.logger.Error(text, err)
	}
}
