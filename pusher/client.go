package pusher

import (
	"fmt"
	"pixgate/internal"
	"pixgate/internal/config"
	"pixgate/utility"
	"sync"
	"time"

	"github.com/pusher/pusher-http-go/v5"
)

const (
	AdminChannel   = "pix-admin"
	merchantPrefix = "merchant-"
	queueSize      = 100
)

// Trigger is the part of the pusher client used to publish events
type Trigger interface {
	TriggerMulti(channels []string, eventName string, data interface{}) error
}

// Notice is the event body sent to browsers; the full transaction stays server side
type Notice struct {
	TransactionId string    `json:"transaction_id"`
	MerchantId    string    `json:"merchant_id"`
	Provider      string    `json:"provider"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"`
	Time          time.Time `json:"time"`
	Info          string    `json:"info,omitempty"`
}

type message struct {
	channels []string
	event    string
	notice   *Notice
}

// EventPusher relays transaction events to the merchant channel and the admin channel
type EventPusher struct {
	client Trigger
	queue  chan message
	done   chan struct{}
	logger internal.LogHandler
	mutex  sync.RWMutex
	closed bool
}

func NewPusher(conf *config.Config) (*EventPusher, error) {
	if !conf.Pusher.Enabled {
		return nil, nil
	}
	if conf.Pusher.AppID == "" {
		return nil, utility.Err("missed AppID parameter in Pusher configuration")
	}
	if conf.Pusher.Key == "" {
		return nil, utility.Err("missed Key parameter in Pusher configuration")
	}
	if conf.Pusher.Secret == "" {
		return nil, utility.Err("missed Secret parameter in Pusher configuration")
	}
	client := &pusher.Client{
		AppID:   conf.Pusher.AppID,
		Key:     conf.Pusher.Key,
		Secret:  conf.Pusher.Secret,
		Cluster: conf.Pusher.Cluster,
		Secure:  true,
	}
	return NewEventPusher(client), nil
}

func NewEventPusher(client Trigger) *EventPusher {
	return &EventPusher{
		client: client,
		queue:  make(chan message, queueSize),
		done:   make(chan struct{}),
	}
}

func (p *EventPusher) SetLogger(logger internal.LogHandler) {
	p.logger = logger
}

func (p *EventPusher) Start() {
	go p.run()
}

// Stop delivers queued events and returns when the sender has finished
func (p *EventPusher) Stop() {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mutex.Unlock()
	<-p.done
}

func MerchantChannel(merchantId string) string {
	return merchantPrefix + merchantId
}

func (p *EventPusher) OnTransactionEvent(event *internal.EventMessage) {
	channels := []string{AdminChannel}
	if event.MerchantId != "" {
		channels = append(channels, MerchantChannel(event.MerchantId))
	}
	msg := message{
		channels: channels,
		event:    event.Type,
		notice: &Notice{
			TransactionId: event.TransactionId,
			MerchantId:    event.MerchantId,
			Provider:      event.ProviderCode,
			Status:        event.Status,
			Amount:        event.Amount,
			Time:          event.Time,
			Info:          event.Info,
		},
	}
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- msg:
	default:
		p.warn(fmt.Sprintf("pusher queue is full, %s of %s dropped", event.Type, event.TransactionId))
	}
}

func (p *EventPusher) run() {
	defer close(p.done)
	for msg := range p.queue {
		if err := p.client.TriggerMulti(msg.channels, msg.event, msg.notice); err != nil {
			p.warn(fmt.Sprintf("pusher: %s of %s not sent: %s", msg.event, msg.notice.TransactionId, err))
		}
	}
}

func (p *EventPusher) warn(text string) {
	if p.logger != nil {
		p.logger.Warn(text)
	}
}
