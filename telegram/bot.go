package telegram

import (
	"fmt"
	"pixgate/dashboard"
	"pixgate/internal"
	"pixgate/models"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// StatusSource builds the platform overview sent on /status
type StatusSource interface {
	Build(scope dashboard.Scope, now time.Time) (*dashboard.View, error)
}

// TgBot implements EventHandler
type TgBot struct {
	api           *tgbotapi.BotAPI
	database      internal.SubscriptionStore
	status        StatusSource
	logger        internal.LogHandler
	mutex         sync.RWMutex
	subscriptions map[int]models.UserSubscription
	event         chan MessageContent
	send          chan MessageContent
}

type MessageContent struct {
	ChatID int64
	Text   string
}

func NewBot(apiKey string) (*TgBot, error) {
	tgBot := &TgBot{
		subscriptions: make(map[int]models.UserSubscription),
		event:         make(chan MessageContent, 100),
		send:          make(chan MessageContent, 100),
	}
	api, err := tgbotapi.NewBotAPI(apiKey)
	if err != nil {
		return nil, err
	}
	tgBot.api = api
	return tgBot, nil
}

// SetDatabase attach database service
func (b *TgBot) SetDatabase(database internal.SubscriptionStore) {
	b.database = database
}

func (b *TgBot) SetStatusSource(status StatusSource) {
	b.status = status
}

func (b *TgBot) SetLogger(logger internal.LogHandler) {
	b.logger = logger
}

func (b *TgBot) Start() {
	if b.database != nil {
		subscriptions, err := b.database.GetSubscriptions()
		if err != nil {
			b.logError("bot: getting subscriptions", err)
		} else {
			b.mutex.Lock()
			for _, subscription := range subscriptions {
				b.subscriptions[subscription.UserID] = subscription
			}
			b.mutex.Unlock()
		}
	}
	go b.sendPump()
	go b.eventPump()
	go b.updatesPump()
}

// Start listening for updates
func (b *TgBot) updatesPump() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		b.logError("bot: getting updates", err)
		return
	}
	for update := range updates {
		if update.Message == nil || !update.Message.IsCommand() {
			continue
		}
		chatId := update.Message.Chat.ID
		switch update.Message.Command() {
		case "start":
			subscription := models.UserSubscription{
				UserID:           update.Message.From.ID,
				User:             update.Message.From.UserName,
				SubscriptionType: "transactions",
			}
			b.mutex.Lock()
			b.subscriptions[subscription.UserID] = subscription
			b.mutex.Unlock()
			msg := fmt.Sprintf("Hello *%v*, you are now subscribed to PIX transaction updates", sanitize(subscription.User))
			if b.database != nil {
				if err := b.database.AddSubscription(&subscription); err != nil {
					b.logError("bot: adding subscription", err)
					msg = fmt.Sprintf("Error adding subscription:\n `%v`", sanitize(err.Error()))
				}
			}
			b.send <- MessageContent{ChatID: chatId, Text: msg}
		case "stop":
			b.mutex.Lock()
			delete(b.subscriptions, update.Message.From.ID)
			b.mutex.Unlock()
			if b.database != nil {
				err := b.database.DeleteSubscription(&models.UserSubscription{UserID: update.Message.From.ID})
				if err != nil {
					b.logError("bot: deleting subscription", err)
				}
			}
			b.send <- MessageContent{ChatID: chatId, Text: "Your subscription has been removed"}
		case "status":
			b.send <- MessageContent{ChatID: chatId, Text: b.composeStatusMessage()}
		}
	}
}

// eventPump sending events to all subscribers
func (b *TgBot) eventPump() {
	for event := range b.event {
		b.mutex.RLock()
		ids := make([]int64, 0, len(b.subscriptions))
		for _, subscription := range b.subscriptions {
			ids = append(ids, int64(subscription.UserID))
		}
		b.mutex.RUnlock()
		for _, id := range ids {
			b.sendMessage(id, event.Text)
		}
	}
}

// sendPump sending messages to users
func (b *TgBot) sendPump() {
	for event := range b.send {
		b.sendMessage(event.ChatID, event.Text)
	}
}

// sendMessage common routine to send a message via bot API
func (b *TgBot) sendMessage(id int64, text string) {
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "MarkdownV2"
	_, err := b.api.Send(msg)
	if err != nil {
		// maybe error was while parsing, so we can send a message about this error
		msg = tgbotapi.NewMessage(id, fmt.Sprintf("Error: %v", err))
		if _, err = b.api.Send(msg); err != nil {
			b.logError("bot: sending message", err)
		}
	}
}

// OnTransactionEvent notifies subscribers about settled and failed transactions
func (b *TgBot) OnTransactionEvent(event *internal.EventMessage) {
	msg := transactionMessage(event)
	if msg == "" {
		return
	}
	select {
	case b.event <- MessageContent{Text: msg}:
	default:
		b.logError("bot: event queue full", fmt.Errorf("dropped %s", event.TransactionId))
	}
}

func transactionMessage(event *internal.EventMessage) string {
	var title string
	switch event.Type {
	case models.EventTransactionCompleted:
		title = "completed"
	case models.EventTransactionFailed:
		title = "FAILED"
	default:
		return ""
	}
	msg := fmt.Sprintf("*%v*: `%v`\n", sanitize(event.MerchantId), title)
	msg += fmt.Sprintf("Transaction ID: %v\n", sanitize(event.TransactionId))
	msg += fmt.Sprintf("Amount: %v\n", sanitize(dashboard.FormatBRL(event.Amount)))
	msg += fmt.Sprintf("Provider: %v\n", sanitize(event.ProviderCode))
	if event.Info != "" {
		msg += fmt.Sprintf("Info: %v\n", sanitize(event.Info))
	}
	return msg
}

// compose status message
func (b *TgBot) composeStatusMessage() string {
	b.mutex.RLock()
	count := len(b.subscriptions)
	b.mutex.RUnlock()
	if b.status == nil {
		return fmt.Sprintf("Active subscriptions: %v", count)
	}
	view, err := b.status.Build(dashboard.Scope{}, time.Now())
	if err != nil {
		b.logError("bot: building status", err)
		return fmt.Sprintf("Error getting status:\n `%v`", sanitize(err.Error()))
	}
	return statusMessage(view, count)
}

func statusMessage(view *dashboard.View, subscriptions int) string {
	msg := "Status info, last 30 days:\n\n"
	for _, s := range view.Stats {
		msg += fmt.Sprintf("*%v*: `%v` %v\n", sanitize(s.Title), sanitize(s.Value), sanitize(s.Change))
	}
	msg += "\n"
	msg += sanitize(fmt.Sprintf("Active subscriptions: %v", subscriptions))
	return msg
}

func (b *TgBot) logError(text string, err error) {
	if b.logger != nil {
		b.logger.Error(text, err)
	}
}

func sanitize(input string) string {
	// reserved characters of MarkdownV2
	reservedChars := "\\`*_{}[]()#+-.!|=>~"

	var sb strings.Builder
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sb.WriteRune('\\')
		}
		sb.WriteRune(char)
	}
	return sb.String()
}
