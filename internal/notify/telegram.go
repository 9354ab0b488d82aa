// Package notify pushes workflow transitions to the operator over
// Telegram. Notification is strictly observational: a send failure is
// logged and never affects the session it reports on.
package notify

import (
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autosocioly/internal/bus"
)

const (
	telegramMaxMsgLen  = 4000
	telegramMaxRetries = 3
)

// Notifier sends operator notifications for session events.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

type Config struct {
	Token  string
	ChatID int64
	Logger *slog.Logger
}

func New(cfg Config) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger.Info("telegram notifier connected", "username", bot.Self.UserName)
	return &Notifier{bot: bot, chatID: cfg.ChatID, logger: cfg.Logger}, nil
}

// SubscribeTo registers the notifier on the workflow event bus.
func (n *Notifier) SubscribeTo(b *bus.Bus) {
	b.Subscribe(bus.EventSessionAwaiting, func(e bus.Event) {
		n.send(fmt.Sprintf("📝 Session %s drafted and awaiting confirmation (%d platforms).",
			shortID(e), platformCount(e)))
	})
	b.Subscribe(bus.EventSessionPosted, func(e bus.Event) {
		n.send(fmt.Sprintf("✅ Session %s posted: %v succeeded, %v failed.",
			shortID(e), e.Payload["succeeded"], e.Payload["failed"]))
	})
	b.Subscribe(bus.EventSessionFailed, func(e bus.Event) {
		n.send(fmt.Sprintf("❌ Session %s failed on every platform.", shortID(e)))
	})
	b.Subscribe(bus.EventSessionCancelled, func(e bus.Event) {
		n.send(fmt.Sprintf("🚫 Session %s cancelled by operator.", shortID(e)))
	})
}

// send delivers one message, chunked to Telegram's size limit, with a
// small bounded retry.
func (n *Notifier) send(text string) {
	for _, chunk := range chunk(text, telegramMaxMsgLen) {
		n.sendChunk(chunk)
	}
}

func (n *Notifier) sendChunk(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	for attempt := 1; attempt <= telegramMaxRetries; attempt++ {
		if _, err := n.bot.Send(msg); err == nil {
			return
		} else if attempt == telegramMaxRetries {
			n.logger.Error("telegram notification dropped", "err", err, "attempts", attempt)
			return
		}
		time.Sleep(time.Duration(attempt) * time.Second)
	}
}

func chunk(s string, size int) []string {
	if len(s) <= size {
		return []string{s}
	}
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func shortID(e bus.Event) string {
	id, _ := e.Payload["session_id"].(string)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func platformCount(e bus.Event) int {
	if platforms, ok := e.Payload["platforms"].([]string); ok {
		return len(platforms)
	}
	return 0
}
