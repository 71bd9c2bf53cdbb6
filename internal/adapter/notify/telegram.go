// Package notify delivers alerts when a test exhausts its retry budget.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"

	"flakeguard/internal/shared"
)

// Notifier reports terminal test failures. Implementations must be safe to
// call from concurrent suite workers.
type Notifier interface {
	TestFailed(ctx context.Context, test string, attempts int, err error)
}

// Telegram sends failure alerts to a chat.
type Telegram struct {
	bot  *bot.Bot
	chat int64
	log  *slog.Logger
}

// NewTelegram builds the notifier. Delivery failures are logged but never
// fail the suite.
func NewTelegram(token string, chat int64, log *slog.Logger) (*Telegram, error) {
	if log == nil {
		log = slog.Default()
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, shared.Mark(shared.Wrap(err, "telegram bot"), shared.ErrNotify)
	}
	return &Telegram{bot: b, chat: chat, log: log}, nil
}

// TestFailed sends one alert message for the failed test.
func (t *Telegram) TestFailed(ctx context.Context, test string, attempts int, err error) {
	text := fmt.Sprintf("❌ %s failed after %d attempt(s): %v", test, attempts, err)
	if _, serr := t.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: t.chat, Text: text}); serr != nil {
		t.log.Warn("alert delivery failed",
			slog.String("test", test), slog.Any("error", serr))
	}
}

// Nop discards all alerts. Used when no notifier is configured.
type Nop struct{}

func (Nop) TestFailed(ctx context.Context, test string, attempts int, err error) {}
