// Package bot polls Telegram for chat commands and answers them.
package bot

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"cdpwatch/internal/notify"
)

// PollTimeout is how long a getUpdates long poll waits on the server. The
// polling HTTP client needs a timeout above it.
const PollTimeout = 30 * time.Second

// UpdateSource is the long-polling side of the Telegram API.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Handler turns one command into a reply.
type Handler interface {
	Handle(ctx context.Context, watcherID, name string, args []string) notify.Message
}

// Replier sends a reply to a chat.
type Replier interface {
	Send(ctx context.Context, msg notify.Message, recipientID string) error
}

// Bot dispatches every inbound command to its own goroutine.
type Bot struct {
	source  UpdateSource
	handler Handler
	replier Replier
	logger  *zap.Logger
}

func New(source UpdateSource, handler Handler, replier Replier, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{source: source, handler: handler, replier: replier, logger: logger}
}

// Run polls until ctx is cancelled, then waits for in-flight commands.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(PollTimeout / time.Second)
	updates := b.source.GetUpdatesChan(u)
	b.logger.Info("listening for commands", zap.Strings("commands", []string{"watch", "unwatch", "status", "help"}))

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.source.StopReceivingUpdates()
			b.logger.Info("command polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				b.logger.Info("update channel closed")
				return nil
			}
			msg := update.Message
			if msg == nil || !msg.IsCommand() || msg.From == nil || msg.Chat == nil {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.handle(context.WithoutCancel(ctx), msg)
			}()
		}
	}
}

func (b *Bot) handle(ctx context.Context, msg *tgbotapi.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("command handler panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	watcherID := strconv.FormatInt(msg.From.ID, 10)
	reply := b.handler.Handle(ctx, watcherID, msg.Command(), strings.Fields(msg.CommandArguments()))

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if err := b.replier.Send(ctx, reply, chatID); err != nil {
		b.logger.Warn("reply failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}
