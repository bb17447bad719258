package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSink sends messages through the Telegram Bot API.
type TelegramSink struct {
	api *tgbotapi.BotAPI
}

// NewTelegramAPI authorizes token against endpoint (tgbotapi.APIEndpoint in
// production). Every HTTP request is bounded by timeout.
func NewTelegramAPI(token, endpoint string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	client := &http.Client{Timeout: timeout}
	return tgbotapi.NewBotAPIWithClient(token, endpoint, client)
}

func NewTelegramSink(api *tgbotapi.BotAPI) *TelegramSink {
	return &TelegramSink{api: api}
}

// Deliver sends msg to the chat with id recipientID. Network errors, rate
// limits and server errors are reported as ErrTransient.
func (s *TelegramSink) Deliver(ctx context.Context, recipientID string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram recipient %q: %w", recipientID, err)
	}

	config := tgbotapi.NewMessage(chatID, msg.Text)
	switch msg.Format {
	case FormatHTML:
		config.ParseMode = tgbotapi.ModeHTML
	default:
		config.ParseMode = tgbotapi.ModeMarkdown
	}

	// the bot API ignores contexts; the caller is released at ctx's
	// deadline and the request is bounded by the HTTP client timeout.
	done := make(chan error, 1)
	go func() {
		_, err := s.api.Send(config)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTransient, ctx.Err())
	case err := <-done:
		if err != nil {
			return classifyTelegramError(err)
		}
		return nil
	}
}

func classifyTelegramError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
			return fmt.Errorf("%w: telegram %d: %s", ErrTransient, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("telegram %d: %s", apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
