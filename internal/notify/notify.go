// Package notify delivers chat messages with a bounded retry.
package notify

import (
	"context"
	"errors"
)

var (
	// ErrTransient marks a sink failure worth one more attempt (connection
	// reset, timeout, rate limit).
	ErrTransient = errors.New("transient delivery failure")
	// ErrDeliveryFailed is returned once the dispatcher gives up on a message.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Format selects how the sink renders a message.
type Format int

const (
	FormatMarkdown Format = iota
	FormatHTML
)

// Message is a chat message body.
type Message struct {
	Text   string
	Format Format
}

// Markdown returns a Markdown message.
func Markdown(text string) Message {
	return Message{Text: text, Format: FormatMarkdown}
}

// HTML returns an HTML message.
func HTML(text string) Message {
	return Message{Text: text, Format: FormatHTML}
}

// Sink is a message transport keyed by recipient id.
type Sink interface {
	Deliver(ctx context.Context, recipientID string, msg Message) error
}
