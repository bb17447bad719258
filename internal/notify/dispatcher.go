package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Dispatcher wraps a Sink: a transient failure is retried exactly once,
// immediately. Nothing is queued.
type Dispatcher struct {
	sink   Sink
	logger *zap.Logger
}

func NewDispatcher(sink Sink, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{sink: sink, logger: logger}
}

// Send delivers msg to recipientID. Failures are returned wrapping
// ErrDeliveryFailed.
func (d *Dispatcher) Send(ctx context.Context, msg Message, recipientID string) error {
	if d.sink == nil {
		return fmt.Errorf("%w: sink is nil", ErrDeliveryFailed)
	}

	attempt := 0
	err := withRetry(ctx, 1, 0, isTransient, func(ctx context.Context) error {
		attempt++
		err := d.sink.Deliver(ctx, recipientID, msg)
		if err != nil && attempt == 1 && isTransient(err) {
			d.logger.Warn("message delivery failed, trying one more time",
				zap.String("recipient", recipientID),
				zap.Error(err),
			)
		}
		return err
	})
	if err != nil {
		d.logger.Warn("giving up on message",
			zap.String("recipient", recipientID),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
