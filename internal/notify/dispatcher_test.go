package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedSink struct {
	mu      sync.Mutex
	results []error
	calls   []string
}

func (s *scriptedSink) Deliver(_ context.Context, recipientID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, recipientID+":"+msg.Text)
	if len(s.results) == 0 {
		return nil
	}
	err := s.results[0]
	s.results = s.results[1:]
	return err
}

func transient(msg string) error {
	return errors.Join(ErrTransient, errors.New(msg))
}

func TestDispatcherDeliversFirstTry(t *testing.T) {
	sink := &scriptedSink{}
	d := NewDispatcher(sink, zap.NewNop())

	err := d.Send(context.Background(), Markdown("hello"), "100")

	require.NoError(t, err)
	assert.Equal(t, []string{"100:hello"}, sink.calls)
}

func TestDispatcherRetriesTransientOnce(t *testing.T) {
	sink := &scriptedSink{results: []error{transient("connection reset")}}
	d := NewDispatcher(sink, zap.NewNop())

	err := d.Send(context.Background(), Markdown("hello"), "100")

	require.NoError(t, err)
	assert.Len(t, sink.calls, 2)
}

func TestDispatcherGivesUpAfterSecondFailure(t *testing.T) {
	sink := &scriptedSink{results: []error{
		transient("connection reset"),
		transient("connection reset"),
		nil,
	}}
	d := NewDispatcher(sink, zap.NewNop())

	err := d.Send(context.Background(), Markdown("hello"), "100")

	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Len(t, sink.calls, 2, "exactly one retry")
}

func TestDispatcherDoesNotRetryPermanentFailure(t *testing.T) {
	sink := &scriptedSink{results: []error{errors.New("chat not found")}}
	d := NewDispatcher(sink, zap.NewNop())

	err := d.Send(context.Background(), Markdown("hello"), "100")

	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Len(t, sink.calls, 1)
}

func TestDispatcherNilSink(t *testing.T) {
	d := NewDispatcher(nil, nil)
	require.ErrorIs(t, d.Send(context.Background(), Markdown("hello"), "100"), ErrDeliveryFailed)
}

func TestClassifyTelegramError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "network", err: errors.New("dial tcp: connection refused"), transient: true},
		{name: "rate limited", err: &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}, transient: true},
		{name: "server error", err: &tgbotapi.Error{Code: 502, Message: "Bad Gateway"}, transient: true},
		{name: "blocked", err: &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}, transient: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyTelegramError(tc.err)
			assert.Equal(t, tc.transient, errors.Is(got, ErrTransient))
		})
	}
}
