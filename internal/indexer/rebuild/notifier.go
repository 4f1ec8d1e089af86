package rebuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/resilience"
)

// Publisher is the part of *kafka.Producer a KafkaNotifier uses.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// EventType tags index-complete messages on the wire.
const EventType = "index.complete"

// KafkaNotifier publishes Events keyed by index location, so every event of
// one index lands on the same partition in commit order.
type KafkaNotifier struct {
	publisher Publisher
	retry     resilience.RetryConfig
	logger    *slog.Logger
}

func NewKafkaNotifier(p Publisher, l *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		publisher: p,
		retry: resilience.RetryConfig{
			MaxAttempts:    4,
			InitialDelay:   200 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			JitterFraction: 0.2,
			Retryable: func(err error) bool {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, apperrors.ErrConfig)
			},
			Logger: l,
		},
		logger: logger.OrDefault(l, "index-notifier"),
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, e Event) error {
	err := resilience.Retry(ctx, "publish index-complete", n.retry, func(ctx context.Context) error {
		return n.publisher.Publish(ctx, kafka.Event{Key: e.Index, Type: EventType, Value: e, At: e.CompletedAt})
	})
	if err != nil {
		return fmt.Errorf("notifying generation %d: %w", e.Generation, err)
	}
	n.logger.Info("index-complete event published", "index", e.Index, "generation", e.Generation)
	return nil
}
