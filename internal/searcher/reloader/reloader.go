// Package reloader keeps a searcher on the newest committed generation,
// driven by index-complete events and a polling fallback.
package reloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/rebuild"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/resilience"
)

var errBehind = errors.New("served generation is behind the announced one")

// Refresher swaps in the newest generation. *handler.Handler implements it.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

type Options struct {
	Logger *slog.Logger
	// Retry bounds how long an event waits for its generation to become
	// readable. Zero fields take resilience defaults.
	Retry resilience.RetryConfig
}

type Reloader struct {
	refresher  Refresher
	generation func() uint64
	retry      resilience.RetryConfig
	logger     *slog.Logger
}

func New(r Refresher, generation func() uint64, opts Options) *Reloader {
	retry := opts.Retry
	if retry.Logger == nil {
		retry.Logger = opts.Logger
	}
	return &Reloader{
		refresher:  r,
		generation: generation,
		retry:      retry,
		logger:     logger.OrDefault(opts.Logger, "reloader"),
	}
}

// HandleMessage is a kafka.MessageHandler for rebuild.Event payloads.
// Malformed messages are logged and acknowledged.
func (r *Reloader) HandleMessage(ctx context.Context, key, value []byte) error {
	event, err := kafka.DecodeJSON[rebuild.Event](value)
	if err != nil {
		r.logger.Error("failed to decode index-complete event", "key", string(key), "error", err)
		return nil
	}
	current := r.generation()
	if event.Generation <= current {
		r.logger.Debug("event already served", "event_generation", event.Generation, "generation", current)
		return nil
	}

	err = resilience.Retry(ctx, "reload", r.retry, func(ctx context.Context) error {
		if _, err := r.refresher.Refresh(ctx); err != nil {
			return err
		}
		if r.generation() < event.Generation {
			return errBehind
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reloading to generation %d: %w", event.Generation, err)
	}
	r.logger.Info("reloaded after index-complete event",
		"index", event.Index,
		"generation", r.generation(),
		"added", event.Added,
	)
	return nil
}

// Poll refreshes every interval until ctx ends.
func (r *Reloader) Poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := r.refresher.Refresh(ctx)
			if err != nil {
				r.logger.Warn("periodic reload failed", "error", err)
				continue
			}
			if changed {
				r.logger.Info("periodic reload picked up new generation", "generation", r.generation())
			}
		}
	}
}
