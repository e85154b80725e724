package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
	"github.com/atvirokodosprendimai/activitylog/internal/core/ports"
)

const (
	DispatchResultSuccess = "success"
	DispatchResultFailure = "failure"
	DispatchResultDead    = "dead"
)

// OutboxDispatcher moves committed activity envelopes from the outbox to
// an EventPublisher with bounded retries.
type OutboxDispatcher struct {
	repo      ports.OutboxRepository
	publisher ports.EventPublisher
	interval  time.Duration
	batchSize int
	maxRetry  int
	log       logrus.FieldLogger
	metrics   ports.OutboxMetrics

	dispatchSuccessTotal atomic.Int64
	dispatchFailureTotal atomic.Int64
	dispatchDeadTotal    atomic.Int64
}

// OutboxDispatcherMetrics is a per-process summary of dispatch results.
type OutboxDispatcherMetrics struct {
	DispatchSuccessTotal int64
	DispatchFailureTotal int64
	DispatchDeadTotal    int64
}

type OutboxDispatcherOption func(*OutboxDispatcher)

func WithDispatcherLogger(log logrus.FieldLogger) OutboxDispatcherOption {
	return func(d *OutboxDispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

func WithDispatcherMetrics(m ports.OutboxMetrics) OutboxDispatcherOption {
	return func(d *OutboxDispatcher) { d.metrics = m }
}

func WithMaxRetry(n int) OutboxDispatcherOption {
	return func(d *OutboxDispatcher) {
		if n > 0 {
			d.maxRetry = n
		}
	}
}

func NewOutboxDispatcher(repo ports.OutboxRepository, publisher ports.EventPublisher, interval time.Duration, batchSize int, opts ...OutboxDispatcherOption) *OutboxDispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	d := &OutboxDispatcher{
		repo:      repo,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		maxRetry:  5,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run dispatches batches every interval until ctx is done.
func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.WithError(err).Error("outbox dispatch batch failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce handles one batch of due events and reports how many it
// fetched. Publish failures are recorded on the rows, not returned.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	events, err := d.repo.FetchPending(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return len(events), err
		}
		entry := d.log.WithFields(logrus.Fields{"outbox_id": event.ID, "event_id": event.EventID, "topic": event.Topic})

		var envelope domain.EventEnvelope
		if err := json.Unmarshal(event.PayloadJSON, &envelope); err != nil {
			if markErr := d.markFailure(ctx, event, fmt.Sprintf("decode payload: %v", err)); markErr != nil {
				return len(events), markErr
			}
			entry.WithError(err).Warn("outbox payload undecodable")
			continue
		}

		if err := d.publisher.Publish(ctx, event.Topic, envelope); err != nil {
			if markErr := d.markFailure(ctx, event, err.Error()); markErr != nil {
				return len(events), markErr
			}
			entry.WithError(err).Warn("outbox publish failed")
			continue
		}

		if err := d.repo.MarkDispatched(ctx, event.ID); err != nil {
			return len(events), err
		}
		d.dispatchSuccessTotal.Add(1)
		d.observe(DispatchResultSuccess)
		entry.Debug("outbox event dispatched")
	}

	return len(events), nil
}

func (d *OutboxDispatcher) markFailure(ctx context.Context, event domain.OutboxEvent, errMsg string) error {
	attempts := event.Attempts + 1
	if attempts >= d.maxRetry {
		if err := d.repo.MarkDead(ctx, event.ID, attempts, errMsg); err != nil {
			return err
		}
		d.dispatchDeadTotal.Add(1)
		d.observe(DispatchResultDead)
		return nil
	}
	next := time.Now().UTC().Add(backoffDuration(attempts)).Format(time.RFC3339Nano)
	if err := d.repo.MarkFailed(ctx, event.ID, attempts, next, errMsg); err != nil {
		return err
	}
	d.dispatchFailureTotal.Add(1)
	d.observe(DispatchResultFailure)
	return nil
}

func (d *OutboxDispatcher) observe(result string) {
	if d.metrics != nil {
		d.metrics.Dispatched(result)
	}
}

func (d *OutboxDispatcher) Metrics() OutboxDispatcherMetrics {
	return OutboxDispatcherMetrics{
		DispatchSuccessTotal: d.dispatchSuccessTotal.Load(),
		DispatchFailureTotal: d.dispatchFailureTotal.Load(),
		DispatchDeadTotal:    d.dispatchDeadTotal.Load(),
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	d := time.Duration(attempt*attempt) * time.Second
	if d > 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}
