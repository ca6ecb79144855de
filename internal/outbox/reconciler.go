package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyeonlog/contact-hub/internal/config"
	"github.com/hyeonlog/contact-hub/internal/metrics"
	"github.com/hyeonlog/contact-hub/internal/model"
	"github.com/hyeonlog/contact-hub/internal/queue"
	"github.com/hyeonlog/contact-hub/internal/repository"
	"go.uber.org/zap"
)

// Reconciler is the durable channel: periodic sweeps over the outbox table
// that re-feed the queue worker with everything the fast path missed or
// failed. Any number of instances may run concurrently; the conditional claim
// in the store is the only coordination.
type Reconciler struct {
	store repository.OutboxRepository
	queue queue.Enqueuer
	cfg   config.OutboxConfig
	log   *zap.Logger
}

func NewReconciler(store repository.OutboxRepository, q queue.Enqueuer, cfg config.OutboxConfig, log *zap.Logger) *Reconciler {
	if cfg.PendingInterval <= 0 {
		cfg.PendingInterval = 10 * time.Second
	}
	if cfg.PendingBatch <= 0 {
		cfg.PendingBatch = 100
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Minute
	}
	if cfg.RetryBatch <= 0 {
		cfg.RetryBatch = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = time.Minute
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = 24 * time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	return &Reconciler{store: store, queue: q, cfg: cfg, log: log}
}

// Run starts the sweep loops and blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	go r.loop(ctx, r.cfg.PendingInterval, r.SweepPending)
	go r.loop(ctx, r.cfg.RetryInterval, r.SweepRetries)
	go r.loop(ctx, r.cfg.ReclaimInterval, r.ReclaimStale)
	go r.loop(ctx, r.cfg.PurgeInterval, r.Purge)

	<-ctx.Done()
	return nil
}

func (r *Reconciler) loop(ctx context.Context, interval time.Duration, sweep func(context.Context) error) {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				r.log.Error("outbox sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepPending claims and dispatches the oldest PENDING rows.
func (r *Reconciler) SweepPending(ctx context.Context) error {
	events, err := r.store.FindPending(ctx, r.cfg.PendingBatch)
	if err != nil {
		return fmt.Errorf("find pending: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	r.log.Info("processing pending outbox events", zap.Int("count", len(events)))
	for _, ev := range events {
		r.process(ctx, ev, model.OutboxPending)
	}
	return nil
}

// SweepRetries claims and re-dispatches FAILED rows that still have retry
// budget. Rows at the retry cap are dead letters, visible only through stats.
func (r *Reconciler) SweepRetries(ctx context.Context) error {
	events, err := r.store.FindRetryable(ctx, r.cfg.RetryBatch, r.cfg.MaxRetries)
	if err != nil {
		return fmt.Errorf("find retryable: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	r.log.Info("retrying failed outbox events", zap.Int("count", len(events)))
	for _, ev := range events {
		r.process(ctx, ev, model.OutboxFailed)
	}
	return nil
}

// process claims a single row from its current status, dispatches it to the
// queue worker, and resolves the claim. Losing the claim race is not an error.
func (r *Reconciler) process(ctx context.Context, ev model.OutboxEvent, from model.OutboxStatus) {
	claimed, err := r.store.Claim(ctx, ev.ID, from)
	if err != nil {
		r.log.Error("claim failed", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}
	if !claimed {
		return // another instance got there first
	}

	job, err := r.toJob(ev)
	if err == nil {
		err = r.queue.EnqueueSync(ctx, job)
	}

	if err != nil {
		metrics.OutboxEventsTotal.WithLabelValues("failed").Inc()
		if ev.RetryCount+1 >= r.cfg.MaxRetries {
			metrics.OutboxEventsTotal.WithLabelValues("dead").Inc()
		}
		if merr := r.store.MarkFailed(ctx, ev.ID, err.Error()); merr != nil {
			r.log.Error("mark failed", zap.String("event_id", ev.ID), zap.Error(merr))
		}
		r.log.Warn("outbox event dispatch failed",
			zap.String("event_id", ev.ID),
			zap.Int("retry_count", ev.RetryCount+1),
			zap.Error(err),
		)
		return
	}

	if err := r.store.MarkDone(ctx, ev.ID); err != nil {
		r.log.Error("mark done", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}
	metrics.OutboxEventsTotal.WithLabelValues("done").Inc()
}

// ReclaimStale flips abandoned PROCESSING rows back to PENDING so a crashed
// claimer or a silently exhausted transport can never strand an event.
func (r *Reconciler) ReclaimStale(ctx context.Context) error {
	n, err := r.store.ReclaimStale(ctx, r.cfg.StaleAfter)
	if err != nil {
		return fmt.Errorf("reclaim stale: %w", err)
	}
	if n > 0 {
		metrics.OutboxEventsTotal.WithLabelValues("reclaimed").Add(float64(n))
		r.log.Warn("reclaimed stale processing events", zap.Int64("count", n))
	}
	return nil
}

// Purge deletes DONE rows past the retention window.
func (r *Reconciler) Purge(ctx context.Context) error {
	n, err := r.store.PurgeDone(ctx, r.cfg.Retention)
	if err != nil {
		return fmt.Errorf("purge done: %w", err)
	}
	if n > 0 {
		metrics.OutboxEventsTotal.WithLabelValues("purged").Add(float64(n))
		r.log.Info("purged old outbox events", zap.Int64("count", n))
	}
	return nil
}

func (r *Reconciler) toJob(ev model.OutboxEvent) (model.SyncJob, error) {
	job := model.SyncJob{
		Type:      ev.EventType,
		ContactID: ev.AggregateID,
		Timestamp: ev.CreatedAt,
	}
	if ev.EventType == model.EventDeleted {
		return job, nil
	}

	var doc model.Document
	if err := json.Unmarshal(ev.Payload, &doc); err != nil {
		return model.SyncJob{}, fmt.Errorf("decode payload: %w", err)
	}
	job.Payload = &doc
	return job, nil
}
