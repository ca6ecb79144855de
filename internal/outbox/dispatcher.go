// Package outbox implements the write-side consistency pipeline around the
// outbox table: a best-effort fast dispatcher layered on top of the durable
// reconciler sweeps. The fast channel's failures never touch the durable
// channel's bookkeeping.
package outbox

import (
	"context"
	"time"

	"github.com/hyeonlog/contact-hub/internal/metrics"
	"github.com/hyeonlog/contact-hub/internal/model"
	"github.com/hyeonlog/contact-hub/internal/queue"
	"go.uber.org/zap"
)

// Dispatcher is the low-latency channel. It runs after the writer's
// transaction commits and deliberately swallows transport failures: delivery
// is still guaranteed by the reconciler reading the outbox row.
type Dispatcher struct {
	queue queue.Enqueuer
	log   *zap.Logger
}

func NewDispatcher(q queue.Enqueuer, log *zap.Logger) *Dispatcher {
	return &Dispatcher{queue: q, log: log}
}

// TryDispatch pushes a sync job and never returns an error to the caller.
// doc is nil for DELETED.
func (d *Dispatcher) TryDispatch(ctx context.Context, eventType model.EventType, contactID string, doc *model.Document) {
	job := model.SyncJob{
		Type:      eventType,
		ContactID: contactID,
		Payload:   doc,
		Timestamp: time.Now(),
	}

	if err := d.queue.EnqueueSync(ctx, job); err != nil {
		metrics.FastDispatchTotal.WithLabelValues("error").Inc()
		d.log.Warn("fast dispatch failed, reconciler will deliver",
			zap.String("type", eventType.String()),
			zap.String("contact_id", contactID),
			zap.Error(err),
		)
		return
	}
	metrics.FastDispatchTotal.WithLabelValues("ok").Inc()
}
