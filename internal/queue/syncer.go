package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/hyeonlog/contact-hub/internal/metrics"
	"github.com/hyeonlog/contact-hub/internal/model"
	"go.uber.org/zap"
)

// Index is the slice of the search index the syncer writes to.
type Index interface {
	Upsert(ctx context.Context, doc model.Document) error
	Delete(ctx context.Context, id string) error
}

// Syncer applies sync jobs to the search index. Apply is idempotent: upserts
// are last-write-wins by contact id and deletes tolerate absence, so duplicate
// delivery from the fast path and the reconciler converges to the same state.
type Syncer struct {
	index Index
	log   *zap.Logger
}

func NewSyncer(index Index, log *zap.Logger) *Syncer {
	return &Syncer{index: index, log: log}
}

// Handle is the asynq handler for contact:sync tasks. A returned error hands
// the job back to the transport's retry/backoff policy.
func (s *Syncer) Handle(ctx context.Context, t *asynq.Task) error {
	var job model.SyncJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		// poison payload: retrying cannot help
		s.log.Error("bad sync job payload", zap.Error(err))
		return fmt.Errorf("unmarshal sync job: %v: %w", err, asynq.SkipRetry)
	}

	if err := s.apply(ctx, job); err != nil {
		metrics.SyncJobsTotal.WithLabelValues(job.Type.String(), "error").Inc()
		s.log.Warn("sync job failed",
			zap.String("type", job.Type.String()),
			zap.String("contact_id", job.ContactID),
			zap.Error(err),
		)
		return err
	}

	metrics.SyncJobsTotal.WithLabelValues(job.Type.String(), "ok").Inc()
	s.log.Debug("sync job applied",
		zap.String("type", job.Type.String()),
		zap.String("contact_id", job.ContactID),
	)
	return nil
}

func (s *Syncer) apply(ctx context.Context, job model.SyncJob) error {
	switch job.Type {
	case model.EventCreated, model.EventUpdated:
		if job.Payload == nil {
			return fmt.Errorf("missing payload for %s: %w", job.Type, asynq.SkipRetry)
		}
		return s.index.Upsert(ctx, *job.Payload)
	case model.EventDeleted:
		return s.index.Delete(ctx, job.ContactID)
	default:
		return fmt.Errorf("unknown event type %q: %w", job.Type, asynq.SkipRetry)
	}
}

// NewMux registers the syncer on a fresh asynq mux.
func NewMux(s *Syncer) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskContactSync, s.Handle)
	return mux
}
