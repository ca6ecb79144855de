// Package queue wraps the asynq transport: task construction, priority
// queues, and observability counters. Live mutation jobs and reindex backfill
// jobs go to separate queues so backfills never starve live updates.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/hyeonlog/contact-hub/internal/model"
)

const (
	TaskContactSync = "contact:sync"

	QueueLive    = "live"
	QueueReindex = "reindex"
)

// Enqueuer is what the fast dispatcher, the reconciler, and the reindexer
// need from the transport.
type Enqueuer interface {
	EnqueueSync(ctx context.Context, job model.SyncJob) error
	EnqueueReindex(ctx context.Context, job model.SyncJob) error
}

// Client is the producing side of the transport. Delivery retries with
// exponential backoff are the transport's own, independent of the outbox
// retry counter.
type Client struct {
	c        *asynq.Client
	insp     *asynq.Inspector
	maxRetry int
}

func NewClient(redisOpt asynq.RedisClientOpt, maxRetry int) *Client {
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &Client{
		c:        asynq.NewClient(redisOpt),
		insp:     asynq.NewInspector(redisOpt),
		maxRetry: maxRetry,
	}
}

func (q *Client) enqueue(ctx context.Context, job model.SyncJob, queue string) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal sync job: %w", err)
	}

	task := asynq.NewTask(TaskContactSync, payload)
	_, err = q.c.EnqueueContext(ctx, task,
		asynq.Queue(queue),
		asynq.MaxRetry(q.maxRetry),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return nil
}

// EnqueueSync pushes a live mutation job.
func (q *Client) EnqueueSync(ctx context.Context, job model.SyncJob) error {
	return q.enqueue(ctx, job, QueueLive)
}

// EnqueueReindex pushes a backfill job on the low-priority queue.
func (q *Client) EnqueueReindex(ctx context.Context, job model.SyncJob) error {
	return q.enqueue(ctx, job, QueueReindex)
}

// Stats aggregates the transport's counters over both queues. Observability
// only, never used for control flow.
func (q *Client) Stats(ctx context.Context) (model.QueueStats, error) {
	var stats model.QueueStats
	for _, name := range []string{QueueLive, QueueReindex} {
		info, err := q.insp.GetQueueInfo(name)
		if err != nil {
			// a queue that has never seen a task does not exist yet
			if errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return model.QueueStats{}, fmt.Errorf("queue info %s: %w", name, err)
		}
		stats.Waiting += info.Pending
		stats.Active += info.Active
		stats.Completed += info.Processed
		stats.Failed += info.Failed
	}
	return stats, nil
}

func (q *Client) Close() error {
	err := q.c.Close()
	if cerr := q.insp.Close(); err == nil {
		err = cerr
	}
	return err
}
