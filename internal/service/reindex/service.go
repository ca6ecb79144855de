// Package reindex walks the relational store and replays every contact into
// the sync queue so the search index can be rebuilt without blocking live
// traffic.
package reindex

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyeonlog/contact-hub/internal/model"
	"github.com/hyeonlog/contact-hub/internal/queue"
	"github.com/hyeonlog/contact-hub/internal/repository"
)

var ErrNotFound = repository.ErrNotFound

type Service struct {
	contacts  repository.ContactsRepository
	queue     *queue.Client
	batchSize int
	log       *zap.Logger
}

func New(contacts repository.ContactsRepository, q *queue.Client, batchSize int, log *zap.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Service{contacts: contacts, queue: q, batchSize: batchSize, log: log}
}

// ReindexAll pages through contacts in id order and enqueues an upsert job for
// each onto the low-priority queue. Returns the number of jobs queued.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	var (
		queued  int
		afterID string
	)
	for {
		batch, err := s.contacts.ListAfter(ctx, afterID, s.batchSize)
		if err != nil {
			return queued, fmt.Errorf("list contacts after %q: %w", afterID, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, c := range batch {
			doc := c.Document()
			job := model.SyncJob{Type: model.EventUpdated, ContactID: c.ID, Payload: &doc, Timestamp: c.UpdatedAt}
			if err := s.queue.EnqueueReindex(ctx, job); err != nil {
				return queued, fmt.Errorf("enqueue reindex for %s: %w", c.ID, err)
			}
			queued++
		}
		afterID = batch[len(batch)-1].ID
	}

	s.log.Info("reindex enqueued", zap.Int("jobs", queued))
	return queued, nil
}

// ReindexOne replays a single contact.
func (s *Service) ReindexOne(ctx context.Context, id string) error {
	c, err := s.contacts.FindByID(ctx, id)
	if err != nil {
		return err
	}
	doc := c.Document()
	job := model.SyncJob{Type: model.EventUpdated, ContactID: c.ID, Payload: &doc, Timestamp: c.UpdatedAt}
	return s.queue.EnqueueReindex(ctx, job)
}

// Stats reports queue depths for the admin surface.
func (s *Service) Stats(ctx context.Context) (model.QueueStats, error) {
	return s.queue.Stats(ctx)
}
