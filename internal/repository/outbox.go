package repository

import (
	"context"
	"time"

	"github.com/hyeonlog/contact-hub/internal/model"
	"github.com/jmoiron/sqlx"
)

// OutboxRepository persists outbox rows. Every status transition is a
// conditional update whose affected-row count doubles as the concurrency
// primitive, so any number of reconciler instances can sweep the same table.
type OutboxRepository interface {
	// InsertTx writes a single outbox event inside the caller's transaction.
	InsertTx(ctx context.Context, tx *sqlx.Tx, ev model.OutboxEvent) error

	FindPending(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	FindRetryable(ctx context.Context, limit, maxRetries int) ([]model.OutboxEvent, error)

	// Claim attempts the from -> PROCESSING transition. Exactly one of any
	// number of concurrent callers wins.
	Claim(ctx context.Context, id string, from model.OutboxStatus) (bool, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error

	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)
	PurgeDone(ctx context.Context, retention time.Duration) (int64, error)
	CountByStatus(ctx context.Context) (map[model.OutboxStatus]int64, error)
}

type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

func (r *OutboxRepositoryImpl) InsertTx(ctx context.Context, tx *sqlx.Tx, ev model.OutboxEvent) error {
	const q = `
		INSERT INTO outbox
		    (id, aggregate_type, aggregate_id, event_type, payload, status, retry_count, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, 0, NOW(), NOW())
	`
	_, err := tx.ExecContext(ctx, q,
		ev.ID, ev.AggregateType, ev.AggregateID, ev.EventType.String(), ev.Payload, ev.Status.String(),
	)
	return err
}

const outboxColumns = `
	id, aggregate_type, aggregate_id, event_type, payload,
	status, retry_count, error_message, created_at, updated_at, processed_at
`

// FindPending returns the oldest PENDING rows; a (status, created_at) index
// serves this scan.
func (r *OutboxRepositoryImpl) FindPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	const q = `
		SELECT ` + outboxColumns + `
		FROM outbox
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT ?
	`
	var rows []model.OutboxEvent
	if err := r.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

// FindRetryable returns the oldest FAILED rows that still have retry budget.
// Rows at maxRetries are dead letters and never come back.
func (r *OutboxRepositoryImpl) FindRetryable(ctx context.Context, limit, maxRetries int) ([]model.OutboxEvent, error) {
	const q = `
		SELECT ` + outboxColumns + `
		FROM outbox
		WHERE status = 'FAILED' AND retry_count < ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	var rows []model.OutboxEvent
	if err := r.db.SelectContext(ctx, &rows, q, maxRetries, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *OutboxRepositoryImpl) Claim(ctx context.Context, id string, from model.OutboxStatus) (bool, error) {
	if !from.CanTransition(model.OutboxProcessing) {
		return false, nil
	}

	const q = `
		UPDATE outbox SET status = 'PROCESSING', updated_at = NOW()
		WHERE id = ? AND status = ?
	`
	res, err := r.db.ExecContext(ctx, q, id, from.String())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *OutboxRepositoryImpl) MarkDone(ctx context.Context, id string) error {
	const q = `
		UPDATE outbox SET status = 'DONE', processed_at = NOW(), updated_at = NOW()
		WHERE id = ? AND status = 'PROCESSING'
	`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

func (r *OutboxRepositoryImpl) MarkFailed(ctx context.Context, id, errMsg string) error {
	const q = `
		UPDATE outbox
		SET status = 'FAILED', retry_count = retry_count + 1, error_message = ?, updated_at = NOW()
		WHERE id = ? AND status = 'PROCESSING'
	`
	_, err := r.db.ExecContext(ctx, q, errMsg, id)
	return err
}

// ReclaimStale flips PROCESSING rows stuck past olderThan back to PENDING.
// Covers claimers that crashed, and jobs whose transport retries exhausted
// without the claimer ever resolving the row.
func (r *OutboxRepositoryImpl) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	const q = `
		UPDATE outbox SET status = 'PENDING', updated_at = NOW()
		WHERE status = 'PROCESSING' AND updated_at < ?
	`
	res, err := r.db.ExecContext(ctx, q, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeDone deletes DONE rows past the retention window. DONE rows are never
// mutated, only purged.
func (r *OutboxRepositoryImpl) PurgeDone(ctx context.Context, retention time.Duration) (int64, error) {
	const q = `DELETE FROM outbox WHERE status = 'DONE' AND processed_at < ?`
	res, err := r.db.ExecContext(ctx, q, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *OutboxRepositoryImpl) CountByStatus(ctx context.Context) (map[model.OutboxStatus]int64, error) {
	const q = `SELECT status, COUNT(*) AS cnt FROM outbox GROUP BY status`

	var rows []struct {
		Status model.OutboxStatus `db:"status"`
		Count  int64              `db:"cnt"`
	}
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}

	out := make(map[model.OutboxStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
