package model

import (
	"database/sql"
	"time"
)

type EventType string

const (
	EventCreated EventType = "CREATED"
	EventUpdated EventType = "UPDATED"
	EventDeleted EventType = "DELETED"
)

func (t EventType) String() string { return string(t) }

func (t EventType) Valid() bool {
	return t == EventCreated || t == EventUpdated || t == EventDeleted
}

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "PENDING"
	OutboxProcessing OutboxStatus = "PROCESSING"
	OutboxDone       OutboxStatus = "DONE"
	OutboxFailed     OutboxStatus = "FAILED"
)

func (s OutboxStatus) String() string { return string(s) }

// outboxTransitions is the full transition table of the outbox state machine.
// DONE is terminal; FAILED re-enters PROCESSING only through a retry claim, and
// PROCESSING re-enters PENDING only through the stale reclaim.
var outboxTransitions = map[OutboxStatus][]OutboxStatus{
	OutboxPending:    {OutboxProcessing},
	OutboxProcessing: {OutboxDone, OutboxFailed, OutboxPending},
	OutboxFailed:     {OutboxProcessing},
	OutboxDone:       {},
}

// CanTransition reports whether the state machine allows s -> to. The store
// enforces every transition as a conditional update; this table is the
// reference those WHERE clauses encode.
func (s OutboxStatus) CanTransition(to OutboxStatus) bool {
	for _, next := range outboxTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// OutboxEvent is a durable intent-to-publish row, inserted in the same
// transaction as the contact write it describes. Payload is the snapshot taken
// at commit time and is never recomputed.
type OutboxEvent struct {
	ID            string         `db:"id"`
	AggregateType string         `db:"aggregate_type"`
	AggregateID   string         `db:"aggregate_id"`
	EventType     EventType      `db:"event_type"`
	Payload       []byte         `db:"payload"`
	Status        OutboxStatus   `db:"status"`
	RetryCount    int            `db:"retry_count"`
	ErrorMessage  sql.NullString `db:"error_message"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	ProcessedAt   sql.NullTime   `db:"processed_at"`
}

// NewOutboxEvent builds a PENDING event for a contact aggregate.
func NewOutboxEvent(id, aggregateID string, eventType EventType, payload []byte) OutboxEvent {
	return OutboxEvent{
		ID:            id,
		AggregateType: "Contact",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        OutboxPending,
	}
}
