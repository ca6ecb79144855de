package model

import "time"

// Document is the denormalized contact snapshot. It is written verbatim as the
// outbox payload at commit time and applied as-is to the search index, so
// repeated delivery is a no-op (last write wins by contact id).
type Document struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Name         string         `json:"name"`
	CustomFields map[string]any `json:"customFields"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// SyncJob is the queue payload consumed by the index syncer.
type SyncJob struct {
	Type      EventType `json:"type"`
	ContactID string    `json:"contact_id"`
	Payload   *Document `json:"payload,omitempty"` // nil for DELETED
	Timestamp time.Time `json:"timestamp"`
}

// QueueStats mirrors the queue transport's counters, observability only.
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
