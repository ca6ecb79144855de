package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutboxTransitions(t *testing.T) {
	cases := []struct {
		from, to OutboxStatus
		allowed  bool
	}{
		{OutboxPending, OutboxProcessing, true},
		{OutboxPending, OutboxDone, false},
		{OutboxPending, OutboxFailed, false},

		{OutboxProcessing, OutboxDone, true},
		{OutboxProcessing, OutboxFailed, true},
		{OutboxProcessing, OutboxPending, true}, // stale reclaim

		{OutboxFailed, OutboxProcessing, true}, // retry claim
		{OutboxFailed, OutboxPending, false},
		{OutboxFailed, OutboxDone, false},

		{OutboxDone, OutboxProcessing, false},
		{OutboxDone, OutboxPending, false},
		{OutboxDone, OutboxFailed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestNewOutboxEvent(t *testing.T) {
	ev := NewOutboxEvent("ev1", "c1", EventUpdated, []byte(`{"id":"c1"}`))

	assert.Equal(t, OutboxPending, ev.Status)
	assert.Equal(t, "Contact", ev.AggregateType)
	assert.Equal(t, "c1", ev.AggregateID)
	assert.Zero(t, ev.RetryCount)
}

func TestQuerySpecNormalize(t *testing.T) {
	s := QuerySpec{}
	s.Normalize()
	assert.Equal(t, 1, s.Page)
	assert.Equal(t, DefaultPageSize, s.PageSize)

	s = QuerySpec{Page: 3, PageSize: 1000}
	s.Normalize()
	assert.Equal(t, MaxPageSize, s.PageSize)
	assert.Equal(t, 200, s.Offset())
}
