package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyeonlog/contact-hub/internal/model"
)

func TestTryDispatch_EnqueuesJob(t *testing.T) {
	q := &fakeEnqueuer{}
	d := NewDispatcher(q, zap.NewNop())

	doc := model.Document{ID: "c1", Email: "a@b.co", Name: "A", CreatedAt: time.Now()}
	d.TryDispatch(context.Background(), model.EventCreated, "c1", &doc)

	jobs := q.enqueued()
	require.Len(t, jobs, 1)
	assert.Equal(t, model.EventCreated, jobs[0].Type)
	assert.Equal(t, "c1", jobs[0].ContactID)
	require.NotNil(t, jobs[0].Payload)
	assert.Equal(t, "a@b.co", jobs[0].Payload.Email)
}

func TestTryDispatch_SwallowsTransportFailure(t *testing.T) {
	q := &fakeEnqueuer{err: errors.New("redis down")}
	d := NewDispatcher(q, zap.NewNop())

	// must not panic or surface the error; the reconciler owns delivery
	d.TryDispatch(context.Background(), model.EventDeleted, "c1", nil)

	assert.Empty(t, q.enqueued())
}
