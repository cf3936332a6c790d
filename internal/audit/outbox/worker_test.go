package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgcore/internal/audit"
	id "orgcore/pkg/domain"
)

type fakePublisher struct {
	published []audit.Event
	failAfter int // fail every publish once this many succeeded; <0 never fails
}

func (p *fakePublisher) Publish(_ context.Context, event audit.Event) error {
	if p.failAfter >= 0 && len(p.published) >= p.failAfter {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func (p *fakePublisher) Close() {}

func seedEvents(t *testing.T, store *audit.InMemory, n int) []audit.Event {
	t.Helper()
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	events := make([]audit.Event, 0, n)
	for i := 0; i < n; i++ {
		event := audit.Event{
			ID:         id.NewEventID(),
			TenantID:   id.NewTenantID(),
			Entity:     audit.EntityOrganization,
			RecordID:   "rec",
			Action:     audit.ActionUpdate,
			RecordedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.Append(context.Background(), event))
		events = append(events, event)
	}
	return events
}

func TestDrainPublishesInOrder(t *testing.T) {
	store := audit.NewInMemory()
	events := seedEvents(t, store, 5)
	publisher := &fakePublisher{failAfter: -1}
	worker := NewWorker(store, publisher, WithBatchSize(2))

	require.NoError(t, worker.Drain(context.Background()))
	require.Len(t, publisher.published, 5)
	for i, event := range events {
		assert.Equal(t, event.ID, publisher.published[i].ID)
	}
	assert.Equal(t, events[4].ID, worker.Cursor().ID)
}

func TestDrainResumesAfterFailure(t *testing.T) {
	store := audit.NewInMemory()
	events := seedEvents(t, store, 4)
	publisher := &fakePublisher{failAfter: 2}
	worker := NewWorker(store, publisher, WithBatchSize(10))

	err := worker.Drain(context.Background())
	require.Error(t, err)
	require.Len(t, publisher.published, 2)
	assert.Equal(t, events[1].ID, worker.Cursor().ID)

	// broker recovers; the next drain picks up exactly where it stopped
	publisher.failAfter = -1
	require.NoError(t, worker.Drain(context.Background()))
	require.Len(t, publisher.published, 4)
	assert.Equal(t, events[2].ID, publisher.published[2].ID)
}

func TestDrainIsIdempotentWhenCaughtUp(t *testing.T) {
	store := audit.NewInMemory()
	seedEvents(t, store, 3)
	publisher := &fakePublisher{failAfter: -1}
	worker := NewWorker(store, publisher)

	require.NoError(t, worker.Drain(context.Background()))
	require.NoError(t, worker.Drain(context.Background()))
	assert.Len(t, publisher.published, 3)
}

func TestWithCursorSkipsAcknowledged(t *testing.T) {
	store := audit.NewInMemory()
	events := seedEvents(t, store, 3)
	publisher := &fakePublisher{failAfter: -1}
	worker := NewWorker(store, publisher,
		WithCursor(audit.Cursor{RecordedAt: events[1].RecordedAt, ID: events[1].ID}))

	require.NoError(t, worker.Drain(context.Background()))
	require.Len(t, publisher.published, 1)
	assert.Equal(t, events[2].ID, publisher.published[0].ID)
}
