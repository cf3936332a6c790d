package audit

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemory is the test-friendly audit store. Append-only: events are copied
// in and copied out, and nothing in the type can change a stored event.
type InMemory struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, cloneEvent(event))
	return nil
}

func (s *InMemory) ListByRecord(_ context.Context, entity, recordID string, cursor Cursor, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Event, 0)
	for _, event := range s.events {
		if event.Entity != entity || event.RecordID != recordID {
			continue
		}
		if !cursor.IsZero() && !olderThan(event, cursor) {
			continue
		}
		matched = append(matched, cloneEvent(event))
	}
	sort.Slice(matched, func(i, j int) bool { return newer(matched[i], matched[j]) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *InMemory) ListAfter(_ context.Context, cursor Cursor, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Event, 0)
	for _, event := range s.events {
		if !cursor.IsZero() && olderThan(event, cursor) {
			continue
		}
		if !cursor.IsZero() && sameCursor(event, cursor) {
			continue
		}
		matched = append(matched, cloneEvent(event))
	}
	sort.Slice(matched, func(i, j int) bool { return newer(matched[j], matched[i]) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Count reports the number of stored events, optionally scoped to one record.
// Test helper; not part of the Store port.
func (s *InMemory) Count(entity, recordID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entity == "" {
		return len(s.events)
	}
	n := 0
	for _, event := range s.events {
		if event.Entity == entity && (recordID == "" || event.RecordID == recordID) {
			n++
		}
	}
	return n
}

func cloneEvent(event Event) Event {
	clone := event
	clone.OldValues = bytes.Clone(event.OldValues)
	clone.NewValues = bytes.Clone(event.NewValues)
	return clone
}

// newer orders events newest first, breaking timestamp ties by id bytes so
// paging is deterministic.
func newer(a, b Event) bool {
	if !a.RecordedAt.Equal(b.RecordedAt) {
		return a.RecordedAt.After(b.RecordedAt)
	}
	aID, bID := uuid.UUID(a.ID), uuid.UUID(b.ID)
	return bytes.Compare(aID[:], bID[:]) > 0
}

// olderThan reports whether event sorts strictly older than the cursor
// position.
func olderThan(event Event, cursor Cursor) bool {
	if !event.RecordedAt.Equal(cursor.RecordedAt) {
		return event.RecordedAt.Before(cursor.RecordedAt)
	}
	eID, cID := uuid.UUID(event.ID), uuid.UUID(cursor.ID)
	return bytes.Compare(eID[:], cID[:]) < 0
}

func sameCursor(event Event, cursor Cursor) bool {
	return event.RecordedAt.Equal(cursor.RecordedAt) && event.ID == cursor.ID
}

var _ Store = (*InMemory)(nil)
