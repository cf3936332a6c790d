package audit

import "context"

// Store is the append-only persistence port for audit events. Immutability is
// structural: the interface has no update or delete method, and neither
// implementation keeps one private.
type Store interface {
	// Append writes one event. Implementations participating in a SQL unit of
	// work pick the transaction up from context, so the append commits or
	// rolls back together with the mutation that produced it.
	Append(ctx context.Context, event Event) error

	// ListByRecord pages through one record's history, newest first, keyset
	// style. A zero cursor starts from the newest event.
	ListByRecord(ctx context.Context, entity, recordID string, cursor Cursor, limit int) ([]Event, error)

	// ListAfter returns events recorded strictly after the cursor, oldest
	// first. The outbox worker uses it to ship committed events downstream
	// without ever mutating them.
	ListAfter(ctx context.Context, cursor Cursor, limit int) ([]Event, error)
}
