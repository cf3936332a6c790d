// Package audit owns the immutable audit trail. Every mutation in the org and
// compliance modules records exactly one event here, inside the same unit of
// work as the mutation itself: if the write fails no event is produced, and if
// the append fails the mutation rolls back.
package audit

import (
	"context"
	"encoding/json"

	id "orgcore/pkg/domain"
	dErrors "orgcore/pkg/domain-errors"
	"orgcore/pkg/requestcontext"
)

// Entry describes the mutation being recorded. Old and New are snapshots of
// the record before and after; either may be nil (INSERT has no old value).
type Entry struct {
	TenantID id.TenantID
	Entity   string
	RecordID string
	Action   Action
	Old      any
	New      any
	// ActorID overrides the actor from request context when set.
	ActorID id.UserID
}

// Recorder turns mutation entries into persisted events. It is the only write
// path into the audit trail.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record appends one event for the given mutation. Callers invoke it inside
// the same RunInTx unit as the triggering write.
func (r *Recorder) Record(ctx context.Context, entry Entry) (Event, error) {
	if entry.TenantID.IsNil() {
		return Event{}, dErrors.New(dErrors.CodeInvalidInput, "audit entry requires a tenant id")
	}
	if entry.Entity == "" || entry.RecordID == "" {
		return Event{}, dErrors.New(dErrors.CodeInvalidInput, "audit entry requires entity and record id")
	}

	oldValues, err := marshalSnapshot(entry.Old)
	if err != nil {
		return Event{}, err
	}
	newValues, err := marshalSnapshot(entry.New)
	if err != nil {
		return Event{}, err
	}

	actor := entry.ActorID
	if actor.IsNil() {
		actor = requestcontext.ActorID(ctx)
	}

	event := Event{
		ID:         id.NewEventID(),
		TenantID:   entry.TenantID,
		Entity:     entry.Entity,
		RecordID:   entry.RecordID,
		Action:     entry.Action,
		OldValues:  oldValues,
		NewValues:  newValues,
		ActorID:    actor,
		RecordedAt: requestcontext.Now(ctx),
	}
	if err := r.store.Append(ctx, event); err != nil {
		return Event{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "append audit event")
	}
	return event, nil
}

// History pages through one record's events, newest first. Restartable: the
// same cursor over the same data yields the same page.
func (r *Recorder) History(ctx context.Context, entity, recordID string, cursor Cursor, limit int) (Page, error) {
	if limit <= 0 {
		limit = 50
	}
	events, err := r.store.ListByRecord(ctx, entity, recordID, cursor, limit)
	if err != nil {
		return Page{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "list audit history")
	}
	page := Page{Events: events}
	if len(events) == limit {
		last := events[len(events)-1]
		page.Next = Cursor{RecordedAt: last.RecordedAt, ID: last.ID}
	}
	return page, nil
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal audit snapshot")
	}
	return raw, nil
}
