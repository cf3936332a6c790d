package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "orgcore/pkg/domain"
	txcontext "orgcore/pkg/platform/tx"
)

// Postgres persists audit events. Appends go through the transaction carried
// in context when present, so an event commits atomically with the mutation
// that produced it. The table carries no UPDATE or DELETE path in this code.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Postgres) runner(ctx context.Context) dbRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Append(ctx context.Context, event Event) error {
	const query = `
		INSERT INTO audit_events
			(id, tenant_id, entity, record_id, action, old_values, new_values, actor_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var actor any
	if !event.ActorID.IsNil() {
		actor = uuid.UUID(event.ActorID)
	}
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(event.ID), uuid.UUID(event.TenantID), event.Entity, event.RecordID,
		string(event.Action), nullableJSON(event.OldValues), nullableJSON(event.NewValues),
		actor, event.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Postgres) ListByRecord(ctx context.Context, entity, recordID string, cursor Cursor, limit int) ([]Event, error) {
	query := `
		SELECT id, tenant_id, entity, record_id, action, old_values, new_values, actor_id, recorded_at
		FROM audit_events
		WHERE entity = $1 AND record_id = $2
	`
	args := []any{entity, recordID}
	if !cursor.IsZero() {
		query += ` AND (recorded_at, id) < ($3, $4)`
		args = append(args, cursor.RecordedAt, uuid.UUID(cursor.ID))
	}
	query += fmt.Sprintf(` ORDER BY recorded_at DESC, id DESC LIMIT %d`, limit)

	rows, err := s.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit history: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Postgres) ListAfter(ctx context.Context, cursor Cursor, limit int) ([]Event, error) {
	query := `
		SELECT id, tenant_id, entity, record_id, action, old_values, new_values, actor_id, recorded_at
		FROM audit_events
	`
	args := []any{}
	if !cursor.IsZero() {
		query += ` WHERE (recorded_at, id) > ($1, $2)`
		args = append(args, cursor.RecordedAt, uuid.UUID(cursor.ID))
	}
	query += fmt.Sprintf(` ORDER BY recorded_at ASC, id ASC LIMIT %d`, limit)

	rows, err := s.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events after cursor: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	events := make([]Event, 0)
	for rows.Next() {
		var (
			event     Event
			eventID   uuid.UUID
			tenantID  uuid.UUID
			action    string
			oldValues []byte
			newValues []byte
			actorID   uuid.NullUUID
		)
		if err := rows.Scan(&eventID, &tenantID, &event.Entity, &event.RecordID,
			&action, &oldValues, &newValues, &actorID, &event.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = id.EventID(eventID)
		event.TenantID = id.TenantID(tenantID)
		event.Action = Action(action)
		event.OldValues = oldValues
		event.NewValues = newValues
		if actorID.Valid {
			event.ActorID = id.UserID(actorID.UUID)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

var _ Store = (*Postgres)(nil)
