package audit

import (
	"encoding/json"
	"time"

	id "orgcore/pkg/domain"
)

// Action classifies what a mutation did to the record.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Entity names used across the modules. Stores index history by entity name
// plus record id, so these must stay stable.
const (
	EntityOrganization   = "organizations"
	EntityRelationship   = "intercompany_relationships"
	EntityComplianceItem = "compliance_items"
)

// Event is one immutable entry in the audit trail. Once written it is never
// mutated or deleted; no store exposes an update or delete entry point.
type Event struct {
	ID         id.EventID
	TenantID   id.TenantID
	Entity     string
	RecordID   string
	Action     Action
	OldValues  json.RawMessage
	NewValues  json.RawMessage
	ActorID    id.UserID
	RecordedAt time.Time
}

// Cursor is a keyset position into a record's history. The zero value means
// "from the newest event". Re-querying with the same cursor over the same
// data yields the same page.
type Cursor struct {
	RecordedAt time.Time
	ID         id.EventID
}

// IsZero reports whether the cursor is the start-of-history position.
func (c Cursor) IsZero() bool {
	return c.RecordedAt.IsZero() && c.ID.IsNil()
}

// Page is one slice of a record's history, newest first, with the cursor to
// continue from. Next is the zero Cursor when the page was short.
type Page struct {
	Events []Event
	Next   Cursor
}
