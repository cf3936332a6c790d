// Package domain holds the typed identifiers shared by every module.
//
// IDs are distinct uuid newtypes so the compiler rejects passing an
// organization id where a tenant id is expected. Parse functions enforce the
// trust-boundary invariant that ids are valid, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "orgcore/pkg/domain-errors"
)

type (
	// TenantID identifies an isolated tenant boundary. No data crosses tenants.
	TenantID uuid.UUID
	// OrgID identifies an organization within a tenant.
	OrgID uuid.UUID
	// RelationshipID identifies an intercompany relationship record.
	RelationshipID uuid.UUID
	// ItemID identifies a compliance item.
	ItemID uuid.UUID
	// UserID identifies the acting user recorded on mutations.
	UserID uuid.UUID
	// EventID identifies an audit event.
	EventID uuid.UUID
)

func (id TenantID) String() string       { return uuid.UUID(id).String() }
func (id OrgID) String() string          { return uuid.UUID(id).String() }
func (id RelationshipID) String() string { return uuid.UUID(id).String() }
func (id ItemID) String() string         { return uuid.UUID(id).String() }
func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id EventID) String() string        { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id OrgID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id RelationshipID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ItemID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// Text marshalers so ids render as canonical uuid strings in JSON snapshots
// and logs instead of 16-byte arrays.

func (id TenantID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id OrgID) MarshalText() ([]byte, error)          { return []byte(id.String()), nil }
func (id RelationshipID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ItemID) MarshalText() ([]byte, error)         { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)         { return []byte(id.String()), nil }
func (id EventID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }

func (id *TenantID) UnmarshalText(raw []byte) error {
	parsed, err := uuid.Parse(string(raw))
	*id = TenantID(parsed)
	return err
}

func (id *OrgID) UnmarshalText(raw []byte) error {
	parsed, err := uuid.Parse(string(raw))
	*id = OrgID(parsed)
	return err
}

func (id *RelationshipID) UnmarshalText(raw []byte) error {
	parsed, err := uuid.Parse(string(raw))
	*id = RelationshipID(parsed)
	return err
}

func (id *ItemID) UnmarshalText(raw []byte) error {
	parsed, err := uuid.Parse(string(raw))
	*id = ItemID(parsed)
	return err
}

func (id *UserID) UnmarshalText(raw []byte) error {
	parsed, err := uuid.Parse(string(raw))
	*id = UserID(parsed)
	return err
}

func (id *EventID) UnmarshalText(raw []byte) error {
	parsed, err := uuid.Parse(string(raw))
	*id = EventID(parsed)
	return err
}

// NewTenantID returns a fresh random tenant id.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewOrgID returns a fresh random organization id.
func NewOrgID() OrgID { return OrgID(uuid.New()) }

// NewRelationshipID returns a fresh random relationship id.
func NewRelationshipID() RelationshipID { return RelationshipID(uuid.New()) }

// NewItemID returns a fresh random compliance item id.
func NewItemID() ItemID { return ItemID(uuid.New()) }

// NewEventID returns a fresh random audit event id.
func NewEventID() EventID { return EventID(uuid.New()) }

// NewUserID returns a fresh random user id.
func NewUserID() UserID { return UserID(uuid.New()) }

func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is not a valid uuid")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be the nil uuid")
	}
	return parsed, nil
}

// ParseTenantID parses and validates a tenant id string.
func ParseTenantID(raw string) (TenantID, error) {
	parsed, err := parseUUID(raw, "tenant")
	return TenantID(parsed), err
}

// ParseOrgID parses and validates an organization id string.
func ParseOrgID(raw string) (OrgID, error) {
	parsed, err := parseUUID(raw, "organization")
	return OrgID(parsed), err
}

// ParseRelationshipID parses and validates a relationship id string.
func ParseRelationshipID(raw string) (RelationshipID, error) {
	parsed, err := parseUUID(raw, "relationship")
	return RelationshipID(parsed), err
}

// ParseItemID parses and validates a compliance item id string.
func ParseItemID(raw string) (ItemID, error) {
	parsed, err := parseUUID(raw, "compliance item")
	return ItemID(parsed), err
}

// ParseUserID parses and validates a user id string.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw, "user")
	return UserID(parsed), err
}
