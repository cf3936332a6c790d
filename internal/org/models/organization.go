package models

import (
	"regexp"
	"strings"
	"time"

	id "orgcore/pkg/domain"
	dErrors "orgcore/pkg/domain-errors"
)

// Status is the organization lifecycle state. Organizations are never hard
// deleted; archiving is the terminal soft-delete state and preserves
// referential integrity for children and audit history.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusArchived  Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusArchived:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status machine permits the move.
// Archived is terminal. Any non-archived state may archive.
func (s Status) CanTransitionTo(next Status) bool {
	if s == StatusArchived {
		return false
	}
	if next == StatusArchived {
		return true
	}
	switch s {
	case StatusActive:
		return next == StatusInactive || next == StatusSuspended
	case StatusInactive:
		return next == StatusActive || next == StatusSuspended
	case StatusSuspended:
		return next == StatusActive
	}
	return false
}

// EntityType classifies the legal/operational nature of the organization.
type EntityType string

const (
	EntityTypeGroup          EntityType = "group"
	EntityTypeRegional       EntityType = "regional"
	EntityTypeOperating      EntityType = "operating"
	EntityTypeDormant        EntityType = "dormant"
	EntityTypeSpecialPurpose EntityType = "special_purpose"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeGroup, EntityTypeRegional, EntityTypeOperating, EntityTypeDormant, EntityTypeSpecialPurpose:
		return true
	}
	return false
}

// OrgType captures the organization's role in the group structure.
type OrgType string

const (
	OrgTypeMother      OrgType = "mother"
	OrgTypeSubsidiary  OrgType = "subsidiary"
	OrgTypeBranch      OrgType = "branch"
	OrgTypeIndependent OrgType = "independent"
)

func (t OrgType) Valid() bool {
	switch t {
	case OrgTypeMother, OrgTypeSubsidiary, OrgTypeBranch, OrgTypeIndependent:
		return true
	}
	return false
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Organization is the aggregate root of the registry.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - Slug matches [a-z0-9-] and is unique within the tenant; it changes only
//     through the explicit rename operation, which re-validates uniqueness
//   - ParentID, when set, references an organization in the same tenant and
//     never creates a cycle (enforced by the hierarchy service)
//   - Archived is terminal; archived organizations reject further mutation
type Organization struct {
	ID         id.OrgID    `json:"id"`
	TenantID   id.TenantID `json:"tenant_id"`
	Name       string      `json:"name"`
	Slug       string      `json:"slug"`
	Status     Status      `json:"status"`
	EntityType EntityType  `json:"entity_type"`
	OrgType    OrgType     `json:"org_type"`
	ParentID   *id.OrgID   `json:"parent_organization_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	CreatedBy  id.UserID   `json:"created_by"`
	UpdatedBy  id.UserID   `json:"updated_by"`
}

func (o *Organization) IsArchived() bool {
	return o.Status == StatusArchived
}

// CanMutate checks that the organization accepts writes at all.
func (o *Organization) CanMutate() error {
	if o.IsArchived() {
		return dErrors.New(dErrors.CodeConflict, "organization is archived")
	}
	return nil
}

// CanTransitionTo validates a status change against the machine.
func (o *Organization) CanTransitionTo(next Status) error {
	if !next.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown status %q", next)
	}
	if !o.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeIllegalTransition, "cannot move organization from %s to %s", o.Status, next)
	}
	return nil
}

// ApplyStatus transitions the status. Call CanTransitionTo first.
func (o *Organization) ApplyStatus(next Status, actor id.UserID, now time.Time) {
	o.Status = next
	o.UpdatedBy = actor
	o.UpdatedAt = now
}

// ApplyParent re-points the parent link. Cycle and tenant checks happen in
// the hierarchy service before this is called.
func (o *Organization) ApplyParent(parentID *id.OrgID, actor id.UserID, now time.Time) {
	o.ParentID = parentID
	o.UpdatedBy = actor
	o.UpdatedAt = now
}

// ApplyRename updates name and slug. Slug uniqueness is re-validated by the
// service and enforced by the store's unique constraint.
func (o *Organization) ApplyRename(name, slug string, actor id.UserID, now time.Time) {
	o.Name = name
	o.Slug = slug
	o.UpdatedBy = actor
	o.UpdatedAt = now
}

// Clone returns a deep copy so stores never hand out aliased state.
func (o *Organization) Clone() *Organization {
	clone := *o
	if o.ParentID != nil {
		parent := *o.ParentID
		clone.ParentID = &parent
	}
	return &clone
}

// ValidateName enforces the name shape shared by create and rename.
func ValidateName(name string) error {
	if name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "organization name cannot be empty")
	}
	if len(name) > 128 {
		return dErrors.New(dErrors.CodeInvariantViolation, "organization name must be 128 characters or less")
	}
	return nil
}

// ValidateSlug enforces the slug shape shared by create and rename.
func ValidateSlug(slug string) error {
	if slug == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "organization slug cannot be empty")
	}
	if len(slug) > 64 {
		return dErrors.New(dErrors.CodeInvariantViolation, "organization slug must be 64 characters or less")
	}
	if !slugPattern.MatchString(slug) {
		return dErrors.New(dErrors.CodeInvariantViolation, "organization slug must be lowercase letters, digits and hyphens")
	}
	return nil
}

// NewOrganization constructs an active organization, validating every model
// invariant. Parent existence and cycle freedom are the hierarchy service's
// responsibility.
func NewOrganization(orgID id.OrgID, tenantID id.TenantID, name, slug string, orgType OrgType, entityType EntityType, parentID *id.OrgID, actor id.UserID, now time.Time) (*Organization, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization requires a tenant id")
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	if !orgType.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown org type %q", orgType)
	}
	if entityType == "" {
		entityType = EntityTypeOperating
	}
	if !entityType.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown entity type %q", entityType)
	}
	org := &Organization{
		ID:         orgID,
		TenantID:   tenantID,
		Name:       name,
		Slug:       slug,
		Status:     StatusActive,
		EntityType: entityType,
		OrgType:    orgType,
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  actor,
		UpdatedBy:  actor,
	}
	if parentID != nil {
		parent := *parentID
		org.ParentID = &parent
	}
	return org, nil
}

// ListFilter narrows organization listings. The zero value lists every
// non-archived organization in the tenant.
type ListFilter struct {
	Statuses        []Status
	OrgTypes        []OrgType
	NameContains    string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// Matches applies the filter to one organization (used by the memory store;
// the Postgres store translates the same semantics to SQL).
func (f ListFilter) Matches(org *Organization) bool {
	if !f.IncludeArchived && org.IsArchived() && !containsStatus(f.Statuses, StatusArchived) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, org.Status) {
		return false
	}
	if len(f.OrgTypes) > 0 && !containsOrgType(f.OrgTypes, org.OrgType) {
		return false
	}
	if f.NameContains != "" && !containsFold(org.Name, f.NameContains) {
		return false
	}
	return true
}

func containsStatus(haystack []Status, needle Status) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsOrgType(haystack []OrgType, needle OrgType) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
