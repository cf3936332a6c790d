package models

import (
	"time"

	id "orgcore/pkg/domain"
	dErrors "orgcore/pkg/domain-errors"
)

// RelationshipKind classifies an intercompany link.
type RelationshipKind string

const (
	RelationshipOwnership        RelationshipKind = "ownership"
	RelationshipServiceAgreement RelationshipKind = "service_agreement"
	RelationshipLoan             RelationshipKind = "loan"
	RelationshipOther            RelationshipKind = "other"
)

func (k RelationshipKind) Valid() bool {
	switch k {
	case RelationshipOwnership, RelationshipServiceAgreement, RelationshipLoan, RelationshipOther:
		return true
	}
	return false
}

// Relationship links two organizations of the same tenant over an effective
// date range. Records are append-only: a superseded relationship gets an
// effective-to date, it is never deleted.
type Relationship struct {
	ID               id.RelationshipID `json:"id"`
	TenantID         id.TenantID       `json:"tenant_id"`
	FromOrgID        id.OrgID          `json:"from_organization_id"`
	ToOrgID          id.OrgID          `json:"to_organization_id"`
	Kind             RelationshipKind  `json:"kind"`
	OwnershipPercent *float64          `json:"ownership_percent,omitempty"`
	EffectiveFrom    time.Time         `json:"effective_from"`
	EffectiveTo      *time.Time        `json:"effective_to,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	CreatedBy        id.UserID         `json:"created_by"`
}

// Open reports whether the relationship has no end date yet.
func (r *Relationship) Open() bool {
	return r.EffectiveTo == nil
}

// Supersede closes the relationship at the given time. Idempotent on an
// already-closed record only if the caller checked Open first; the store
// rejects closing twice.
func (r *Relationship) Supersede(at time.Time) {
	end := at
	r.EffectiveTo = &end
}

// Clone returns a deep copy so stores never hand out aliased state.
func (r *Relationship) Clone() *Relationship {
	clone := *r
	if r.OwnershipPercent != nil {
		pct := *r.OwnershipPercent
		clone.OwnershipPercent = &pct
	}
	if r.EffectiveTo != nil {
		end := *r.EffectiveTo
		clone.EffectiveTo = &end
	}
	return &clone
}

// NewRelationship constructs an open relationship, validating model
// invariants. Both organizations must already be verified to exist in the
// tenant by the hierarchy service.
func NewRelationship(relID id.RelationshipID, tenantID id.TenantID, from, to id.OrgID, kind RelationshipKind, ownershipPercent *float64, effectiveFrom time.Time, actor id.UserID, now time.Time) (*Relationship, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "relationship requires a tenant id")
	}
	if from.IsNil() || to.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "relationship requires both organization ids")
	}
	if from == to {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "relationship must link two distinct organizations")
	}
	if !kind.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown relationship kind %q", kind)
	}
	if ownershipPercent != nil {
		if kind != RelationshipOwnership {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "ownership percent is only valid on ownership relationships")
		}
		if *ownershipPercent <= 0 || *ownershipPercent > 100 {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "ownership percent must be in (0, 100]")
		}
	}
	if effectiveFrom.IsZero() {
		effectiveFrom = now
	}
	rel := &Relationship{
		ID:            relID,
		TenantID:      tenantID,
		FromOrgID:     from,
		ToOrgID:       to,
		Kind:          kind,
		EffectiveFrom: effectiveFrom,
		CreatedAt:     now,
		CreatedBy:     actor,
	}
	if ownershipPercent != nil {
		pct := *ownershipPercent
		rel.OwnershipPercent = &pct
	}
	return rel, nil
}
