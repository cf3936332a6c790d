package service

import (
	"context"
	"errors"
	"time"

	"orgcore/internal/audit"
	"orgcore/internal/org/models"
	id "orgcore/pkg/domain"
	dErrors "orgcore/pkg/domain-errors"
	"orgcore/pkg/platform/sentinel"
	"orgcore/pkg/requestcontext"
)

// RelationshipInput describes a new intercompany relationship.
type RelationshipInput struct {
	FromOrgID        id.OrgID
	ToOrgID          id.OrgID
	Kind             models.RelationshipKind
	OwnershipPercent *float64
	EffectiveFrom    time.Time
}

// AddRelationship links two distinct organizations of the tenant. When an
// open relationship of the same kind already exists between the pair, it is
// superseded: its effective-to date is set to the new record's effective-from
// rather than deleting it. Audit events are recorded for both the superseded
// record (UPDATE) and the new one (INSERT) in the same transaction.
func (s *Service) AddRelationship(ctx context.Context, tenantID id.TenantID, in RelationshipInput) (*models.Relationship, error) {
	if err := requireTenantID(tenantID); err != nil {
		return nil, err
	}
	if in.FromOrgID == in.ToOrgID {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "relationship must link two distinct organizations")
	}
	ctx, span := s.tracer.Start(ctx, "org.AddRelationship")
	defer span.End()

	var created *models.Relationship
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		actor := requestcontext.ActorID(txCtx)

		for _, orgID := range []id.OrgID{in.FromOrgID, in.ToOrgID} {
			org, err := s.orgs.FindByID(txCtx, tenantID, orgID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.Newf(dErrors.CodeNotFound, "organization %s not found", orgID)
				}
				return wrapOrgErr(err)
			}
			if err := s.ensureTenant(txCtx, tenantID, org); err != nil {
				return err
			}
		}

		rel, err := models.NewRelationship(id.NewRelationshipID(), tenantID,
			in.FromOrgID, in.ToOrgID, in.Kind, in.OwnershipPercent, in.EffectiveFrom, actor, now)
		if err != nil {
			return err
		}

		prior, err := s.rels.FindOpen(txCtx, tenantID, in.FromOrgID, in.ToOrgID, in.Kind)
		switch {
		case err == nil:
			// Closing the prior record at an instant before it began would
			// leave it with a negative effective window.
			if rel.EffectiveFrom.Before(prior.EffectiveFrom) {
				return dErrors.Newf(dErrors.CodeInvalidInput,
					"effective-from %s predates the open relationship it would supersede", rel.EffectiveFrom.Format(time.RFC3339))
			}
			superseded, err := s.rels.Supersede(txCtx, tenantID, prior.ID, rel.EffectiveFrom)
			if err != nil {
				return wrapRelErr(err)
			}
			if _, err := s.recorder.Record(txCtx, audit.Entry{
				TenantID: tenantID,
				Entity:   audit.EntityRelationship,
				RecordID: prior.ID.String(),
				Action:   audit.ActionUpdate,
				Old:      prior,
				New:      superseded,
			}); err != nil {
				return err
			}
		case errors.Is(err, sentinel.ErrNotFound):
			// First relationship of this kind between the pair.
		default:
			return wrapRelErr(err)
		}

		if err := s.rels.Create(txCtx, rel); err != nil {
			return wrapRelErr(err)
		}
		if _, err := s.recorder.Record(txCtx, audit.Entry{
			TenantID: tenantID,
			Entity:   audit.EntityRelationship,
			RecordID: rel.ID.String(),
			Action:   audit.ActionInsert,
			New:      rel,
		}); err != nil {
			return err
		}
		created = rel
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.incrementRelationships()
	s.logger.InfoContext(ctx, "intercompany relationship created",
		"tenant_id", tenantID, "relationship_id", created.ID, "kind", created.Kind)
	return created, nil
}

// Relationships lists every relationship record touching the organization,
// oldest first, including superseded history.
func (s *Service) Relationships(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*models.Relationship, error) {
	if err := requireTenantID(tenantID); err != nil {
		return nil, err
	}
	if _, err := s.orgs.FindByID(ctx, tenantID, orgID); err != nil {
		return nil, wrapOrgErr(err)
	}
	rels, err := s.rels.ListByOrg(ctx, tenantID, orgID)
	if err != nil {
		return nil, wrapRelErr(err)
	}
	return rels, nil
}

func wrapRelErr(err error) error {
	var typed *dErrors.Error
	switch {
	case errors.As(err, &typed):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "relationship not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeConflict, "relationship is already superseded")
	default:
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "relationship store failed")
	}
}
