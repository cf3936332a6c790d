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

// CreateInput carries the fields required to register an organization.
type CreateInput struct {
	Name       string
	Slug       string
	OrgType    models.OrgType
	EntityType models.EntityType
	ParentID   *id.OrgID
}

// CreateOrganization registers a new active organization and records one
// INSERT audit event in the same transaction. A taken slug within the tenant
// fails with CodeDuplicateSlug; a missing parent with CodeNotFound.
func (s *Service) CreateOrganization(ctx context.Context, tenantID id.TenantID, in CreateInput) (*models.Organization, error) {
	if err := requireTenantID(tenantID); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "org.CreateOrganization")
	defer span.End()

	var created *models.Organization
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		actor := requestcontext.ActorID(txCtx)

		if in.ParentID != nil {
			parent, err := s.orgs.FindByID(txCtx, tenantID, *in.ParentID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodeNotFound, "parent organization not found")
				}
				return wrapOrgErr(err)
			}
			if err := s.ensureTenant(txCtx, tenantID, parent); err != nil {
				return err
			}
		}

		org, err := models.NewOrganization(id.NewOrgID(), tenantID, in.Name, in.Slug,
			in.OrgType, in.EntityType, in.ParentID, actor, now)
		if err != nil {
			return err
		}
		if err := s.orgs.CreateIfSlugAvailable(txCtx, org); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeDuplicateSlug, "slug %q is already taken in this tenant", in.Slug)
			}
			return wrapOrgErr(err)
		}
		if _, err := s.recorder.Record(txCtx, audit.Entry{
			TenantID: tenantID,
			Entity:   audit.EntityOrganization,
			RecordID: org.ID.String(),
			Action:   audit.ActionInsert,
			New:      org,
		}); err != nil {
			return err
		}
		created = org
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.incrementCreated()
	s.logger.InfoContext(ctx, "organization created",
		"tenant_id", tenantID, "org_id", created.ID, "slug", created.Slug)
	return created, nil
}

// SetParent re-points an organization's parent link. It validates same-tenant
// membership, rejects self-parenting, and walks the existing parent chain
// upward from the new parent; if the organization appears in that walk the
// change fails with CodeCycleDetected. Passing nil detaches the organization
// to root level. One UPDATE audit event is recorded in the same transaction.
func (s *Service) SetParent(ctx context.Context, tenantID id.TenantID, orgID id.OrgID, parentID *id.OrgID) (*models.Organization, error) {
	if err := requireTenantID(tenantID); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "org.SetParent")
	defer span.End()
	start := time.Now()
	defer s.observeSetParent(start)

	var updated *models.Organization
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		actor := requestcontext.ActorID(txCtx)

		if parentID != nil {
			if *parentID == orgID {
				s.incrementCycleRejections()
				return dErrors.New(dErrors.CodeCycleDetected, "organization cannot be its own parent")
			}
			parent, err := s.orgs.FindByID(txCtx, tenantID, *parentID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodeNotFound, "parent organization not found")
				}
				return wrapOrgErr(err)
			}
			if err := s.ensureTenant(txCtx, tenantID, parent); err != nil {
				return err
			}
			if err := s.checkNoCycle(txCtx, tenantID, orgID, parent); err != nil {
				return err
			}
		}

		before, after, err := s.orgs.Execute(txCtx, tenantID, orgID,
			func(org *models.Organization) error {
				return org.CanMutate()
			},
			func(org *models.Organization) {
				org.ApplyParent(parentID, actor, now)
			},
		)
		if err != nil {
			return wrapOrgErr(err)
		}
		if _, err := s.recorder.Record(txCtx, audit.Entry{
			TenantID: tenantID,
			Entity:   audit.EntityOrganization,
			RecordID: orgID.String(),
			Action:   audit.ActionUpdate,
			Old:      before,
			New:      after,
		}); err != nil {
			return err
		}
		updated = after
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.incrementParentChanges()
	return updated, nil
}

// checkNoCycle walks upward from the proposed parent through existing parent
// links. Finding orgID in the walk means the change would close a loop. The
// visited set also terminates the walk on previously-corrupted data instead
// of spinning.
func (s *Service) checkNoCycle(ctx context.Context, tenantID id.TenantID, orgID id.OrgID, parent *models.Organization) error {
	visited := map[id.OrgID]struct{}{}
	current := parent
	for {
		if current.ID == orgID {
			s.incrementCycleRejections()
			return dErrors.New(dErrors.CodeCycleDetected, "parent change would make the organization its own ancestor")
		}
		if _, seen := visited[current.ID]; seen {
			s.logger.ErrorContext(ctx, "corrupted hierarchy cycle found during parent walk",
				"tenant_id", tenantID, "org_id", current.ID)
			return dErrors.New(dErrors.CodeCycleDetected, "existing hierarchy contains a cycle")
		}
		visited[current.ID] = struct{}{}

		if current.ParentID == nil {
			return nil
		}
		next, err := s.orgs.FindByID(ctx, tenantID, *current.ParentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				// Dangling parent link; the chain ends here.
				return nil
			}
			return wrapOrgErr(err)
		}
		if err := s.ensureTenant(ctx, tenantID, next); err != nil {
			return err
		}
		current = next
	}
}

// Rename is the explicit slug-change path: the slug is immutable by
// convention outside this operation, which re-validates per-tenant
// uniqueness before applying.
func (s *Service) Rename(ctx context.Context, tenantID id.TenantID, orgID id.OrgID, newName, newSlug string) (*models.Organization, error) {
	if err := requireTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := models.ValidateName(newName); err != nil {
		return nil, err
	}
	if err := models.ValidateSlug(newSlug); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "org.Rename")
	defer span.End()

	var updated *models.Organization
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		actor := requestcontext.ActorID(txCtx)

		holder, err := s.orgs.FindBySlug(txCtx, tenantID, newSlug)
		if err == nil && holder.ID != orgID {
			return dErrors.Newf(dErrors.CodeDuplicateSlug, "slug %q is already taken in this tenant", newSlug)
		}
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return wrapOrgErr(err)
		}

		before, after, err := s.orgs.Execute(txCtx, tenantID, orgID,
			func(org *models.Organization) error {
				return org.CanMutate()
			},
			func(org *models.Organization) {
				org.ApplyRename(newName, newSlug, actor, now)
			},
		)
		if err != nil {
			// The unique constraint is the authority under concurrency.
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeDuplicateSlug, "slug %q is already taken in this tenant", newSlug)
			}
			return wrapOrgErr(err)
		}
		if _, err := s.recorder.Record(txCtx, audit.Entry{
			TenantID: tenantID,
			Entity:   audit.EntityOrganization,
			RecordID: orgID.String(),
			Action:   audit.ActionUpdate,
			Old:      before,
			New:      after,
		}); err != nil {
			return err
		}
		updated = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateStatus moves the organization through its status machine. Illegal
// moves fail with CodeIllegalTransition; archived is terminal.
func (s *Service) UpdateStatus(ctx context.Context, tenantID id.TenantID, orgID id.OrgID, next models.Status) (*models.Organization, error) {
	if err := requireTenantID(tenantID); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "org.UpdateStatus")
	defer span.End()

	var updated *models.Organization
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		actor := requestcontext.ActorID(txCtx)

		before, after, err := s.orgs.Execute(txCtx, tenantID, orgID,
			func(org *models.Organization) error {
				return org.CanTransitionTo(next)
			},
			func(org *models.Organization) {
				org.ApplyStatus(next, actor, now)
			},
		)
		if err != nil {
			return wrapOrgErr(err)
		}
		if _, err := s.recorder.Record(txCtx, audit.Entry{
			TenantID: tenantID,
			Entity:   audit.EntityOrganization,
			RecordID: orgID.String(),
			Action:   audit.ActionUpdate,
			Old:      before,
			New:      after,
		}); err != nil {
			return err
		}
		updated = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Archive soft-deletes the organization. Children keep their parent links,
// compliance items stay in flight, and relationships are not severed.
func (s *Service) Archive(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) (*models.Organization, error) {
	return s.UpdateStatus(ctx, tenantID, orgID, models.StatusArchived)
}

// GetOrganization fetches one organization within the tenant.
func (s *Service) GetOrganization(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) (*models.Organization, error) {
	if err := requireTenantID(tenantID); err != nil {
		return nil, err
	}
	org, err := s.orgs.FindByID(ctx, tenantID, orgID)
	if err != nil {
		return nil, wrapOrgErr(err)
	}
	return org, nil
}

// Ancestors returns the chain above the organization, root first. Traversal
// tracks visited ids and fails with CodeCycleDetected on corrupted data
// rather than looping.
func (s *Service) Ancestors(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*models.Organization, error) {
	if err := requireTenantID(tenantID); err != nil {
		return nil, err
	}
	start := time.Now()
	defer s.observeTraversal(start)

	org, err := s.orgs.FindByID(ctx, tenantID, orgID)
	if err != nil {
		return nil, wrapOrgErr(err)
	}

	visited := map[id.OrgID]struct{}{org.ID: {}}
	chain := make([]*models.Organization, 0)
	current := org
	for current.ParentID != nil {
		parent, err := s.orgs.FindByID(ctx, tenantID, *current.ParentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				break
			}
			return nil, wrapOrgErr(err)
		}
		if _, seen := visited[parent.ID]; seen {
			s.logger.ErrorContext(ctx, "corrupted hierarchy cycle found during ancestor walk",
				"tenant_id", tenantID, "org_id", parent.ID)
			return nil, dErrors.New(dErrors.CodeCycleDetected, "existing hierarchy contains a cycle")
		}
		visited[parent.ID] = struct{}{}
		chain = append(chain, parent)
		current = parent
	}

	// Walked leaf-to-root; callers get root first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Descendants returns every organization below the given one, breadth first.
// Depth is bounded only by tenant size; the visited set is the safety net
// against corrupted cycles.
func (s *Service) Descendants(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*models.Organization, error) {
	if err := requireTenantID(tenantID); err != nil {
		return nil, err
	}
	start := time.Now()
	defer s.observeTraversal(start)

	if _, err := s.orgs.FindByID(ctx, tenantID, orgID); err != nil {
		return nil, wrapOrgErr(err)
	}

	visited := map[id.OrgID]struct{}{orgID: {}}
	result := make([]*models.Organization, 0)
	queue := []id.OrgID{orgID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := s.orgs.ListChildren(ctx, tenantID, current)
		if err != nil {
			return nil, wrapOrgErr(err)
		}
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				s.logger.ErrorContext(ctx, "corrupted hierarchy cycle found during descendant walk",
					"tenant_id", tenantID, "org_id", child.ID)
				return nil, dErrors.New(dErrors.CodeCycleDetected, "existing hierarchy contains a cycle")
			}
			visited[child.ID] = struct{}{}
			result = append(result, child)
			queue = append(queue, child.ID)
		}
	}
	return result, nil
}
