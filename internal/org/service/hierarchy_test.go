package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"orgcore/internal/audit"
	"orgcore/internal/org/models"
	orgstore "orgcore/internal/org/store/organization"
	relstore "orgcore/internal/org/store/relationship"
	id "orgcore/pkg/domain"
	dErrors "orgcore/pkg/domain-errors"
	"orgcore/pkg/platform/tx"
	"orgcore/pkg/requestcontext"
)

type HierarchySuite struct {
	suite.Suite
	svc      *Service
	orgs     *orgstore.InMemory
	audits   *audit.InMemory
	ctx      context.Context
	tenantID id.TenantID
	actor    id.UserID
}

func (s *HierarchySuite) SetupTest() {
	s.orgs = orgstore.NewInMemory()
	s.audits = audit.NewInMemory()
	s.svc = New(s.orgs, relstore.NewInMemory(), audit.NewRecorder(s.audits), tx.NewInMemory())
	s.tenantID = id.NewTenantID()
	s.actor = id.NewUserID()
	s.ctx = requestcontext.WithActorID(context.Background(), s.actor)
}

func TestHierarchySuite(t *testing.T) {
	suite.Run(t, new(HierarchySuite))
}

func (s *HierarchySuite) create(slug string, parentID *id.OrgID) *models.Organization {
	org, err := s.svc.CreateOrganization(s.ctx, s.tenantID, CreateInput{
		Name:     "Org " + slug,
		Slug:     slug,
		OrgType:  models.OrgTypeSubsidiary,
		ParentID: parentID,
	})
	s.Require().NoError(err)
	return org
}

// chain builds root <- mid <- leaf with prefixed slugs and returns all three.
func (s *HierarchySuite) chain(prefix string) (root, mid, leaf *models.Organization) {
	root = s.create(prefix+"-root", nil)
	mid = s.create(prefix+"-mid", &root.ID)
	leaf = s.create(prefix+"-leaf", &mid.ID)
	return root, mid, leaf
}

func (s *HierarchySuite) TestCreateOrganization() {
	s.Run("records exactly one insert audit event", func() {
		org := s.create("acme", nil)
		s.Equal(1, s.audits.Count(audit.EntityOrganization, org.ID.String()))
	})

	s.Run("duplicate slug in tenant fails without an audit event", func() {
		s.create("taken", nil)
		before := s.audits.Count(audit.EntityOrganization, "")

		_, err := s.svc.CreateOrganization(s.ctx, s.tenantID, CreateInput{
			Name: "Other", Slug: "taken", OrgType: models.OrgTypeBranch,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateSlug))
		s.Equal(before, s.audits.Count(audit.EntityOrganization, ""))
	})

	s.Run("same slug in another tenant succeeds", func() {
		s.create("shared", nil)
		_, err := s.svc.CreateOrganization(s.ctx, id.NewTenantID(), CreateInput{
			Name: "Other Tenant", Slug: "shared", OrgType: models.OrgTypeMother,
		})
		s.NoError(err)
	})

	s.Run("missing parent fails with not found", func() {
		missing := id.NewOrgID()
		_, err := s.svc.CreateOrganization(s.ctx, s.tenantID, CreateInput{
			Name: "Orphan", Slug: "orphan", OrgType: models.OrgTypeBranch, ParentID: &missing,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("parent from another tenant is invisible", func() {
		foreign := s.svcCreateInTenant(id.NewTenantID(), "foreign-parent")
		_, err := s.svc.CreateOrganization(s.ctx, s.tenantID, CreateInput{
			Name: "Child", Slug: "cross-child", OrgType: models.OrgTypeBranch, ParentID: &foreign.ID,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *HierarchySuite) svcCreateInTenant(tenantID id.TenantID, slug string) *models.Organization {
	org, err := s.svc.CreateOrganization(s.ctx, tenantID, CreateInput{
		Name: "Org " + slug, Slug: slug, OrgType: models.OrgTypeMother,
	})
	s.Require().NoError(err)
	return org
}

func (s *HierarchySuite) TestSetParent() {
	s.Run("rejects self parent", func() {
		org := s.create("selfie", nil)
		_, err := s.svc.SetParent(s.ctx, s.tenantID, org.ID, &org.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCycleDetected))
	})

	s.Run("rejects reparenting an ancestor under its descendant", func() {
		root, _, leaf := s.chain("cyc")
		_, err := s.svc.SetParent(s.ctx, s.tenantID, root.ID, &leaf.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCycleDetected))

		// the rejected change left no trace
		current, getErr := s.svc.GetOrganization(s.ctx, s.tenantID, root.ID)
		s.Require().NoError(getErr)
		s.Nil(current.ParentID)
	})

	s.Run("moving a subtree keeps ancestors consistent", func() {
		root, _, leaf := s.chain("move")
		other := s.create("other-root", nil)

		moved, err := s.svc.SetParent(s.ctx, s.tenantID, leaf.ID, &other.ID)
		s.Require().NoError(err)
		s.Equal(other.ID, *moved.ParentID)

		ancestors, err := s.svc.Ancestors(s.ctx, s.tenantID, leaf.ID)
		s.Require().NoError(err)
		s.Require().Len(ancestors, 1)
		s.Equal(other.ID, ancestors[0].ID)

		_ = root
	})

	s.Run("detaching to root level", func() {
		_, mid, _ := s.chain("detach")
		detached, err := s.svc.SetParent(s.ctx, s.tenantID, mid.ID, nil)
		s.Require().NoError(err)
		s.Nil(detached.ParentID)
	})

	s.Run("records one update audit event with snapshots", func() {
		a := s.create("audit-a", nil)
		b := s.create("audit-b", nil)
		_, err := s.svc.SetParent(s.ctx, s.tenantID, b.ID, &a.ID)
		s.Require().NoError(err)
		s.Equal(2, s.audits.Count(audit.EntityOrganization, b.ID.String())) // insert + update
	})

	s.Run("archived organization rejects the change", func() {
		org := s.create("frozen", nil)
		parent := s.create("frozen-parent", nil)
		_, err := s.svc.Archive(s.ctx, s.tenantID, org.ID)
		s.Require().NoError(err)

		_, err = s.svc.SetParent(s.ctx, s.tenantID, org.ID, &parent.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *HierarchySuite) TestTraversals() {
	root, mid, leaf := s.chain("trav")
	sibling := s.create("sibling", &root.ID)

	s.Run("ancestors are root first", func() {
		ancestors, err := s.svc.Ancestors(s.ctx, s.tenantID, leaf.ID)
		s.Require().NoError(err)
		s.Require().Len(ancestors, 2)
		s.Equal(root.ID, ancestors[0].ID)
		s.Equal(mid.ID, ancestors[1].ID)
	})

	s.Run("root has no ancestors", func() {
		ancestors, err := s.svc.Ancestors(s.ctx, s.tenantID, root.ID)
		s.Require().NoError(err)
		s.Empty(ancestors)
	})

	s.Run("descendants cover the whole subtree", func() {
		descendants, err := s.svc.Descendants(s.ctx, s.tenantID, root.ID)
		s.Require().NoError(err)
		s.Len(descendants, 3)

		ids := make(map[id.OrgID]bool)
		for _, d := range descendants {
			ids[d.ID] = true
		}
		s.True(ids[mid.ID] && ids[leaf.ID] && ids[sibling.ID])
	})

	s.Run("leaf has no descendants", func() {
		descendants, err := s.svc.Descendants(s.ctx, s.tenantID, leaf.ID)
		s.Require().NoError(err)
		s.Empty(descendants)
	})
}

func (s *HierarchySuite) TestTraversalsOnCorruptedHierarchy() {
	a := s.create("loop-a", nil)
	b := s.create("loop-b", &a.ID)

	// Wire a's parent back to b directly through the store, producing the
	// kind of loop SetParent would have rejected.
	_, _, err := s.orgs.Execute(s.ctx, s.tenantID, a.ID,
		func(*models.Organization) error { return nil },
		func(org *models.Organization) {
			parentID := b.ID
			org.ParentID = &parentID
		},
	)
	s.Require().NoError(err)

	s.Run("ancestor walk fails instead of looping", func() {
		_, err := s.svc.Ancestors(s.ctx, s.tenantID, b.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCycleDetected))
	})

	s.Run("descendant walk fails instead of looping", func() {
		_, err := s.svc.Descendants(s.ctx, s.tenantID, a.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCycleDetected))
	})
}

func (s *HierarchySuite) TestRename() {
	s.Run("changes name and slug", func() {
		org := s.create("old-slug", nil)
		renamed, err := s.svc.Rename(s.ctx, s.tenantID, org.ID, "New Name", "new-slug")
		s.Require().NoError(err)
		s.Equal("new-slug", renamed.Slug)

		found, err := s.svc.GetOrganization(s.ctx, s.tenantID, org.ID)
		s.Require().NoError(err)
		s.Equal("New Name", found.Name)
	})

	s.Run("rejects a slug already taken in the tenant", func() {
		s.create("holder", nil)
		victim := s.create("victim", nil)
		_, err := s.svc.Rename(s.ctx, s.tenantID, victim.ID, "Victim", "holder")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateSlug))
	})

	s.Run("renaming to the current slug is allowed", func() {
		org := s.create("keeper", nil)
		_, err := s.svc.Rename(s.ctx, s.tenantID, org.ID, "Renamed Keeper", "keeper")
		s.NoError(err)
	})

	s.Run("rejects malformed slug", func() {
		org := s.create("shaped", nil)
		_, err := s.svc.Rename(s.ctx, s.tenantID, org.ID, "Shaped", "Not A Slug")
		s.Require().Error(err)
	})

	s.Run("rejects an empty name", func() {
		org := s.create("named", nil)
		_, err := s.svc.Rename(s.ctx, s.tenantID, org.ID, "", "named-renamed")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

		found, err := s.svc.GetOrganization(s.ctx, s.tenantID, org.ID)
		s.Require().NoError(err)
		s.Equal("Org named", found.Name)
		s.Equal("named", found.Slug)
	})
}

func (s *HierarchySuite) TestArchive() {
	s.Run("archive does not cascade to children", func() {
		root, mid, leaf := s.chain("arch")
		_, err := s.svc.Archive(s.ctx, s.tenantID, root.ID)
		s.Require().NoError(err)

		child, err := s.svc.GetOrganization(s.ctx, s.tenantID, mid.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, child.Status)
		s.Equal(root.ID, *child.ParentID)

		// traversal through the archived node still works
		ancestors, err := s.svc.Ancestors(s.ctx, s.tenantID, leaf.ID)
		s.Require().NoError(err)
		s.Len(ancestors, 2)
	})

	s.Run("archived is terminal", func() {
		org := s.create("terminal", nil)
		_, err := s.svc.Archive(s.ctx, s.tenantID, org.ID)
		s.Require().NoError(err)

		_, err = s.svc.UpdateStatus(s.ctx, s.tenantID, org.ID, models.StatusActive)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeIllegalTransition))
	})

	s.Run("status machine rejects suspended to inactive", func() {
		org := s.create("machine", nil)
		_, err := s.svc.UpdateStatus(s.ctx, s.tenantID, org.ID, models.StatusSuspended)
		s.Require().NoError(err)

		_, err = s.svc.UpdateStatus(s.ctx, s.tenantID, org.ID, models.StatusInactive)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeIllegalTransition))
	})
}

func (s *HierarchySuite) TestTenantIsolation() {
	org := s.create("isolated", nil)

	_, err := s.svc.GetOrganization(s.ctx, id.NewTenantID(), org.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.svc.SetParent(s.ctx, id.NewTenantID(), org.ID, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
