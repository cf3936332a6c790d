package organization

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"orgcore/internal/org/models"
	id "orgcore/pkg/domain"
	"orgcore/pkg/platform/sentinel"
)

type OrganizationStoreSuite struct {
	suite.Suite
	store    *InMemory
	ctx      context.Context
	tenantID id.TenantID
}

func (s *OrganizationStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.tenantID = id.NewTenantID()
}

func TestOrganizationStoreSuite(t *testing.T) {
	suite.Run(t, new(OrganizationStoreSuite))
}

func (s *OrganizationStoreSuite) newOrg(tenantID id.TenantID, name, slug string) *models.Organization {
	org, err := models.NewOrganization(id.NewOrgID(), tenantID, name, slug,
		models.OrgTypeSubsidiary, models.EntityTypeOperating, nil, id.NewUserID(), time.Now())
	s.Require().NoError(err)
	return org
}

func (s *OrganizationStoreSuite) TestSlugUniqueness() {
	s.Run("rejects duplicate slug within tenant", func() {
		first := s.newOrg(s.tenantID, "Acme", "acme")
		second := s.newOrg(s.tenantID, "Acme Two", "acme")

		s.Require().NoError(s.store.CreateIfSlugAvailable(s.ctx, first))
		s.Require().ErrorIs(s.store.CreateIfSlugAvailable(s.ctx, second), sentinel.ErrConflict)
	})

	s.Run("same slug allowed across tenants", func() {
		s.Require().NoError(s.store.CreateIfSlugAvailable(s.ctx, s.newOrg(s.tenantID, "Acme", "shared")))
		s.Require().NoError(s.store.CreateIfSlugAvailable(s.ctx, s.newOrg(id.NewTenantID(), "Other Acme", "shared")))
	})
}

func (s *OrganizationStoreSuite) TestTenantScopedReads() {
	org := s.newOrg(s.tenantID, "Acme", "acme")
	s.Require().NoError(s.store.CreateIfSlugAvailable(s.ctx, org))

	s.Run("finds within tenant", func() {
		found, err := s.store.FindByID(s.ctx, s.tenantID, org.ID)
		s.Require().NoError(err)
		s.Equal(org.Slug, found.Slug)
	})

	s.Run("other tenant sees not found", func() {
		_, err := s.store.FindByID(s.ctx, id.NewTenantID(), org.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		_, err = s.store.FindBySlug(s.ctx, id.NewTenantID(), org.Slug)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("reads return copies", func() {
		found, err := s.store.FindByID(s.ctx, s.tenantID, org.ID)
		s.Require().NoError(err)
		found.Name = "Mutated"

		again, err := s.store.FindByID(s.ctx, s.tenantID, org.ID)
		s.Require().NoError(err)
		s.Equal("Acme", again.Name)
	})
}

func (s *OrganizationStoreSuite) TestListByTenant() {
	for _, spec := range []struct{ name, slug string }{
		{"Alpha", "alpha"}, {"Beta", "beta"}, {"Gamma", "gamma"},
	} {
		s.Require().NoError(s.store.CreateIfSlugAvailable(s.ctx, s.newOrg(s.tenantID, spec.name, spec.slug)))
	}
	archived := s.newOrg(s.tenantID, "Ancient", "ancient")
	archived.Status = models.StatusArchived
	s.Require().NoError(s.store.CreateIfSlugAvailable(s.ctx, archived))

	s.Run("orders by name and excludes archived", func() {
		orgs, total, err := s.store.ListByTenant(s.ctx, s.tenantID, models.ListFilter{})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Require().Len(orgs, 3)
		s.Equal("Alpha", orgs[0].Name)
		s.Equal("Gamma", orgs[2].Name)
	})

	s.Run("paginates with stable total", func() {
		orgs, total, err := s.store.ListByTenant(s.ctx, s.tenantID, models.ListFilter{Limit: 2})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Len(orgs, 2)

		rest, total, err := s.store.ListByTenant(s.ctx, s.tenantID, models.ListFilter{Limit: 2, Offset: 2})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Require().Len(rest, 1)
		s.Equal("Gamma", rest[0].Name)
	})

	s.Run("includes archived on request", func() {
		_, total, err := s.store.ListByTenant(s.ctx, s.tenantID, models.ListFilter{IncludeArchived: true})
		s.Require().NoError(err)
		s.Equal(4, total)
	})
}

func (s *OrganizationStoreSuite) TestListChildren() {
	parent := s.newOrg(s.tenantID, "Parent", "parent")
	s.Require().NoError(s.store.CreateIfSlugAvailable(s.ctx, parent))

	for _, slug := range []string{"child-a", "child-b"} {
		child := s.newOrg(s.tenantID, "Child "+slug, slug)
		child.ParentID = &parent.ID
		s.Require().NoError(s.store.CreateIfSlugAvailable(s.ctx, child))
	}

	children, err := s.store.ListChildren(s.ctx, s.tenantID, parent.ID)
	s.Require().NoError(err)
	s.Len(children, 2)

	none, err := s.store.ListChildren(s.ctx, id.NewTenantID(), parent.ID)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *OrganizationStoreSuite) TestExecute() {
	org := s.newOrg(s.tenantID, "Acme", "acme")
	s.Require().NoError(s.store.CreateIfSlugAvailable(s.ctx, org))

	s.Run("returns before and after snapshots", func() {
		before, after, err := s.store.Execute(s.ctx, s.tenantID, org.ID,
			func(*models.Organization) error { return nil },
			func(o *models.Organization) { o.Status = models.StatusInactive })
		s.Require().NoError(err)
		s.Equal(models.StatusActive, before.Status)
		s.Equal(models.StatusInactive, after.Status)

		stored, err := s.store.FindByID(s.ctx, s.tenantID, org.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusInactive, stored.Status)
	})

	s.Run("validate failure leaves record untouched", func() {
		wantErr := sentinel.ErrInvalidState
		_, _, err := s.store.Execute(s.ctx, s.tenantID, org.ID,
			func(*models.Organization) error { return wantErr },
			func(o *models.Organization) { o.Name = "Never" })
		s.Require().ErrorIs(err, wantErr)

		stored, err := s.store.FindByID(s.ctx, s.tenantID, org.ID)
		s.Require().NoError(err)
		s.Equal("Acme", stored.Name)
	})

	s.Run("slug change re-checks uniqueness", func() {
		other := s.newOrg(s.tenantID, "Other", "other")
		s.Require().NoError(s.store.CreateIfSlugAvailable(s.ctx, other))

		_, _, err := s.store.Execute(s.ctx, s.tenantID, org.ID,
			func(*models.Organization) error { return nil },
			func(o *models.Organization) { o.Slug = "other" })
		s.Require().ErrorIs(err, sentinel.ErrConflict)

		// the old slug index entry must survive the failed rename
		found, err := s.store.FindBySlug(s.ctx, s.tenantID, "acme")
		s.Require().NoError(err)
		s.Equal(org.ID, found.ID)
	})

	s.Run("wrong tenant cannot execute", func() {
		_, _, err := s.store.Execute(s.ctx, id.NewTenantID(), org.ID,
			func(*models.Organization) error { return nil },
			func(*models.Organization) {})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}
