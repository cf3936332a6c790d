package service

import (
	"context"
	"testing"
	"time"

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

type RelationshipSuite struct {
	suite.Suite
	svc      *Service
	audits   *audit.InMemory
	ctx      context.Context
	tenantID id.TenantID
	from     *models.Organization
	to       *models.Organization
}

func (s *RelationshipSuite) SetupTest() {
	s.audits = audit.NewInMemory()
	s.svc = New(orgstore.NewInMemory(), relstore.NewInMemory(),
		audit.NewRecorder(s.audits), tx.NewInMemory())
	s.tenantID = id.NewTenantID()
	s.ctx = requestcontext.WithActorID(context.Background(), id.NewUserID())

	var err error
	s.from, err = s.svc.CreateOrganization(s.ctx, s.tenantID, CreateInput{
		Name: "Parent Co", Slug: "parent-co", OrgType: models.OrgTypeMother,
	})
	s.Require().NoError(err)
	s.to, err = s.svc.CreateOrganization(s.ctx, s.tenantID, CreateInput{
		Name: "Child Co", Slug: "child-co", OrgType: models.OrgTypeSubsidiary,
	})
	s.Require().NoError(err)
}

func TestRelationshipSuite(t *testing.T) {
	suite.Run(t, new(RelationshipSuite))
}

func (s *RelationshipSuite) TestAddRelationship() {
	s.Run("creates an open relationship with one audit event", func() {
		pct := 100.0
		rel, err := s.svc.AddRelationship(s.ctx, s.tenantID, RelationshipInput{
			FromOrgID: s.from.ID, ToOrgID: s.to.ID,
			Kind: models.RelationshipOwnership, OwnershipPercent: &pct,
		})
		s.Require().NoError(err)
		s.True(rel.Open())
		s.Equal(1, s.audits.Count(audit.EntityRelationship, rel.ID.String()))
	})

	s.Run("rejects self relationship", func() {
		_, err := s.svc.AddRelationship(s.ctx, s.tenantID, RelationshipInput{
			FromOrgID: s.from.ID, ToOrgID: s.from.ID, Kind: models.RelationshipLoan,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown organization fails", func() {
		_, err := s.svc.AddRelationship(s.ctx, s.tenantID, RelationshipInput{
			FromOrgID: s.from.ID, ToOrgID: id.NewOrgID(), Kind: models.RelationshipLoan,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *RelationshipSuite) TestSupersedeRejectsBackdatedStart() {
	pct := 60.0
	first, err := s.svc.AddRelationship(s.ctx, s.tenantID, RelationshipInput{
		FromOrgID: s.from.ID, ToOrgID: s.to.ID,
		Kind: models.RelationshipOwnership, OwnershipPercent: &pct,
		EffectiveFrom: time.Now().Add(-time.Hour),
	})
	s.Require().NoError(err)

	newPct := 80.0
	_, err = s.svc.AddRelationship(s.ctx, s.tenantID, RelationshipInput{
		FromOrgID: s.from.ID, ToOrgID: s.to.ID,
		Kind: models.RelationshipOwnership, OwnershipPercent: &newPct,
		EffectiveFrom: first.EffectiveFrom.Add(-time.Hour),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	// The open record stays untouched: still open, no second audit event.
	rels, err := s.svc.Relationships(s.ctx, s.tenantID, s.from.ID)
	s.Require().NoError(err)
	s.Require().Len(rels, 1)
	s.True(rels[0].Open())
	s.Equal(1, s.audits.Count(audit.EntityRelationship, first.ID.String()))
}

func (s *RelationshipSuite) TestSupersede() {
	pct := 60.0
	first, err := s.svc.AddRelationship(s.ctx, s.tenantID, RelationshipInput{
		FromOrgID: s.from.ID, ToOrgID: s.to.ID,
		Kind: models.RelationshipOwnership, OwnershipPercent: &pct,
		EffectiveFrom: time.Now().Add(-time.Hour),
	})
	s.Require().NoError(err)

	newPct := 80.0
	second, err := s.svc.AddRelationship(s.ctx, s.tenantID, RelationshipInput{
		FromOrgID: s.from.ID, ToOrgID: s.to.ID,
		Kind: models.RelationshipOwnership, OwnershipPercent: &newPct,
	})
	s.Require().NoError(err)

	s.Run("prior record is closed, not deleted", func() {
		rels, err := s.svc.Relationships(s.ctx, s.tenantID, s.from.ID)
		s.Require().NoError(err)
		s.Require().Len(rels, 2)

		byID := map[id.RelationshipID]*models.Relationship{}
		for _, rel := range rels {
			byID[rel.ID] = rel
		}
		s.False(byID[first.ID].Open())
		s.True(byID[second.ID].Open())
		s.Equal(second.EffectiveFrom, *byID[first.ID].EffectiveTo)
	})

	s.Run("supersede and insert each get an audit event", func() {
		s.Equal(2, s.audits.Count(audit.EntityRelationship, first.ID.String())) // insert + update
		s.Equal(1, s.audits.Count(audit.EntityRelationship, second.ID.String()))
	})

	s.Run("different kind does not supersede", func() {
		loan, err := s.svc.AddRelationship(s.ctx, s.tenantID, RelationshipInput{
			FromOrgID: s.from.ID, ToOrgID: s.to.ID, Kind: models.RelationshipLoan,
		})
		s.Require().NoError(err)
		s.True(loan.Open())

		rels, err := s.svc.Relationships(s.ctx, s.tenantID, s.from.ID)
		s.Require().NoError(err)
		open := 0
		for _, rel := range rels {
			if rel.Open() {
				open++
			}
		}
		s.Equal(2, open) // the new ownership record and the loan
	})
}
