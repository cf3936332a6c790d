// Package relationship persists intercompany relationship records. The
// tables are append-only: superseding sets an end date, nothing is deleted.
package relationship

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"orgcore/internal/org/models"
	id "orgcore/pkg/domain"
	"orgcore/pkg/platform/sentinel"
)

// InMemory keeps relationship records in a slice guarded by a mutex.
type InMemory struct {
	mu   sync.RWMutex
	byID map[id.RelationshipID]*models.Relationship
}

func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[id.RelationshipID]*models.Relationship)}
}

func (s *InMemory) Create(_ context.Context, rel *models.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[rel.ID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[rel.ID] = rel.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID, relID id.RelationshipID) (*models.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rel, ok := s.byID[relID]
	if !ok || rel.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return rel.Clone(), nil
}

// FindOpen returns the open (no end date) relationship of the given kind
// between the two organizations, if any.
func (s *InMemory) FindOpen(_ context.Context, tenantID id.TenantID, from, to id.OrgID, kind models.RelationshipKind) (*models.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rel := range s.byID {
		if rel.TenantID == tenantID && rel.FromOrgID == from && rel.ToOrgID == to &&
			rel.Kind == kind && rel.Open() {
			return rel.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Supersede closes an open relationship at the given time. Closing an
// already-closed record is an invalid state, never an update.
func (s *InMemory) Supersede(_ context.Context, tenantID id.TenantID, relID id.RelationshipID, at time.Time) (*models.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.byID[relID]
	if !ok || rel.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	if !rel.Open() {
		return nil, sentinel.ErrInvalidState
	}
	updated := rel.Clone()
	updated.Supersede(at)
	s.byID[relID] = updated
	return updated.Clone(), nil
}

func (s *InMemory) ListByOrg(_ context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*models.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Relationship, 0)
	for _, rel := range s.byID {
		if rel.TenantID != tenantID {
			continue
		}
		if rel.FromOrgID != orgID && rel.ToOrgID != orgID {
			continue
		}
		matched = append(matched, rel.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].EffectiveFrom.Equal(matched[j].EffectiveFrom) {
			return matched[i].EffectiveFrom.Before(matched[j].EffectiveFrom)
		}
		a, b := uuid.UUID(matched[i].ID), uuid.UUID(matched[j].ID)
		return bytes.Compare(a[:], b[:]) < 0
	})
	return matched, nil
}
