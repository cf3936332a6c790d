// Package organization holds the persistence implementations for the
// organization aggregate. The InMemory store backs unit tests; Postgres is
// the production store. Both enforce per-tenant slug uniqueness and
// tenant-scoped reads.
package organization

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"orgcore/internal/org/models"
	id "orgcore/pkg/domain"
	"orgcore/pkg/platform/sentinel"
)

type slugKey struct {
	tenantID id.TenantID
	slug     string
}

// InMemory keeps organizations in a map guarded by one mutex. All reads and
// writes copy, so callers never alias store state.
type InMemory struct {
	mu     sync.RWMutex
	byID   map[id.OrgID]*models.Organization
	bySlug map[slugKey]id.OrgID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[id.OrgID]*models.Organization),
		bySlug: make(map[slugKey]id.OrgID),
	}
}

// CreateIfSlugAvailable inserts the organization unless its slug is already
// taken within the tenant, in which case it returns sentinel.ErrConflict.
func (s *InMemory) CreateIfSlugAvailable(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := slugKey{tenantID: org.TenantID, slug: org.Slug}
	if _, taken := s.bySlug[key]; taken {
		return sentinel.ErrConflict
	}
	if _, exists := s.byID[org.ID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[org.ID] = org.Clone()
	s.bySlug[key] = org.ID
	return nil
}

// FindByID is tenant-scoped: an id that exists under another tenant is not
// found here.
func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID, orgID id.OrgID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.byID[orgID]
	if !ok || org.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return org.Clone(), nil
}

func (s *InMemory) FindBySlug(_ context.Context, tenantID id.TenantID, slug string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orgID, ok := s.bySlug[slugKey{tenantID: tenantID, slug: slug}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.byID[orgID].Clone(), nil
}

// ListByTenant returns one page plus the total match count.
func (s *InMemory) ListByTenant(_ context.Context, tenantID id.TenantID, filter models.ListFilter) ([]*models.Organization, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Organization, 0)
	for _, org := range s.byID {
		if org.TenantID != tenantID || !filter.Matches(org) {
			continue
		}
		matched = append(matched, org.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		a, b := uuid.UUID(matched[i].ID), uuid.UUID(matched[j].ID)
		return bytes.Compare(a[:], b[:]) < 0
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= total {
			return []*models.Organization{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *InMemory) ListChildren(_ context.Context, tenantID id.TenantID, parentID id.OrgID) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	children := make([]*models.Organization, 0)
	for _, org := range s.byID {
		if org.TenantID != tenantID || org.ParentID == nil || *org.ParentID != parentID {
			continue
		}
		children = append(children, org.Clone())
	}
	sort.Slice(children, func(i, j int) bool {
		a, b := uuid.UUID(children[i].ID), uuid.UUID(children[j].ID)
		return bytes.Compare(a[:], b[:]) < 0
	})
	return children, nil
}

func (s *InMemory) CountByStatus(_ context.Context, tenantID id.TenantID) (map[models.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Status]int)
	for _, org := range s.byID {
		if org.TenantID == tenantID {
			counts[org.Status]++
		}
	}
	return counts, nil
}

// Execute runs validate then apply on the organization while holding the
// store lock, the in-memory equivalent of SELECT ... FOR UPDATE. It returns
// copies of the record before and after the mutation for audit snapshots.
func (s *InMemory) Execute(_ context.Context, tenantID id.TenantID, orgID id.OrgID, validate func(*models.Organization) error, apply func(*models.Organization)) (*models.Organization, *models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[orgID]
	if !ok || current.TenantID != tenantID {
		return nil, nil, sentinel.ErrNotFound
	}

	before := current.Clone()
	working := current.Clone()
	if err := validate(working); err != nil {
		return nil, nil, err
	}
	apply(working)

	if working.Slug != before.Slug {
		newKey := slugKey{tenantID: tenantID, slug: working.Slug}
		if holder, taken := s.bySlug[newKey]; taken && holder != orgID {
			return nil, nil, sentinel.ErrConflict
		}
		delete(s.bySlug, slugKey{tenantID: tenantID, slug: before.Slug})
		s.bySlug[newKey] = orgID
	}
	s.byID[orgID] = working.Clone()
	return before, working, nil
}
