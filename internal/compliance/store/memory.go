// Package store persists compliance items. Rows carry a version for
// optimistic concurrency: a writer that read version N only wins if the row
// is still at N when it writes back.
package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"orgcore/internal/compliance/models"
	id "orgcore/pkg/domain"
	"orgcore/pkg/platform/sentinel"
)

// InMemory keeps compliance items in a map guarded by a mutex.
type InMemory struct {
	mu   sync.RWMutex
	byID map[id.ItemID]*models.Item
}

func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[id.ItemID]*models.Item)}
}

func (s *InMemory) Create(_ context.Context, item *models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[item.ID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[item.ID] = item.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID, itemID id.ItemID) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.byID[itemID]
	if !ok || item.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return item.Clone(), nil
}

// Update writes the item back if the stored version still matches
// item.Version, then bumps the version. A stale writer gets
// sentinel.ErrVersionConflict.
func (s *InMemory) Update(_ context.Context, item *models.Item) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[item.ID]
	if !ok || current.TenantID != item.TenantID {
		return nil, sentinel.ErrNotFound
	}
	if current.Version != item.Version {
		return nil, sentinel.ErrVersionConflict
	}
	updated := item.Clone()
	updated.Version++
	s.byID[item.ID] = updated
	return updated.Clone(), nil
}

func (s *InMemory) ListByOrg(_ context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*models.Item, 0)
	for _, item := range s.byID {
		if item.TenantID == tenantID && item.OrgID == orgID {
			matched = append(matched, item.Clone())
		}
	}
	sortByDueDate(matched)
	return matched, nil
}

func (s *InMemory) ListDueBetween(_ context.Context, tenantID id.TenantID, from, to time.Time) ([]*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*models.Item, 0)
	for _, item := range s.byID {
		if item.TenantID != tenantID {
			continue
		}
		if item.DueDate.Before(from) || item.DueDate.After(to) {
			continue
		}
		matched = append(matched, item.Clone())
	}
	sortByDueDate(matched)
	return matched, nil
}

// ListOverdueCandidates returns items whose stored status has fallen behind
// the clock: due before now and stored as neither completed nor overdue.
func (s *InMemory) ListOverdueCandidates(_ context.Context, tenantID id.TenantID, now time.Time) ([]*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*models.Item, 0)
	for _, item := range s.byID {
		if item.TenantID != tenantID {
			continue
		}
		if item.Status == models.StatusCompleted || item.Status == models.StatusOverdue {
			continue
		}
		if !now.After(item.DueDate) {
			continue
		}
		matched = append(matched, item.Clone())
	}
	sortByDueDate(matched)
	return matched, nil
}

func sortByDueDate(items []*models.Item) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].DueDate.Equal(items[j].DueDate) {
			return items[i].DueDate.Before(items[j].DueDate)
		}
		a, b := uuid.UUID(items[i].ID), uuid.UUID(items[j].ID)
		return bytes.Compare(a[:], b[:]) < 0
	})
}
