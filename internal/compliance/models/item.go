package models

import (
	"time"

	id "orgcore/pkg/domain"
	dErrors "orgcore/pkg/domain-errors"
)

// Status is the compliance item lifecycle state. Overdue is derived, never
// requested: read paths compute it with EffectiveStatus, and a sweep may
// materialize it into the stored field purely as an indexing optimization.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusOverdue    Status = "overdue"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusOverdue:
		return true
	}
	return false
}

// CanTransitionTo reports whether an explicit transition request is legal.
// Overdue is never a legal target. A stored overdue value only ever comes
// from the materialization sweep, so for legality it stands in for the
// working state it replaced: such items may still be started or completed.
func (s Status) CanTransitionTo(next Status) bool {
	if next == StatusOverdue {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusCompleted
	case StatusInProgress:
		return next == StatusCompleted
	case StatusOverdue:
		return next == StatusInProgress || next == StatusCompleted
	}
	return false
}

// Priority ranks compliance items.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Item is one compliance obligation owned by an organization.
//
// Invariants:
//   - Title is non-empty; due date is set
//   - Status overdue is never written by a transition request
//   - Version increments on every update; stale writers lose
//   - Items are never deleted, only completed or superseded
type Item struct {
	ID        id.ItemID   `json:"id"`
	TenantID  id.TenantID `json:"tenant_id"`
	OrgID     id.OrgID    `json:"organization_id"`
	Title     string      `json:"title"`
	Category  string      `json:"category"`
	DueDate   time.Time   `json:"due_date"`
	Priority  Priority    `json:"priority"`
	Status    Status      `json:"status"`
	Version   int64       `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	CreatedBy id.UserID   `json:"created_by"`
	UpdatedBy id.UserID   `json:"updated_by"`
}

// EffectiveStatus derives the status visible to every read path: overdue when
// the stored status is anything but completed and the due date has passed,
// otherwise the stored status. Pure; the stored field is never the source of
// truth for overdue-ness.
func EffectiveStatus(item *Item, now time.Time) Status {
	if item.Status != StatusCompleted && now.After(item.DueDate) {
		return StatusOverdue
	}
	return item.Status
}

// CanTransitionTo validates an explicit transition request against the
// machine.
func (i *Item) CanTransitionTo(next Status) error {
	if !next.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown status %q", next)
	}
	if !i.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeIllegalTransition, "cannot move compliance item from %s to %s", i.Status, next)
	}
	return nil
}

// ApplyStatus records the transition. Call CanTransitionTo first.
func (i *Item) ApplyStatus(next Status, actor id.UserID, now time.Time) {
	i.Status = next
	i.UpdatedBy = actor
	i.UpdatedAt = now
}

// Clone returns a copy so stores never hand out aliased state.
func (i *Item) Clone() *Item {
	clone := *i
	return &clone
}

// NewItem constructs a pending item, validating model invariants.
func NewItem(itemID id.ItemID, tenantID id.TenantID, orgID id.OrgID, title, category string, dueDate time.Time, priority Priority, actor id.UserID, now time.Time) (*Item, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "compliance item requires a tenant id")
	}
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "compliance item requires an organization id")
	}
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "compliance item title cannot be empty")
	}
	if dueDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "compliance item requires a due date")
	}
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown priority %q", priority)
	}
	return &Item{
		ID:        itemID,
		TenantID:  tenantID,
		OrgID:     orgID,
		Title:     title,
		Category:  category,
		DueDate:   dueDate,
		Priority:  priority,
		Status:    StatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: actor,
		UpdatedBy: actor,
	}, nil
}

// Summary aggregates item counts by effective status.
type Summary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Overdue    int `json:"overdue"`
}

// Add counts one item under its effective status at the given time.
func (s *Summary) Add(item *Item, now time.Time) {
	s.Total++
	switch EffectiveStatus(item, now) {
	case StatusPending:
		s.Pending++
	case StatusInProgress:
		s.InProgress++
	case StatusCompleted:
		s.Completed++
	case StatusOverdue:
		s.Overdue++
	}
}

// Merge folds another summary into this one.
func (s *Summary) Merge(other Summary) {
	s.Total += other.Total
	s.Pending += other.Pending
	s.InProgress += other.InProgress
	s.Completed += other.Completed
	s.Overdue += other.Overdue
}
