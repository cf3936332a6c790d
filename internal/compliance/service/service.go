// Package service implements the compliance tracker: item lifecycle, the
// derived overdue status, per-organization summaries, and the materialization
// sweep. The service is stateless; every operation is one transaction against
// the stores.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"orgcore/internal/audit"
	compliancemetrics "orgcore/internal/compliance/metrics"
	"orgcore/internal/compliance/models"
	orgmodels "orgcore/internal/org/models"
	id "orgcore/pkg/domain"
	dErrors "orgcore/pkg/domain-errors"
	"orgcore/pkg/platform/sentinel"
	"orgcore/pkg/platform/tx"
	"orgcore/pkg/requestcontext"
)

// ItemStore is the persistence port for compliance items.
type ItemStore interface {
	Create(ctx context.Context, item *models.Item) error
	FindByID(ctx context.Context, tenantID id.TenantID, itemID id.ItemID) (*models.Item, error)
	Update(ctx context.Context, item *models.Item) (*models.Item, error)
	ListByOrg(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*models.Item, error)
	ListOverdueCandidates(ctx context.Context, tenantID id.TenantID, now time.Time) ([]*models.Item, error)
}

// OrgGetter verifies the owning organization exists in the tenant.
type OrgGetter interface {
	FindByID(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) (*orgmodels.Organization, error)
}

// AuditRecorder records exactly one event per mutation, inside the same unit
// of work.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) (audit.Event, error)
}

// Service is the compliance tracker.
type Service struct {
	items    ItemStore
	orgs     OrgGetter
	recorder AuditRecorder
	tx       tx.Runner
	logger   *slog.Logger
	metrics  *compliancemetrics.Metrics
	tracer   trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *compliancemetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs the compliance tracker.
func New(items ItemStore, orgs OrgGetter, recorder AuditRecorder, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		items:    items,
		orgs:     orgs,
		recorder: recorder,
		tx:       runner,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer("orgcore/compliance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries the fields required to open a compliance item.
type CreateInput struct {
	OrgID    id.OrgID
	Title    string
	Category string
	DueDate  time.Time
	Priority models.Priority
}

// Create opens a pending compliance item for an organization of the tenant
// and records one INSERT audit event in the same transaction.
func (s *Service) Create(ctx context.Context, tenantID id.TenantID, in CreateInput) (*models.Item, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	ctx, span := s.tracer.Start(ctx, "compliance.Create")
	defer span.End()

	var created *models.Item
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		actor := requestcontext.ActorID(txCtx)

		if _, err := s.orgs.FindByID(txCtx, tenantID, in.OrgID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "organization not found")
			}
			return wrapItemErr(err)
		}

		item, err := models.NewItem(id.NewItemID(), tenantID, in.OrgID,
			in.Title, in.Category, in.DueDate, in.Priority, actor, now)
		if err != nil {
			return err
		}
		if err := s.items.Create(txCtx, item); err != nil {
			return wrapItemErr(err)
		}
		if _, err := s.recorder.Record(txCtx, audit.Entry{
			TenantID: tenantID,
			Entity:   audit.EntityComplianceItem,
			RecordID: item.ID.String(),
			Action:   audit.ActionInsert,
			New:      item,
		}); err != nil {
			return err
		}
		created = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ItemsCreated.Inc()
	}
	s.logger.InfoContext(ctx, "compliance item created",
		"tenant_id", tenantID, "item_id", created.ID, "due_date", created.DueDate)
	return created, nil
}

// Transition moves an item through its status machine. Illegal targets,
// including overdue, fail with CodeIllegalTransition. The optimistic version
// check makes concurrent transitions from the same stored state resolve to
// exactly one winner; the loser observes the changed state, never a silent
// overwrite.
func (s *Service) Transition(ctx context.Context, tenantID id.TenantID, itemID id.ItemID, next models.Status) (*models.Item, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	ctx, span := s.tracer.Start(ctx, "compliance.Transition")
	defer span.End()

	var updated *models.Item
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		actor := requestcontext.ActorID(txCtx)

		item, err := s.items.FindByID(txCtx, tenantID, itemID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "compliance item not found")
			}
			return wrapItemErr(err)
		}
		if err := item.CanTransitionTo(next); err != nil {
			return err
		}

		before := item.Clone()
		item.ApplyStatus(next, actor, now)
		after, err := s.items.Update(txCtx, item)
		if err != nil {
			if errors.Is(err, sentinel.ErrVersionConflict) {
				return dErrors.New(dErrors.CodeConflict, "compliance item changed concurrently, re-read and retry")
			}
			return wrapItemErr(err)
		}
		if _, err := s.recorder.Record(txCtx, audit.Entry{
			TenantID: tenantID,
			Entity:   audit.EntityComplianceItem,
			RecordID: itemID.String(),
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

	if s.metrics != nil {
		s.metrics.IncrementTransition(string(next))
	}
	return updated, nil
}

// Get fetches one item within the tenant.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, itemID id.ItemID) (*models.Item, error) {
	item, err := s.items.FindByID(ctx, tenantID, itemID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "compliance item not found")
		}
		return nil, wrapItemErr(err)
	}
	return item, nil
}

// Summarize counts an organization's items by effective status at the
// request time. Stored status is never counted directly, so an item due
// yesterday reports as overdue even before any sweep runs.
func (s *Service) Summarize(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) (models.Summary, error) {
	if tenantID.IsNil() {
		return models.Summary{}, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if _, err := s.orgs.FindByID(ctx, tenantID, orgID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Summary{}, dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return models.Summary{}, wrapItemErr(err)
	}

	items, err := s.items.ListByOrg(ctx, tenantID, orgID)
	if err != nil {
		return models.Summary{}, wrapItemErr(err)
	}
	now := requestcontext.Now(ctx)
	var summary models.Summary
	for _, item := range items {
		summary.Add(item, now)
	}
	return summary, nil
}

// MaterializeOverdue stamps the stored status of past-due items to overdue so
// filters and indexes stay cheap. Purely an optimization: EffectiveStatus is
// the source of truth with or without the sweep. Each stamped row gets one
// UPDATE audit event; version conflicts mean a user transition won the race
// and are skipped, not retried.
func (s *Service) MaterializeOverdue(ctx context.Context, tenantID id.TenantID) (int, error) {
	if tenantID.IsNil() {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	ctx, span := s.tracer.Start(ctx, "compliance.MaterializeOverdue")
	defer span.End()

	stamped := 0
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		actor := requestcontext.ActorID(txCtx)

		candidates, err := s.items.ListOverdueCandidates(txCtx, tenantID, now)
		if err != nil {
			return wrapItemErr(err)
		}
		for _, item := range candidates {
			before := item.Clone()
			item.Status = models.StatusOverdue
			item.UpdatedBy = actor
			item.UpdatedAt = now
			after, err := s.items.Update(txCtx, item)
			if err != nil {
				if errors.Is(err, sentinel.ErrVersionConflict) {
					continue
				}
				return wrapItemErr(err)
			}
			if _, err := s.recorder.Record(txCtx, audit.Entry{
				TenantID: tenantID,
				Entity:   audit.EntityComplianceItem,
				RecordID: item.ID.String(),
				Action:   audit.ActionUpdate,
				Old:      before,
				New:      after,
			}); err != nil {
				return err
			}
			stamped++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.metrics != nil && stamped > 0 {
		s.metrics.OverdueMaterialized.Add(float64(stamped))
	}
	if stamped > 0 {
		s.logger.InfoContext(ctx, "materialized overdue compliance items",
			"tenant_id", tenantID, "count", stamped)
	}
	return stamped, nil
}

func wrapItemErr(err error) error {
	var typed *dErrors.Error
	switch {
	case errors.As(err, &typed):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "compliance item not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "compliance item conflicts with existing state")
	default:
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "compliance store failed")
	}
}
