// Package service implements the hierarchy engine: organization lifecycle,
// parent/child structure with cycle prevention, and intercompany
// relationships. The service holds no persistent state of its own; every
// operation is one transaction against the stores, so instances are safe for
// concurrent use.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"orgcore/internal/audit"
	orgmetrics "orgcore/internal/org/metrics"
	"orgcore/internal/org/models"
	id "orgcore/pkg/domain"
	dErrors "orgcore/pkg/domain-errors"
	"orgcore/pkg/platform/sentinel"
	"orgcore/pkg/platform/tx"
)

// OrganizationStore is the persistence port for organizations. Reads are
// tenant-scoped; Execute serializes mutations per record.
type OrganizationStore interface {
	CreateIfSlugAvailable(ctx context.Context, org *models.Organization) error
	FindByID(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) (*models.Organization, error)
	FindBySlug(ctx context.Context, tenantID id.TenantID, slug string) (*models.Organization, error)
	ListChildren(ctx context.Context, tenantID id.TenantID, parentID id.OrgID) ([]*models.Organization, error)
	Execute(ctx context.Context, tenantID id.TenantID, orgID id.OrgID, validate func(*models.Organization) error, apply func(*models.Organization)) (*models.Organization, *models.Organization, error)
}

// RelationshipStore is the persistence port for intercompany relationships.
type RelationshipStore interface {
	Create(ctx context.Context, rel *models.Relationship) error
	FindOpen(ctx context.Context, tenantID id.TenantID, from, to id.OrgID, kind models.RelationshipKind) (*models.Relationship, error)
	Supersede(ctx context.Context, tenantID id.TenantID, relID id.RelationshipID, at time.Time) (*models.Relationship, error)
	ListByOrg(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*models.Relationship, error)
}

// AuditRecorder records exactly one event per mutation, inside the same unit
// of work.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) (audit.Event, error)
}

// Service is the hierarchy engine.
type Service struct {
	orgs     OrganizationStore
	rels     RelationshipStore
	recorder AuditRecorder
	tx       tx.Runner
	logger   *slog.Logger
	metrics  *orgmetrics.Metrics
	tracer   trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *orgmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs the hierarchy engine.
func New(orgs OrganizationStore, rels RelationshipStore, recorder AuditRecorder, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		orgs:     orgs,
		rels:     rels,
		recorder: recorder,
		tx:       runner,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer("orgcore/org"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireTenantID(tenantID id.TenantID) error {
	if tenantID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	return nil
}

// ensureTenant rejects records from another tenant. Stores are tenant-scoped,
// so a mismatch means a store bug or a caller mixing tenants; it is logged
// with full context and surfaced as a generic cross-tenant failure.
func (s *Service) ensureTenant(ctx context.Context, tenantID id.TenantID, org *models.Organization) error {
	if org.TenantID == tenantID {
		return nil
	}
	s.logger.ErrorContext(ctx, "cross-tenant access rejected",
		"tenant_id", tenantID, "record_tenant_id", org.TenantID, "org_id", org.ID)
	return dErrors.New(dErrors.CodeCrossTenant, "organization belongs to a different tenant")
}

// wrapOrgErr translates store sentinel errors into the caller-facing
// taxonomy. Domain errors pass through unchanged.
func wrapOrgErr(err error) error {
	var typed *dErrors.Error
	switch {
	case errors.As(err, &typed):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "organization not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "organization conflicts with existing state")
	default:
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "organization store failed")
	}
}

func (s *Service) incrementCreated() {
	if s.metrics != nil {
		s.metrics.OrganizationsCreated.Inc()
	}
}

func (s *Service) incrementParentChanges() {
	if s.metrics != nil {
		s.metrics.ParentChanges.Inc()
	}
}

func (s *Service) incrementRelationships() {
	if s.metrics != nil {
		s.metrics.RelationshipsCreated.Inc()
	}
}

func (s *Service) incrementCycleRejections() {
	if s.metrics != nil {
		s.metrics.CycleRejections.Inc()
	}
}

func (s *Service) observeSetParent(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveSetParent(start)
	}
}

func (s *Service) observeTraversal(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveTraversal(start)
	}
}
