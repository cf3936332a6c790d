// Package query is the read-only facade over the hierarchy and compliance
// stores. It composes listings, the compliance calendar, and the consolidated
// summary without ever touching the audit trail or mutating anything.
package query

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	compliancemodels "orgcore/internal/compliance/models"
	orgmodels "orgcore/internal/org/models"
	id "orgcore/pkg/domain"
	dErrors "orgcore/pkg/domain-errors"
	"orgcore/pkg/platform/sentinel"
	"orgcore/pkg/requestcontext"
)

// summaryConcurrency caps the fan-out of ConsolidatedSummary.
const summaryConcurrency = 8

// OrganizationReader is the read side of the organization store.
type OrganizationReader interface {
	FindByID(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) (*orgmodels.Organization, error)
	FindBySlug(ctx context.Context, tenantID id.TenantID, slug string) (*orgmodels.Organization, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID, filter orgmodels.ListFilter) ([]*orgmodels.Organization, int, error)
	CountByStatus(ctx context.Context, tenantID id.TenantID) (map[orgmodels.Status]int, error)
}

// RelationshipReader is the read side of the relationship store.
type RelationshipReader interface {
	ListByOrg(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*orgmodels.Relationship, error)
}

// ItemReader is the read side of the compliance item store.
type ItemReader interface {
	ListByOrg(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*compliancemodels.Item, error)
	ListDueBetween(ctx context.Context, tenantID id.TenantID, from, to time.Time) ([]*compliancemodels.Item, error)
}

// Facade serves composed reads across the domain stores.
type Facade struct {
	orgs   OrganizationReader
	rels   RelationshipReader
	items  ItemReader
	logger *slog.Logger
	tracer trace.Tracer
}

type Option func(f *Facade)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Facade) {
		f.logger = logger
	}
}

// New constructs the query facade.
func New(orgs OrganizationReader, rels RelationshipReader, items ItemReader, opts ...Option) *Facade {
	f := &Facade{
		orgs:   orgs,
		rels:   rels,
		items:  items,
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer("orgcore/query"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// OrganizationPage is one page of a tenant listing plus the unpaginated total.
type OrganizationPage struct {
	Organizations []*orgmodels.Organization
	Total         int
}

// ListOrganizations returns a filtered, paginated page of the tenant's
// organizations. Archived organizations are excluded unless the filter asks
// for them.
func (f *Facade) ListOrganizations(ctx context.Context, tenantID id.TenantID, filter orgmodels.ListFilter) (OrganizationPage, error) {
	if tenantID.IsNil() {
		return OrganizationPage{}, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	orgs, total, err := f.orgs.ListByTenant(ctx, tenantID, filter)
	if err != nil {
		return OrganizationPage{}, wrapReadErr(err)
	}
	return OrganizationPage{Organizations: orgs, Total: total}, nil
}

// GetOrganization fetches one organization by id.
func (f *Facade) GetOrganization(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) (*orgmodels.Organization, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	org, err := f.orgs.FindByID(ctx, tenantID, orgID)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	return org, nil
}

// GetOrganizationBySlug fetches one organization by its tenant-unique slug.
func (f *Facade) GetOrganizationBySlug(ctx context.Context, tenantID id.TenantID, slug string) (*orgmodels.Organization, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	org, err := f.orgs.FindBySlug(ctx, tenantID, slug)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	return org, nil
}

// OrganizationRelationships lists every relationship touching the
// organization, open and superseded, ordered by effective date.
func (f *Facade) OrganizationRelationships(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*orgmodels.Relationship, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if _, err := f.orgs.FindByID(ctx, tenantID, orgID); err != nil {
		return nil, wrapReadErr(err)
	}
	rels, err := f.rels.ListByOrg(ctx, tenantID, orgID)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	return rels, nil
}

// CalendarEntry is a compliance item annotated with its effective status at
// the time the calendar was built.
type CalendarEntry struct {
	Item            *compliancemodels.Item  `json:"item"`
	EffectiveStatus compliancemodels.Status `json:"effective_status"`
}

// ComplianceCalendar lists the tenant's items due inside [from, to], sorted
// by due date, each annotated with its effective status. The stored status is
// never exposed raw so a stale not-yet-swept item still reads as overdue.
func (f *Facade) ComplianceCalendar(ctx context.Context, tenantID id.TenantID, from, to time.Time) ([]CalendarEntry, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if to.Before(from) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "calendar range end precedes start")
	}
	items, err := f.items.ListDueBetween(ctx, tenantID, from, to)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	now := requestcontext.Now(ctx)
	entries := make([]CalendarEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, CalendarEntry{
			Item:            item,
			EffectiveStatus: compliancemodels.EffectiveStatus(item, now),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Item.DueDate.Before(entries[j].Item.DueDate)
	})
	return entries, nil
}

// ConsolidatedSummary aggregates compliance counts across every non-archived
// organization of the tenant, fanning the per-org reads out concurrently.
// Effective status is computed against a single clock reading so one item is
// never counted as pending in one org and overdue in another.
func (f *Facade) ConsolidatedSummary(ctx context.Context, tenantID id.TenantID) (compliancemodels.Summary, error) {
	if tenantID.IsNil() {
		return compliancemodels.Summary{}, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	ctx, span := f.tracer.Start(ctx, "query.ConsolidatedSummary")
	defer span.End()

	orgs, _, err := f.orgs.ListByTenant(ctx, tenantID, orgmodels.ListFilter{})
	if err != nil {
		return compliancemodels.Summary{}, wrapReadErr(err)
	}

	now := requestcontext.Now(ctx)
	summaries := make([]compliancemodels.Summary, len(orgs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(summaryConcurrency)
	for i, org := range orgs {
		g.Go(func() error {
			items, err := f.items.ListByOrg(gCtx, tenantID, org.ID)
			if err != nil {
				return wrapReadErr(err)
			}
			var summary compliancemodels.Summary
			for _, item := range items {
				summary.Add(item, now)
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return compliancemodels.Summary{}, err
	}

	var total compliancemodels.Summary
	for _, summary := range summaries {
		total.Merge(summary)
	}
	return total, nil
}

// StatusBreakdown counts the tenant's organizations by stored status.
func (f *Facade) StatusBreakdown(ctx context.Context, tenantID id.TenantID) (map[orgmodels.Status]int, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	counts, err := f.orgs.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	return counts, nil
}

func wrapReadErr(err error) error {
	var typed *dErrors.Error
	switch {
	case errors.As(err, &typed):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "record not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "read failed")
	}
}
