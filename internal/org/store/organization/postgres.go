package organization

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"orgcore/internal/org/models"
	id "orgcore/pkg/domain"
	"orgcore/pkg/platform/sentinel"
	txcontext "orgcore/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Postgres persists organizations. Mutations are expected to run inside a
// RunInTx unit; the store picks the transaction up from context so the write
// and its audit event commit together.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) runner(ctx context.Context) dbRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const orgColumns = `id, tenant_id, name, slug, status, entity_type, org_type, parent_org_id,
	created_at, updated_at, created_by, updated_by`

func (s *Postgres) CreateIfSlugAvailable(ctx context.Context, org *models.Organization) error {
	const query = `
		INSERT INTO organizations
			(id, tenant_id, name, slug, status, entity_type, org_type, parent_org_id,
			 created_at, updated_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(org.ID), uuid.UUID(org.TenantID), org.Name, org.Slug,
		string(org.Status), string(org.EntityType), string(org.OrgType),
		nullableOrgID(org.ParentID), org.CreatedAt, org.UpdatedAt,
		nullableUserID(org.CreatedBy), nullableUserID(org.UpdatedBy),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) (*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE tenant_id = $1 AND id = $2`
	return s.findOne(ctx, query, uuid.UUID(tenantID), uuid.UUID(orgID))
}

func (s *Postgres) FindBySlug(ctx context.Context, tenantID id.TenantID, slug string) (*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE tenant_id = $1 AND slug = $2`
	return s.findOne(ctx, query, uuid.UUID(tenantID), slug)
}

func (s *Postgres) findOne(ctx context.Context, query string, args ...any) (*models.Organization, error) {
	row := s.runner(ctx).QueryRowContext(ctx, query, args...)
	org, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find organization: %w", err)
	}
	return org, nil
}

func (s *Postgres) ListByTenant(ctx context.Context, tenantID id.TenantID, filter models.ListFilter) ([]*models.Organization, int, error) {
	where, args := buildFilter(tenantID, filter)

	countQuery := `SELECT COUNT(*) FROM organizations ` + where
	var total int
	if err := s.runner(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count organizations: %w", err)
	}

	query := `SELECT ` + orgColumns + ` FROM organizations ` + where + ` ORDER BY name ASC, id ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, filter.Offset)
	}
	orgs, err := s.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return orgs, total, nil
}

func (s *Postgres) ListChildren(ctx context.Context, tenantID id.TenantID, parentID id.OrgID) ([]*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations
		WHERE tenant_id = $1 AND parent_org_id = $2 ORDER BY id ASC`
	return s.list(ctx, query, uuid.UUID(tenantID), uuid.UUID(parentID))
}

func (s *Postgres) CountByStatus(ctx context.Context, tenantID id.TenantID) (map[models.Status]int, error) {
	const query = `SELECT status, COUNT(*) FROM organizations WHERE tenant_id = $1 GROUP BY status`
	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("count organizations by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

// Execute locks the row with SELECT ... FOR UPDATE, runs validate then apply,
// and persists the result. Per-record mutations within a tenant are thereby
// serialized by the database. Returns before/after copies for audit
// snapshots.
func (s *Postgres) Execute(ctx context.Context, tenantID id.TenantID, orgID id.OrgID, validate func(*models.Organization) error, apply func(*models.Organization)) (*models.Organization, *models.Organization, error) {
	runner := s.runner(ctx)

	query := `SELECT ` + orgColumns + ` FROM organizations WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	row := runner.QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(orgID))
	current, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, sentinel.ErrNotFound
		}
		return nil, nil, fmt.Errorf("lock organization: %w", err)
	}

	before := current.Clone()
	if err := validate(current); err != nil {
		return nil, nil, err
	}
	apply(current)

	const update = `
		UPDATE organizations
		SET name = $3, slug = $4, status = $5, entity_type = $6, org_type = $7,
			parent_org_id = $8, updated_at = $9, updated_by = $10
		WHERE tenant_id = $1 AND id = $2
	`
	_, err = runner.ExecContext(ctx, update,
		uuid.UUID(tenantID), uuid.UUID(orgID),
		current.Name, current.Slug, string(current.Status), string(current.EntityType),
		string(current.OrgType), nullableOrgID(current.ParentID),
		current.UpdatedAt, nullableUserID(current.UpdatedBy),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, nil, sentinel.ErrConflict
		}
		return nil, nil, fmt.Errorf("update organization: %w", err)
	}
	return before, current, nil
}

func (s *Postgres) list(ctx context.Context, query string, args ...any) ([]*models.Organization, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]*models.Organization, 0)
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func buildFilter(tenantID id.TenantID, filter models.ListFilter) (string, []any) {
	clauses := []string{"tenant_id = $1"}
	args := []any{uuid.UUID(tenantID)}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	} else if !filter.IncludeArchived {
		args = append(args, string(models.StatusArchived))
		clauses = append(clauses, fmt.Sprintf("status <> $%d", len(args)))
	}
	if len(filter.OrgTypes) > 0 {
		orgTypes := make([]string, len(filter.OrgTypes))
		for i, t := range filter.OrgTypes {
			orgTypes[i] = string(t)
		}
		args = append(args, pq.Array(orgTypes))
		clauses = append(clauses, fmt.Sprintf("org_type = ANY($%d)", len(args)))
	}
	if filter.NameContains != "" {
		args = append(args, "%"+filter.NameContains+"%")
		clauses = append(clauses, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (*models.Organization, error) {
	var (
		org       models.Organization
		orgID     uuid.UUID
		tenantID  uuid.UUID
		status    string
		entity    string
		orgType   string
		parentID  uuid.NullUUID
		createdBy uuid.NullUUID
		updatedBy uuid.NullUUID
	)
	err := row.Scan(&orgID, &tenantID, &org.Name, &org.Slug, &status, &entity, &orgType,
		&parentID, &org.CreatedAt, &org.UpdatedAt, &createdBy, &updatedBy)
	if err != nil {
		return nil, err
	}
	org.ID = id.OrgID(orgID)
	org.TenantID = id.TenantID(tenantID)
	org.Status = models.Status(status)
	org.EntityType = models.EntityType(entity)
	org.OrgType = models.OrgType(orgType)
	if parentID.Valid {
		parent := id.OrgID(parentID.UUID)
		org.ParentID = &parent
	}
	if createdBy.Valid {
		org.CreatedBy = id.UserID(createdBy.UUID)
	}
	if updatedBy.Valid {
		org.UpdatedBy = id.UserID(updatedBy.UUID)
	}
	return &org, nil
}

func nullableOrgID(orgID *id.OrgID) any {
	if orgID == nil {
		return nil
	}
	return uuid.UUID(*orgID)
}

func nullableUserID(userID id.UserID) any {
	if userID.IsNil() {
		return nil
	}
	return uuid.UUID(userID)
}
