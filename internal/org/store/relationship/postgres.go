package relationship

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"orgcore/internal/org/models"
	id "orgcore/pkg/domain"
	"orgcore/pkg/platform/sentinel"
	txcontext "orgcore/pkg/platform/tx"
)

// Postgres persists relationship records, joining the caller's transaction
// when one is carried in context.
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

const relColumns = `id, tenant_id, from_org_id, to_org_id, kind, ownership_percent,
	effective_from, effective_to, created_at, created_by`

func (s *Postgres) Create(ctx context.Context, rel *models.Relationship) error {
	const query = `
		INSERT INTO intercompany_relationships
			(id, tenant_id, from_org_id, to_org_id, kind, ownership_percent,
			 effective_from, effective_to, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	var createdBy any
	if !rel.CreatedBy.IsNil() {
		createdBy = uuid.UUID(rel.CreatedBy)
	}
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(rel.ID), uuid.UUID(rel.TenantID), uuid.UUID(rel.FromOrgID), uuid.UUID(rel.ToOrgID),
		string(rel.Kind), rel.OwnershipPercent, rel.EffectiveFrom, rel.EffectiveTo,
		rel.CreatedAt, createdBy,
	)
	if err != nil {
		return fmt.Errorf("insert relationship: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, tenantID id.TenantID, relID id.RelationshipID) (*models.Relationship, error) {
	query := `SELECT ` + relColumns + ` FROM intercompany_relationships
		WHERE tenant_id = $1 AND id = $2`
	row := s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(relID))
	rel, err := scanRelationship(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find relationship: %w", err)
	}
	return rel, nil
}

func (s *Postgres) FindOpen(ctx context.Context, tenantID id.TenantID, from, to id.OrgID, kind models.RelationshipKind) (*models.Relationship, error) {
	query := `SELECT ` + relColumns + ` FROM intercompany_relationships
		WHERE tenant_id = $1 AND from_org_id = $2 AND to_org_id = $3 AND kind = $4
		AND effective_to IS NULL`
	row := s.runner(ctx).QueryRowContext(ctx, query,
		uuid.UUID(tenantID), uuid.UUID(from), uuid.UUID(to), string(kind))
	rel, err := scanRelationship(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find open relationship: %w", err)
	}
	return rel, nil
}

func (s *Postgres) Supersede(ctx context.Context, tenantID id.TenantID, relID id.RelationshipID, at time.Time) (*models.Relationship, error) {
	const update = `
		UPDATE intercompany_relationships
		SET effective_to = $3
		WHERE tenant_id = $1 AND id = $2 AND effective_to IS NULL
		RETURNING ` + relColumns
	row := s.runner(ctx).QueryRowContext(ctx, update, uuid.UUID(tenantID), uuid.UUID(relID), at)
	rel, err := scanRelationship(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either missing or already closed; callers that fetched the open
			// record inside the same tx treat this as invalid state.
			if _, findErr := s.FindByID(ctx, tenantID, relID); findErr == nil {
				return nil, sentinel.ErrInvalidState
			}
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("supersede relationship: %w", err)
	}
	return rel, nil
}

func (s *Postgres) ListByOrg(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*models.Relationship, error) {
	query := `SELECT ` + relColumns + ` FROM intercompany_relationships
		WHERE tenant_id = $1 AND (from_org_id = $2 OR to_org_id = $2)
		ORDER BY effective_from ASC, id ASC`
	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	rels := make([]*models.Relationship, 0)
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRelationship(row rowScanner) (*models.Relationship, error) {
	var (
		rel       models.Relationship
		relID     uuid.UUID
		tenantID  uuid.UUID
		fromID    uuid.UUID
		toID      uuid.UUID
		kind      string
		pct       sql.NullFloat64
		endDate   sql.NullTime
		createdBy uuid.NullUUID
	)
	err := row.Scan(&relID, &tenantID, &fromID, &toID, &kind, &pct,
		&rel.EffectiveFrom, &endDate, &rel.CreatedAt, &createdBy)
	if err != nil {
		return nil, err
	}
	rel.ID = id.RelationshipID(relID)
	rel.TenantID = id.TenantID(tenantID)
	rel.FromOrgID = id.OrgID(fromID)
	rel.ToOrgID = id.OrgID(toID)
	rel.Kind = models.RelationshipKind(kind)
	if pct.Valid {
		rel.OwnershipPercent = &pct.Float64
	}
	if endDate.Valid {
		rel.EffectiveTo = &endDate.Time
	}
	if createdBy.Valid {
		rel.CreatedBy = id.UserID(createdBy.UUID)
	}
	return &rel, nil
}
