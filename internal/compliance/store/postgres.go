package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"orgcore/internal/compliance/models"
	id "orgcore/pkg/domain"
	"orgcore/pkg/platform/sentinel"
	txcontext "orgcore/pkg/platform/tx"
)

// Postgres persists compliance items, joining the caller's transaction when
// one is carried in context. The version column backs optimistic
// concurrency: UPDATE ... WHERE version = $expected either bumps the row or
// matches nothing.
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

const itemColumns = `id, tenant_id, org_id, title, category, due_date, priority, status, version,
	created_at, updated_at, created_by, updated_by`

func (s *Postgres) Create(ctx context.Context, item *models.Item) error {
	const query = `
		INSERT INTO compliance_items
			(id, tenant_id, org_id, title, category, due_date, priority, status, version,
			 created_at, updated_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(item.ID), uuid.UUID(item.TenantID), uuid.UUID(item.OrgID),
		item.Title, item.Category, item.DueDate, string(item.Priority), string(item.Status),
		item.Version, item.CreatedAt, item.UpdatedAt,
		nullableUserID(item.CreatedBy), nullableUserID(item.UpdatedBy),
	)
	if err != nil {
		return fmt.Errorf("insert compliance item: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, tenantID id.TenantID, itemID id.ItemID) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM compliance_items WHERE tenant_id = $1 AND id = $2`
	row := s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(itemID))
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find compliance item: %w", err)
	}
	return item, nil
}

func (s *Postgres) Update(ctx context.Context, item *models.Item) (*models.Item, error) {
	const query = `
		UPDATE compliance_items
		SET title = $4, category = $5, due_date = $6, priority = $7, status = $8,
			version = version + 1, updated_at = $9, updated_by = $10
		WHERE tenant_id = $1 AND id = $2 AND version = $3
		RETURNING ` + itemColumns
	row := s.runner(ctx).QueryRowContext(ctx, query,
		uuid.UUID(item.TenantID), uuid.UUID(item.ID), item.Version,
		item.Title, item.Category, item.DueDate, string(item.Priority), string(item.Status),
		item.UpdatedAt, nullableUserID(item.UpdatedBy),
	)
	updated, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Missing row and stale version look the same to the UPDATE;
			// disambiguate so callers can report version conflicts.
			if _, findErr := s.FindByID(ctx, item.TenantID, item.ID); findErr == nil {
				return nil, sentinel.ErrVersionConflict
			}
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("update compliance item: %w", err)
	}
	return updated, nil
}

func (s *Postgres) ListByOrg(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM compliance_items
		WHERE tenant_id = $1 AND org_id = $2 ORDER BY due_date ASC, id ASC`
	return s.list(ctx, query, uuid.UUID(tenantID), uuid.UUID(orgID))
}

func (s *Postgres) ListDueBetween(ctx context.Context, tenantID id.TenantID, from, to time.Time) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM compliance_items
		WHERE tenant_id = $1 AND due_date >= $2 AND due_date <= $3
		ORDER BY due_date ASC, id ASC`
	return s.list(ctx, query, uuid.UUID(tenantID), from, to)
}

func (s *Postgres) ListOverdueCandidates(ctx context.Context, tenantID id.TenantID, now time.Time) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM compliance_items
		WHERE tenant_id = $1 AND due_date < $2 AND status NOT IN ($3, $4)
		ORDER BY due_date ASC, id ASC`
	return s.list(ctx, query, uuid.UUID(tenantID), now,
		string(models.StatusCompleted), string(models.StatusOverdue))
}

func (s *Postgres) list(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list compliance items: %w", err)
	}
	defer rows.Close()

	items := make([]*models.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan compliance item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.Item, error) {
	var (
		item      models.Item
		itemID    uuid.UUID
		tenantID  uuid.UUID
		orgID     uuid.UUID
		priority  string
		status    string
		createdBy uuid.NullUUID
		updatedBy uuid.NullUUID
	)
	err := row.Scan(&itemID, &tenantID, &orgID, &item.Title, &item.Category, &item.DueDate,
		&priority, &status, &item.Version, &item.CreatedAt, &item.UpdatedAt, &createdBy, &updatedBy)
	if err != nil {
		return nil, err
	}
	item.ID = id.ItemID(itemID)
	item.TenantID = id.TenantID(tenantID)
	item.OrgID = id.OrgID(orgID)
	item.Priority = models.Priority(priority)
	item.Status = models.Status(status)
	if createdBy.Valid {
		item.CreatedBy = id.UserID(createdBy.UUID)
	}
	if updatedBy.Valid {
		item.UpdatedBy = id.UserID(updatedBy.UUID)
	}
	return &item, nil
}

func nullableUserID(userID id.UserID) any {
	if userID.IsNil() {
		return nil
	}
	return uuid.UUID(userID)
}
