package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
)

// Repository handles audit log persistence. The table is append-only; there
// are deliberately no update or delete operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.AuditLog) error
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, query ListQuery) ([]models.AuditLog, error)
}

// ListQuery configures audit log list queries.
type ListQuery struct {
	Action *string
	Limit  int
	Offset int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, query ListQuery) ([]models.AuditLog, error) {
	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Limit(limit)
	if query.Offset > 0 {
		q = q.Offset(query.Offset)
	}
	if query.Action != nil && *query.Action != "" {
		q = q.Where("action = ?", *query.Action)
	}

	var entries []models.AuditLog
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
