package files

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
)

// Repository handles project file persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, file *models.ProjectFile) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProjectFile, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProjectFile, error)
	SumSizeBytes(ctx context.Context, workspaceID uuid.UUID) (int64, error)
	UpdateScanStatus(ctx context.Context, fileID uuid.UUID, status string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a file repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, file *models.ProjectFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ProjectFile, error) {
	var file models.ProjectFile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &file, nil
}

func (r *repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProjectFile, error) {
	var files []models.ProjectFile
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *repository) SumSizeBytes(ctx context.Context, workspaceID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.ProjectFile{}).
		Where("workspace_id = ?", workspaceID).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) UpdateScanStatus(ctx context.Context, fileID uuid.UUID, status string) error {
	return r.db.WithContext(ctx).
		Model(&models.ProjectFile{}).
		Where("id = ?", fileID).
		Update("scan_status", status).Error
}
