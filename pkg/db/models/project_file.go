package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ProjectFile records metadata for an uploaded object. The bytes themselves
// live in the external object store; ScanStatus is updated out-of-band once
// the scanner reports back.
type ProjectFile struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID        uuid.UUID      `gorm:"column:project_id;type:uuid;not null;index"`
	WorkspaceID      uuid.UUID      `gorm:"column:workspace_id;type:uuid;not null;index"`
	FileName         string         `gorm:"column:file_name;not null"`
	StoragePath      string         `gorm:"column:storage_path;not null"`
	MimeType         string         `gorm:"column:mime_type;not null"`
	SizeBytes        int64          `gorm:"column:size_bytes;not null"`
	Tags             pq.StringArray `gorm:"column:tags;type:text[]"`
	UploadedByUserID uuid.UUID      `gorm:"column:uploaded_by_user_id;type:uuid;not null"`
	ScanStatus       string         `gorm:"column:scan_status;not null;default:'pending'"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
