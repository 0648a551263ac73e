package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is a workspace-scoped container for tasks and files. Only the
// pieces the quota checks need live here; rendering concerns stay upstream.
type Project struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	WorkspaceID     uuid.UUID  `gorm:"column:workspace_id;type:uuid;not null;index"`
	Name            string     `gorm:"column:name;not null"`
	Description     *string    `gorm:"column:description"`
	CreatedByUserID *uuid.UUID `gorm:"column:created_by_user_id;type:uuid"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
