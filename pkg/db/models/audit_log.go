package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog records an immutable sensitive mutation within a workspace.
// Rows are append-only; ActorUserID is nil for system/provider-originated events.
type AuditLog struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WorkspaceID  uuid.UUID       `gorm:"column:workspace_id;type:uuid;not null;index"`
	Action       string          `gorm:"column:action;not null"`
	ActorUserID  *uuid.UUID      `gorm:"column:actor_user_id;type:uuid"`
	TargetUserID *uuid.UUID      `gorm:"column:target_user_id;type:uuid"`
	ResourceType *string         `gorm:"column:resource_type"`
	ResourceID   *string         `gorm:"column:resource_id"`
	Summary      *string         `gorm:"column:summary"`
	Metadata     json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
