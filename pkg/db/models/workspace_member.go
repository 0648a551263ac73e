package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskfolio/taskfolio-backend/pkg/enums"
)

// WorkspaceMember links a user with a workspace and captures their role.
type WorkspaceMember struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WorkspaceID     uuid.UUID        `gorm:"column:workspace_id;type:uuid;not null;uniqueIndex:idx_workspace_members_workspace_user"`
	UserID          uuid.UUID        `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_workspace_members_workspace_user"`
	Role            enums.MemberRole `gorm:"column:role;type:member_role;not null"`
	InvitedByUserID *uuid.UUID       `gorm:"column:invited_by_user_id;type:uuid"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
