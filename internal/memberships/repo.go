package memberships

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
)

// Repository handles workspace membership persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetMembership(ctx context.Context, workspaceID, userID uuid.UUID) (*models.WorkspaceMember, error)
	ListWorkspaceMembers(ctx context.Context, workspaceID uuid.UUID) ([]MemberWithUser, error)
	Upsert(ctx context.Context, member *models.WorkspaceMember) error
	UpdateRole(ctx context.Context, membershipID uuid.UUID, role enums.MemberRole) error
	Delete(ctx context.Context, membershipID uuid.UUID) error
	CountMembers(ctx context.Context, workspaceID uuid.UUID) (int64, error)
	CountOwners(ctx context.Context, workspaceID uuid.UUID) (int64, error)
	UserHasRole(ctx context.Context, workspaceID, userID uuid.UUID, roles ...enums.MemberRole) (bool, error)
}

// MemberWithUser joins membership rows with user metadata for listings.
type MemberWithUser struct {
	models.WorkspaceMember
	Email       string  `gorm:"column:email"`
	DisplayName *string `gorm:"column:display_name"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a membership repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetMembership(ctx context.Context, workspaceID, userID uuid.UUID) (*models.WorkspaceMember, error) {
	var member models.WorkspaceMember
	if err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		First(&member).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func (r *repository) ListWorkspaceMembers(ctx context.Context, workspaceID uuid.UUID) ([]MemberWithUser, error) {
	var rows []MemberWithUser
	err := r.db.WithContext(ctx).
		Model(&models.WorkspaceMember{}).
		Select("workspace_members.*, users.email, users.display_name").
		Joins("JOIN users ON users.id = workspace_members.user_id").
		Where("workspace_members.workspace_id = ?", workspaceID).
		Order("workspace_members.created_at").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Upsert inserts the membership or, when the user already belongs to the
// workspace, refreshes the role and inviter on the existing row.
func (r *repository) Upsert(ctx context.Context, member *models.WorkspaceMember) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "invited_by_user_id", "updated_at"}),
		}).
		Create(member).Error
}

func (r *repository) UpdateRole(ctx context.Context, membershipID uuid.UUID, role enums.MemberRole) error {
	return r.db.WithContext(ctx).
		Model(&models.WorkspaceMember{}).
		Where("id = ?", membershipID).
		Update("role", role).Error
}

func (r *repository) Delete(ctx context.Context, membershipID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", membershipID).
		Delete(&models.WorkspaceMember{}).Error
}

func (r *repository) CountMembers(ctx context.Context, workspaceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WorkspaceMember{}).
		Where("workspace_id = ?", workspaceID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountOwners(ctx context.Context, workspaceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WorkspaceMember{}).
		Where("workspace_id = ? AND role = ?", workspaceID, enums.MemberRoleOwner).
		Count(&count).Error
	return count, err
}

func (r *repository) UserHasRole(ctx context.Context, workspaceID, userID uuid.UUID, roles ...enums.MemberRole) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ? AND role IN ?", workspaceID, userID, roles).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
