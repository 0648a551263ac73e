package memberships

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskfolio/taskfolio-backend/internal/audit"
	"github.com/taskfolio/taskfolio-backend/internal/entitlements"
	"github.com/taskfolio/taskfolio-backend/internal/users"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
	"github.com/taskfolio/taskfolio-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type entitlementSource interface {
	Summary(ctx context.Context, workspaceID uuid.UUID) (entitlements.Snapshot, error)
}

// ServiceParams groups dependencies for the membership service.
type ServiceParams struct {
	Repo              Repository
	Users             users.Repository
	Entitlements      entitlementSource
	Audit             *audit.Service
	Logger            *logger.Logger
	QuotaMetrics      *metrics.QuotaMetrics
	TransactionRunner txRunner
}

// Service enforces workspace membership rules. Every mutation runs its
// permission checks inside the same transaction as the write so concurrent
// role changes cannot strand a workspace without an owner.
type Service struct {
	repo         Repository
	users        users.Repository
	entitlements entitlementSource
	audit        *audit.Service
	logger       *logger.Logger
	quotaMetrics *metrics.QuotaMetrics
	txRunner     txRunner
}

// NewService builds a membership service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "repo is required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repo is required")
	}
	if params.Entitlements == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement source is required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit service is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger is required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner is required")
	}
	return &Service{
		repo:         params.Repo,
		users:        params.Users,
		entitlements: params.Entitlements,
		audit:        params.Audit,
		logger:       params.Logger,
		quotaMetrics: params.QuotaMetrics,
		txRunner:     params.TransactionRunner,
	}, nil
}

// List returns workspace members joined with user metadata.
func (s *Service) List(ctx context.Context, workspaceID uuid.UUID) ([]MemberWithUser, error) {
	return s.repo.ListWorkspaceMembers(ctx, workspaceID)
}

// InviteResult reports the membership that an invite produced.
type InviteResult struct {
	Member     *models.WorkspaceMember
	User       *models.User
	Downgraded bool
}

// Invite adds a user to the workspace by email, creating the user row when
// the address is unknown. Only an owner can hand out ownership; any other
// actor's owner request is silently downgraded to admin. Re-inviting an
// existing member is a role change and runs the same ownership guards as
// UpdateRole, so an invite can never strand a workspace without an owner.
func (s *Service) Invite(ctx context.Context, workspaceID, actorID uuid.UUID, email string, role enums.MemberRole) (*InviteResult, error) {
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid member role").
			WithDetails(map[string]any{"role": string(role)})
	}

	result := &InviteResult{}
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		actor, err := repo.GetMembership(ctx, workspaceID, actorID)
		if err != nil {
			return err
		}
		if actor == nil || !actor.Role.AtLeast(enums.MemberRoleAdmin) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "inviting members requires admin access")
		}

		if role == enums.MemberRoleOwner && actor.Role != enums.MemberRoleOwner {
			role = enums.MemberRoleAdmin
			result.Downgraded = true
		}

		// The seat quota is checked before touching the identity store so a
		// full workspace never creates orphan user rows.
		snap, err := s.entitlements.Summary(ctx, workspaceID)
		if err != nil {
			return err
		}
		count, err := repo.CountMembers(ctx, workspaceID)
		if err != nil {
			return err
		}
		if !entitlements.Allows(snap.Limits.MaxTeamMembers, count) {
			s.quotaMetrics.IncRejection("max_team_members")
			return pkgerrors.New(pkgerrors.CodeQuotaExceeded, "team member limit reached").
				WithDetails(map[string]any{
					"limit": snap.Limits.MaxTeamMembers,
					"count": count,
				})
		}

		user, err := s.users.WithTx(tx).FindOrCreateByEmail(ctx, email, "")
		if err != nil {
			return err
		}

		existing, err := repo.GetMembership(ctx, workspaceID, user.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if (existing.Role == enums.MemberRoleOwner || role == enums.MemberRoleOwner) &&
				actor.Role != enums.MemberRoleOwner {
				return pkgerrors.New(pkgerrors.CodeForbidden, "only an owner can grant or revoke ownership")
			}
			if existing.Role == enums.MemberRoleOwner && role != enums.MemberRoleOwner {
				owners, err := repo.CountOwners(ctx, workspaceID)
				if err != nil {
					return err
				}
				if owners <= 1 {
					return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot demote the last owner")
				}
			}
		}

		member := &models.WorkspaceMember{
			WorkspaceID:     workspaceID,
			UserID:          user.ID,
			Role:            role,
			InvitedByUserID: &actorID,
		}
		if err := repo.Upsert(ctx, member); err != nil {
			return err
		}

		result.Member = member
		result.User = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		WorkspaceID:  workspaceID,
		Action:       audit.ActionMemberInvited,
		ActorUserID:  &actorID,
		TargetUserID: &result.User.ID,
		Metadata: map[string]any{
			"email":      result.User.Email,
			"role":       string(result.Member.Role),
			"downgraded": result.Downgraded,
		},
	})
	return result, nil
}

// UpdateRole changes a member's role. Ownership can only be granted or
// revoked by an owner, and the last owner can never be demoted.
func (s *Service) UpdateRole(ctx context.Context, workspaceID, actorID, targetUserID uuid.UUID, newRole enums.MemberRole) error {
	if !newRole.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid member role").
			WithDetails(map[string]any{"role": string(newRole)})
	}

	var previous enums.MemberRole
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		actor, err := repo.GetMembership(ctx, workspaceID, actorID)
		if err != nil {
			return err
		}
		if actor == nil || !actor.Role.AtLeast(enums.MemberRoleAdmin) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "updating roles requires admin access")
		}

		target, err := repo.GetMembership(ctx, workspaceID, targetUserID)
		if err != nil {
			return err
		}
		if target == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
		}

		if (target.Role == enums.MemberRoleOwner || newRole == enums.MemberRoleOwner) &&
			actor.Role != enums.MemberRoleOwner {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only an owner can grant or revoke ownership")
		}

		if target.Role == enums.MemberRoleOwner && newRole != enums.MemberRoleOwner {
			owners, err := repo.CountOwners(ctx, workspaceID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot demote the last owner")
			}
		}

		previous = target.Role
		if previous == newRole {
			return nil
		}
		return repo.UpdateRole(ctx, target.ID, newRole)
	})
	if err != nil {
		return err
	}
	if previous == newRole {
		return nil
	}

	s.audit.Record(ctx, audit.Entry{
		WorkspaceID:  workspaceID,
		Action:       audit.ActionMemberRoleUpdated,
		ActorUserID:  &actorID,
		TargetUserID: &targetUserID,
		Metadata: map[string]any{
			"from": string(previous),
			"to":   string(newRole),
		},
	})
	return nil
}

// Remove deletes a membership. Members may leave on their own; removing
// someone else requires admin access, and owners can only be removed by an
// owner. The last owner can never be removed.
func (s *Service) Remove(ctx context.Context, workspaceID, actorID, targetUserID uuid.UUID) error {
	var removedRole enums.MemberRole
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		actor, err := repo.GetMembership(ctx, workspaceID, actorID)
		if err != nil {
			return err
		}
		if actor == nil {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a workspace member")
		}

		target, err := repo.GetMembership(ctx, workspaceID, targetUserID)
		if err != nil {
			return err
		}
		if target == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
		}

		self := actorID == targetUserID
		if !self && !actor.Role.AtLeast(enums.MemberRoleAdmin) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "removing members requires admin access")
		}
		if !self && target.Role == enums.MemberRoleOwner && actor.Role != enums.MemberRoleOwner {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only an owner can remove an owner")
		}

		if target.Role == enums.MemberRoleOwner {
			owners, err := repo.CountOwners(ctx, workspaceID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot remove the last owner")
			}
		}

		removedRole = target.Role
		return repo.Delete(ctx, target.ID)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		WorkspaceID:  workspaceID,
		Action:       audit.ActionMemberRemoved,
		ActorUserID:  &actorID,
		TargetUserID: &targetUserID,
		Metadata:     map[string]any{"role": string(removedRole)},
	})
	return nil
}

// RequireRole verifies the user holds one of the given roles in the
// workspace. Used by the request middleware.
func (s *Service) RequireRole(ctx context.Context, workspaceID, userID uuid.UUID, roles ...enums.MemberRole) error {
	ok, err := s.repo.UserHasRole(ctx, workspaceID, userID, roles...)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership role")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient workspace role")
	}
	return nil
}
