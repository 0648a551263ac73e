package workspaces

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskfolio/taskfolio-backend/internal/audit"
	"github.com/taskfolio/taskfolio-backend/internal/memberships"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the workspace service.
type ServiceParams struct {
	Repo              Repository
	Members           memberships.Repository
	Audit             *audit.Service
	Logger            *logger.Logger
	TransactionRunner txRunner
}

// Service provisions and reads workspaces.
type Service struct {
	repo     Repository
	members  memberships.Repository
	audit    *audit.Service
	logger   *logger.Logger
	txRunner txRunner
}

// NewService builds a workspace service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "repo is required")
	}
	if params.Members == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "membership repo is required")
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
		repo:     params.Repo,
		members:  params.Members,
		audit:    params.Audit,
		logger:   params.Logger,
		txRunner: params.TransactionRunner,
	}, nil
}

// Create provisions a workspace with the creating user as its owner. Both
// rows commit in the same transaction so a workspace can never exist without
// an owner membership.
func (s *Service) Create(ctx context.Context, name string, slug string, ownerID uuid.UUID) (*models.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "workspace name is required")
	}

	workspace := &models.Workspace{
		Name:    name,
		OwnerID: &ownerID,
	}
	if slug = strings.TrimSpace(slug); slug != "" {
		workspace.Slug = &slug
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, workspace); err != nil {
			return err
		}
		member := &models.WorkspaceMember{
			WorkspaceID: workspace.ID,
			UserID:      ownerID,
			Role:        enums.MemberRoleOwner,
		}
		return s.members.WithTx(tx).Upsert(ctx, member)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "provision workspace")
	}

	s.audit.Record(ctx, audit.Entry{
		WorkspaceID: workspace.ID,
		Action:      audit.ActionWorkspaceCreated,
		ActorUserID: &ownerID,
		Metadata:    map[string]any{"name": name},
	})

	ctx = s.logger.WithWorkspaceID(ctx, workspace.ID.String())
	s.logger.Info(ctx, "workspace created")
	return workspace, nil
}

// Get loads a workspace by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	workspace, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load workspace")
	}
	if workspace == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "workspace not found")
	}
	return workspace, nil
}

// ListForUser returns the workspaces the user belongs to.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error) {
	return s.repo.ListForUser(ctx, userID)
}
