package projects

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskfolio/taskfolio-backend/internal/audit"
	"github.com/taskfolio/taskfolio-backend/internal/entitlements"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
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

// ServiceParams groups dependencies for the project service.
type ServiceParams struct {
	Repo              Repository
	Entitlements      entitlementSource
	Audit             *audit.Service
	Logger            *logger.Logger
	QuotaMetrics      *metrics.QuotaMetrics
	TransactionRunner txRunner
}

// Service creates and lists projects under the workspace's project quota.
type Service struct {
	repo         Repository
	entitlements entitlementSource
	audit        *audit.Service
	logger       *logger.Logger
	quotaMetrics *metrics.QuotaMetrics
	txRunner     txRunner
}

// NewService builds a project service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "repo is required")
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
		entitlements: params.Entitlements,
		audit:        params.Audit,
		logger:       params.Logger,
		quotaMetrics: params.QuotaMetrics,
		txRunner:     params.TransactionRunner,
	}, nil
}

// Create inserts a project after verifying the workspace's project quota.
// The count and insert share a transaction; under concurrent writers the
// ceiling is a soft limit.
func (s *Service) Create(ctx context.Context, workspaceID, actorID uuid.UUID, name, description string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project name is required")
	}

	snap, err := s.entitlements.Summary(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	project := &models.Project{
		WorkspaceID:     workspaceID,
		Name:            name,
		CreatedByUserID: &actorID,
	}
	if description = strings.TrimSpace(description); description != "" {
		project.Description = &description
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		count, err := repo.CountByWorkspace(ctx, workspaceID)
		if err != nil {
			return err
		}
		if !entitlements.Allows(snap.Limits.MaxProjects, count) {
			s.quotaMetrics.IncRejection("max_projects")
			return pkgerrors.New(pkgerrors.CodeQuotaExceeded, "project limit reached").
				WithDetails(map[string]any{
					"limit": snap.Limits.MaxProjects,
					"count": count,
				})
		}
		return repo.Create(ctx, project)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		WorkspaceID:  workspaceID,
		Action:       audit.ActionProjectCreated,
		ActorUserID:  &actorID,
		ResourceType: "project",
		ResourceID:   project.ID.String(),
		Metadata:     map[string]any{"name": name},
	})
	return project, nil
}

// List returns the workspace's projects, newest first.
func (s *Service) List(ctx context.Context, workspaceID uuid.UUID) ([]models.Project, error) {
	return s.repo.ListByWorkspace(ctx, workspaceID)
}

// Get loads a project and verifies it belongs to the workspace.
func (s *Service) Get(ctx context.Context, workspaceID, projectID uuid.UUID) (*models.Project, error) {
	project, err := s.repo.FindByID(ctx, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	if project == nil || project.WorkspaceID != workspaceID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}
	return project, nil
}
