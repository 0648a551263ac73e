package projects

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskfolio/taskfolio-backend/internal/audit"
	"github.com/taskfolio/taskfolio-backend/internal/entitlements"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

type fakeRepo struct {
	projects []models.Project
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) Create(ctx context.Context, project *models.Project) error {
	project.ID = uuid.New()
	f.projects = append(f.projects, *project)
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	for i := range f.projects {
		if f.projects[i].ID == id {
			copied := f.projects[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Project, error) {
	var out []models.Project
	for _, p := range f.projects {
		if p.WorkspaceID == workspaceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountByWorkspace(ctx context.Context, workspaceID uuid.UUID) (int64, error) {
	var count int64
	for _, p := range f.projects {
		if p.WorkspaceID == workspaceID {
			count++
		}
	}
	return count, nil
}

type fakeEntitlements struct {
	snapshot entitlements.Snapshot
}

func (f *fakeEntitlements) Summary(ctx context.Context, workspaceID uuid.UUID) (entitlements.Snapshot, error) {
	return f.snapshot, nil
}

type fakeAuditRepo struct {
	entries []models.AuditLog
}

func (f *fakeAuditRepo) WithTx(tx *gorm.DB) audit.Repository { return f }

func (f *fakeAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAuditRepo) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, query audit.ListQuery) ([]models.AuditLog, error) {
	return f.entries, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newTestService(t *testing.T, plan enums.PlanID) (*Service, *fakeRepo, *fakeEntitlements) {
	t.Helper()
	repo := &fakeRepo{}
	ents := &fakeEntitlements{snapshot: entitlements.Snapshot{
		Plan:          plan,
		EffectivePlan: plan,
		Limits:        entitlements.PlanLimits(plan),
	}}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	auditSvc, err := audit.NewService(audit.ServiceParams{Repo: &fakeAuditRepo{}, Logger: logg})
	if err != nil {
		t.Fatalf("audit.NewService: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Repo:              repo,
		Entitlements:      ents,
		Audit:             auditSvc,
		Logger:            logg,
		TransactionRunner: fakeTxRunner{},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo, ents
}

func TestCreateProject(t *testing.T) {
	svc, repo, _ := newTestService(t, enums.PlanFree)
	workspaceID := uuid.New()

	project, err := svc.Create(context.Background(), workspaceID, uuid.New(), "Launch plan", "Q2 roadmap")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if project.Description == nil || *project.Description != "Q2 roadmap" {
		t.Fatal("description not stored")
	}
	if len(repo.projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(repo.projects))
	}
}

func TestCreateProjectEnforcesQuota(t *testing.T) {
	svc, repo, _ := newTestService(t, enums.PlanFree)
	workspaceID := uuid.New()
	ctx := context.Background()
	actor := uuid.New()

	// Free plan allows three projects.
	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, workspaceID, actor, "p", ""); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	_, err := svc.Create(ctx, workspaceID, actor, "overflow", "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if len(repo.projects) != 3 {
		t.Fatalf("expected 3 projects, got %d", len(repo.projects))
	}
}

func TestCreateProjectUnlimitedOnPro(t *testing.T) {
	svc, _, _ := newTestService(t, enums.PlanPro)
	workspaceID := uuid.New()
	ctx := context.Background()
	actor := uuid.New()

	for i := 0; i < 20; i++ {
		if _, err := svc.Create(ctx, workspaceID, actor, "p", ""); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
}

func TestGetScopesToWorkspace(t *testing.T) {
	svc, _, _ := newTestService(t, enums.PlanFree)
	workspaceID := uuid.New()

	project, err := svc.Create(context.Background(), workspaceID, uuid.New(), "scoped", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Get(context.Background(), workspaceID, project.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := svc.Get(context.Background(), uuid.New(), project.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for foreign workspace, got %v", err)
	}
}
