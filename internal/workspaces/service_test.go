package workspaces

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskfolio/taskfolio-backend/internal/audit"
	"github.com/taskfolio/taskfolio-backend/internal/memberships"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

type fakeRepo struct {
	byID map[uuid.UUID]*models.Workspace
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) Create(ctx context.Context, workspace *models.Workspace) error {
	workspace.ID = uuid.New()
	copied := *workspace
	f.byID[workspace.ID] = &copied
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	ws, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	copied := *ws
	return &copied, nil
}

func (f *fakeRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error) {
	var out []models.Workspace
	for _, ws := range f.byID {
		if ws.OwnerID != nil && *ws.OwnerID == userID {
			out = append(out, *ws)
		}
	}
	return out, nil
}

type fakeMembersRepo struct {
	members []models.WorkspaceMember
}

func (f *fakeMembersRepo) WithTx(tx *gorm.DB) memberships.Repository { return f }

func (f *fakeMembersRepo) GetMembership(ctx context.Context, workspaceID, userID uuid.UUID) (*models.WorkspaceMember, error) {
	for i := range f.members {
		if f.members[i].WorkspaceID == workspaceID && f.members[i].UserID == userID {
			return &f.members[i], nil
		}
	}
	return nil, nil
}

func (f *fakeMembersRepo) ListWorkspaceMembers(ctx context.Context, workspaceID uuid.UUID) ([]memberships.MemberWithUser, error) {
	return nil, nil
}

func (f *fakeMembersRepo) Upsert(ctx context.Context, member *models.WorkspaceMember) error {
	member.ID = uuid.New()
	f.members = append(f.members, *member)
	return nil
}

func (f *fakeMembersRepo) UpdateRole(ctx context.Context, membershipID uuid.UUID, role enums.MemberRole) error {
	return nil
}

func (f *fakeMembersRepo) Delete(ctx context.Context, membershipID uuid.UUID) error { return nil }

func (f *fakeMembersRepo) CountMembers(ctx context.Context, workspaceID uuid.UUID) (int64, error) {
	return int64(len(f.members)), nil
}

func (f *fakeMembersRepo) CountOwners(ctx context.Context, workspaceID uuid.UUID) (int64, error) {
	var count int64
	for _, m := range f.members {
		if m.WorkspaceID == workspaceID && m.Role == enums.MemberRoleOwner {
			count++
		}
	}
	return count, nil
}

func (f *fakeMembersRepo) UserHasRole(ctx context.Context, workspaceID, userID uuid.UUID, roles ...enums.MemberRole) (bool, error) {
	return false, nil
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

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeMembersRepo, *fakeAuditRepo) {
	t.Helper()
	repo := &fakeRepo{byID: map[uuid.UUID]*models.Workspace{}}
	members := &fakeMembersRepo{}
	auditRepo := &fakeAuditRepo{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	auditSvc, err := audit.NewService(audit.ServiceParams{Repo: auditRepo, Logger: logg})
	if err != nil {
		t.Fatalf("audit.NewService: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Repo:              repo,
		Members:           members,
		Audit:             auditSvc,
		Logger:            logg,
		TransactionRunner: fakeTxRunner{},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo, members, auditRepo
}

func TestCreateProvisionsOwnerMembership(t *testing.T) {
	svc, repo, members, auditRepo := newTestService(t)
	ownerID := uuid.New()

	workspace, err := svc.Create(context.Background(), "Acme Inc", "acme", ownerID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, ok := repo.byID[workspace.ID]; !ok {
		t.Fatal("workspace not persisted")
	}
	if workspace.Slug == nil || *workspace.Slug != "acme" {
		t.Fatal("slug not stored")
	}

	membership, err := members.GetMembership(context.Background(), workspace.ID, ownerID)
	if err != nil || membership == nil {
		t.Fatalf("owner membership missing: %v", err)
	}
	if membership.Role != enums.MemberRoleOwner {
		t.Fatalf("expected owner role, got %s", membership.Role)
	}

	if len(auditRepo.entries) != 1 || auditRepo.entries[0].Action != audit.ActionWorkspaceCreated {
		t.Fatalf("unexpected audit entries: %+v", auditRepo.entries)
	}
}

func TestCreateRequiresName(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "   ", "", uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetMissingWorkspace(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Get(context.Background(), uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
