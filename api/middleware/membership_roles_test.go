package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskfolio/taskfolio-backend/pkg/enums"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
)

type fakeChecker struct {
	allowed bool
	calls   int

	gotWorkspace uuid.UUID
	gotUser      uuid.UUID
	gotRoles     []enums.MemberRole
}

func (f *fakeChecker) RequireRole(ctx context.Context, workspaceID, userID uuid.UUID, roles ...enums.MemberRole) error {
	f.calls++
	f.gotWorkspace = workspaceID
	f.gotUser = userID
	f.gotRoles = roles
	if !f.allowed {
		return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient workspace role")
	}
	return nil
}

func newRolesRouter(checker *fakeChecker, roles ...enums.MemberRole) http.Handler {
	r := chi.NewRouter()
	r.Route("/workspaces/{workspaceId}", func(r chi.Router) {
		r.Use(WorkspaceContext(nil))
		r.With(RequireWorkspaceRoles(checker, nil, roles...)).Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

func TestRequireWorkspaceRolesAllowsMember(t *testing.T) {
	checker := &fakeChecker{allowed: true}
	router := newRolesRouter(checker, enums.MemberRoleOwner, enums.MemberRoleAdmin)

	workspaceID := uuid.New()
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/workspaces/"+workspaceID.String()+"/", nil)
	req = req.WithContext(WithUserID(req.Context(), userID.String()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 1, checker.calls)
	require.Equal(t, workspaceID, checker.gotWorkspace)
	require.Equal(t, userID, checker.gotUser)
	require.Equal(t, []enums.MemberRole{enums.MemberRoleOwner, enums.MemberRoleAdmin}, checker.gotRoles)
}

func TestRequireWorkspaceRolesRejectsOutsider(t *testing.T) {
	checker := &fakeChecker{allowed: false}
	router := newRolesRouter(checker, enums.MemberRoleOwner)

	req := httptest.NewRequest(http.MethodGet, "/workspaces/"+uuid.NewString()+"/", nil)
	req = req.WithContext(WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireWorkspaceRolesNeedsIdentity(t *testing.T) {
	checker := &fakeChecker{allowed: true}
	router := newRolesRouter(checker, enums.MemberRoleOwner)

	req := httptest.NewRequest(http.MethodGet, "/workspaces/"+uuid.NewString()+"/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, checker.calls)
}

func TestWorkspaceContextRejectsMalformedID(t *testing.T) {
	checker := &fakeChecker{allowed: true}
	router := newRolesRouter(checker, enums.MemberRoleOwner)

	req := httptest.NewRequest(http.MethodGet, "/workspaces/not-a-uuid/", nil)
	req = req.WithContext(WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, checker.calls)
}
