package controllers

import (
	"net/http"
	"time"

	"github.com/taskfolio/taskfolio-backend/api/responses"
	"github.com/taskfolio/taskfolio-backend/api/validators"
	"github.com/taskfolio/taskfolio-backend/internal/workspaces"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

type workspaceResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Slug      *string `json:"slug,omitempty"`
	OwnerID   *string `json:"owner_id,omitempty"`
	CreatedAt string  `json:"created_at"`
}

type workspaceListResponse struct {
	Workspaces []workspaceResponse `json:"workspaces"`
}

type workspaceCreateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=120"`
	Slug string `json:"slug,omitempty" validate:"omitempty,min=1,max=80"`
}

// WorkspaceCreate provisions a workspace owned by the caller.
func WorkspaceCreate(svc *workspaces.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "workspace service unavailable"))
			return
		}

		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload workspaceCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		workspace, err := svc.Create(ctx, payload.Name, payload.Slug, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, workspaceToResponse(workspace))
	}
}

// WorkspaceList returns the workspaces the caller belongs to.
func WorkspaceList(svc *workspaces.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "workspace service unavailable"))
			return
		}

		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := svc.ListForUser(ctx, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		out := workspaceListResponse{Workspaces: make([]workspaceResponse, 0, len(list))}
		for i := range list {
			out.Workspaces = append(out.Workspaces, workspaceToResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// WorkspaceDetail returns one workspace the caller is a member of.
func WorkspaceDetail(svc *workspaces.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "workspace service unavailable"))
			return
		}

		wid, err := workspaceID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		workspace, err := svc.Get(ctx, wid)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, workspaceToResponse(workspace))
	}
}

func workspaceToResponse(workspace *models.Workspace) workspaceResponse {
	out := workspaceResponse{
		ID:        workspace.ID.String(),
		Name:      workspace.Name,
		Slug:      workspace.Slug,
		CreatedAt: workspace.CreatedAt.UTC().Format(time.RFC3339),
	}
	if workspace.OwnerID != nil {
		owner := workspace.OwnerID.String()
		out.OwnerID = &owner
	}
	return out
}
