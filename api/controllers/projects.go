package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskfolio/taskfolio-backend/api/responses"
	"github.com/taskfolio/taskfolio-backend/api/validators"
	"github.com/taskfolio/taskfolio-backend/internal/projects"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

type projectResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	CreatedBy   *string `json:"created_by,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

type projectListResponse struct {
	Projects []projectResponse `json:"projects"`
}

type projectCreateRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// ProjectCreate inserts a project under the workspace's project quota.
func ProjectCreate(svc *projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		wid, err := workspaceID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload projectCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		project, err := svc.Create(ctx, wid, actor, payload.Name, payload.Description)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, projectToResponse(project))
	}
}

// ProjectList returns the workspace's projects.
func ProjectList(svc *projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		wid, err := workspaceID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := svc.List(ctx, wid)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		out := projectListResponse{Projects: make([]projectResponse, 0, len(list))}
		for i := range list {
			out.Projects = append(out.Projects, projectToResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// ProjectDetail loads one project scoped to the workspace.
func ProjectDetail(svc *projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		wid, err := workspaceID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		pid, err := projectID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		project, err := svc.Get(ctx, wid, pid)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, projectToResponse(project))
	}
}

func projectID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "projectId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "project id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid project id")
	}
	return id, nil
}

func projectToResponse(project *models.Project) projectResponse {
	out := projectResponse{
		ID:          project.ID.String(),
		Name:        project.Name,
		Description: project.Description,
		CreatedAt:   project.CreatedAt.UTC().Format(time.RFC3339),
	}
	if project.CreatedByUserID != nil {
		createdBy := project.CreatedByUserID.String()
		out.CreatedBy = &createdBy
	}
	return out
}
