package controllers

import (
	"net/http"
	"time"

	"github.com/taskfolio/taskfolio-backend/api/responses"
	"github.com/taskfolio/taskfolio-backend/api/validators"
	"github.com/taskfolio/taskfolio-backend/internal/files"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

type fileResponse struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	FileName    string   `json:"file_name"`
	StoragePath string   `json:"storage_path"`
	MimeType    string   `json:"mime_type"`
	SizeBytes   int64    `json:"size_bytes"`
	Tags        []string `json:"tags,omitempty"`
	ScanStatus  string   `json:"scan_status"`
	UploadedBy  string   `json:"uploaded_by"`
	CreatedAt   string   `json:"created_at"`
}

type fileListResponse struct {
	Files []fileResponse `json:"files"`
}

type fileRegisterRequest struct {
	FileName    string   `json:"file_name" validate:"required,min=1,max=255"`
	StoragePath string   `json:"storage_path" validate:"required,min=1"`
	MimeType    string   `json:"mime_type" validate:"required,min=1"`
	SizeBytes   int64    `json:"size_bytes" validate:"required,gt=0"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,max=16,dive,min=1,max=64"`
}

// FileRegister records upload metadata for an object that already landed in
// storage and requests its scan.
func FileRegister(svc *files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "file service unavailable"))
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
		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload fileRegisterRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		file, err := svc.Register(ctx, files.RegisterInput{
			WorkspaceID: wid,
			ProjectID:   pid,
			ActorID:     actor,
			FileName:    payload.FileName,
			StoragePath: payload.StoragePath,
			MimeType:    payload.MimeType,
			SizeBytes:   payload.SizeBytes,
			Tags:        payload.Tags,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, fileToResponse(file))
	}
}

// FileList returns the project's files, newest first.
func FileList(svc *files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "file service unavailable"))
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

		list, err := svc.ListByProject(ctx, wid, pid)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		out := fileListResponse{Files: make([]fileResponse, 0, len(list))}
		for i := range list {
			out.Files = append(out.Files, fileToResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func fileToResponse(file *models.ProjectFile) fileResponse {
	return fileResponse{
		ID:          file.ID.String(),
		ProjectID:   file.ProjectID.String(),
		FileName:    file.FileName,
		StoragePath: file.StoragePath,
		MimeType:    file.MimeType,
		SizeBytes:   file.SizeBytes,
		Tags:        file.Tags,
		ScanStatus:  file.ScanStatus,
		UploadedBy:  file.UploadedByUserID.String(),
		CreatedAt:   file.CreatedAt.UTC().Format(time.RFC3339),
	}
}
