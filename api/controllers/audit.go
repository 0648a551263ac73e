package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/taskfolio/taskfolio-backend/api/responses"
	"github.com/taskfolio/taskfolio-backend/api/validators"
	"github.com/taskfolio/taskfolio-backend/internal/audit"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

type auditEntryResponse struct {
	ID           string          `json:"id"`
	Action       string          `json:"action"`
	ActorUserID  *string         `json:"actor_user_id,omitempty"`
	TargetUserID *string         `json:"target_user_id,omitempty"`
	ResourceType *string         `json:"resource_type,omitempty"`
	ResourceID   *string         `json:"resource_id,omitempty"`
	Summary      *string         `json:"summary,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

type auditListResponse struct {
	Entries []auditEntryResponse `json:"entries"`
}

// AuditList returns recent audit entries for the workspace, newest first.
func AuditList(svc *audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		wid, err := workspaceID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 10000)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		query := audit.ListQuery{Limit: limit, Offset: offset}
		if action := strings.TrimSpace(r.URL.Query().Get("action")); action != "" {
			query.Action = &action
		}

		entries, err := svc.List(ctx, wid, query)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		out := auditListResponse{Entries: make([]auditEntryResponse, 0, len(entries))}
		for _, entry := range entries {
			row := auditEntryResponse{
				ID:           entry.ID.String(),
				Action:       entry.Action,
				ResourceType: entry.ResourceType,
				ResourceID:   entry.ResourceID,
				Summary:      entry.Summary,
				Metadata:     entry.Metadata,
				CreatedAt:    entry.CreatedAt.UTC().Format(time.RFC3339),
			}
			if entry.ActorUserID != nil {
				actor := entry.ActorUserID.String()
				row.ActorUserID = &actor
			}
			if entry.TargetUserID != nil {
				target := entry.TargetUserID.String()
				row.TargetUserID = &target
			}
			out.Entries = append(out.Entries, row)
		}
		responses.WriteSuccess(w, out)
	}
}
