package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskfolio/taskfolio-backend/api/responses"
	"github.com/taskfolio/taskfolio-backend/api/validators"
	"github.com/taskfolio/taskfolio-backend/internal/memberships"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

type memberResponse struct {
	UserID      string  `json:"user_id"`
	Email       string  `json:"email"`
	DisplayName *string `json:"display_name,omitempty"`
	Role        string  `json:"role"`
	InvitedBy   *string `json:"invited_by,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

type memberListResponse struct {
	Members []memberResponse `json:"members"`
}

type memberInviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=owner admin member"`
}

type memberInviteResponse struct {
	Member     memberResponse `json:"member"`
	Downgraded bool           `json:"downgraded"`
}

type memberRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=owner admin member"`
}

// MemberList returns the workspace roster.
func MemberList(svc *memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
			return
		}

		wid, err := workspaceID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		members, err := svc.List(ctx, wid)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		out := memberListResponse{Members: make([]memberResponse, 0, len(members))}
		for _, m := range members {
			entry := memberResponse{
				UserID:      m.UserID.String(),
				Email:       m.Email,
				DisplayName: m.DisplayName,
				Role:        string(m.Role),
				CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
			}
			if m.InvitedByUserID != nil {
				invitedBy := m.InvitedByUserID.String()
				entry.InvitedBy = &invitedBy
			}
			out.Members = append(out.Members, entry)
		}
		responses.WriteSuccess(w, out)
	}
}

// MemberInvite adds a user to the workspace by email.
func MemberInvite(svc *memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
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

		var payload memberInviteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		role, err := enums.ParseMemberRole(strings.TrimSpace(payload.Role))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
			return
		}

		result, err := svc.Invite(ctx, wid, actor, strings.ToLower(strings.TrimSpace(payload.Email)), role)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, memberInviteResponse{
			Member: memberResponse{
				UserID:      result.User.ID.String(),
				Email:       result.User.Email,
				DisplayName: result.User.DisplayName,
				Role:        string(result.Member.Role),
				CreatedAt:   result.Member.CreatedAt.UTC().Format(time.RFC3339),
			},
			Downgraded: result.Downgraded,
		})
	}
}

// MemberUpdateRole changes a member's role.
func MemberUpdateRole(svc *memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
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
		target, err := targetUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload memberRoleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		role, err := enums.ParseMemberRole(strings.TrimSpace(payload.Role))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
			return
		}

		if err := svc.UpdateRole(ctx, wid, actor, target, role); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"role": string(role)})
	}
}

// MemberRemove deletes a membership.
func MemberRemove(svc *memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
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
		target, err := targetUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Remove(ctx, wid, actor, target); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "removed"})
	}
}

func targetUserID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "userId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return id, nil
}
