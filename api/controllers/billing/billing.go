package billing

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/taskfolio/taskfolio-backend/api/middleware"
	"github.com/taskfolio/taskfolio-backend/api/responses"
	"github.com/taskfolio/taskfolio-backend/api/validators"
	"github.com/taskfolio/taskfolio-backend/internal/entitlements"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

// BillingService describes the billing surface the HTTP controllers use.
type BillingService interface {
	Summary(ctx context.Context, workspaceID uuid.UUID) (entitlements.Snapshot, error)
	CreateCheckoutSession(ctx context.Context, workspaceID uuid.UUID, plan enums.PlanID, actorEmail string) (string, error)
	CreatePortalSession(ctx context.Context, workspaceID uuid.UUID) (string, error)
}

type userSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type checkoutRequest struct {
	Plan string `json:"plan" validate:"required,oneof=starter pro"`
}

type sessionResponse struct {
	URL string `json:"url"`
}

// EntitlementSummary returns the resolved entitlement snapshot for the
// workspace.
func EntitlementSummary(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		wid, err := requestWorkspaceID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		snapshot, err := svc.Summary(ctx, wid)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, snapshot)
	}
}

// CheckoutSessionCreate opens a hosted checkout for upgrading the workspace
// and returns the redirect URL.
func CheckoutSessionCreate(svc BillingService, users userSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		wid, err := requestWorkspaceID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		actor, err := requestUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		plan := enums.ResolvePlanID(strings.TrimSpace(payload.Plan))

		actorEmail := ""
		if users != nil {
			if user, err := users.FindByID(ctx, actor); err == nil && user != nil {
				actorEmail = user.Email
			}
		}

		url, err := svc.CreateCheckoutSession(ctx, wid, plan, actorEmail)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, sessionResponse{URL: url})
	}
}

// PortalSessionCreate opens the billing portal for an existing customer and
// returns the redirect URL.
func PortalSessionCreate(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		wid, err := requestWorkspaceID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		url, err := svc.CreatePortalSession(ctx, wid)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, sessionResponse{URL: url})
	}
}

func requestWorkspaceID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.WorkspaceIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "workspace context required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid workspace id")
	}
	return id, nil
}

func requestUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return id, nil
}
