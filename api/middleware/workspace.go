package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskfolio/taskfolio-backend/api/responses"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

// WorkspaceContext lifts the {workspaceId} route parameter into the request
// context so handlers and role checks share one parse.
func WorkspaceContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw := chi.URLParam(r, "workspaceId")
			if raw == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "workspace id is required"))
				return
			}
			if _, err := uuid.Parse(raw); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid workspace id"))
				return
			}

			ctx = WithWorkspaceID(ctx, raw)
			if logg != nil {
				ctx = logg.WithWorkspaceID(ctx, raw)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
