package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/taskfolio/taskfolio-backend/api/responses"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

const userIDHeader = "X-User-Id"

// Identity reads the user id asserted by the authenticating gateway.
// Requests that reach this service without the header are rejected.
func Identity(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw := r.Header.Get(userIDHeader)
			if raw == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
				return
			}
			if _, err := uuid.Parse(raw); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user identity"))
				return
			}

			ctx = WithUserID(ctx, raw)
			if logg != nil {
				ctx = logg.WithUserID(ctx, raw)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
