package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/taskfolio/taskfolio-backend/api/middleware"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
)

// actorID resolves the authenticated user id injected by the identity
// middleware.
func actorID(r *http.Request) (uuid.UUID, error) {
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

// workspaceID resolves the workspace id injected by the workspace middleware.
func workspaceID(r *http.Request) (uuid.UUID, error) {
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
