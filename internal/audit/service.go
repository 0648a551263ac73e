package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

// Well-known audit actions. Webhook-driven billing actions are derived from
// the provider event type and are not enumerated here.
const (
	ActionWorkspaceCreated     = "workspace.created"
	ActionMemberInvited        = "member.invited"
	ActionMemberRoleUpdated    = "member.role_updated"
	ActionMemberRemoved        = "member.removed"
	ActionSubscriptionCreated  = "billing.subscription_created"
	ActionCheckoutExpired      = "billing.checkout_expired"
	ActionInvoicePaymentFailed = "billing.invoice_payment_failed"
	ActionFileUploaded         = "file.uploaded"
	ActionProjectCreated       = "project.created"
)

// Entry is the write-side shape of an audit record.
type Entry struct {
	WorkspaceID  uuid.UUID
	Action       string
	ActorUserID  *uuid.UUID
	TargetUserID *uuid.UUID
	ResourceType string
	ResourceID   string
	Summary      string
	Metadata     map[string]any
}

// ServiceParams groups dependencies for the audit service.
type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
}

// Service records and lists workspace audit events.
type Service struct {
	repo   Repository
	logger *logger.Logger
}

// NewService builds an audit service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{repo: params.Repo, logger: params.Logger}, nil
}

// Record persists an audit entry. Failures are logged and swallowed so the
// primary operation never rolls back because the audit write failed.
func (s *Service) Record(ctx context.Context, entry Entry) {
	row, err := entry.toModel()
	if err == nil {
		err = s.repo.Create(ctx, row)
	}
	if err != nil {
		ctx = s.logger.WithFields(ctx, map[string]any{
			"workspace_id": entry.WorkspaceID.String(),
			"action":       entry.Action,
			"error":        err.Error(),
		})
		s.logger.Warn(ctx, "audit write failed")
	}
}

// List returns recent audit entries for a workspace, newest first.
func (s *Service) List(ctx context.Context, workspaceID uuid.UUID, query ListQuery) ([]models.AuditLog, error) {
	return s.repo.ListByWorkspace(ctx, workspaceID, query)
}

func (e Entry) toModel() (*models.AuditLog, error) {
	row := &models.AuditLog{
		WorkspaceID:  e.WorkspaceID,
		Action:       e.Action,
		ActorUserID:  e.ActorUserID,
		TargetUserID: e.TargetUserID,
	}
	if e.ResourceType != "" {
		row.ResourceType = &e.ResourceType
	}
	if e.ResourceID != "" {
		row.ResourceID = &e.ResourceID
	}
	if e.Summary != "" {
		row.Summary = &e.Summary
	}
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, err
		}
		row.Metadata = raw
	}
	return row, nil
}
