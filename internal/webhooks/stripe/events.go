package stripewebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/taskfolio/taskfolio-backend/pkg/db"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
)

// EventRepository handles the webhook event ledger.
type EventRepository interface {
	WithTx(tx *gorm.DB) EventRepository
	Insert(ctx context.Context, event *models.WebhookEvent) error
	Find(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	Update(ctx context.Context, event *models.WebhookEvent) error
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository returns an event ledger repository bound to the provided database.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) WithTx(tx *gorm.DB) EventRepository {
	if tx == nil {
		return r
	}
	return &eventRepository{db: tx}
}

func (r *eventRepository) Insert(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) Find(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) Update(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Save(event).Error
}

// Ledger serializes deliveries of the same provider event through the
// primary key on event_id. The row is written before any side effect so a
// redelivery is detected even if the process died mid-handler.
type Ledger struct {
	repo EventRepository
}

// NewLedger builds an event ledger.
func NewLedger(repo EventRepository) (*Ledger, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event repo is required")
	}
	return &Ledger{repo: repo}, nil
}

// EnsureLogged records the delivery and reports whether the event was already
// applied. A prior row in pending or error state is handed back for another
// attempt; only a processed row short-circuits the delivery.
func (l *Ledger) EnsureLogged(ctx context.Context, event *stripe.Event, workspaceID *uuid.UUID) (*models.WebhookEvent, bool, error) {
	if event == nil || event.ID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}

	record := &models.WebhookEvent{
		EventID:     event.ID,
		Type:        string(event.Type),
		WorkspaceID: workspaceID,
		Status:      enums.WebhookEventStatusPending,
	}
	if event.Data != nil {
		record.Payload = event.Data.Raw
	}

	err := l.repo.Insert(ctx, record)
	if err == nil {
		return record, false, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "log webhook event")
	}

	existing, err := l.repo.Find(ctx, event.ID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook event")
	}
	if existing == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "webhook event vanished after conflict")
	}
	if existing.Status == enums.WebhookEventStatusProcessed {
		return existing, true, nil
	}
	return existing, false, nil
}

// MarkProcessed finalizes the record after the handler committed.
func (l *Ledger) MarkProcessed(ctx context.Context, record *models.WebhookEvent, workspaceID *uuid.UUID) error {
	now := time.Now().UTC()
	record.Status = enums.WebhookEventStatusProcessed
	record.ProcessedAt = &now
	record.ErrorMessage = nil
	if workspaceID != nil {
		record.WorkspaceID = workspaceID
	}
	return l.repo.Update(ctx, record)
}

// MarkError stores the handler failure so the next delivery can retry.
func (l *Ledger) MarkError(ctx context.Context, record *models.WebhookEvent, handlerErr error) error {
	record.Status = enums.WebhookEventStatusError
	if handlerErr != nil {
		msg := handlerErr.Error()
		record.ErrorMessage = &msg
	}
	return l.repo.Update(ctx, record)
}
