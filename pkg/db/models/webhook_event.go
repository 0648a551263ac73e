package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/taskfolio/taskfolio-backend/pkg/enums"
)

// WebhookEvent records one payment-provider event delivery. EventID carries
// the provider's event id and is the idempotency key: the row is inserted
// before any side effect runs, so redelivery is detected even after a crash
// mid-processing.
type WebhookEvent struct {
	EventID      string                   `gorm:"column:event_id;primaryKey"`
	Type         string                   `gorm:"column:type;not null"`
	WorkspaceID  *uuid.UUID               `gorm:"column:workspace_id;type:uuid;index"`
	Status       enums.WebhookEventStatus `gorm:"column:status;type:webhook_event_status;not null;default:'pending'"`
	ErrorMessage *string                  `gorm:"column:error_message"`
	Payload      json.RawMessage          `gorm:"column:payload;type:jsonb"`
	CreatedAt    time.Time                `gorm:"column:created_at;autoCreateTime"`
	ProcessedAt  *time.Time               `gorm:"column:processed_at"`
}
