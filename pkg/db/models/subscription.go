package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/taskfolio/taskfolio-backend/pkg/enums"
)

// Subscription persists billing state per workspace. At most one row exists
// per workspace; absence means the row has not been lazily provisioned yet.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	WorkspaceID          uuid.UUID                `gorm:"column:workspace_id;type:uuid;not null;uniqueIndex"`
	Plan                 string                   `gorm:"column:plan;not null;default:'free'"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'inactive'"`
	TrialStartedAt       *time.Time               `gorm:"column:trial_started_at"`
	TrialEndsAt          *time.Time               `gorm:"column:trial_ends_at"`
	StripeCustomerID     *string                  `gorm:"column:stripe_customer_id;index"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id"`
	Entitlements         json.RawMessage          `gorm:"column:entitlements;type:jsonb"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
