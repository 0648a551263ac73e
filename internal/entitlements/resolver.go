package entitlements

import (
	"encoding/json"
	"math"
	"time"

	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
)

// Snapshot is the fully resolved entitlement view for a workspace at a
// point in time. Everything downstream (quota checks, UI summaries) reads
// from this struct rather than from the raw subscription row.
type Snapshot struct {
	Plan               enums.PlanID             `json:"plan"`
	EffectivePlan      enums.PlanID             `json:"effectivePlan"`
	Status             enums.SubscriptionStatus `json:"status"`
	IsInTrial          bool                     `json:"isInTrial"`
	TrialEndsAt        *time.Time               `json:"trialEndsAt,omitempty"`
	TrialDaysRemaining *int                     `json:"trialDaysRemaining"`
	IsActiveSubscriber bool                     `json:"isActiveSubscriber"`
	Limits             Limits                   `json:"limits"`
}

// Resolve computes the entitlement snapshot for a subscription row.
// A nil row means the workspace was never provisioned and falls back to the
// free plan with no trial.
func Resolve(sub *models.Subscription, now time.Time) Snapshot {
	if sub == nil {
		return Snapshot{
			Plan:          enums.PlanFree,
			EffectivePlan: enums.PlanFree,
			Status:        enums.SubscriptionStatusInactive,
			Limits:        PlanLimits(enums.PlanFree),
		}
	}

	plan := enums.ResolvePlanID(sub.Plan)

	inTrial := sub.Status == enums.SubscriptionStatusTrialing ||
		(sub.TrialEndsAt != nil && sub.TrialEndsAt.After(now))

	// Null when the workspace is not in a trial; clamped at zero when the
	// trialing status outlives the window.
	var daysRemaining *int
	if inTrial && sub.TrialEndsAt != nil {
		d := int(math.Ceil(sub.TrialEndsAt.Sub(now).Hours() / 24))
		if d < 0 {
			d = 0
		}
		daysRemaining = &d
	}

	// Outside a trial with no payment backing the workspace reverts to the
	// free tier until Stripe reports otherwise.
	effective := plan
	hasStripeSub := sub.StripeSubscriptionID != nil && *sub.StripeSubscriptionID != ""
	if !inTrial && sub.Status != enums.SubscriptionStatusActive && !hasStripeSub {
		effective = enums.PlanFree
	}

	activeSubscriber := sub.Status == enums.SubscriptionStatusActive ||
		(inTrial && (sub.Status == enums.SubscriptionStatusTrialing || sub.Status == enums.SubscriptionStatusPastDue))

	limits := PlanLimits(effective)
	applyOverrides(&limits, sub.Entitlements)

	return Snapshot{
		Plan:               plan,
		EffectivePlan:      effective,
		Status:             sub.Status,
		IsInTrial:          inTrial,
		TrialEndsAt:        sub.TrialEndsAt,
		TrialDaysRemaining: daysRemaining,
		IsActiveSubscriber: activeSubscriber,
		Limits:             limits,
	}
}

// applyOverrides merges stored per-workspace overrides on top of the plan
// defaults. Each field is validated independently: only a positive integer
// replaces the plan ceiling. Null, zero, negative and mistyped values keep
// the default, so an override can neither lift a cap nor zero out a quota.
func applyOverrides(limits *Limits, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}

	var overrides map[string]json.RawMessage
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return
	}

	fields := map[string]**int{
		"maxProjects":     &limits.MaxProjects,
		"maxTeamMembers":  &limits.MaxTeamMembers,
		"maxFileSizeMb":   &limits.MaxFileSizeMb,
		"maxStorageMb":    &limits.MaxStorageMb,
		"maxDailyUploads": &limits.MaxDailyUploads,
	}

	for key, target := range fields {
		val, ok := overrides[key]
		if !ok {
			continue
		}
		// Unmarshal leaves n at zero for JSON null, so null falls through
		// to the plan default with the rest of the invalid values.
		var n int
		if err := json.Unmarshal(val, &n); err != nil || n <= 0 {
			continue
		}
		*target = intPtr(n)
	}
}
