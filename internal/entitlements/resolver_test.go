package entitlements

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
)

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }

func TestResolveNilSubscription(t *testing.T) {
	snap := Resolve(nil, time.Now().UTC())

	if snap.EffectivePlan != enums.PlanFree {
		t.Fatalf("expected free plan, got %s", snap.EffectivePlan)
	}
	if snap.IsInTrial {
		t.Fatal("expected no trial")
	}
	if snap.IsActiveSubscriber {
		t.Fatal("expected inactive subscriber")
	}
	if snap.Limits.MaxProjects == nil || *snap.Limits.MaxProjects != 3 {
		t.Fatalf("expected free maxProjects=3, got %v", snap.Limits.MaxProjects)
	}
}

func TestResolveFreshTrial(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		WorkspaceID:    uuid.New(),
		Plan:           "starter",
		Status:         enums.SubscriptionStatusTrialing,
		TrialStartedAt: timePtr(now),
		TrialEndsAt:    timePtr(now.Add(14 * 24 * time.Hour)),
	}

	snap := Resolve(sub, now)

	if !snap.IsInTrial {
		t.Fatal("expected workspace in trial")
	}
	if snap.TrialDaysRemaining == nil || *snap.TrialDaysRemaining != 14 {
		t.Fatalf("expected 14 days remaining, got %v", snap.TrialDaysRemaining)
	}
	if !snap.IsActiveSubscriber {
		t.Fatal("trialing workspace should count as active subscriber")
	}
	if snap.EffectivePlan != enums.PlanStarter {
		t.Fatalf("expected starter, got %s", snap.EffectivePlan)
	}
	if snap.Limits.MaxDailyUploads == nil || *snap.Limits.MaxDailyUploads != 250 {
		t.Fatalf("expected starter maxDailyUploads=250, got %v", snap.Limits.MaxDailyUploads)
	}
}

func TestResolveLapsedTrialDowngrades(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		WorkspaceID: uuid.New(),
		Plan:        "starter",
		Status:      enums.SubscriptionStatusInactive,
		TrialEndsAt: timePtr(now.Add(-24 * time.Hour)),
	}

	snap := Resolve(sub, now)

	if snap.IsInTrial {
		t.Fatal("expected trial to be over")
	}
	if snap.TrialDaysRemaining != nil {
		t.Fatalf("expected null days remaining outside trial, got %d", *snap.TrialDaysRemaining)
	}
	if snap.EffectivePlan != enums.PlanFree {
		t.Fatalf("expected downgrade to free, got %s", snap.EffectivePlan)
	}
	if snap.Plan != enums.PlanStarter {
		t.Fatalf("declared plan should stay starter, got %s", snap.Plan)
	}
	if snap.IsActiveSubscriber {
		t.Fatal("lapsed workspace should not be an active subscriber")
	}
	if snap.Limits.MaxTeamMembers == nil || *snap.Limits.MaxTeamMembers != 3 {
		t.Fatalf("expected free maxTeamMembers=3, got %v", snap.Limits.MaxTeamMembers)
	}
}

func TestResolveLapsedTrialWithStripeSubscriptionKeepsPlan(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		WorkspaceID:          uuid.New(),
		Plan:                 "pro",
		Status:               enums.SubscriptionStatusPastDue,
		TrialEndsAt:          timePtr(now.Add(-24 * time.Hour)),
		StripeSubscriptionID: strPtr("sub_123"),
	}

	snap := Resolve(sub, now)

	if snap.EffectivePlan != enums.PlanPro {
		t.Fatalf("expected pro to survive past_due with a live subscription, got %s", snap.EffectivePlan)
	}
	if snap.IsActiveSubscriber {
		t.Fatal("past_due outside trial should not count as active subscriber")
	}
}

func TestResolvePastDueDuringTrialStaysActive(t *testing.T) {
	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		WorkspaceID: uuid.New(),
		Plan:        "starter",
		Status:      enums.SubscriptionStatusPastDue,
		TrialEndsAt: timePtr(now.Add(5 * 24 * time.Hour)),
	}

	snap := Resolve(sub, now)

	if !snap.IsInTrial {
		t.Fatal("expected trial window to still be open")
	}
	if !snap.IsActiveSubscriber {
		t.Fatal("past_due inside trial should count as active subscriber")
	}
}

func TestResolvePlanAliases(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		stored string
		want   enums.PlanID
	}{
		{"basic", enums.PlanStarter},
		{"premium", enums.PlanPro},
		{"enterprise-gold", enums.PlanStarter},
		{"", enums.PlanFree},
	}

	for _, tc := range cases {
		sub := &models.Subscription{
			WorkspaceID:          uuid.New(),
			Plan:                 tc.stored,
			Status:               enums.SubscriptionStatusActive,
			StripeSubscriptionID: strPtr("sub_abc"),
		}
		snap := Resolve(sub, now)
		if snap.EffectivePlan != tc.want {
			t.Errorf("plan %q: expected %s, got %s", tc.stored, tc.want, snap.EffectivePlan)
		}
	}
}

func TestResolveProUnlimitedDimensions(t *testing.T) {
	now := time.Now().UTC()
	sub := &models.Subscription{
		WorkspaceID:          uuid.New(),
		Plan:                 "pro",
		Status:               enums.SubscriptionStatusActive,
		StripeSubscriptionID: strPtr("sub_pro"),
	}

	snap := Resolve(sub, now)

	if snap.Limits.MaxProjects != nil {
		t.Fatalf("expected unlimited projects on pro, got %v", *snap.Limits.MaxProjects)
	}
	if snap.Limits.MaxFileSizeMb == nil || *snap.Limits.MaxFileSizeMb != 512 {
		t.Fatalf("expected pro maxFileSizeMb=512, got %v", snap.Limits.MaxFileSizeMb)
	}
}

func TestResolveTrialDaysRemainingCeil(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		WorkspaceID: uuid.New(),
		Plan:        "starter",
		Status:      enums.SubscriptionStatusTrialing,
		TrialEndsAt: timePtr(now.Add(36 * time.Hour)),
	}

	snap := Resolve(sub, now)

	if snap.TrialDaysRemaining == nil || *snap.TrialDaysRemaining != 2 {
		t.Fatalf("expected partial days to round up to 2, got %v", snap.TrialDaysRemaining)
	}
}

func TestResolveNoTrialWindowWithoutPaymentDowngrades(t *testing.T) {
	now := time.Now().UTC()
	sub := &models.Subscription{
		WorkspaceID: uuid.New(),
		Plan:        "pro",
		Status:      enums.SubscriptionStatusInactive,
	}

	snap := Resolve(sub, now)

	if snap.EffectivePlan != enums.PlanFree {
		t.Fatalf("inactive plan without trial window or subscription should fall to free, got %s", snap.EffectivePlan)
	}
}

func TestResolveNullOverrideCannotLiftFreeCap(t *testing.T) {
	now := time.Now().UTC()
	sub := &models.Subscription{
		WorkspaceID:  uuid.New(),
		Plan:         "free",
		Status:       enums.SubscriptionStatusInactive,
		Entitlements: json.RawMessage(`{"maxProjects": null}`),
	}

	snap := Resolve(sub, now)

	if snap.Limits.MaxProjects == nil || *snap.Limits.MaxProjects != 3 {
		t.Fatalf("free plan must keep maxProjects=3 under a null override, got %v", snap.Limits.MaxProjects)
	}
}

func TestResolveZeroOverrideCannotBlockCreation(t *testing.T) {
	now := time.Now().UTC()
	sub := &models.Subscription{
		WorkspaceID:          uuid.New(),
		Plan:                 "starter",
		Status:               enums.SubscriptionStatusActive,
		StripeSubscriptionID: strPtr("sub_zero"),
		Entitlements:         json.RawMessage(`{"maxProjects": 0}`),
	}

	snap := Resolve(sub, now)

	if snap.Limits.MaxProjects == nil || *snap.Limits.MaxProjects != 10 {
		t.Fatalf("zero override must fall back to starter maxProjects=10, got %v", snap.Limits.MaxProjects)
	}
	if !Allows(snap.Limits.MaxProjects, 2) {
		t.Fatal("resolved limit must still admit new projects")
	}
}

func TestApplyOverrides(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want func(Limits) bool
	}{
		{
			name: "valid integer override",
			raw:  `{"maxProjects": 50}`,
			want: func(l Limits) bool { return l.MaxProjects != nil && *l.MaxProjects == 50 },
		},
		{
			name: "explicit null keeps the plan default",
			raw:  `{"maxDailyUploads": null}`,
			want: func(l Limits) bool { return l.MaxDailyUploads != nil && *l.MaxDailyUploads == 250 },
		},
		{
			name: "zero ignored",
			raw:  `{"maxProjects": 0}`,
			want: func(l Limits) bool { return l.MaxProjects != nil && *l.MaxProjects == 10 },
		},
		{
			name: "negative value ignored",
			raw:  `{"maxTeamMembers": -1}`,
			want: func(l Limits) bool { return l.MaxTeamMembers != nil && *l.MaxTeamMembers == 10 },
		},
		{
			name: "wrong type ignored",
			raw:  `{"maxStorageMb": "lots"}`,
			want: func(l Limits) bool { return l.MaxStorageMb != nil && *l.MaxStorageMb == 5000 },
		},
		{
			name: "unknown keys ignored",
			raw:  `{"maxWidgets": 9}`,
			want: func(l Limits) bool { return l.MaxProjects != nil && *l.MaxProjects == 10 },
		},
		{
			name: "corrupt document leaves defaults",
			raw:  `not-json`,
			want: func(l Limits) bool { return l.MaxProjects != nil && *l.MaxProjects == 10 },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			limits := PlanLimits(enums.PlanStarter)
			applyOverrides(&limits, json.RawMessage(tc.raw))
			if !tc.want(limits) {
				t.Fatalf("override %q produced unexpected limits %+v", tc.raw, limits)
			}
		})
	}
}

func TestAllows(t *testing.T) {
	three := 3
	if Allows(&three, 3) {
		t.Fatal("count at the ceiling should be rejected")
	}
	if !Allows(&three, 2) {
		t.Fatal("count under the ceiling should be allowed")
	}
	if !Allows(nil, 1_000_000) {
		t.Fatal("nil ceiling should always allow")
	}
}
