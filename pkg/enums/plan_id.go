package enums

import "strings"

// PlanID names a billing tier with catalog-default entitlements.
type PlanID string

const (
	PlanFree    PlanID = "free"
	PlanStarter PlanID = "starter"
	PlanPro     PlanID = "pro"
)

var validPlanIDs = []PlanID{PlanFree, PlanStarter, PlanPro}

// Legacy tier names that still appear on older subscription rows.
var planAliases = map[string]PlanID{
	"free":    PlanFree,
	"starter": PlanStarter,
	"pro":     PlanPro,
	"basic":   PlanStarter,
	"premium": PlanPro,
}

// String implements fmt.Stringer.
func (p PlanID) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanID.
func (p PlanID) IsValid() bool {
	for _, candidate := range validPlanIDs {
		if candidate == p {
			return true
		}
	}
	return false
}

// ResolvePlanID normalizes a stored plan string to a canonical PlanID. Empty
// input resolves to free; unknown values resolve to starter so a transient
// naming mismatch never strips paid-tier quotas.
func ResolvePlanID(raw string) PlanID {
	if strings.TrimSpace(raw) == "" {
		return PlanFree
	}
	if plan, ok := planAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return plan
	}
	return PlanStarter
}
