package entitlements

import "github.com/taskfolio/taskfolio-backend/pkg/enums"

// Limits describes the quota ceilings a workspace is entitled to.
// A nil field means the plan imposes no cap on that dimension.
type Limits struct {
	MaxProjects     *int `json:"maxProjects"`
	MaxTeamMembers  *int `json:"maxTeamMembers"`
	MaxFileSizeMb   *int `json:"maxFileSizeMb"`
	MaxStorageMb    *int `json:"maxStorageMb"`
	MaxDailyUploads *int `json:"maxDailyUploads"`
}

// planDefaults is the source of truth for per-plan quota ceilings.
var planDefaults = map[enums.PlanID]Limits{
	enums.PlanFree: {
		MaxProjects:     intPtr(3),
		MaxTeamMembers:  intPtr(3),
		MaxFileSizeMb:   intPtr(25),
		MaxStorageMb:    intPtr(1024),
		MaxDailyUploads: intPtr(25),
	},
	enums.PlanStarter: {
		MaxProjects:     intPtr(10),
		MaxTeamMembers:  intPtr(10),
		MaxFileSizeMb:   intPtr(100),
		MaxStorageMb:    intPtr(5000),
		MaxDailyUploads: intPtr(250),
	},
	enums.PlanPro: {
		MaxFileSizeMb: intPtr(512),
	},
}

// PlanLimits returns a copy of the default limits for the plan. Unknown plans
// resolve through the alias table before lookup.
func PlanLimits(plan enums.PlanID) Limits {
	defaults, ok := planDefaults[plan]
	if !ok {
		defaults = planDefaults[enums.ResolvePlanID(string(plan))]
	}
	return Limits{
		MaxProjects:     copyInt(defaults.MaxProjects),
		MaxTeamMembers:  copyInt(defaults.MaxTeamMembers),
		MaxFileSizeMb:   copyInt(defaults.MaxFileSizeMb),
		MaxStorageMb:    copyInt(defaults.MaxStorageMb),
		MaxDailyUploads: copyInt(defaults.MaxDailyUploads),
	}
}

// Allows reports whether a usage count of current leaves room for one more
// unit under the given ceiling. A nil ceiling never rejects.
func Allows(limit *int, current int64) bool {
	if limit == nil {
		return true
	}
	return current < int64(*limit)
}

func intPtr(v int) *int { return &v }

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
