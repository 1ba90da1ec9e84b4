package entitlements

import (
	"strings"
	"time"
)

type Plan string

const (
	PlanFree         Plan = "free"
	PlanPremium      Plan = "premium"
	PlanProfessional Plan = "professional"
)

// ParsePlan normalizes a stored status value. Unknown values map to free.
func ParsePlan(status string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(status))) {
	case PlanPremium:
		return PlanPremium
	case PlanProfessional:
		return PlanProfessional
	default:
		return PlanFree
	}
}

// EffectiveStatus derives the tier a user is entitled to right now.
// A paid status only counts while its expiry lies in the future; a missing
// expiry counts as expired.
func EffectiveStatus(status string, expiresAt *time.Time, now time.Time) Plan {
	if expiresAt == nil || now.After(*expiresAt) {
		return PlanFree
	}
	return ParsePlan(status)
}

// Limits are the feature allowances attached to a tier.
type Limits struct {
	MealPlansPerMonth  int  `json:"meal_plans_per_month"`
	AIRecipesPerDay    int  `json:"ai_recipes_per_day"`
	ReportExport       bool `json:"report_export"`
	MultiplePatients   bool `json:"multiple_patients"`
	UnlimitedMealPlans bool `json:"unlimited_meal_plans"`
}

// LimitsFor returns the allowances for a plan; callers pass the effective tier.
func LimitsFor(plan Plan) Limits {
	switch plan {
	case PlanProfessional:
		return Limits{AIRecipesPerDay: 50, ReportExport: true, MultiplePatients: true, UnlimitedMealPlans: true}
	case PlanPremium:
		return Limits{MealPlansPerMonth: 30, AIRecipesPerDay: 10, ReportExport: true}
	default:
		return Limits{MealPlansPerMonth: 3, AIRecipesPerDay: 1}
	}
}

// IsPaid reports whether the plan is one of the paid tiers.
func (p Plan) IsPaid() bool {
	return p == PlanPremium || p == PlanProfessional
}
