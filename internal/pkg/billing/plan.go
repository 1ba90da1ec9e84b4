package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/nutrinea/nutrinea/app/models"
)

// PlanName is the commercial plan name used in gateway descriptions.
type PlanName string

const (
	PlanPremium      PlanName = "PREMIUM"
	PlanProfissional PlanName = "PROFISSIONAL"
)

type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// PlanCycle is the result of inferring plan and cycle; empty fields are unknown.
type PlanCycle struct {
	Plan  PlanName
	Cycle BillingCycle
}

// ExtractPlanCycle infers plan and cycle from a free-text payment description.
// Matching is a case-insensitive substring search. When both plan keywords
// appear, PREMIUM wins.
func ExtractPlanCycle(description string) PlanCycle {
	d := strings.ToLower(description)

	var out PlanCycle
	switch {
	case strings.Contains(d, "premium"):
		out.Plan = PlanPremium
	case strings.Contains(d, "profissional"):
		out.Plan = PlanProfissional
	}
	switch {
	case strings.Contains(d, "anual"):
		out.Cycle = CycleYearly
	case strings.Contains(d, "mensal"):
		out.Cycle = CycleMonthly
	}
	return out
}

// ParsePlanName normalizes a structured plan value. Unknown values yield "".
func ParsePlanName(raw string) PlanName {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PREMIUM":
		return PlanPremium
	case "PROFISSIONAL", "PROFESSIONAL":
		return PlanProfissional
	default:
		return ""
	}
}

// ParseBillingCycle normalizes a structured cycle value. Unknown values yield "".
func ParseBillingCycle(raw string) BillingCycle {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "monthly", "mensal", "month":
		return CycleMonthly
	case "yearly", "anual", "annual", "year":
		return CycleYearly
	default:
		return ""
	}
}

// Status maps the plan onto the stored subscription status.
func (p PlanName) Status() (string, error) {
	switch p {
	case PlanPremium:
		return models.SUBSCRIPTION_PREMIUM, nil
	case PlanProfissional:
		return models.SUBSCRIPTION_PROFESSIONAL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, string(p))
	}
}

func (c BillingCycle) valid() bool {
	return c == CycleMonthly || c == CycleYearly
}

// gatewayCycle is the cycle identifier the gateway expects on subscriptions.
func (c BillingCycle) gatewayCycle() string {
	if c == CycleYearly {
		return "YEARLY"
	}
	return "MONTHLY"
}

// label is the Portuguese cycle word used in charge descriptions.
func (c BillingCycle) label() string {
	if c == CycleYearly {
		return "Anual"
	}
	return "Mensal"
}

// AddCycle advances t by one billing cycle. The day of month is clamped to
// the last day of the target month, so Jan 31 + 1 month is the last day of
// February and Feb 29 + 1 year is Feb 28.
func AddCycle(t time.Time, cycle BillingCycle) time.Time {
	switch cycle {
	case CycleYearly:
		return addMonthsClamped(t, 12)
	default:
		return addMonthsClamped(t, 1)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); day > last {
		day = last
	}
	hour, min, sec := t.Clock()
	return time.Date(target.Year(), target.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// Price is a catalog entry for one plan and cycle, in BRL.
type Price struct {
	Plan  PlanName
	Cycle BillingCycle
	Value float64
}

var catalog = []Price{
	{Plan: PlanPremium, Cycle: CycleMonthly, Value: 19.90},
	{Plan: PlanPremium, Cycle: CycleYearly, Value: 199.00},
	{Plan: PlanProfissional, Cycle: CycleMonthly, Value: 49.90},
	{Plan: PlanProfissional, Cycle: CycleYearly, Value: 499.00},
}

// PriceFor looks up the catalog price of a plan and cycle.
func PriceFor(plan PlanName, cycle BillingCycle) (Price, error) {
	for _, p := range catalog {
		if p.Plan == plan && p.Cycle == cycle {
			return p, nil
		}
	}
	return Price{}, fmt.Errorf("%w: %s/%s", ErrUnknownPlan, plan, cycle)
}

// ChargeDescription renders the description attached to gateway charges. It
// round-trips through ExtractPlanCycle.
func ChargeDescription(plan PlanName, cycle BillingCycle) string {
	return fmt.Sprintf("Assinatura %s %s - Nutrinea", plan, cycle.label())
}
