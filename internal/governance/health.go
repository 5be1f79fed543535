package governance

import "github.com/lenslearn/ai-gateway/internal/profile"

// Health is the budget health level derived from the percentage of the
// tier's cap consumed. It is recomputed from the persisted accumulator on
// every request; there is no stored state to drift.
type Health string

const (
	HealthGreen  Health = "green"  // nominal
	HealthYellow Health = "yellow" // elevated, cost containment
	HealthRed    Health = "red"    // critical, image class disabled
	HealthBlack  Health = "black"  // exhausted
)

// RequestClass is one of the two billable capability categories.
type RequestClass string

const (
	ClassText  RequestClass = "text"
	ClassImage RequestClass = "image"
)

// Budget caps per tier in USD per billing cycle.
var planCaps = map[profile.Tier]float64{
	profile.TierFree:       0.02,
	profile.TierProMonthly: 3.00,
	profile.TierProYearly:  30.00,
}

// CapFor returns the budget cap for a tier. Tiers without a cap table entry
// are treated as free, so the cap is never zero.
func CapFor(tier profile.Tier) float64 {
	if cap, ok := planCaps[tier]; ok {
		return cap
	}
	return planCaps[profile.TierFree]
}

// Evaluate maps (tier, cost consumed) to a health level. Thresholds are
// checked high to low with closed lower bounds: exactly 50% is yellow,
// exactly 80% is red, exactly 100% is black.
func Evaluate(tier profile.Tier, costUsed float64) Health {
	usagePct := costUsed / CapFor(tier) * 100

	switch {
	case usagePct >= 100:
		return HealthBlack
	case usagePct >= 80:
		return HealthRed
	case usagePct >= 50:
		return HealthYellow
	default:
		return HealthGreen
	}
}
