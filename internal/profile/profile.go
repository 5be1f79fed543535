package profile

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("profile not found")

// Tier is the user's subscription plan. It determines the budget cap and is
// mutated only by the billing collaborator, never by the governance engine.
type Tier string

const (
	TierFree       Tier = "free"
	TierProMonthly Tier = "pro_monthly"
	TierProYearly  Tier = "pro_yearly"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierProMonthly, TierProYearly:
		return true
	}
	return false
}

// Profile is the per-user cost record. CostUsed is cumulative spend in USD
// for the current billing cycle and never decreases except at cycle reset.
type Profile struct {
	UserID            string
	Tier              Tier
	CostUsed          float64
	BillingCycleStart time.Time
	LastRequestAt     *time.Time // nil until the first audited request
	ImageGensCount    int
}

type Store interface {
	// Get returns ErrNotFound when the user has no profile.
	Get(ctx context.Context, userID string) (*Profile, error)

	// Create inserts a profile with zeroed accumulators. Creating an
	// existing profile is a no-op.
	Create(ctx context.Context, p *Profile) error

	// AddSpend atomically adds costUSD to cost_used, bumps the image
	// counter by imageIncr, and stamps last_request_at. The increment must
	// happen store-side so two concurrent audits never lose a delta.
	AddSpend(ctx context.Context, userID string, costUSD float64, imageIncr int, at time.Time) error

	// SetTier is invoked by the billing collaborator on plan changes.
	SetTier(ctx context.Context, userID string, tier Tier) error

	// ResetCycle zeroes cost_used and stamps a new billing_cycle_start.
	// Invoked by the billing collaborator at the start of each cycle.
	ResetCycle(ctx context.Context, userID string, cycleStart time.Time) error
}
