package governance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lenslearn/ai-gateway/internal/profile"
)

// RateLimitWindow is the minimum gap between two requests from the same
// user, enforced against the stored last_request_at timestamp.
const RateLimitWindow = 5 * time.Second

const (
	resolutionFull    = "1024x1024"
	resolutionReduced = "512x512"
)

// Models names the backend models the engine routes between. Full is served
// in green state, Economy in the degraded states.
type Models struct {
	Full    string
	Economy string
}

// Decision is the admission decision for one request: whether to proceed,
// with which model, and at what quality.
type Decision struct {
	Model           string `json:"model"`
	CanProceed      bool   `json:"can_proceed"`
	Health          Health `json:"health"`
	ImageResolution string `json:"image_resolution,omitempty"`

	// Cached marks a black-state image denial as servable from a cached
	// fallback path, if the caller has one.
	Cached bool `json:"cached,omitempty"`
}

// Engine makes the accept/reject/downgrade decision for every request. It
// holds no per-user state: the profile store is re-read on each call so the
// decision always reflects the latest persisted spend.
type Engine struct {
	profiles profile.Store
	models   Models
	window   time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(profiles profile.Store, models Models, logger *zap.Logger) *Engine {
	return &Engine{
		profiles: profiles,
		models:   models,
		window:   RateLimitWindow,
		logger:   logger,
		now:      time.Now,
	}
}

// Route decides whether a request may proceed and selects the model and
// quality tier. On denial the returned Decision describes the refusal and
// err is a *Denial carrying the reason.
//
// A missing or unreadable profile is always a deny: missing accounting data
// must never be treated as unlimited budget.
func (e *Engine) Route(ctx context.Context, userID string, class RequestClass) (*Decision, error) {
	p, err := e.profiles.Get(ctx, userID)
	if err != nil {
		e.logger.Warn("governance: profile unavailable, failing safe",
			zap.String("user_id", userID),
			zap.Error(err))
		return &Decision{Health: HealthBlack}, &Denial{Reason: ReasonProfileNotFound, Health: HealthBlack}
	}

	tier := p.Tier
	if !tier.Valid() {
		tier = profile.TierFree
	}

	// Abuse check before any budget consideration. An absent timestamp
	// means no prior request and allows: this guard protects against
	// hammering, not budget integrity.
	if p.LastRequestAt != nil && e.now().Sub(*p.LastRequestAt) < e.window {
		return &Decision{Health: Evaluate(tier, p.CostUsed)}, &Denial{Reason: ReasonRateLimited}
	}

	health := Evaluate(tier, p.CostUsed)

	// Kill switch: exhausted budget denies everything.
	if health == HealthBlack {
		d := &Decision{Health: HealthBlack}
		if class == ClassImage {
			d.Cached = true
		}
		return d, &Denial{Reason: ReasonBudgetExceeded, Health: HealthBlack}
	}

	model := e.models.Full
	resolution := resolutionFull

	switch health {
	case HealthYellow:
		// Contain cost through resolution, not model quality.
		resolution = resolutionReduced
	case HealthRed:
		model = e.models.Economy
		// Image generation is disabled in red state to conserve the
		// remaining budget; text still flows on the cheapest model.
		if class == ClassImage {
			return &Decision{Health: HealthRed}, &Denial{Reason: ReasonTierRestricted, Health: HealthRed}
		}
	}

	d := &Decision{
		Model:      model,
		CanProceed: true,
		Health:     health,
	}
	if class == ClassImage {
		d.ImageResolution = resolution
	}

	return d, nil
}
