package governance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lenslearn/ai-gateway/internal/profile"
)

// Internal cost-of-goods rates in USD. Image requests are billed at a flat
// rate regardless of the resolution tier served.
const (
	RateTextInputPer1K  = 0.0001
	RateTextOutputPer1K = 0.0003
	CostImageGen        = 0.004
)

// CostOf computes the billable cost of a completed request. Token counts
// may be estimates; see EstimateTokens.
func CostOf(class RequestClass, tokensIn, tokensOut int) float64 {
	if class == ClassImage {
		return CostImageGen
	}
	return float64(tokensIn)/1000*RateTextInputPer1K + float64(tokensOut)/1000*RateTextOutputPer1K
}

// Auditor persists the true cost of a completed request. It must be invoked
// at most once per request, after the backend call finishes (successfully,
// partially, or safety-blocked). Safety-blocked responses are billed at
// zero tokens: users are not charged for model refusals.
type Auditor struct {
	profiles profile.Store
	logger   *zap.Logger
	now      func() time.Time
}

func NewAuditor(profiles profile.Store, logger *zap.Logger) *Auditor {
	return &Auditor{
		profiles: profiles,
		logger:   logger,
		now:      time.Now,
	}
}

// Audit adds the request's cost to the user's cumulative spend and stamps
// last_request_at. The write goes through the store's atomic increment, so
// concurrent audits of the same user never under-count.
func (a *Auditor) Audit(ctx context.Context, userID string, class RequestClass, tokensIn, tokensOut int) error {
	cost := CostOf(class, tokensIn, tokensOut)

	imageIncr := 0
	if class == ClassImage {
		imageIncr = 1
	}

	if err := a.profiles.AddSpend(ctx, userID, cost, imageIncr, a.now()); err != nil {
		return fmt.Errorf("failed to record spend: %w", err)
	}

	a.logger.Debug("audit recorded",
		zap.String("user_id", userID),
		zap.String("class", string(class)),
		zap.Int("tokens_in", tokensIn),
		zap.Int("tokens_out", tokensOut),
		zap.Float64("cost_usd", cost))

	return nil
}
