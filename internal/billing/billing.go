// Package billing is the external collaborator surface that mutates the
// parts of a cost profile the governance engine never touches: the
// subscription tier and the billing-cycle accumulator reset.
package billing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lenslearn/ai-gateway/internal/profile"
)

type Service struct {
	profiles profile.Store
	logger   *zap.Logger
}

func NewService(profiles profile.Store, logger *zap.Logger) *Service {
	return &Service{profiles: profiles, logger: logger}
}

// CreateProfile provisions a zeroed cost profile the first time a user is
// recognized. Idempotent.
func (s *Service) CreateProfile(ctx context.Context, userID string, tier profile.Tier) error {
	if tier == "" {
		tier = profile.TierFree
	}
	if !tier.Valid() {
		return fmt.Errorf("invalid tier: %q", tier)
	}

	return s.profiles.Create(ctx, &profile.Profile{
		UserID:            userID,
		Tier:              tier,
		BillingCycleStart: time.Now(),
	})
}

// Upgrade moves a user to a new subscription tier.
func (s *Service) Upgrade(ctx context.Context, userID string, tier profile.Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("invalid tier: %q", tier)
	}

	if err := s.profiles.SetTier(ctx, userID, tier); err != nil {
		return err
	}

	s.logger.Info("subscription tier changed",
		zap.String("user_id", userID),
		zap.String("tier", string(tier)))
	return nil
}

// ResetCycle zeroes the cost accumulator for a new billing cycle. This is
// the only operation that ever decreases cost_used.
func (s *Service) ResetCycle(ctx context.Context, userID string) error {
	if err := s.profiles.ResetCycle(ctx, userID, time.Now()); err != nil {
		return err
	}

	s.logger.Info("billing cycle reset", zap.String("user_id", userID))
	return nil
}
