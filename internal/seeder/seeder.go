package seeder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/lenslearn/ai-gateway/internal/auth"
	"github.com/lenslearn/ai-gateway/internal/billing"
	"github.com/lenslearn/ai-gateway/internal/profile"
)

const (
	TestAPIKey = "test-api-key-12345"
	TestUserID = "00000000-0000-0000-0000-000000000001"
)

// SeedTestUser creates a dev API key plus a free-tier cost profile so the
// gateway is usable immediately after a fresh database comes up.
func SeedTestUser(ctx context.Context, keys auth.Store, bills *billing.Service, logger *zap.Logger) {
	h := sha256.New()
	h.Write([]byte(TestAPIKey))
	keyHash := hex.EncodeToString(h.Sum(nil))

	apiKey := &auth.APIKey{
		UserID:  TestUserID,
		KeyHash: keyHash,
		Active:  true,
	}

	if err := keys.Create(ctx, apiKey); err != nil {
		logger.Info("seeder: API key may already exist, skipping", zap.Error(err))
	} else {
		logger.Info("seeder: test API key created",
			zap.String("key", TestAPIKey),
			zap.String("user_id", TestUserID))
	}

	if err := bills.CreateProfile(ctx, TestUserID, profile.TierFree); err != nil {
		logger.Warn("seeder: failed to create test profile", zap.Error(err))
	}
}
