package governance

import (
	"context"
	"math"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/lenslearn/ai-gateway/internal/profile"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestCostOf(t *testing.T) {
	if got := CostOf(ClassImage, 500, 500); !almostEqual(got, CostImageGen) {
		t.Errorf("Image cost must be flat regardless of tokens, got %v", got)
	}

	want := RateTextInputPer1K + RateTextOutputPer1K
	if got := CostOf(ClassText, 1000, 1000); !almostEqual(got, want) {
		t.Errorf("CostOf(text, 1000, 1000) = %v, want %v", got, want)
	}

	if got := CostOf(ClassText, 0, 0); got != 0 {
		t.Errorf("Zero tokens should cost zero, got %v", got)
	}
}

func TestAudit_TextIsAdditive(t *testing.T) {
	store := newMemStore()
	store.put(&profile.Profile{UserID: "u1", Tier: profile.TierProMonthly})
	a := NewAuditor(store, zap.NewNop())

	delta := RateTextInputPer1K + RateTextOutputPer1K

	if err := a.Audit(context.Background(), "u1", ClassText, 1000, 1000); err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	p, _ := store.Get(context.Background(), "u1")
	if !almostEqual(p.CostUsed, delta) {
		t.Errorf("Expected cost_used %v after one audit, got %v", delta, p.CostUsed)
	}

	// No deduplication: the same audit applied twice charges twice.
	if err := a.Audit(context.Background(), "u1", ClassText, 1000, 1000); err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	p, _ = store.Get(context.Background(), "u1")
	if !almostEqual(p.CostUsed, 2*delta) {
		t.Errorf("Expected cost_used %v after two audits, got %v", 2*delta, p.CostUsed)
	}
}

func TestAudit_ImageFlatCostAndCounter(t *testing.T) {
	store := newMemStore()
	store.put(&profile.Profile{UserID: "u1", Tier: profile.TierFree})
	a := NewAuditor(store, zap.NewNop())

	if err := a.Audit(context.Background(), "u1", ClassImage, 0, 0); err != nil {
		t.Fatalf("Audit failed: %v", err)
	}

	p, _ := store.Get(context.Background(), "u1")
	if !almostEqual(p.CostUsed, CostImageGen) {
		t.Errorf("Expected flat image cost %v, got %v", CostImageGen, p.CostUsed)
	}
	if p.ImageGensCount != 1 {
		t.Errorf("Expected image_gens_count 1, got %d", p.ImageGensCount)
	}
	if p.LastRequestAt == nil {
		t.Error("Expected last_request_at to be stamped by the audit")
	}
}

func TestAudit_ConcurrentAuditsLoseNothing(t *testing.T) {
	store := newMemStore()
	store.put(&profile.Profile{UserID: "u1", Tier: profile.TierProYearly})
	a := NewAuditor(store, zap.NewNop())

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = a.Audit(context.Background(), "u1", ClassText, 1000, 1000)
		}()
	}
	wg.Wait()

	delta := RateTextInputPer1K + RateTextOutputPer1K
	p, _ := store.Get(context.Background(), "u1")
	if !almostEqual(p.CostUsed, workers*delta) {
		t.Errorf("Expected %v after %d concurrent audits, got %v; store increment is not atomic",
			workers*delta, workers, p.CostUsed)
	}
}

func TestEstimateByChars(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"12345678", 2},
	}

	for _, tt := range tests {
		if got := estimateByChars(tt.text); got != tt.want {
			t.Errorf("estimateByChars(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestEstimateTokens_NonEmpty(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("Empty text should estimate 0 tokens, got %d", got)
	}
	if got := EstimateTokens("explain how photosynthesis works"); got <= 0 {
		t.Errorf("Expected positive estimate, got %d", got)
	}
}
