package proxy

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/lenslearn/ai-gateway/internal/billing"
	"github.com/lenslearn/ai-gateway/internal/profile"
)

func setupAdmin(store *fakeProfiles, token string) *AdminHandler {
	logger := zap.NewNop()
	return NewAdminHandler(billing.NewService(store, logger), token, logger)
}

func adminServe(a *AdminHandler, handler http.HandlerFunc, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/v1/admin/test", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	w := httptest.NewRecorder()
	a.Middleware(handler).ServeHTTP(w, req)
	return w
}

func TestAdminMiddleware_DisabledWithoutToken(t *testing.T) {
	a := setupAdmin(newFakeProfiles(), "")

	w := adminServe(a, a.HandleCreateProfile, "anything", []byte(`{"user_id":"u1"}`))
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 when admin surface is disabled, got %d", w.Code)
	}
}

func TestAdminMiddleware_RejectsWrongToken(t *testing.T) {
	a := setupAdmin(newFakeProfiles(), "secret")

	if w := adminServe(a, a.HandleCreateProfile, "", []byte(`{"user_id":"u1"}`)); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}
	if w := adminServe(a, a.HandleCreateProfile, "wrong", []byte(`{"user_id":"u1"}`)); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong token, got %d", w.Code)
	}
}

func TestAdminCreateProfile(t *testing.T) {
	store := newFakeProfiles()
	a := setupAdmin(store, "secret")

	w := adminServe(a, a.HandleCreateProfile, "secret", []byte(`{"user_id":"u1"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	p, err := store.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Profile not created: %v", err)
	}
	if p.Tier != profile.TierFree {
		t.Errorf("Expected free tier default, got %s", p.Tier)
	}
	if p.CostUsed != 0 {
		t.Errorf("New profile must start with zero spend, got %v", p.CostUsed)
	}
}

func TestAdminCreateProfile_MissingUserID(t *testing.T) {
	a := setupAdmin(newFakeProfiles(), "secret")

	w := adminServe(a, a.HandleCreateProfile, "secret", []byte(`{"tier":"free"}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestAdminUpgrade(t *testing.T) {
	store := newFakeProfiles()
	store.put(&profile.Profile{UserID: "u1", Tier: profile.TierFree, CostUsed: 0.015})
	a := setupAdmin(store, "secret")

	w := adminServe(a, a.HandleUpgrade, "secret", []byte(`{"user_id":"u1","tier":"pro_monthly"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	p, _ := store.Get(context.Background(), "u1")
	if p.Tier != profile.TierProMonthly {
		t.Errorf("Expected pro_monthly after upgrade, got %s", p.Tier)
	}
	if p.CostUsed != 0.015 {
		t.Errorf("Upgrade must not touch accumulated spend, got %v", p.CostUsed)
	}
}

func TestAdminUpgrade_InvalidTier(t *testing.T) {
	store := newFakeProfiles()
	store.put(&profile.Profile{UserID: "u1", Tier: profile.TierFree})
	a := setupAdmin(store, "secret")

	w := adminServe(a, a.HandleUpgrade, "secret", []byte(`{"user_id":"u1","tier":"enterprise"}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown tier, got %d", w.Code)
	}
}

func TestAdminUpgrade_UnknownUser(t *testing.T) {
	a := setupAdmin(newFakeProfiles(), "secret")

	w := adminServe(a, a.HandleUpgrade, "secret", []byte(`{"user_id":"ghost","tier":"pro_monthly"}`))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestAdminResetCycle(t *testing.T) {
	store := newFakeProfiles()
	store.put(&profile.Profile{UserID: "u1", Tier: profile.TierProMonthly, CostUsed: 2.80})
	a := setupAdmin(store, "secret")

	w := adminServe(a, a.HandleResetCycle, "secret", []byte(`{"user_id":"u1"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	p, _ := store.Get(context.Background(), "u1")
	if p.CostUsed != 0 {
		t.Errorf("Expected zeroed spend after reset, got %v", p.CostUsed)
	}
	if p.Tier != profile.TierProMonthly {
		t.Errorf("Reset must not change the tier, got %s", p.Tier)
	}
}
