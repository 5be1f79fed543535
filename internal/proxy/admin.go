package proxy

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lenslearn/ai-gateway/internal/billing"
	"github.com/lenslearn/ai-gateway/internal/profile"
)

// AdminHandler fronts the billing collaborator: profile provisioning, tier
// upgrades and cycle resets. These are the only paths that mutate a
// profile's tier or decrease its accumulator.
type AdminHandler struct {
	bills  *billing.Service
	token  string
	logger *zap.Logger
}

func NewAdminHandler(bills *billing.Service, token string, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{bills: bills, token: token, logger: logger}
}

func (a *AdminHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.token == "" {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin surface disabled"})
			return
		}
		got := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type adminProfileRequest struct {
	UserID string       `json:"user_id"`
	Tier   profile.Tier `json:"tier"`
}

func (a *AdminHandler) HandleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req adminProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	if err := a.bills.CreateProfile(r.Context(), req.UserID, req.Tier); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"user_id": req.UserID, "status": "created"})
}

func (a *AdminHandler) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	var req adminProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	if err := a.bills.Upgrade(r.Context(), req.UserID, req.Tier); err != nil {
		a.writeBillingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user_id": req.UserID, "tier": req.Tier})
}

func (a *AdminHandler) HandleResetCycle(w http.ResponseWriter, r *http.Request) {
	var req adminProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	if err := a.bills.ResetCycle(r.Context(), req.UserID); err != nil {
		a.writeBillingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"user_id": req.UserID, "status": "cycle reset"})
}

func (a *AdminHandler) writeBillingError(w http.ResponseWriter, err error) {
	if errors.Is(err, profile.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "profile not found"})
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}
