package proxy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lenslearn/ai-gateway/internal/auth"
	"github.com/lenslearn/ai-gateway/internal/governance"
	"github.com/lenslearn/ai-gateway/internal/metrics"
	"github.com/lenslearn/ai-gateway/internal/profile"
	"github.com/lenslearn/ai-gateway/internal/provider"
	"github.com/lenslearn/ai-gateway/internal/worker"
	"github.com/lenslearn/ai-gateway/pkg/ratelimit"
)

// defaultTokenEstimate feeds the coarse TPM limiter before the real size of
// a request is known.
const defaultTokenEstimate = 1000

type Handler struct {
	engine   *governance.Engine
	auditor  *governance.Auditor
	retries  *worker.RetryQueue // nil disables out-of-band retry
	backend  provider.Provider
	profiles profile.Store
	limiter  *ratelimit.Limiter
	tracer   trace.Tracer
	logger   *zap.Logger
}

func NewHandler(
	engine *governance.Engine,
	auditor *governance.Auditor,
	retries *worker.RetryQueue,
	backend provider.Provider,
	profiles profile.Store,
	limiter *ratelimit.Limiter,
	tracer trace.Tracer,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		engine:   engine,
		auditor:  auditor,
		retries:  retries,
		backend:  backend,
		profiles: profiles,
		limiter:  limiter,
		tracer:   tracer,
		logger:   logger,
	}
}

type explanationRequest struct {
	Context  string             `json:"context"`
	Question string             `json:"question"`
	History  []provider.Message `json:"history"`
	Audience string             `json:"audience"`
	Language string             `json:"language"`
}

type sceneRequest struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	Prompt      string `json:"prompt"`
	Audience    string `json:"audience"`
	Language    string `json:"language"`
}

// admit runs the pre-flight governance pipeline: identity, coarse TPM
// limit, then the routing decision. Everything here happens before the
// expensive backend call, so a denied request never spends budget.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, class governance.RequestClass) (string, *governance.Decision, bool) {
	ctx := r.Context()

	userID := auth.GetUserID(ctx)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return "", nil, false
	}

	allowed, err := h.limiter.Allow(ctx, userID, defaultTokenEstimate)
	if err != nil || !allowed {
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":  "rate limit exceeded",
			"reason": string(governance.ReasonRateLimited),
		})
		return "", nil, false
	}

	_, span := h.tracer.Start(ctx, "governance.route")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("request_id", auth.GetRequestID(ctx)),
		attribute.String("request_class", string(class)),
	)

	dec, err := h.engine.Route(ctx, userID, class)
	if err != nil {
		metrics.RecordDecision(string(class), false)
		if d, ok := governance.AsDenial(err); ok {
			span.SetAttributes(attribute.String("denial_reason", string(d.Reason)))
			h.writeDenial(w, userID, d, dec)
		} else {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return "", nil, false
	}

	metrics.RecordDecision(string(class), true)
	span.SetAttributes(
		attribute.String("model", dec.Model),
		attribute.String("health", string(dec.Health)),
	)

	return userID, dec, true
}

func (h *Handler) writeDenial(w http.ResponseWriter, userID string, d *governance.Denial, dec *governance.Decision) {
	metrics.RecordDenial(string(d.Reason))

	switch d.Reason {
	case governance.ReasonRateLimited:
		w.Header().Set("Retry-After", "5")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":  d.Error(),
			"reason": d.Reason,
		})

	case governance.ReasonBudgetExceeded:
		body := map[string]any{
			"error":   d.Error(),
			"reason":  d.Reason,
			"upgrade": true,
		}
		if dec != nil && dec.Cached {
			body["cached"] = true
		}
		writeJSON(w, http.StatusPaymentRequired, body)

	case governance.ReasonTierRestricted:
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":  d.Error(),
			"reason": d.Reason,
			"hint":   "text requests are still available",
		})

	default:
		// Missing profile is an operational anomaly, not a user-facing
		// condition; surface a generic denial.
		h.logger.Warn("denied request with missing cost profile", zap.String("user_id", userID))
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":  "access denied",
			"reason": d.Reason,
		})
	}
}

func (h *Handler) HandleExplanation(w http.ResponseWriter, r *http.Request) {
	var req explanationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	userID, dec, ok := h.admit(w, r, governance.ClassText)
	if !ok {
		return
	}

	resp, err := h.backend.Complete(r.Context(), &provider.Request{
		Model:    dec.Model,
		Context:  req.Context,
		Question: req.Question,
		History:  req.History,
		Audience: req.Audience,
		Language: req.Language,
	})
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	tokensIn, tokensOut := usageOf(resp, req.Context+req.Question)
	go h.settle(userID, governance.ClassText, tokensIn, tokensOut)

	writeJSON(w, http.StatusOK, map[string]any{
		"result":         resp.Content,
		"model":          dec.Model,
		"health":         dec.Health,
		"safety_blocked": resp.SafetyBlocked,
	})
}

func (h *Handler) HandleScene(w http.ResponseWriter, r *http.Request) {
	var req sceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ImageBase64 == "" || req.MimeType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image_base64 and mime_type are required"})
		return
	}
	imageData, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid base64 image data"})
		return
	}

	userID, dec, ok := h.admit(w, r, governance.ClassImage)
	if !ok {
		return
	}

	scene, err := h.backend.AnalyzeScene(r.Context(), &provider.VisionRequest{
		Model:      dec.Model,
		ImageData:  imageData,
		MimeType:   req.MimeType,
		Prompt:     req.Prompt,
		Audience:   req.Audience,
		Language:   req.Language,
		Resolution: dec.ImageResolution,
	})
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	// Image requests bill at a flat rate; token counts are irrelevant.
	go h.settle(userID, governance.ClassImage, 0, 0)

	writeJSON(w, http.StatusOK, map[string]any{
		"scene":            scene,
		"model":            dec.Model,
		"health":           dec.Health,
		"image_resolution": dec.ImageResolution,
	})
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.GetUserID(ctx)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	p, err := h.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "profile not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	cap := governance.CapFor(p.Tier)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":             p.UserID,
		"tier":                p.Tier,
		"cost_used_usd":       p.CostUsed,
		"budget_cap_usd":      cap,
		"usage_percent":       p.CostUsed / cap * 100,
		"health":              governance.Evaluate(p.Tier, p.CostUsed),
		"image_gens_count":    p.ImageGensCount,
		"billing_cycle_start": p.BillingCycleStart,
	})
}

// settle records the true cost of a completed request. It never unwinds the
// delivered response: a failed write is logged, counted, and handed to the
// retry queue so tracked spend does not silently drift.
func (h *Handler) settle(userID string, class governance.RequestClass, tokensIn, tokensOut int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.auditor.Audit(ctx, userID, class, tokensIn, tokensOut); err != nil {
		metrics.RecordAuditFailure()
		h.logger.Error("audit failed after delivered response",
			zap.String("user_id", userID),
			zap.String("class", string(class)),
			zap.Error(err))
		if h.retries != nil {
			h.retries.Enqueue(&worker.AuditJob{
				UserID:    userID,
				Class:     class,
				TokensIn:  tokensIn,
				TokensOut: tokensOut,
			})
		}
		return
	}

	metrics.RecordSpend(string(class), governance.CostOf(class, tokensIn, tokensOut))
}

// usageOf prefers the backend's reported token counts and falls back to a
// local estimate. Safety-blocked responses bill zero.
func usageOf(resp *provider.Response, prompt string) (int, int) {
	if resp.SafetyBlocked {
		return 0, 0
	}
	tokensIn, tokensOut := resp.InputTokens, resp.OutputTokens
	if tokensIn == 0 {
		tokensIn = governance.EstimateTokens(prompt)
	}
	if tokensOut == 0 {
		tokensOut = governance.EstimateTokens(resp.Content)
	}
	return tokensIn, tokensOut
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
