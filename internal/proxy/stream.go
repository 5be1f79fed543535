package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/lenslearn/ai-gateway/internal/governance"
	"github.com/lenslearn/ai-gateway/internal/provider"
)

// HandleExplanationStream relays backend chunks to the caller as SSE. The
// relay selects between the next chunk and request cancellation, so when
// the client disconnects mid-stream the loop exits promptly and the partial
// output is still audited; disconnect-and-retry is not free usage.
func (h *Handler) HandleExplanationStream(w http.ResponseWriter, r *http.Request) {
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

	ch, err := h.backend.CompleteStream(r.Context(), &provider.Request{
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

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	var out strings.Builder

relay:
	for {
		select {
		case chunk, open := <-ch:
			if !open {
				break relay
			}
			if chunk.Err != nil {
				payload, _ := json.Marshal(map[string]string{"error": chunk.Err.Error()})
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
				flusher.Flush()
				break relay
			}
			if chunk.Done {
				fmt.Fprintf(w, "data: [DONE]\n\n")
				flusher.Flush()
				break relay
			}

			out.WriteString(chunk.Delta)
			payload, _ := json.Marshal(map[string]string{"delta": chunk.Delta})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()

		case <-ctx.Done():
			// Client gone. Fall through to the audit with whatever was
			// produced so far.
			break relay
		}
	}

	tokensIn := governance.EstimateTokens(req.Context + req.Question)
	tokensOut := governance.EstimateTokens(out.String())
	h.settle(userID, governance.ClassText, tokensIn, tokensOut)
}
