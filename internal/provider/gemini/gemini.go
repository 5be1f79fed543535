package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lenslearn/ai-gateway/internal/provider"
)

// safetyBlockedMessage is returned in place of content when the backend
// refuses a request. The user still gets a non-empty response, and the
// auditor bills it at zero tokens.
const safetyBlockedMessage = "I can't help with that topic — it falls outside my educational mission. Try asking about something else you'd like to learn!"

type Client struct {
	apiKey  string
	baseURL string
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig,omitempty"`
	SafetySettings   []safetySetting  `json:"safetySettings,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback promptFeedback    `json:"promptFeedback"`
	UsageMetadata  usageMetadata     `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

func New(apiKey string) provider.Provider {
	return &Client{
		apiKey:  apiKey,
		baseURL: "https://generativelanguage.googleapis.com",
	}
}

// safetySettings returns harm thresholds scaled to the audience: stricter
// blocking for kids and teens.
func safetySettings(audience string) []safetySetting {
	threshold := "BLOCK_MEDIUM_AND_ABOVE"
	if audience == "kid" || audience == "teen" {
		threshold = "BLOCK_LOW_AND_ABOVE"
	}

	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
	}

	settings := make([]safetySetting, len(categories))
	for i, c := range categories {
		settings[i] = safetySetting{Category: c, Threshold: threshold}
	}
	return settings
}

func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	geminiReq := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: buildTutorPrompt(req)}}},
		},
		SafetySettings: safetySettings(req.Audience),
	}

	var geminiResp geminiResponse
	if err := c.post(ctx, fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, req.Model, c.apiKey), &geminiReq, &geminiResp); err != nil {
		return nil, err
	}

	resp := &provider.Response{
		Model:        req.Model,
		InputTokens:  geminiResp.UsageMetadata.PromptTokenCount,
		OutputTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
	}

	if blocked(&geminiResp) {
		resp.SafetyBlocked = true
		resp.Content = safetyBlockedMessage
		return resp, nil
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini api returned no candidates")
	}

	resp.Content = geminiResp.Candidates[0].Content.Parts[0].Text
	return resp, nil
}

func (c *Client) CompleteStream(ctx context.Context, req *provider.Request) (<-chan *provider.Chunk, error) {
	geminiReq := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: buildTutorPrompt(req)}}},
		},
		SafetySettings: safetySettings(req.Audience),
	}
	body, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?key=%s&alt=sse", c.baseURL, req.Model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	ch := make(chan *provider.Chunk)

	go func() {
		defer close(ch)

		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			emit(ctx, ch, &provider.Chunk{Err: err})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			emit(ctx, ch, &provider.Chunk{Err: fmt.Errorf("gemini api error (status %d): %s", resp.StatusCode, string(respBody))})
			return
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					emit(ctx, ch, &provider.Chunk{Done: true})
					return
				}
				emit(ctx, ch, &provider.Chunk{Err: err})
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			var geminiResp geminiResponse
			if err := json.Unmarshal([]byte(data), &geminiResp); err != nil {
				emit(ctx, ch, &provider.Chunk{Err: err})
				return
			}

			// A safety-filtered chunk mid-stream is skipped rather than
			// treated as fatal; the stream terminates on its own.
			if blocked(&geminiResp) {
				continue
			}

			if len(geminiResp.Candidates) > 0 && len(geminiResp.Candidates[0].Content.Parts) > 0 {
				text := geminiResp.Candidates[0].Content.Parts[0].Text
				if text != "" {
					if !emit(ctx, ch, &provider.Chunk{Delta: text}) {
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

func (c *Client) AnalyzeScene(ctx context.Context, req *provider.VisionRequest) (*provider.SceneAnalysis, error) {
	geminiReq := geminiRequest{
		Contents: []geminiContent{
			{
				Role: "user",
				Parts: []geminiPart{
					{Text: buildScenePrompt(req)},
					{InlineData: &inlineData{
						MimeType: req.MimeType,
						Data:     base64.StdEncoding.EncodeToString(req.ImageData),
					}},
				},
			},
		},
		SafetySettings: safetySettings(req.Audience),
	}

	var geminiResp geminiResponse
	if err := c.post(ctx, fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, req.Model, c.apiKey), &geminiReq, &geminiResp); err != nil {
		return nil, err
	}

	if blocked(&geminiResp) {
		return nil, fmt.Errorf("scene analysis blocked by safety filters")
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini api returned no candidates")
	}

	return parseSceneAnalysis(geminiResp.Candidates[0].Content.Parts[0].Text)
}

func (c *Client) post(ctx context.Context, url string, reqBody, respBody any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gemini api error (status %d): %s", resp.StatusCode, string(raw))
	}

	return json.NewDecoder(resp.Body).Decode(respBody)
}

func blocked(resp *geminiResponse) bool {
	if resp.PromptFeedback.BlockReason != "" {
		return true
	}
	return len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == "SAFETY"
}

func emit(ctx context.Context, ch chan<- *provider.Chunk, chunk *provider.Chunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) Name() string {
	return "gemini"
}
