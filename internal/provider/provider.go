package provider

import (
	"context"
)

// Request is a text-class tutoring request: a question against some lesson
// context, with prior conversation for continuity.
type Request struct {
	Model    string
	Context  string
	Question string
	History  []Message
	Audience string // "kid", "teen" or "adult"; scales safety thresholds
	Language string
}

type Message struct {
	Role string // "user" or "assistant"
	Text string
}

type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string

	// SafetyBlocked marks a refusal by the backend's safety filters. The
	// content still carries a user-facing message, and the auditor bills
	// such responses at zero tokens.
	SafetyBlocked bool
}

type Chunk struct {
	Delta string
	Done  bool
	Err   error
}

// VisionRequest is an image-class request: turn an uploaded image into an
// interactive learning scene.
type VisionRequest struct {
	Model      string
	ImageData  []byte
	MimeType   string
	Prompt     string
	Audience   string
	Language   string
	Resolution string // quality tier chosen by the governance engine
}

type Hotspot struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

type SceneAnalysis struct {
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	SuggestedGoal string    `json:"suggestedGoal"`
	Hotspots      []Hotspot `json:"hotspots"`
}

// Provider is the opaque AI backend: it accepts a prompt and model id and
// returns text or structured JSON at a cost proportional to input/output
// size. CompleteStream yields a lazy, finite, non-restartable sequence of
// fragments terminated by a Done chunk or an error.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	CompleteStream(ctx context.Context, req *Request) (<-chan *Chunk, error)
	AnalyzeScene(ctx context.Context, req *VisionRequest) (*SceneAnalysis, error)
	Name() string
}
