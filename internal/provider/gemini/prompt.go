package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lenslearn/ai-gateway/internal/provider"
)

func defaults(audience, language string) (string, string) {
	if audience == "" {
		audience = "adult"
	}
	if language == "" {
		language = "English"
	}
	return audience, language
}

func buildTutorPrompt(req *provider.Request) string {
	audience, language := defaults(req.Audience, req.Language)

	var history strings.Builder
	for _, m := range req.History {
		role := "User"
		if m.Role == "assistant" {
			role = "Assistant"
		}
		fmt.Fprintf(&history, "%s: %s\n", role, m.Text)
	}

	return fmt.Sprintf(`You are the LensLearn AI Guide, a world-class teacher.
Explain things in %s, with complexity and tone tailored for a %s.
Be concise, engaging and visual. Never provide medical, legal or financial advice.
Do not re-introduce yourself if you have already spoken.

Context:
%s

Conversation so far:
%s
Current question: %s`, language, audience, req.Context, history.String(), req.Question)
}

func buildScenePrompt(req *provider.VisionRequest) string {
	audience, language := defaults(req.Audience, req.Language)

	extra := ""
	if req.Prompt != "" {
		extra = "\nUser focus: " + req.Prompt
	}

	return fmt.Sprintf(`Analyze this image and turn it into an interactive learning scene
for a %s, written in %s.%s

Identify 3-5 interesting hotspots (learning points) within the image.
Skip anything sensitive, harmful or inappropriate for the audience.

Return ONLY valid JSON matching exactly:
{
  "title": "string",
  "description": "string",
  "suggestedGoal": "string",
  "hotspots": [
    {"id": "unique-id", "label": "short label", "description": "detailed explanation", "x": 0-100, "y": 0-100}
  ]
}`, audience, language, extra)
}

type rawScene struct {
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	SuggestedGoal string       `json:"suggestedGoal"`
	LearningGoal  string       `json:"learningGoal"`
	Goal          string       `json:"goal"`
	Hotspots      []rawHotspot `json:"hotspots"`
}

type rawHotspot struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	Explanation string    `json:"explanation"`
	X           *float64  `json:"x"`
	Y           *float64  `json:"y"`
	Coordinates []float64 `json:"coordinates"`
}

// parseSceneAnalysis extracts the JSON object from the model's text output
// and normalizes common key variations. Models occasionally wrap the JSON
// in prose or code fences, so the parse is deliberately forgiving.
func parseSceneAnalysis(text string) (*provider.SceneAnalysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object found in scene analysis")
	}

	var raw rawScene
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse scene analysis: %w", err)
	}

	scene := &provider.SceneAnalysis{
		Title:         raw.Title,
		Description:   raw.Description,
		SuggestedGoal: raw.SuggestedGoal,
	}
	if scene.Title == "" {
		scene.Title = "Interactive Scene"
	}
	if scene.SuggestedGoal == "" {
		scene.SuggestedGoal = raw.LearningGoal
	}
	if scene.SuggestedGoal == "" {
		scene.SuggestedGoal = raw.Goal
	}

	for i, h := range raw.Hotspots {
		x, y := 50.0, 50.0
		if len(h.Coordinates) == 2 {
			x, y = h.Coordinates[0], h.Coordinates[1]
		}
		if h.X != nil {
			x = *h.X
		}
		if h.Y != nil {
			y = *h.Y
		}

		desc := h.Description
		if desc == "" {
			desc = h.Explanation
		}

		id := h.ID
		if id == "" {
			id = fmt.Sprintf("hotspot-%d", i)
		}

		label := h.Label
		if label == "" {
			label = "Point of Interest"
		}

		scene.Hotspots = append(scene.Hotspots, provider.Hotspot{
			ID:          id,
			Label:       label,
			Description: desc,
			X:           x,
			Y:           y,
		})
	}

	return scene, nil
}
