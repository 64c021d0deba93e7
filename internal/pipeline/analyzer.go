package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/echogram/api/internal/client"
	"github.com/echogram/api/internal/model"
)

const analyzerSystemPrompt = `You are a synesthetic image analyst specializing in translating visual scenes into sonic descriptions. Analyze the provided image and return a JSON object with exactly these fields:

{
  "scene_description": "A vivid 2-3 sentence description of the scene, emphasizing sensory texture, light quality, and spatial depth",
  "detected_objects": ["list", "of", "key", "objects", "and", "materials"],
  "vibe": "3-4 sensory adjectives describing atmosphere — go beyond basic (e.g. 'hazy golden intimacy' not 'warm')",
  "emotion": "A compound, specific emotional response (e.g. 'bittersweet longing' or 'restless anticipation', not just 'sad' or 'happy')",
  "dominant_colors": ["list", "of", "specific", "color", "descriptions"],
  "environment": "indoor/outdoor/abstract/null",
  "time_of_day": "dawn/morning/afternoon/dusk/night/null",
  "location_hint": "Brief location description or null",
  "ambient_sound_associations": ["5-8 specific sounds you'd hear in this scene — be concrete (e.g. 'distant foghorn', 'leather creaking', 'ice cracking in a glass')"],
  "sonic_metaphor": "If this image were a sound, what would it be? One evocative sentence (e.g. 'A cello note sustained underwater' or 'Static between radio stations at 3am')"
}

Rules:
- Be emotionally specific, not generic. Avoid single-word emotions.
- For vibe, layer adjectives that evoke texture and temperature, not just mood.
- For ambient_sound_associations, list 5-8 concrete, specific sounds — avoid generic entries like "nature sounds" or "city noise".
- The sonic_metaphor should be poetic and surprising, capturing the image's essence as pure sound.
- Focus on sensory qualities that translate to audio generation.
Return ONLY the JSON object, no other text.`

// Analyzer turns a source image into a structured scene analysis.
type Analyzer struct {
	chat    client.JSONChatter
	model   string
	timeout time.Duration
}

// NewAnalyzer creates an Analyzer using the given chat client and model name.
func NewAnalyzer(chat client.JSONChatter, modelName string, timeout time.Duration) *Analyzer {
	return &Analyzer{chat: chat, model: modelName, timeout: timeout}
}

// Analyze sends the image through the vision model and parses the result.
// Transport failures map to ErrUpstreamUnavailable; unparseable or incomplete
// responses map to ErrSchemaViolation. Both are terminal for the attempt.
func (a *Analyzer) Analyze(ctx context.Context, image []byte, contentType string) (*model.SceneAnalysis, error) {
	raw, err := a.chat.ChatJSONImage(ctx, &client.ChatJSONRequest{
		Model:       a.model,
		System:      analyzerSystemPrompt,
		Temperature: 0.4,
		MaxTokens:   1024,
		Timeout:     a.timeout,
	}, image, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: scene analysis: %v", ErrUpstreamUnavailable, err)
	}

	var scene model.SceneAnalysis
	if err := json.Unmarshal([]byte(raw), &scene); err != nil {
		return nil, fmt.Errorf("%w: scene analysis returned invalid JSON: %v", ErrSchemaViolation, err)
	}
	if scene.SceneDescription == "" || scene.Vibe == "" || scene.Emotion == "" {
		return nil, fmt.Errorf("%w: scene analysis missing required fields", ErrSchemaViolation)
	}
	return &scene, nil
}
