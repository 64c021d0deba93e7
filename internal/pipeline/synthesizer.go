package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/echogram/api/internal/client"
	"github.com/echogram/api/internal/model"
)

const synthesizerSystemPrompt = `You are an audio-intent generator. Given image analysis, a user-selected color, and squiggle gesture features, produce a JSON object that describes a short audio clip.

IMPORTANT: Prefer audio_type "music" in most cases. Only choose "ambient" for scenes that are explicitly still, environmental, and non-rhythmic. "hybrid" should be rare.

OUTPUT SCHEMA (return ONLY this JSON, no other text):
{
  "audio_type": "music" | "ambient" | "hybrid",
  "mood": {"primary": "string", "secondary": "string"},
  "energy": 0.0-1.0,
  "tempo": "slow" | "medium" | "fast",
  "density": "sparse" | "medium" | "dense",
  "texture": ["list", "of", "texture", "descriptors"],
  "sound_references": ["concrete", "sound", "references"],
  "duration_seconds": 15-20,
  "bpm": 60-180,
  "musical_key": "C major" | "A minor" | etc.,
  "relation_to_parent": "original" | "mirror" | "variation" | "contrast",
  "confidence": 0.0-1.0,
  "instruments": ["2-4 specific instruments, e.g. Rhodes piano, bowed bass, brushed snare"],
  "genre_hint": "one genre/subgenre reference, e.g. lo-fi jazz, post-rock, ambient techno",
  "harmonic_mood": "harmonic character, e.g. yearning, suspended, resolving, bittersweet",
  "dynamic_shape": "how energy evolves, e.g. slow build, breathing, explosion then decay",
  "sonic_palette": "timbral character, e.g. dusty vinyl warmth, crystalline digital, tape-saturated"
}

MAPPING RULES (priority order):

1. IMAGE ANALYSIS (highest priority):
   - scene_description + vibe + emotion → audio_type, mood, harmonic_mood
   - ambient_sound_associations → sound_references
   - sonic_metaphor (if present) → use it to inspire instruments, sonic_palette, and dynamic_shape
   - Urban/energetic scenes → "music"
   - Abstract scenes → "music" (default)
   - Outdoor/nature scenes with rhythmic or emotional energy → "music"
   - Only purely still, meditative, environmental scenes → "ambient"
   - When in doubt, default to "music"

ENERGY BIAS: This is for a social media app — audio must be engaging and sonically
interesting, never boring or flat. Even quiet scenes should have musical movement,
rhythm, and presence. Avoid energy below 0.3. Prefer medium-to-fast tempos and
medium-to-dense arrangements. When in doubt, push energy and tempo upward.

2. COLOR (high priority):
   - warm_red, warm_orange, warm_magenta → warmer mood tones, bold textures
   - cool_blue, cool_cyan, cool_purple → cooler mood tones, smoother textures
   - warm_yellow, cool_green → balanced/organic textures
   - neutral_gray → muted, minimal textures
   - High saturation → more vivid/intense mood
   - Low saturation → more subdued mood
   - High lightness → brighter, airier sound
   - Low lightness → darker, deeper sound

3. SQUIGGLE FEATURES (fine-grained):
   - average_speed HIGH (>0.003) → higher energy, tempo="fast"
   - average_speed LOW (<0.0005) → lower energy, tempo="slow"
   - bounding_box_area HIGH (>0.2) → density="dense"
   - bounding_box_area LOW (<0.05) → density="sparse"
   - speed_variance HIGH → more varied texture list
   - total_length HIGH (>2.0) → more complex/layered textures
   - total_length LOW (<0.5) → simpler, focused textures

4. DURATION: Default to 18s. Only use 15s for very minimal scenes, 20s for complex emotional scenes.

5. BPM: Map from tempo — slow→85-105, medium→105-140, fast→140-180. Pick a specific integer.

6. MUSICAL KEY: Choose based on mood and color. Warm/happy → major keys (C, G, D, A major). Cool/melancholic → minor keys (A, D, E, B minor). Mysterious/dark → Eb minor, F# minor. Bright/energetic → E major, Bb major.

7. INSTRUMENTS: Choose 2-4 specific instruments that match the scene:
   - Natural/organic scenes → acoustic instruments (acoustic guitar, cello, kalimba, wooden flute)
   - Urban/modern scenes → electronic instruments (analog synth, drum machine, electric bass)
   - Warm colors → warm-toned instruments (Rhodes piano, flugelhorn, upright bass)
   - Cool colors → crystalline instruments (vibraphone, glass marimba, digital pads)
   - Be specific: "nylon-string guitar" not just "guitar", "808 kick" not just "drums"

8. GENRE HINT: Pick one genre/subgenre that fits the overall feel. Be specific (e.g. "shoegaze" not "rock").

9. SONIC PALETTE: Describe the timbral quality — think about whether it's warm/cold, analog/digital, clean/distorted, wet/dry.

10. DYNAMIC SHAPE: How should the energy evolve over the track's duration? Consider the squiggle's gesture as a clue.

If relation_to_parent is "original", this is a new post (not a comment).
`

const synthesizerCommentAddendum = `
COMMENT MODE: A parent audio object is provided. You MUST:
- Keep the comment sonically related to the parent
- Use the SAME bpm, musical_key, and duration_seconds as the parent
- Set relation_to_parent to "mirror", "variation", or "contrast" (NEVER "original")
- "mirror": very similar mood/energy/texture, slight shifts
- "variation": same family but noticeably different energy or texture
- "contrast": intentionally different mood or energy, but still connected through shared sound_references or texture elements
`

// Synthesizer turns the joined analysis artifacts into a validated
// structured audio object.
type Synthesizer struct {
	chat    client.JSONChatter
	model   string
	timeout time.Duration
}

// NewSynthesizer creates a Synthesizer using the given chat client and model.
func NewSynthesizer(chat client.JSONChatter, modelName string, timeout time.Duration) *Synthesizer {
	return &Synthesizer{chat: chat, model: modelName, timeout: timeout}
}

// Synthesize produces the structured audio object for a submission. For
// replies, parent carries the parent's ready audio object; its bpm,
// musical_key, and duration_seconds override whatever the model returns.
func (s *Synthesizer) Synthesize(ctx context.Context, scene *model.SceneAnalysis, color *model.ColorProfile, squiggle *model.SquiggleFeatures, parent *model.AudioObject) (*model.AudioObject, error) {
	system := synthesizerSystemPrompt
	if parent != nil {
		system += synthesizerCommentAddendum
	}

	userContent := map[string]interface{}{
		"image_analysis":    scene,
		"color":             color,
		"squiggle_features": squiggle,
	}
	if parent != nil {
		userContent["parent_audio_object"] = parent
	}
	userJSON, err := json.Marshal(userContent)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis input: %w", err)
	}

	raw, err := s.chat.ChatJSON(ctx, &client.ChatJSONRequest{
		Model:       s.model,
		System:      system,
		User:        string(userJSON),
		Temperature: 0.6,
		MaxTokens:   1024,
		Timeout:     s.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: audio object synthesis: %v", ErrUpstreamUnavailable, err)
	}

	var obj model.AudioObject
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("%w: audio object synthesis returned invalid JSON: %v", ErrSchemaViolation, err)
	}

	if err := repairAudioObject(&obj, parent != nil); err != nil {
		return nil, err
	}

	// A reply's rhythmic frame always comes from the parent so the two clips
	// can be played back to back.
	if parent != nil {
		obj.DurationSeconds = parent.DurationSeconds
		if parent.BPM > 0 {
			obj.BPM = parent.BPM
		}
		if parent.MusicalKey != "" {
			obj.MusicalKey = parent.MusicalKey
		}
	}
	return &obj, nil
}

// repairAudioObject validates the synthesized object, clamping numeric
// drift and rejecting anything structurally unusable.
func repairAudioObject(obj *model.AudioObject, isReply bool) error {
	validType := false
	for _, t := range model.ValidAudioTypes {
		if obj.AudioType == t {
			validType = true
			break
		}
	}
	if !validType {
		return fmt.Errorf("%w: unknown audio_type %q", ErrSchemaViolation, obj.AudioType)
	}
	if obj.Mood.Primary == "" || obj.Mood.Secondary == "" {
		return fmt.Errorf("%w: mood must have primary and secondary", ErrSchemaViolation)
	}
	if obj.MusicalKey == "" {
		return fmt.Errorf("%w: missing musical_key", ErrSchemaViolation)
	}

	switch obj.Tempo {
	case model.TempoSlow, model.TempoMedium, model.TempoFast:
	default:
		return fmt.Errorf("%w: unknown tempo %q", ErrSchemaViolation, obj.Tempo)
	}
	switch obj.Density {
	case model.DensitySparse, model.DensityMedium, model.DensityDense:
	default:
		return fmt.Errorf("%w: unknown density %q", ErrSchemaViolation, obj.Density)
	}

	if isReply {
		validRelation := false
		for _, r := range model.ValidReplyRelations {
			if obj.RelationToParent == r {
				validRelation = true
				break
			}
		}
		if !validRelation {
			// The model occasionally forgets comment mode; a reply that calls
			// itself "original" becomes a variation rather than a failure.
			obj.RelationToParent = model.RelationVariation
		}
	} else {
		obj.RelationToParent = model.RelationOriginal
	}

	// Numeric drift is clamped, not rejected.
	if obj.Energy < 0.3 {
		obj.Energy = 0.3
	} else if obj.Energy > 1.0 {
		obj.Energy = 1.0
	}
	if obj.BPM < 30 {
		obj.BPM = 30
	} else if obj.BPM > 300 {
		obj.BPM = 300
	}
	if obj.DurationSeconds < 15 {
		obj.DurationSeconds = 15
	} else if obj.DurationSeconds > 20 {
		obj.DurationSeconds = 20
	}
	if obj.Confidence < 0 {
		obj.Confidence = 0
	} else if obj.Confidence > 1 {
		obj.Confidence = 1
	}
	return nil
}
