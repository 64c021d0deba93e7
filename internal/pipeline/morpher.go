package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"strconv"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/echogram/api/internal/client"
	"github.com/echogram/api/internal/model"
)

const enhancementSystemPrompt = `You are a visual emotion amplifier. Given an image analysis, a user-selected color, and squiggle gesture features, generate a creative image enhancement prompt that will be used to emotionally morph the original image.

Your goal is to amplify the emotional essence of the image — not change the subject, but transform its mood, atmosphere, and visual energy.

OUTPUT SCHEMA (return ONLY this JSON, no other text):
{
  "emotional_intent": "A 1-sentence description of the emotional transformation goal (e.g. 'Amplify the quiet melancholy into a dreamlike ache')",
  "visual_directive": "A 1-sentence instruction for color grading and atmosphere (e.g. 'Shift toward deep amber tones with soft vignetting and hazy light')",
  "morphing_prompt": "A 2-3 sentence creative prompt for an image editor AI. Describe the visual transformation without changing the subject matter. Focus on light, color, texture, atmosphere, and emotional amplification.",
  "style_reference": "A brief style/aesthetic reference (e.g. 'Wong Kar-wai cinematography', 'Polaroid expired film', 'Blade Runner neon noir')"
}

MAPPING RULES:

1. EMOTION → AMPLIFICATION DIRECTION:
   - Melancholy/nostalgia → deepen shadows, add film grain, desaturate slightly, warm or cool shift
   - Joy/energy → increase saturation, brighten highlights, add warmth and glow
   - Mystery/tension → increase contrast, deepen blacks, add atmospheric haze
   - Serenity/calm → soften everything, reduce contrast, add ethereal light
   - Anger/intensity → push reds and oranges, increase grain, harsh contrast

2. COLOR → GRADING GUIDANCE:
   - warm_red, warm_orange → lean into warm color grading, golden hour feel
   - cool_blue, cool_cyan → lean into cool tones, twilight or moonlit feel
   - cool_purple, warm_magenta → lean into dreamy/surreal palette
   - warm_yellow, cool_green → lean into natural/organic palette
   - neutral_gray → lean into monochromatic or desaturated treatment
   - High saturation → more dramatic color shifts
   - Low saturation → subtler, more tonal shifts

3. SQUIGGLE → VISUAL ENERGY:
   - High speed/energy → more dynamic transformations, visible texture, motion blur effects
   - Low speed/energy → gentler, more ambient transformations
   - High bounding box → more expansive visual changes
   - Low bounding box → more focused, subtle changes

4. IMPORTANT CONSTRAINTS:
   - NEVER ask to add or remove objects from the image
   - NEVER change the fundamental subject or composition
   - Focus ONLY on mood, atmosphere, light, color, and texture
   - The morphing_prompt must work as an image editing instruction
   - Keep the style_reference to real aesthetic movements or artists`

// Morpher runs the image branch of the pipeline: a creative enhancement
// prompt followed by a color-tinted edit of the source image.
type Morpher struct {
	chat    client.JSONChatter
	editor  client.ImageEditor
	model   string
	timeout time.Duration
}

// NewMorpher creates a Morpher. The chat model drafts the enhancement
// prompt; the editor applies it.
func NewMorpher(chat client.JSONChatter, editor client.ImageEditor, modelName string, timeout time.Duration) *Morpher {
	return &Morpher{chat: chat, editor: editor, model: modelName, timeout: timeout}
}

// GenerateEnhancementPrompt drafts the creative directive for the morph.
func (m *Morpher) GenerateEnhancementPrompt(ctx context.Context, scene *model.SceneAnalysis, colorProfile *model.ColorProfile, squiggle *model.SquiggleFeatures) (*model.EnhancementPrompt, error) {
	userContent := map[string]interface{}{
		"image_analysis":    scene,
		"color":             colorProfile,
		"squiggle_features": squiggle,
	}
	userJSON, err := json.Marshal(userContent)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal enhancement input: %w", err)
	}

	raw, err := m.chat.ChatJSON(ctx, &client.ChatJSONRequest{
		Model:       m.model,
		System:      enhancementSystemPrompt,
		User:        string(userJSON),
		Temperature: 0.4,
		MaxTokens:   512,
		Timeout:     m.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: enhancement prompt: %v", ErrUpstreamUnavailable, err)
	}

	var prompt model.EnhancementPrompt
	if err := json.Unmarshal([]byte(raw), &prompt); err != nil {
		return nil, fmt.Errorf("%w: enhancement prompt returned invalid JSON: %v", ErrSchemaViolation, err)
	}
	if prompt.MorphingPrompt == "" {
		return nil, fmt.Errorf("%w: enhancement prompt missing morphing_prompt", ErrSchemaViolation)
	}
	return &prompt, nil
}

// Morph tints the source image with the derived color and sends the result
// through the image editor with the morphing prompt.
func (m *Morpher) Morph(ctx context.Context, imageBytes []byte, colorProfile *model.ColorProfile, prompt *model.EnhancementPrompt) ([]byte, error) {
	tinted, err := applyColorOverlay(imageBytes, colorProfile)
	if err != nil {
		return nil, err
	}

	log.Printf("[Morpher] Editing image (%d bytes tinted, prompt %d chars)", len(tinted), len(prompt.MorphingPrompt))

	morphed, err := m.editor.EditImage(ctx, tinted, prompt.MorphingPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: image edit: %v", ErrUpstreamUnavailable, err)
	}
	return morphed, nil
}

// applyColorOverlay composites a semi-transparent layer of the derived color
// over the image and re-encodes it as PNG. Overlay opacity scales with
// saturation: 10% at zero up to 30% at full saturation.
func applyColorOverlay(imageBytes []byte, colorProfile *model.ColorProfile) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	r, g, b, err := parseHexRGB(colorProfile.Hex)
	if err != nil {
		return nil, err
	}
	alpha := uint8(255 * (0.10 + 0.20*colorProfile.Saturation))

	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	overlay := image.NewUniform(color.RGBA{R: r, G: g, B: b, A: alpha})
	draw.Draw(dst, bounds, overlay, image.Point{}, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode tinted image: %w", err)
	}
	return buf.Bytes(), nil
}

func parseHexRGB(hexStr string) (r, g, b uint8, err error) {
	clean := hexStr
	if len(clean) > 0 && clean[0] == '#' {
		clean = clean[1:]
	}
	if len(clean) != 6 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidColor, hexStr)
	}
	var vals [3]uint8
	for i := 0; i < 3; i++ {
		v, perr := strconv.ParseUint(clean[i*2:i*2+2], 16, 8)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidColor, hexStr)
		}
		vals[i] = uint8(v)
	}
	return vals[0], vals[1], vals[2], nil
}
