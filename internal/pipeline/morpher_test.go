package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/echogram/api/internal/model"
)

type fakeEditor struct {
	out        []byte
	err        error
	lastPrompt string
	lastImage  []byte
}

func (f *fakeEditor) EditImage(ctx context.Context, imagePNG []byte, prompt string) ([]byte, error) {
	f.lastImage = imagePNG
	f.lastPrompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func mustEnhancement() *model.EnhancementPrompt {
	return &model.EnhancementPrompt{
		EmotionalIntent: "Amplify the quiet melancholy into a dreamlike ache",
		VisualDirective: "Shift toward deep amber tones with soft vignetting",
		MorphingPrompt:  "Deepen the shadows and let the highlights bloom with hazy amber light.",
		StyleReference:  "Wong Kar-wai cinematography",
	}
}

const validEnhancementJSON = `{
	"emotional_intent": "Amplify the quiet melancholy into a dreamlike ache",
	"visual_directive": "Shift toward deep amber tones with soft vignetting",
	"morphing_prompt": "Deepen the shadows and let the highlights bloom with hazy amber light.",
	"style_reference": "Wong Kar-wai cinematography"
}`

func TestGenerateEnhancementPrompt_Valid(t *testing.T) {
	chat := &fakeChat{resp: validEnhancementJSON}
	m := NewMorpher(chat, &fakeEditor{}, "test-model", time.Second)

	prompt, err := m.GenerateEnhancementPrompt(context.Background(), baseSceneAnalysis(), baseColorProfile(), baseSquiggleFeatures())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompt.StyleReference != "Wong Kar-wai cinematography" {
		t.Errorf("style reference: got %q", prompt.StyleReference)
	}
	if chat.lastReq.Temperature != 0.4 || chat.lastReq.MaxTokens != 512 {
		t.Errorf("unexpected sampling params: temp=%v max=%d", chat.lastReq.Temperature, chat.lastReq.MaxTokens)
	}
}

func TestGenerateEnhancementPrompt_MissingMorphingPrompt(t *testing.T) {
	m := NewMorpher(&fakeChat{resp: `{"emotional_intent": "x"}`}, &fakeEditor{}, "test-model", time.Second)
	_, err := m.GenerateEnhancementPrompt(context.Background(), baseSceneAnalysis(), baseColorProfile(), baseSquiggleFeatures())
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
}

func TestMorph_TintsThenEdits(t *testing.T) {
	editor := &fakeEditor{out: []byte("morphed")}
	m := NewMorpher(&fakeChat{}, editor, "test-model", time.Second)

	src := testPNG(t)

	out, err := m.Morph(context.Background(), src, baseColorProfile(), mustEnhancement())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "morphed" {
		t.Errorf("expected editor output returned, got %q", out)
	}
	if editor.lastPrompt != mustEnhancement().MorphingPrompt {
		t.Errorf("editor prompt: got %q", editor.lastPrompt)
	}
	if bytes.Equal(editor.lastImage, src) {
		t.Error("editor received the untinted source image")
	}

	// The tinted intermediate must still be a decodable PNG, shifted toward
	// the overlay color.
	tinted, err := png.Decode(bytes.NewReader(editor.lastImage))
	if err != nil {
		t.Fatalf("tinted image is not valid PNG: %v", err)
	}
	r, g, b, _ := tinted.At(0, 0).RGBA()
	if !(b > r && b > g) {
		t.Errorf("expected blue-shifted pixel, got r=%d g=%d b=%d", r>>8, g>>8, b>>8)
	}
}

func TestMorph_UndecodableImage(t *testing.T) {
	m := NewMorpher(&fakeChat{}, &fakeEditor{}, "test-model", time.Second)
	_, err := m.Morph(context.Background(), []byte("not an image"), baseColorProfile(), mustEnhancement())
	if err == nil {
		t.Fatal("expected error for undecodable image")
	}
}

func TestMorph_EditorError(t *testing.T) {
	m := NewMorpher(&fakeChat{}, &fakeEditor{err: errors.New("quota exceeded")}, "test-model", time.Second)
	_, err := m.Morph(context.Background(), testPNG(t), baseColorProfile(), mustEnhancement())
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestApplyColorOverlay_OpacityScalesWithSaturation(t *testing.T) {
	src := testPNG(t)

	low := baseColorProfile()
	low.Saturation = 0
	high := baseColorProfile()
	high.Saturation = 1

	lowOut, err := applyColorOverlay(src, low)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	highOut, err := applyColorOverlay(src, high)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lowImg, _ := png.Decode(bytes.NewReader(lowOut))
	highImg, _ := png.Decode(bytes.NewReader(highOut))

	lb := blueOf(lowImg.At(0, 0))
	hb := blueOf(highImg.At(0, 0))
	// Both start from white; a stronger overlay pulls red further down.
	lr := redOf(lowImg.At(0, 0))
	hr := redOf(highImg.At(0, 0))
	if hr >= lr {
		t.Errorf("expected stronger tint at full saturation: low r=%d high r=%d (b %d/%d)", lr, hr, lb, hb)
	}
}

func blueOf(c color.Color) uint32 {
	_, _, b, _ := c.RGBA()
	return b
}

func redOf(c color.Color) uint32 {
	r, _, _, _ := c.RGBA()
	return r
}
