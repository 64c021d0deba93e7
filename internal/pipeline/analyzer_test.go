package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

const validSceneJSON = `{
	"scene_description": "A rainy street at dusk, neon bleeding into puddles.",
	"detected_objects": ["street", "puddles", "neon sign"],
	"vibe": "hazy electric solitude",
	"emotion": "bittersweet longing",
	"dominant_colors": ["wet asphalt gray", "neon pink"],
	"environment": "outdoor",
	"time_of_day": "dusk",
	"ambient_sound_associations": ["rain on umbrellas", "tires on wet asphalt"],
	"sonic_metaphor": "A cello note sustained underwater"
}`

func TestAnalyze_ValidScene(t *testing.T) {
	chat := &fakeChat{imageResp: validSceneJSON}
	a := NewAnalyzer(chat, "test-model", time.Second)

	scene, err := a.Analyze(context.Background(), []byte("imagebytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scene.Vibe != "hazy electric solitude" {
		t.Errorf("vibe: got %q", scene.Vibe)
	}
	if scene.TimeOfDay != "dusk" || scene.Environment != "outdoor" {
		t.Errorf("optional fields not parsed: %+v", scene)
	}
	if len(scene.AmbientSoundAssociations) != 2 {
		t.Errorf("sound associations: got %v", scene.AmbientSoundAssociations)
	}
	if chat.lastReq.Temperature != 0.4 || chat.lastReq.MaxTokens != 1024 {
		t.Errorf("unexpected sampling params: temp=%v max=%d", chat.lastReq.Temperature, chat.lastReq.MaxTokens)
	}
	if string(chat.lastImage) != "imagebytes" {
		t.Error("image bytes not forwarded to the vision call")
	}
}

func TestAnalyze_TransportError(t *testing.T) {
	a := NewAnalyzer(&fakeChat{err: errors.New("gateway timeout")}, "test-model", time.Second)
	_, err := a.Analyze(context.Background(), []byte("x"), "image/png")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestAnalyze_InvalidJSON(t *testing.T) {
	a := NewAnalyzer(&fakeChat{imageResp: "I cannot analyze this image."}, "test-model", time.Second)
	_, err := a.Analyze(context.Background(), []byte("x"), "image/png")
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
}

func TestAnalyze_MissingRequiredFields(t *testing.T) {
	a := NewAnalyzer(&fakeChat{imageResp: `{"scene_description": "a street", "vibe": ""}`}, "test-model", time.Second)
	_, err := a.Analyze(context.Background(), []byte("x"), "image/png")
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
}
