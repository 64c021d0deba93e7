package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/echogram/api/internal/client"
	"github.com/echogram/api/internal/model"
)

// fakeChat is a canned-response JSONChatter shared by the pipeline tests.
type fakeChat struct {
	resp      string
	imageResp string
	err       error

	lastReq   *client.ChatJSONRequest
	lastImage []byte
}

func (f *fakeChat) ChatJSON(ctx context.Context, req *client.ChatJSONRequest) (string, error) {
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.resp, nil
}

func (f *fakeChat) ChatJSONImage(ctx context.Context, req *client.ChatJSONRequest, image []byte, contentType string) (string, error) {
	f.lastReq = req
	f.lastImage = image
	if f.err != nil {
		return "", f.err
	}
	return f.imageResp, nil
}

func validObjectJSON(extra string) string {
	return fmt.Sprintf(`{
		"audio_type": "music",
		"mood": {"primary": "wistful", "secondary": "hopeful"},
		"energy": 0.6,
		"tempo": "medium",
		"density": "dense",
		"texture": ["grainy"],
		"sound_references": ["rain on glass"],
		"duration_seconds": 18,
		"bpm": 120,
		"musical_key": "A minor",
		"relation_to_parent": "original",
		"confidence": 0.8%s
	}`, extra)
}

func newTestSynthesizer(chat *fakeChat) *Synthesizer {
	return NewSynthesizer(chat, "test-model", time.Second)
}

func TestSynthesize_ValidObject(t *testing.T) {
	chat := &fakeChat{resp: validObjectJSON("")}
	s := newTestSynthesizer(chat)

	obj, err := s.Synthesize(context.Background(), baseSceneAnalysis(), baseColorProfile(), baseSquiggleFeatures(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj.AudioType != model.AudioTypeMusic {
		t.Errorf("audio type: expected music, got %s", obj.AudioType)
	}
	if obj.BPM != 120 || obj.MusicalKey != "A minor" || obj.DurationSeconds != 18 {
		t.Errorf("unexpected rhythmic frame: bpm=%d key=%s dur=%d", obj.BPM, obj.MusicalKey, obj.DurationSeconds)
	}
	if obj.RelationToParent != model.RelationOriginal {
		t.Errorf("relation: expected original for a post, got %s", obj.RelationToParent)
	}
	if chat.lastReq.Temperature != 0.6 {
		t.Errorf("temperature: expected 0.6, got %v", chat.lastReq.Temperature)
	}
	if strings.Contains(chat.lastReq.System, "COMMENT MODE") {
		t.Error("post synthesis must not carry the comment addendum")
	}
}

func TestSynthesize_ClampsNumericDrift(t *testing.T) {
	chat := &fakeChat{resp: `{
		"audio_type": "music",
		"mood": {"primary": "calm", "secondary": "still"},
		"energy": 0.05,
		"tempo": "slow",
		"density": "sparse",
		"duration_seconds": 45,
		"bpm": 500,
		"musical_key": "C major",
		"confidence": 1.7
	}`}
	s := newTestSynthesizer(chat)

	obj, err := s.Synthesize(context.Background(), baseSceneAnalysis(), baseColorProfile(), baseSquiggleFeatures(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj.Energy != 0.3 {
		t.Errorf("energy: expected clamp to 0.3, got %v", obj.Energy)
	}
	if obj.BPM != 300 {
		t.Errorf("bpm: expected clamp to 300, got %d", obj.BPM)
	}
	if obj.DurationSeconds != 20 {
		t.Errorf("duration: expected clamp to 20, got %d", obj.DurationSeconds)
	}
	if obj.Confidence != 1 {
		t.Errorf("confidence: expected clamp to 1, got %v", obj.Confidence)
	}
}

func TestSynthesize_SchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		resp string
	}{
		{"bad json", "not json"},
		{"bad audio type", strings.Replace(validObjectJSON(""), `"music"`, `"podcast"`, 1)},
		{"bad tempo", strings.Replace(validObjectJSON(""), `"medium"`, `"frantic"`, 1)},
		{"bad density", strings.Replace(validObjectJSON(""), `"dense"`, `"thick"`, 1)},
		{"missing mood", strings.Replace(validObjectJSON(""), `"wistful"`, `""`, 1)},
		{"missing key", strings.Replace(validObjectJSON(""), `"A minor"`, `""`, 1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSynthesizer(&fakeChat{resp: tc.resp})
			_, err := s.Synthesize(context.Background(), baseSceneAnalysis(), baseColorProfile(), baseSquiggleFeatures(), nil)
			if !errors.Is(err, ErrSchemaViolation) {
				t.Fatalf("expected ErrSchemaViolation, got %v", err)
			}
		})
	}
}

func TestSynthesize_TransportError(t *testing.T) {
	s := newTestSynthesizer(&fakeChat{err: errors.New("connection refused")})
	_, err := s.Synthesize(context.Background(), baseSceneAnalysis(), baseColorProfile(), baseSquiggleFeatures(), nil)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestSynthesize_ReplyInheritsParentFrame(t *testing.T) {
	chat := &fakeChat{resp: strings.Replace(validObjectJSON(""), `"original"`, `"contrast"`, 1)}
	s := newTestSynthesizer(chat)

	parent := &model.AudioObject{BPM: 95, MusicalKey: "E minor", DurationSeconds: 16}
	obj, err := s.Synthesize(context.Background(), baseSceneAnalysis(), baseColorProfile(), baseSquiggleFeatures(), parent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj.BPM != 95 || obj.MusicalKey != "E minor" || obj.DurationSeconds != 16 {
		t.Errorf("reply must inherit parent frame: bpm=%d key=%s dur=%d", obj.BPM, obj.MusicalKey, obj.DurationSeconds)
	}
	if obj.RelationToParent != model.RelationContrast {
		t.Errorf("relation: expected contrast, got %s", obj.RelationToParent)
	}
	if !strings.Contains(chat.lastReq.System, "COMMENT MODE") {
		t.Error("reply synthesis must carry the comment addendum")
	}
	if !strings.Contains(chat.lastReq.User, "parent_audio_object") {
		t.Error("reply synthesis must include the parent object in the user payload")
	}
}

func TestSynthesize_ReplyRelationRepaired(t *testing.T) {
	// A reply that calls itself "original" is repaired to variation, not failed.
	chat := &fakeChat{resp: validObjectJSON("")}
	s := newTestSynthesizer(chat)

	parent := &model.AudioObject{BPM: 95, MusicalKey: "E minor", DurationSeconds: 16}
	obj, err := s.Synthesize(context.Background(), baseSceneAnalysis(), baseColorProfile(), baseSquiggleFeatures(), parent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj.RelationToParent != model.RelationVariation {
		t.Errorf("relation: expected repair to variation, got %s", obj.RelationToParent)
	}
}
