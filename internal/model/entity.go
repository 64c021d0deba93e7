package model

import "time"

// SquigglePoint is a single sample of the user's gesture: normalized canvas
// coordinates plus milliseconds since gesture start.
type SquigglePoint struct {
	X float64 `json:"x" validate:"gte=0,lte=1"`
	Y float64 `json:"y" validate:"gte=0,lte=1"`
	T int64   `json:"t" validate:"gte=0"`
}

// SquiggleFeatures are the deterministic features extracted from a gesture.
type SquiggleFeatures struct {
	TotalLength     float64 `json:"total_length"`
	BoundingBoxArea float64 `json:"bounding_box_area"`
	AverageSpeed    float64 `json:"average_speed"`
	SpeedVariance   float64 `json:"speed_variance"`
	PointCount      int     `json:"point_count"`
}

// ColorProfile is the derived color for a submission: hue and saturation come
// from the gesture endpoint's position on the canvas, lightness from the
// submitted hex.
type ColorProfile struct {
	Hex         string      `json:"hex"`
	Hue         float64     `json:"hue"`
	Saturation  float64     `json:"saturation"`
	Lightness   float64     `json:"lightness"`
	HueCategory HueCategory `json:"hue_category"`
}

// SceneAnalysis is the vision service's description of the source image.
type SceneAnalysis struct {
	SceneDescription         string   `json:"scene_description"`
	DetectedObjects          []string `json:"detected_objects"`
	Vibe                     string   `json:"vibe"`
	Emotion                  string   `json:"emotion"`
	DominantColors           []string `json:"dominant_colors"`
	Environment              string   `json:"environment,omitempty"`
	TimeOfDay                string   `json:"time_of_day,omitempty"`
	LocationHint             string   `json:"location_hint,omitempty"`
	AmbientSoundAssociations []string `json:"ambient_sound_associations"`
	SonicMetaphor            string   `json:"sonic_metaphor,omitempty"`
}

// Mood is the two-word mood of an audio object.
type Mood struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// AudioObject is the validated structured description of the target audio,
// synthesized from scene analysis, color, and gesture features. For replies,
// BPM, MusicalKey and DurationSeconds always equal the parent's.
type AudioObject struct {
	AudioType        AudioType `json:"audio_type"`
	Mood             Mood      `json:"mood"`
	Energy           float64   `json:"energy"`
	Tempo            Tempo     `json:"tempo"`
	Density          Density   `json:"density"`
	Texture          []string  `json:"texture"`
	SoundReferences  []string  `json:"sound_references"`
	DurationSeconds  int       `json:"duration_seconds"`
	BPM              int       `json:"bpm"`
	MusicalKey       string    `json:"musical_key"`
	RelationToParent Relation  `json:"relation_to_parent"`
	Confidence       float64   `json:"confidence"`
	Instruments      []string  `json:"instruments"`
	GenreHint        string    `json:"genre_hint,omitempty"`
	HarmonicMood     string    `json:"harmonic_mood,omitempty"`
	DynamicShape     string    `json:"dynamic_shape,omitempty"`
	SonicPalette     string    `json:"sonic_palette,omitempty"`
}

// EnhancementPrompt is the image-morph branch's creative directive.
type EnhancementPrompt struct {
	EmotionalIntent string `json:"emotional_intent"`
	VisualDirective string `json:"visual_directive"`
	MorphingPrompt  string `json:"morphing_prompt"`
	StyleReference  string `json:"style_reference"`
}

// Entity is one generated artifact: a post, or a comment when ParentID is
// set. Inputs (image ref, color hex, squiggle points) are immutable after
// creation; pipeline artifacts are overwritten wholesale on each attempt.
type Entity struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	Owner    string `json:"owner"`

	ImageRef       string          `json:"imageRef"`
	ColorHex       string          `json:"colorHex"`
	SquigglePoints []SquigglePoint `json:"squigglePoints"`

	Status Status `json:"status"`

	SceneAnalysis    *SceneAnalysis     `json:"sceneAnalysis,omitempty"`
	GestureFeatures  *SquiggleFeatures  `json:"gestureFeatures,omitempty"`
	Color            *ColorProfile      `json:"color,omitempty"`
	AudioObject      *AudioObject       `json:"audioObject,omitempty"`
	CompiledPrompt   string             `json:"compiledPrompt,omitempty"`
	Enhancement      *EnhancementPrompt `json:"enhancement,omitempty"`
	AudioRef         string             `json:"audioRef,omitempty"`
	MorphedImageRef  string             `json:"morphedImageRef,omitempty"`
	ErrorMessage     string             `json:"errorMessage,omitempty"`
	Attempt          int                `json:"attempt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsComment reports whether the entity is a reply to another entity.
func (e *Entity) IsComment() bool {
	return e.ParentID != ""
}

// ResetForAttempt clears the previous attempt's artifacts and moves the
// entity back to queued under a new attempt number.
func (e *Entity) ResetForAttempt(now time.Time) {
	e.Status = StatusQueued
	e.SceneAnalysis = nil
	e.GestureFeatures = nil
	e.Color = nil
	e.AudioObject = nil
	e.CompiledPrompt = ""
	e.Enhancement = nil
	e.AudioRef = ""
	e.MorphedImageRef = ""
	e.ErrorMessage = ""
	e.Attempt++
	e.UpdatedAt = now
}
