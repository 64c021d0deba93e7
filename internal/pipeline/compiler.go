package pipeline

import (
	"fmt"
	"strings"

	"github.com/echogram/api/internal/model"
)

var colorToneMap = map[model.HueCategory]string{
	model.HueWarmRed:     "warm and bold",
	model.HueWarmOrange:  "warm and earthy",
	model.HueWarmYellow:  "bright and radiant",
	model.HueWarmMagenta: "warm and lush",
	model.HueCoolBlue:    "cool and ethereal",
	model.HueCoolCyan:    "crisp and spacious",
	model.HueCoolPurple:  "deep and mysterious",
	model.HueCoolGreen:   "organic and verdant",
	model.HueNeutralGray: "muted and minimal",
}

// CompilePrompt flattens the structured audio object plus its originating
// analysis into one natural-language generation prompt. Pure; the object is
// assumed to have passed synthesis validation.
func CompilePrompt(obj *model.AudioObject, color *model.ColorProfile, scene *model.SceneAnalysis, squiggle *model.SquiggleFeatures) string {
	colorTone, ok := colorToneMap[color.HueCategory]
	if !ok {
		colorTone = "balanced"
	}
	if color.Saturation > 0.7 {
		colorTone += ", vivid"
	} else if color.Saturation < 0.3 {
		colorTone += ", subdued"
	}
	if color.Lightness > 0.7 {
		colorTone += ", airy"
	} else if color.Lightness < 0.3 {
		colorTone += ", dark"
	}

	var rhythmDesc string
	switch {
	case squiggle.AverageSpeed > 0.003:
		if squiggle.SpeedVariance > 0.00002 {
			rhythmDesc = "erratic, percussive rhythms"
		} else {
			rhythmDesc = "driving, steady rhythms"
		}
	case squiggle.AverageSpeed < 0.0005:
		rhythmDesc = "sustained pads and slow drones"
	default:
		rhythmDesc = "flowing, melodic phrases"
	}
	if squiggle.TotalLength > 2.0 {
		rhythmDesc += " with layered complexity"
	} else if squiggle.TotalLength < 0.5 {
		rhythmDesc += " with focused simplicity"
	}

	// Compress energy upward: quiet scenes still need musical movement.
	energy := 0.3 + obj.Energy*0.7
	var energyDesc string
	switch {
	case energy < 0.4:
		energyDesc = "steadily grooving"
	case energy < 0.55:
		energyDesc = "building momentum"
	case energy < 0.7:
		energyDesc = "driving and pulsing"
	case energy < 0.85:
		energyDesc = "intensely surging"
	default:
		energyDesc = "explosively energetic"
	}

	moodStr := fmt.Sprintf("%s and %s", obj.Mood.Primary, obj.Mood.Secondary)

	textureStr := "smooth"
	if len(obj.Texture) > 0 {
		textureStr = strings.Join(obj.Texture, ", ")
	}

	refs := obj.SoundReferences
	if len(refs) > 6 {
		refs = refs[:6]
	}
	refsStr := "abstract tones"
	if len(refs) > 0 {
		refsStr = strings.Join(refs, ", ")
	}

	var sceneParts []string
	if scene.TimeOfDay != "" {
		sceneParts = append(sceneParts, scene.TimeOfDay)
	}
	if scene.Environment != "" {
		sceneParts = append(sceneParts, scene.Environment)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Instrumental %s track. ", obj.AudioType)
	if obj.GenreHint != "" {
		fmt.Fprintf(&b, "Genre: %s. ", obj.GenreHint)
	}
	fmt.Fprintf(&b, "Scene: %s. Vibe: %s. ", scene.SceneDescription, scene.Vibe)
	if len(sceneParts) > 0 {
		fmt.Fprintf(&b, "Setting: %s. ", strings.Join(sceneParts, " "))
	}
	if scene.SonicMetaphor != "" {
		fmt.Fprintf(&b, "Sounds like: %s. ", scene.SonicMetaphor)
	}

	fmt.Fprintf(&b, "%s, %s mood with a %s tonal palette, %s textures, and %s. ",
		capitalize(energyDesc), moodStr, colorTone, textureStr, rhythmDesc)

	if len(obj.Instruments) > 0 {
		fmt.Fprintf(&b, "Instruments: %s. ", strings.Join(obj.Instruments, ", "))
	}
	if obj.SonicPalette != "" {
		fmt.Fprintf(&b, "Timbre: %s. ", obj.SonicPalette)
	}
	if obj.HarmonicMood != "" {
		fmt.Fprintf(&b, "Harmonic feel: %s. ", obj.HarmonicMood)
	}
	if obj.DynamicShape != "" {
		fmt.Fprintf(&b, "Dynamic shape: %s. ", obj.DynamicShape)
	}
	fmt.Fprintf(&b, "Drawing from: %s. ", refsStr)

	b.WriteString("Make it musically engaging with clear rhythm and forward momentum. ")

	fmt.Fprintf(&b, "%d BPM, in %s, %s tempo, %s density, %d seconds long. Instrumental only, no vocals, no lyrics.",
		obj.BPM, obj.MusicalKey, obj.Tempo, obj.Density, obj.DurationSeconds)

	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
