package pipeline

import (
	"errors"
	"testing"

	"github.com/echogram/api/internal/model"
)

func TestMapColor_InvalidHex(t *testing.T) {
	for _, hex := range []string{"", "fff", "#12345", "#zzzzzz", "#1234567"} {
		if _, err := MapColor(hex, model.SquigglePoint{X: 1, Y: 0.5}); !errors.Is(err, ErrInvalidColor) {
			t.Errorf("hex %q: expected ErrInvalidColor, got %v", hex, err)
		}
	}
}

func TestMapColor_CenterEndpointIsNeutral(t *testing.T) {
	c, err := MapColor("#ff0000", model.SquigglePoint{X: 0.5, Y: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Saturation != 0 {
		t.Errorf("saturation: expected 0 at center, got %v", c.Saturation)
	}
	if c.HueCategory != model.HueNeutralGray {
		t.Errorf("category: expected neutral_gray at center, got %s", c.HueCategory)
	}
}

func TestMapColor_HueWrapsAtRed(t *testing.T) {
	// Straight right of center is 0 degrees.
	c, err := MapColor("#808080", model.SquigglePoint{X: 1, Y: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Hue != 0 {
		t.Errorf("hue: expected 0, got %v", c.Hue)
	}
	if c.HueCategory != model.HueWarmRed {
		t.Errorf("category: expected warm_red at 0 degrees, got %s", c.HueCategory)
	}

	// Just below the axis the angle approaches 360; still warm_red.
	c, err = MapColor("#808080", model.SquigglePoint{X: 1, Y: 0.499})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Hue < 345 {
		t.Fatalf("hue: expected near 360, got %v", c.Hue)
	}
	if c.HueCategory != model.HueWarmRed {
		t.Errorf("category: expected warm_red near 360 degrees, got %s", c.HueCategory)
	}
}

func TestMapColor_HueBuckets(t *testing.T) {
	cases := []struct {
		point model.SquigglePoint
		want  model.HueCategory
	}{
		{model.SquigglePoint{X: 1, Y: 0.75}, model.HueWarmOrange},  // ~26.6°
		{model.SquigglePoint{X: 0.8, Y: 0.9}, model.HueWarmYellow}, // ~53.1°
		{model.SquigglePoint{X: 0.5, Y: 1}, model.HueCoolGreen},    // 90°
		{model.SquigglePoint{X: 0.04, Y: 0.65}, model.HueCoolCyan}, // ~162°
		{model.SquigglePoint{X: 0, Y: 0.5}, model.HueCoolCyan},     // 180°
		{model.SquigglePoint{X: 0.1, Y: 0.2}, model.HueCoolBlue},   // ~216.9°
		{model.SquigglePoint{X: 0.5, Y: 0}, model.HueCoolPurple},   // 270°
		{model.SquigglePoint{X: 0.6, Y: 0.1}, model.HueCoolPurple}, // ~284°
		{model.SquigglePoint{X: 0.8, Y: 0.1}, model.HueWarmMagenta},
	}

	for _, tc := range cases {
		c, err := MapColor("#808080", tc.point)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.HueCategory != tc.want {
			t.Errorf("endpoint (%v,%v) hue %v: expected %s, got %s",
				tc.point.X, tc.point.Y, c.Hue, tc.want, c.HueCategory)
		}
	}
}

func TestMapColor_SaturationClamped(t *testing.T) {
	// A corner is sqrt(2)/2 from center; normalized distance exceeds 1.
	c, err := MapColor("#808080", model.SquigglePoint{X: 1, Y: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Saturation != 1 {
		t.Errorf("saturation: expected clamp to 1, got %v", c.Saturation)
	}
}

func TestMapColor_LightnessFromHex(t *testing.T) {
	cases := []struct {
		hex  string
		want float64
	}{
		{"#000000", 0},
		{"#ffffff", 1},
		{"#808080", 0.502},
	}
	for _, tc := range cases {
		c, err := MapColor(tc.hex, model.SquigglePoint{X: 1, Y: 0.5})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Lightness != tc.want {
			t.Errorf("hex %s: expected lightness %v, got %v", tc.hex, tc.want, c.Lightness)
		}
	}
}

func TestMapColor_NormalizesHex(t *testing.T) {
	c, err := MapColor("FFAA00", model.SquigglePoint{X: 1, Y: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Hex != "#ffaa00" {
		t.Errorf("hex: expected #ffaa00, got %s", c.Hex)
	}
}
