package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/echogram/api/internal/model"
)

// MapColor derives the submission's color profile. Hue comes from the angle
// of the gesture's final point around the canvas center, saturation from its
// normalized distance to the center, and lightness from the submitted hex.
func MapColor(hexStr string, endpoint model.SquigglePoint) (*model.ColorProfile, error) {
	_, _, lightness, err := parseHexHSL(hexStr)
	if err != nil {
		return nil, err
	}

	dx := endpoint.X - 0.5
	dy := endpoint.Y - 0.5

	deg := math.Atan2(dy, dx) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 { // 360° wraps to 0°
		deg -= 360
	}

	// Distance from center, normalized so the canvas edge midpoints hit 1.0.
	sat := math.Hypot(dx, dy) / 0.5
	if sat > 1 {
		sat = 1
	}

	return &model.ColorProfile{
		Hex:         "#" + strings.TrimPrefix(strings.ToLower(hexStr), "#"),
		Hue:         round6(deg),
		Saturation:  round3(sat),
		Lightness:   round3(lightness),
		HueCategory: classifyHue(deg, sat),
	}, nil
}

// classifyHue buckets a hue/saturation pair into one of nine tonal
// categories. Low saturation always wins, regardless of angle.
func classifyHue(hueDeg, saturation float64) model.HueCategory {
	switch {
	case saturation < 0.1:
		return model.HueNeutralGray
	case hueDeg < 15 || hueDeg >= 345:
		return model.HueWarmRed
	case hueDeg < 45:
		return model.HueWarmOrange
	case hueDeg < 70:
		return model.HueWarmYellow
	case hueDeg < 160:
		return model.HueCoolGreen
	case hueDeg < 200:
		return model.HueCoolCyan
	case hueDeg < 260:
		return model.HueCoolBlue
	case hueDeg < 290:
		return model.HueCoolPurple
	default:
		return model.HueWarmMagenta
	}
}

// parseHexHSL parses #RRGGBB into HSL components.
func parseHexHSL(hexStr string) (h, s, l float64, err error) {
	clean := strings.TrimPrefix(strings.TrimSpace(hexStr), "#")
	if len(clean) != 6 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidColor, hexStr)
	}

	var rgb [3]float64
	for i := 0; i < 3; i++ {
		v, perr := strconv.ParseUint(clean[i*2:i*2+2], 16, 8)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidColor, hexStr)
		}
		rgb[i] = float64(v) / 255
	}

	maxC := math.Max(rgb[0], math.Max(rgb[1], rgb[2]))
	minC := math.Min(rgb[0], math.Min(rgb[1], rgb[2]))
	l = (maxC + minC) / 2

	if maxC == minC {
		return 0, 0, l, nil
	}

	d := maxC - minC
	if l > 0.5 {
		s = d / (2 - maxC - minC)
	} else {
		s = d / (maxC + minC)
	}

	switch maxC {
	case rgb[0]:
		h = math.Mod((rgb[1]-rgb[2])/d, 6)
	case rgb[1]:
		h = (rgb[2]-rgb[0])/d + 2
	default:
		h = (rgb[0]-rgb[1])/d + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, s, l, nil
}

func round3(v float64) float64 {
	return math.Round(v*1e3) / 1e3
}
