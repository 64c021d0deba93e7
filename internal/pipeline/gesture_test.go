package pipeline

import (
	"errors"
	"math"
	"testing"

	"github.com/echogram/api/internal/model"
)

func TestExtractFeatures_TooFewPoints(t *testing.T) {
	_, err := ExtractFeatures([]model.SquigglePoint{{X: 0.5, Y: 0.5, T: 0}})
	if !errors.Is(err, ErrInvalidGesture) {
		t.Fatalf("expected ErrInvalidGesture, got %v", err)
	}

	_, err = ExtractFeatures(nil)
	if !errors.Is(err, ErrInvalidGesture) {
		t.Fatalf("expected ErrInvalidGesture for empty input, got %v", err)
	}
}

func TestExtractFeatures_Basic(t *testing.T) {
	// A single 3-4-5 segment over one second.
	points := []model.SquigglePoint{
		{X: 0, Y: 0, T: 0},
		{X: 0.3, Y: 0.4, T: 1000},
	}

	f, err := ExtractFeatures(points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.TotalLength != 0.5 {
		t.Errorf("total length: expected 0.5, got %v", f.TotalLength)
	}
	if f.BoundingBoxArea != 0.12 {
		t.Errorf("bbox area: expected 0.12, got %v", f.BoundingBoxArea)
	}
	if f.AverageSpeed != 0.0005 {
		t.Errorf("average speed: expected 0.0005, got %v", f.AverageSpeed)
	}
	if f.SpeedVariance != 0 {
		t.Errorf("speed variance: expected 0 for single segment, got %v", f.SpeedVariance)
	}
	if f.PointCount != 2 {
		t.Errorf("point count: expected 2, got %d", f.PointCount)
	}
}

func TestExtractFeatures_AverageSpeedUsesTotalDuration(t *testing.T) {
	// Two segments of equal length but very different segment speeds. The
	// average is path length over total duration, not the mean of the
	// per-segment speeds.
	points := []model.SquigglePoint{
		{X: 0, Y: 0, T: 0},
		{X: 0.5, Y: 0, T: 100},
		{X: 0.6, Y: 0, T: 1100},
	}

	f, err := ExtractFeatures(points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := round6(0.6 / 1100.0)
	if f.AverageSpeed != want {
		t.Errorf("average speed: expected %v, got %v", want, f.AverageSpeed)
	}
	if f.SpeedVariance <= 0 {
		t.Errorf("expected positive variance for uneven segments, got %v", f.SpeedVariance)
	}
}

func TestExtractFeatures_ZeroDuration(t *testing.T) {
	points := []model.SquigglePoint{
		{X: 0, Y: 0, T: 0},
		{X: 0.3, Y: 0.4, T: 0},
	}

	f, err := ExtractFeatures(points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Duration clamps to 1ms instead of dividing by zero.
	if f.AverageSpeed != 0.5 {
		t.Errorf("average speed: expected 0.5, got %v", f.AverageSpeed)
	}
}

func TestExtractFeatures_Rounding(t *testing.T) {
	points := []model.SquigglePoint{
		{X: 0, Y: 0, T: 0},
		{X: 1.0 / 3.0, Y: 0, T: 333},
	}

	f, err := ExtractFeatures(points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.TotalLength != math.Round(1.0/3.0*1e6)/1e6 {
		t.Errorf("total length not rounded to 6 decimals: %v", f.TotalLength)
	}
}
