package pipeline

import (
	"fmt"
	"math"

	"github.com/echogram/api/internal/model"
)

// ExtractFeatures computes deterministic gesture features from an ordered
// point sequence. It needs at least two points; timestamps are milliseconds
// from gesture start and must be non-decreasing (enforced upstream by
// validation, tolerated here).
func ExtractFeatures(points []model.SquigglePoint) (*model.SquiggleFeatures, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 squiggle points, got %d", ErrInvalidGesture, len(points))
	}

	totalLength := 0.0
	segSpeeds := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		dx := points[i].X - points[i-1].X
		dy := points[i].Y - points[i-1].Y
		dist := math.Sqrt(dx*dx + dy*dy)
		totalLength += dist

		if dt := points[i].T - points[i-1].T; dt > 0 {
			segSpeeds = append(segSpeeds, dist/float64(dt))
		}
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	bboxArea := (maxX - minX) * (maxY - minY)

	// Average speed is path length over total duration. A zero-duration
	// gesture is treated as lasting the smallest positive duration we track
	// (one millisecond) instead of dividing by zero.
	duration := float64(points[len(points)-1].T - points[0].T)
	if duration <= 0 {
		duration = 1
	}
	avgSpeed := totalLength / duration

	variance := 0.0
	if len(segSpeeds) > 0 {
		mean := 0.0
		for _, s := range segSpeeds {
			mean += s
		}
		mean /= float64(len(segSpeeds))
		for _, s := range segSpeeds {
			d := s - mean
			variance += d * d
		}
		variance /= float64(len(segSpeeds))
	}

	return &model.SquiggleFeatures{
		TotalLength:     round6(totalLength),
		BoundingBoxArea: round6(bboxArea),
		AverageSpeed:    round6(avgSpeed),
		SpeedVariance:   round6(variance),
		PointCount:      len(points),
	}, nil
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
