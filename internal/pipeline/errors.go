package pipeline

import "errors"

// Sentinel errors for the generation pipeline. Stages wrap these with %w so
// the orchestrator and handlers can classify failures with errors.Is.
var (
	// ErrInvalidGesture rejects gestures that cannot produce features.
	ErrInvalidGesture = errors.New("invalid gesture")

	// ErrInvalidColor rejects malformed color_hex input.
	ErrInvalidColor = errors.New("invalid color")

	// ErrUpstreamUnavailable covers timeouts and transport or service errors
	// on any external call. Terminal for the attempt.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrSchemaViolation means an external response was missing required
	// structured fields even after repair. Terminal for the attempt.
	ErrSchemaViolation = errors.New("schema violation")
)
