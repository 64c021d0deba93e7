package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/echogram/api/internal/model"
)

// Trace captures every intermediate artifact of one generation attempt for
// offline inspection. The worker fills it in as stages complete and writes
// it once at the end, success or failure.
type Trace struct {
	Kind        string // "post" or "comment"
	EntityID    string
	Owner       string
	ColorHex    string
	Color       *model.ColorProfile
	Scene       *model.SceneAnalysis
	Squiggle    *model.SquiggleFeatures
	Object      *model.AudioObject
	Parent      *model.AudioObject
	Prompt      string
	PlanJSON    json.RawMessage
	Enhancement *model.EnhancementPrompt
	MorphStatus string
	AudioRef    string
}

// TraceWriter persists traces as plain-text files under a directory. A nil
// or empty directory disables tracing.
type TraceWriter struct {
	dir string
}

// NewTraceWriter creates a TraceWriter rooted at dir.
func NewTraceWriter(dir string) *TraceWriter {
	return &TraceWriter{dir: dir}
}

// Enabled reports whether traces will actually be written.
func (tw *TraceWriter) Enabled() bool {
	return tw != nil && tw.dir != ""
}

// Write renders the trace to a timestamped text file and returns its path.
func (tw *TraceWriter) Write(t *Trace) (string, error) {
	if !tw.Enabled() {
		return "", nil
	}
	if err := os.MkdirAll(tw.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create trace dir: %w", err)
	}

	now := time.Now()
	name := fmt.Sprintf("%s_%s_%s.txt", t.Kind, t.EntityID, now.Format("20060102_150405"))
	path := filepath.Join(tw.dir, name)

	var b strings.Builder
	bar := strings.Repeat("=", 80)

	fmt.Fprintf(&b, "%s\n", bar)
	fmt.Fprintf(&b, "  PIPELINE TRACE — %s\n", strings.ToUpper(t.Kind))
	fmt.Fprintf(&b, "  ID: %s  |  User: %s  |  %s\n", t.EntityID, t.Owner, now.Format(time.RFC3339))
	fmt.Fprintf(&b, "%s\n", bar)

	section(&b, "STEP 1: COLOR DERIVATION")
	fmt.Fprintf(&b, "Input hex: %s\n\n", t.ColorHex)
	b.WriteString(pretty(t.Color))

	section(&b, "STEP 2: IMAGE ANALYSIS")
	b.WriteString("Input: user-uploaded image (binary)\n\nOutput (SceneAnalysis):\n")
	b.WriteString(pretty(t.Scene))

	section(&b, "STEP 3: SQUIGGLE FEATURE EXTRACTION")
	b.WriteString("Output (SquiggleFeatures):\n")
	b.WriteString(pretty(t.Squiggle))

	step := 4
	if t.Enhancement != nil {
		section(&b, fmt.Sprintf("STEP %d: IMAGE ENHANCEMENT PROMPT", step))
		b.WriteString("Input: SceneAnalysis + ColorProfile + SquiggleFeatures\n\nOutput (EnhancementPrompt):\n")
		b.WriteString(pretty(t.Enhancement))
		step++

		section(&b, fmt.Sprintf("STEP %d: IMAGE MORPHING", step))
		b.WriteString("Input image: original + color overlay\n")
		fmt.Fprintf(&b, "Prompt sent to image editor:\n\n  %q\n\n", t.Enhancement.MorphingPrompt)
		switch {
		case t.MorphStatus == "success":
			b.WriteString("Output: morphed image bytes — SUCCESS\n")
		case strings.HasPrefix(t.MorphStatus, "failed:"):
			fmt.Fprintf(&b, "Output: FAILED — %s  (original image used instead)\n", t.MorphStatus)
		default:
			b.WriteString("Output: morph status unknown\n")
		}
		step++
	}

	if t.Parent != nil {
		section(&b, "PARENT AUDIO OBJECT (inherited bpm/key/duration)")
		b.WriteString(pretty(t.Parent))
	}

	section(&b, fmt.Sprintf("STEP %d: AUDIO STRUCTURED OBJECT", step))
	b.WriteString("Input: SceneAnalysis + ColorProfile + SquiggleFeatures")
	if t.Parent != nil {
		b.WriteString(" + parent AudioObject")
	}
	b.WriteString("\n\nOutput (AudioObject):\n")
	b.WriteString(pretty(t.Object))
	step++

	section(&b, fmt.Sprintf("STEP %d: COMPILED PROMPT (deterministic logic)", step))
	b.WriteString("Input: AudioObject + ColorProfile + SceneAnalysis + SquiggleFeatures\n\n")
	fmt.Fprintf(&b, "Output (prompt string sent to music provider):\n\n  %q\n", t.Prompt)
	step++

	section(&b, fmt.Sprintf("STEP %d: COMPOSITION PLAN (/v1/music/plan)", step))
	if len(t.PlanJSON) > 0 {
		b.WriteString("Response (composition plan, passed verbatim to render):\n")
		b.WriteString(pretty(t.PlanJSON))
	} else {
		b.WriteString("Response: (none)\n")
	}
	step++

	section(&b, fmt.Sprintf("STEP %d: AUDIO RENDER (/v1/music)", step))
	b.WriteString("Request: { composition_plan: <from previous step>, output_format: mp3 }\n\n")
	fmt.Fprintf(&b, "Output: %s\n", t.AudioRef)

	fmt.Fprintf(&b, "\n%s\n  TRACE COMPLETE — %s\n%s\n", bar, t.EntityID, bar)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write trace: %w", err)
	}
	return path, nil
}

func section(b *strings.Builder, title string) {
	bar := strings.Repeat("=", 80)
	fmt.Fprintf(b, "\n%s\n %s\n%s\n", bar, title, bar)
}

func pretty(v interface{}) string {
	if v == nil {
		return "null\n"
	}
	if raw, ok := v.(json.RawMessage); ok {
		var buf strings.Builder
		var tmp interface{}
		if err := json.Unmarshal(raw, &tmp); err != nil {
			return string(raw) + "\n"
		}
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tmp); err != nil {
			return string(raw) + "\n"
		}
		return buf.String()
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v\n", v)
	}
	return string(out) + "\n"
}
