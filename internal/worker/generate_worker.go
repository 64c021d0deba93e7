package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/echogram/api/internal/client"
	"github.com/echogram/api/internal/model"
	"github.com/echogram/api/internal/pipeline"
	"github.com/echogram/api/internal/service"
	"github.com/echogram/api/internal/store"
	"github.com/echogram/api/internal/websocket"
)

// GenerateWorker runs the full generation pipeline for one entity attempt:
// analysis fan-out, object synthesis, prompt compilation, then the audio and
// image branches in parallel. Every persisted write is guarded by the
// entity's attempt counter, so a worker superseded by a recreate or delete
// quietly discards its results.
type GenerateWorker struct {
	store       store.Store
	analyzer    *pipeline.Analyzer
	synthesizer *pipeline.Synthesizer
	morpher     *pipeline.Morpher
	music       client.MusicGenerator
	hub         *websocket.Hub
	traces      *pipeline.TraceWriter
}

// NewGenerateWorker creates a new generation worker. hub and traces may be
// nil.
func NewGenerateWorker(st store.Store, analyzer *pipeline.Analyzer, synthesizer *pipeline.Synthesizer, morpher *pipeline.Morpher, music client.MusicGenerator, hub *websocket.Hub, traces *pipeline.TraceWriter) *GenerateWorker {
	return &GenerateWorker{
		store:       st,
		analyzer:    analyzer,
		synthesizer: synthesizer,
		morpher:     morpher,
		music:       music,
		hub:         hub,
		traces:      traces,
	}
}

// ProcessTask handles generate task processing
func (w *GenerateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.GeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	return w.Run(ctx, payload.EntityID, payload.Attempt)
}

// Run executes one generation attempt. It returns nil when the attempt was
// superseded or the entity deleted: there is nothing to retry.
func (w *GenerateWorker) Run(ctx context.Context, entityID string, attempt int) error {
	log.Printf("Starting generation: %s (attempt=%d)", entityID, attempt)

	entity, err := w.claim(ctx, entityID, attempt)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrStaleAttempt) {
			log.Printf("Generation %s (attempt=%d) superseded before start, discarding", entityID, attempt)
			return nil
		}
		return err
	}
	w.broadcastStatus(entityID, model.StatusGenerating, "analyzing")

	trace := &pipeline.Trace{
		Kind:     "post",
		EntityID: entityID,
		Owner:    entity.Owner,
		ColorHex: entity.ColorHex,
	}
	if entity.IsComment() {
		trace.Kind = "comment"
	}
	defer w.writeTrace(trace)

	image, imageType, err := w.store.GetBlob(ctx, entity.ImageRef)
	if err != nil {
		return w.fail(ctx, entityID, attempt, fmt.Sprintf("source image unreadable: %v", err))
	}

	// Stage 1: scene analysis, gesture features, and color in parallel. The
	// two deterministic stages are cheap but independent of the vision call.
	var (
		wg       sync.WaitGroup
		scene    *model.SceneAnalysis
		squiggle *model.SquiggleFeatures
		color    *model.ColorProfile
		sceneErr error
		localErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		scene, sceneErr = w.analyzer.Analyze(ctx, image, imageType)
	}()
	go func() {
		defer wg.Done()
		squiggle, localErr = pipeline.ExtractFeatures(entity.SquigglePoints)
		if localErr != nil {
			return
		}
		endpoint := entity.SquigglePoints[len(entity.SquigglePoints)-1]
		color, localErr = pipeline.MapColor(entity.ColorHex, endpoint)
	}()
	wg.Wait()

	if localErr != nil {
		return w.fail(ctx, entityID, attempt, localErr.Error())
	}
	if sceneErr != nil {
		return w.fail(ctx, entityID, attempt, sceneErr.Error())
	}

	trace.Scene = scene
	trace.Squiggle = squiggle
	trace.Color = color

	// Stage 2: synthesize the structured audio object. Replies inherit the
	// parent's rhythmic frame.
	var parentObject *model.AudioObject
	if entity.IsComment() {
		parent, err := w.store.GetEntity(ctx, entity.ParentID)
		if err != nil {
			return w.fail(ctx, entityID, attempt, fmt.Sprintf("parent unavailable: %v", err))
		}
		parentObject = parent.AudioObject
		trace.Parent = parentObject
	}

	w.broadcastStatus(entityID, model.StatusGenerating, "synthesizing")
	object, err := w.synthesizer.Synthesize(ctx, scene, color, squiggle, parentObject)
	if err != nil {
		return w.fail(ctx, entityID, attempt, err.Error())
	}
	trace.Object = object

	prompt := pipeline.CompilePrompt(object, color, scene, squiggle)
	trace.Prompt = prompt

	// Persist intermediates before the long branch calls, still under the
	// attempt guard.
	_, err = w.store.UpdateEntity(ctx, entityID, attempt, func(e *model.Entity) error {
		e.SceneAnalysis = scene
		e.GestureFeatures = squiggle
		e.Color = color
		e.AudioObject = object
		e.CompiledPrompt = prompt
		e.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrStaleAttempt) || errors.Is(err, store.ErrNotFound) {
			log.Printf("Generation %s (attempt=%d) superseded mid-flight, discarding", entityID, attempt)
			return nil
		}
		return err
	}

	// Stage 3: audio and image branches in parallel. Audio is mandatory;
	// the morph is best-effort and only runs for posts.
	w.broadcastStatus(entityID, model.StatusGenerating, "rendering")

	audioKey := service.AudioKey(entityID, attempt)
	morphKey := service.MorphKey(entityID, attempt)

	var (
		branchWG    sync.WaitGroup
		audioErr    error
		enhancement *model.EnhancementPrompt
		morphOK     bool
	)

	branchWG.Add(1)
	go func() {
		defer branchWG.Done()
		audioErr = w.renderAudio(ctx, audioKey, prompt, object, trace)
	}()

	if !entity.IsComment() {
		branchWG.Add(1)
		go func() {
			defer branchWG.Done()
			enhancement, morphOK = w.morphImage(ctx, morphKey, image, scene, color, squiggle, trace)
		}()
	}
	branchWG.Wait()

	if audioErr != nil {
		if morphOK {
			w.deleteBlob(ctx, morphKey)
		}
		return w.fail(ctx, entityID, attempt, audioErr.Error())
	}
	trace.AudioRef = audioKey

	// Final transition to ready. A stale attempt here means a recreate or
	// delete won the race; its artifacts are ours to clean up.
	_, err = w.store.UpdateEntity(ctx, entityID, attempt, func(e *model.Entity) error {
		e.Status = model.StatusReady
		e.AudioRef = audioKey
		if morphOK {
			e.MorphedImageRef = morphKey
			e.Enhancement = enhancement
		}
		e.ErrorMessage = ""
		e.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrStaleAttempt) || errors.Is(err, store.ErrNotFound) {
			log.Printf("Generation %s (attempt=%d) superseded at finish, discarding artifacts", entityID, attempt)
			w.deleteBlob(ctx, audioKey)
			if morphOK {
				w.deleteBlob(ctx, morphKey)
			}
			return nil
		}
		return err
	}

	w.broadcastStatus(entityID, model.StatusReady, "")
	log.Printf("Generation %s (attempt=%d) completed", entityID, attempt)
	return nil
}

// claim transitions the entity from queued to generating under the attempt
// guard.
func (w *GenerateWorker) claim(ctx context.Context, entityID string, attempt int) (*model.Entity, error) {
	return w.store.UpdateEntity(ctx, entityID, attempt, func(e *model.Entity) error {
		e.Status = model.StatusGenerating
		e.UpdatedAt = time.Now()
		return nil
	})
}

// renderAudio runs the plan and render steps and stores the result.
func (w *GenerateWorker) renderAudio(ctx context.Context, key, prompt string, object *model.AudioObject, trace *pipeline.Trace) error {
	plan, err := w.music.PlanComposition(ctx, &client.PlanRequest{
		Prompt:          prompt,
		DurationSeconds: object.DurationSeconds,
	})
	if err != nil {
		return fmt.Errorf("%w: composition plan: %v", pipeline.ErrUpstreamUnavailable, err)
	}
	trace.PlanJSON = plan.Raw

	audio, err := w.music.RenderComposition(ctx, plan)
	if err != nil {
		return fmt.Errorf("%w: audio render: %v", pipeline.ErrUpstreamUnavailable, err)
	}

	if err := w.store.PutBlob(ctx, key, audio, "audio/mpeg"); err != nil {
		return fmt.Errorf("failed to store audio: %w", err)
	}
	return nil
}

// morphImage runs the image branch. Any failure is logged, recorded in the
// trace, and otherwise swallowed: a post without a morph is still a post.
func (w *GenerateWorker) morphImage(ctx context.Context, key string, image []byte, scene *model.SceneAnalysis, color *model.ColorProfile, squiggle *model.SquiggleFeatures, trace *pipeline.Trace) (*model.EnhancementPrompt, bool) {
	enhancement, err := w.morpher.GenerateEnhancementPrompt(ctx, scene, color, squiggle)
	if err != nil {
		log.Printf("Morph branch: enhancement prompt failed: %v", err)
		trace.MorphStatus = "failed: " + err.Error()
		return nil, false
	}
	trace.Enhancement = enhancement

	morphed, err := w.morpher.Morph(ctx, image, color, enhancement)
	if err != nil {
		log.Printf("Morph branch: morph failed: %v", err)
		trace.MorphStatus = "failed: " + err.Error()
		return enhancement, false
	}

	if err := w.store.PutBlob(ctx, key, morphed, "image/png"); err != nil {
		log.Printf("Morph branch: failed to store morphed image: %v", err)
		trace.MorphStatus = "failed: " + err.Error()
		return enhancement, false
	}
	trace.MorphStatus = "success"
	return enhancement, true
}

// fail marks the attempt failed. A stale guard means the failure belongs to
// a superseded attempt and is dropped.
func (w *GenerateWorker) fail(ctx context.Context, entityID string, attempt int, message string) error {
	_, err := w.store.UpdateEntity(ctx, entityID, attempt, func(e *model.Entity) error {
		e.Status = model.StatusFailed
		e.ErrorMessage = message
		e.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrStaleAttempt) || errors.Is(err, store.ErrNotFound) {
			log.Printf("Generation %s (attempt=%d) failed after being superseded: %s", entityID, attempt, message)
			return nil
		}
		return err
	}

	if w.hub != nil {
		w.hub.BroadcastError(entityID, "GENERATION_FAILED", message)
	}
	w.broadcastStatus(entityID, model.StatusFailed, "")
	log.Printf("Generation %s (attempt=%d) failed: %s", entityID, attempt, message)
	return nil
}

func (w *GenerateWorker) broadcastStatus(entityID string, status model.Status, step string) {
	if w.hub != nil {
		w.hub.BroadcastStatus(entityID, status, step)
	}
}

func (w *GenerateWorker) deleteBlob(ctx context.Context, key string) {
	if err := w.store.DeleteBlob(ctx, key); err != nil {
		log.Printf("Failed to delete orphaned blob %s: %v", key, err)
	}
}

func (w *GenerateWorker) writeTrace(t *pipeline.Trace) {
	if w.traces == nil || !w.traces.Enabled() {
		return
	}
	if path, err := w.traces.Write(t); err != nil {
		log.Printf("Failed to write pipeline trace: %v", err)
	} else if path != "" {
		log.Printf("Pipeline trace written: %s", path)
	}
}
