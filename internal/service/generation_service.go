package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/echogram/api/internal/model"
	"github.com/echogram/api/internal/store"
)

var (
	// ErrConflict means the operation is not allowed in the entity's current
	// lifecycle state.
	ErrConflict = errors.New("conflict")

	// ErrForbidden means the caller does not own the entity.
	ErrForbidden = errors.New("forbidden")
)

// Blob key helpers. Audio and morph keys carry the attempt number so a slow
// worker from a superseded attempt can never overwrite a newer artifact.

func ImageKey(id string) string {
	return "images/" + id
}

func MorphKey(id string, attempt int) string {
	return fmt.Sprintf("images/%s_morph_%d", id, attempt)
}

func AudioKey(id string, attempt int) string {
	return fmt.Sprintf("audio/%s_%d.mp3", id, attempt)
}

// GenerationService owns the entity lifecycle: submission, status, recreate,
// delete, and the read paths (feed, detail, comments).
type GenerationService struct {
	store    store.Store
	enqueuer TaskEnqueuer
}

// NewGenerationService creates a GenerationService.
func NewGenerationService(st store.Store, enqueuer TaskEnqueuer) *GenerationService {
	return &GenerationService{store: st, enqueuer: enqueuer}
}

// SubmitPost creates a new top-level entity in queued state and hands it to
// the background worker.
func (s *GenerationService) SubmitPost(ctx context.Context, owner string, req *model.SubmitRequest, image []byte, contentType string) (*model.SubmitResponse, error) {
	return s.submit(ctx, owner, "", req, image, contentType)
}

// SubmitComment creates a reply to an existing post. The parent must be a
// top-level post in ready state: a reply inherits the parent's rhythmic
// frame, which does not exist until the parent's audio does.
func (s *GenerationService) SubmitComment(ctx context.Context, owner, parentID string, req *model.SubmitRequest, image []byte, contentType string) (*model.SubmitResponse, error) {
	parent, err := s.store.GetEntity(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.IsComment() {
		return nil, fmt.Errorf("%w: cannot reply to a comment", ErrConflict)
	}
	if parent.Status != model.StatusReady {
		return nil, fmt.Errorf("%w: parent is %s, not ready", ErrConflict, parent.Status)
	}
	return s.submit(ctx, owner, parentID, req, image, contentType)
}

func (s *GenerationService) submit(ctx context.Context, owner, parentID string, req *model.SubmitRequest, image []byte, contentType string) (*model.SubmitResponse, error) {
	id := uuid.New().String()
	now := time.Now()

	entity := &model.Entity{
		ID:             id,
		ParentID:       parentID,
		Owner:          owner,
		ImageRef:       ImageKey(id),
		ColorHex:       req.ColorHex,
		SquigglePoints: req.SquigglePoints,
		Status:         model.StatusQueued,
		Attempt:        0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.PutBlob(ctx, entity.ImageRef, image, contentType); err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}
	if err := s.store.CreateEntity(ctx, entity); err != nil {
		return nil, err
	}

	if err := s.enqueuer.EnqueueGenerate(ctx, id, 0); err != nil {
		// The record exists but nothing will process it; surface that as a
		// failed entity rather than a phantom queued one.
		s.markEnqueueFailure(ctx, id, err)
		return nil, err
	}

	log.Printf("[Generation] Queued %s (owner=%s, parent=%q)", id, owner, parentID)

	return &model.SubmitResponse{
		ID:        id,
		ParentID:  parentID,
		Status:    model.StatusQueued,
		ColorHex:  req.ColorHex,
		CreatedAt: now,
	}, nil
}

func (s *GenerationService) markEnqueueFailure(ctx context.Context, id string, cause error) {
	_, err := s.store.UpdateEntity(ctx, id, -1, func(e *model.Entity) error {
		e.Status = model.StatusFailed
		e.ErrorMessage = "failed to queue generation"
		e.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		log.Printf("[Generation] Could not mark %s failed after enqueue error: %v (cause: %v)", id, err, cause)
	}
}

// GetStatus returns the entity's lifecycle state.
func (s *GenerationService) GetStatus(ctx context.Context, id string) (*model.StatusResponse, error) {
	e, err := s.store.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.StatusResponse{
		ID:           e.ID,
		Status:       e.Status,
		ErrorMessage: e.ErrorMessage,
	}, nil
}

// Recreate discards the entity's artifacts and queues a fresh attempt. Only
// the owner may recreate, and only while no attempt is in flight. For posts,
// existing comments are deleted: they were replies to audio that no longer
// exists.
func (s *GenerationService) Recreate(ctx context.Context, owner, id string) (*model.SubmitResponse, error) {
	var staleAudio, staleMorph string

	updated, err := s.store.UpdateEntity(ctx, id, -1, func(e *model.Entity) error {
		if e.Owner != owner {
			return ErrForbidden
		}
		if e.Status == model.StatusQueued || e.Status == model.StatusGenerating {
			return fmt.Errorf("%w: generation already in progress", ErrConflict)
		}
		staleAudio = e.AudioRef
		staleMorph = e.MorphedImageRef
		e.ResetForAttempt(time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, key := range []string{staleAudio, staleMorph} {
		if key == "" {
			continue
		}
		if err := s.store.DeleteBlob(ctx, key); err != nil {
			log.Printf("[Generation] Failed to delete stale blob %s: %v", key, err)
		}
	}

	if !updated.IsComment() {
		if err := s.deleteComments(ctx, id); err != nil {
			log.Printf("[Generation] Failed to cascade comments of %s: %v", id, err)
		}
	}

	if err := s.enqueuer.EnqueueGenerate(ctx, id, updated.Attempt); err != nil {
		s.markEnqueueFailure(ctx, id, err)
		return nil, err
	}

	log.Printf("[Generation] Recreate %s (attempt=%d)", id, updated.Attempt)

	return &model.SubmitResponse{
		ID:        updated.ID,
		ParentID:  updated.ParentID,
		Status:    model.StatusQueued,
		ColorHex:  updated.ColorHex,
		CreatedAt: updated.CreatedAt,
	}, nil
}

// Delete removes the entity, its blobs, and (for posts) all comments. A
// worker still running against the deleted entity discards its own writes
// when the record is gone.
func (s *GenerationService) Delete(ctx context.Context, owner, id string) (*model.DeleteResponse, error) {
	e, err := s.store.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Owner != owner {
		return nil, ErrForbidden
	}

	if !e.IsComment() {
		if err := s.deleteComments(ctx, id); err != nil {
			log.Printf("[Generation] Failed to cascade comments of %s: %v", id, err)
		}
	}

	s.deleteEntityBlobs(ctx, e)
	if err := s.store.DeleteEntity(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	log.Printf("[Generation] Deleted %s (owner=%s)", id, owner)
	return &model.DeleteResponse{Status: "deleted"}, nil
}

func (s *GenerationService) deleteComments(ctx context.Context, postID string) error {
	comments, err := s.store.ListComments(ctx, postID)
	if err != nil {
		return err
	}
	for _, c := range comments {
		s.deleteEntityBlobs(ctx, c)
		if err := s.store.DeleteEntity(ctx, c.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("[Generation] Failed to delete comment %s: %v", c.ID, err)
		}
	}
	return nil
}

func (s *GenerationService) deleteEntityBlobs(ctx context.Context, e *model.Entity) {
	for _, key := range []string{e.ImageRef, e.MorphedImageRef, e.AudioRef} {
		if key == "" {
			continue
		}
		if err := s.store.DeleteBlob(ctx, key); err != nil {
			log.Printf("[Generation] Failed to delete blob %s: %v", key, err)
		}
	}
}

// Feed returns a page of the global feed, newest first.
func (s *GenerationService) Feed(ctx context.Context, page, perPage int) (*model.FeedResponse, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	posts, err := s.store.ListPosts(ctx)
	if err != nil {
		return nil, err
	}

	total := len(posts)
	pages := (total + perPage - 1) / perPage
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	out := make([]model.PostSummary, 0, end-start)
	for _, p := range posts[start:end] {
		summary, err := s.postSummary(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, *summary)
	}

	return &model.FeedResponse{
		Posts: out,
		Total: total,
		Page:  page,
		Pages: pages,
	}, nil
}

// GetPost returns one post with its comments.
func (s *GenerationService) GetPost(ctx context.Context, id string) (*model.PostDetail, error) {
	e, err := s.store.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.IsComment() {
		return nil, store.ErrNotFound
	}

	summary, err := s.postSummary(ctx, e)
	if err != nil {
		return nil, err
	}

	comments, err := s.Comments(ctx, id)
	if err != nil {
		return nil, err
	}

	return &model.PostDetail{
		PostSummary: *summary,
		Comments:    comments.Comments,
	}, nil
}

// Comments lists a post's replies, oldest first.
func (s *GenerationService) Comments(ctx context.Context, postID string) (*model.CommentsResponse, error) {
	if _, err := s.store.GetEntity(ctx, postID); err != nil {
		return nil, err
	}

	comments, err := s.store.ListComments(ctx, postID)
	if err != nil {
		return nil, err
	}

	out := make([]model.CommentSummary, 0, len(comments))
	for _, c := range comments {
		summary := model.CommentSummary{
			ID:        c.ID,
			PostID:    c.ParentID,
			Owner:     c.Owner,
			Status:    c.Status,
			ColorHex:  c.ColorHex,
			CreatedAt: c.CreatedAt,
		}
		if c.Status == model.StatusReady && c.AudioRef != "" {
			summary.AudioURL = "/api/audio/" + c.ID
		}
		out = append(out, summary)
	}
	return &model.CommentsResponse{Comments: out}, nil
}

func (s *GenerationService) postSummary(ctx context.Context, e *model.Entity) (*model.PostSummary, error) {
	comments, err := s.store.ListComments(ctx, e.ID)
	if err != nil {
		return nil, err
	}

	summary := &model.PostSummary{
		ID:           e.ID,
		Owner:        e.Owner,
		Status:       e.Status,
		ColorHex:     e.ColorHex,
		ImageURL:     "/api/images/" + e.ID,
		CommentCount: len(comments),
		CreatedAt:    e.CreatedAt,
	}
	if e.Status == model.StatusReady && e.AudioRef != "" {
		summary.AudioURL = "/api/audio/" + e.ID
	}
	return summary, nil
}

// GetImage returns the entity's display image: the morphed version when the
// morph branch succeeded, otherwise the original upload.
func (s *GenerationService) GetImage(ctx context.Context, id string) ([]byte, string, error) {
	e, err := s.store.GetEntity(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if e.MorphedImageRef != "" {
		data, contentType, err := s.store.GetBlob(ctx, e.MorphedImageRef)
		if err == nil {
			return data, contentType, nil
		}
		log.Printf("[Generation] Morphed image %s unreadable, falling back: %v", e.MorphedImageRef, err)
	}
	return s.store.GetBlob(ctx, e.ImageRef)
}

// GetAudio returns the entity's generated audio. Only ready entities have it.
func (s *GenerationService) GetAudio(ctx context.Context, id string) ([]byte, string, error) {
	e, err := s.store.GetEntity(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if e.Status != model.StatusReady || e.AudioRef == "" {
		return nil, "", store.ErrNotFound
	}
	return s.store.GetBlob(ctx, e.AudioRef)
}
