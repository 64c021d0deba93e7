package store

import (
	"context"
	"errors"

	"github.com/echogram/api/internal/model"
)

var (
	// ErrNotFound means the entity or blob does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleAttempt means a guarded update lost to a newer attempt. The
	// caller's work belongs to a superseded generation and must be discarded.
	ErrStaleAttempt = errors.New("stale attempt")
)

// Store is the persistence layer for entities and their binary artifacts.
//
// UpdateEntity is a compare-and-swap on the entity's attempt counter: the
// mutation only applies while the stored attempt equals the given one.
// Pass attempt < 0 to bypass the guard for control-plane updates (recreate,
// delete) that are allowed to supersede in-flight work.
type Store interface {
	CreateEntity(ctx context.Context, e *model.Entity) error
	GetEntity(ctx context.Context, id string) (*model.Entity, error)
	UpdateEntity(ctx context.Context, id string, attempt int, mutate func(*model.Entity) error) (*model.Entity, error)
	DeleteEntity(ctx context.Context, id string) error

	// ListPosts returns top-level entities, newest first.
	ListPosts(ctx context.Context) ([]*model.Entity, error)
	// ListComments returns an entity's replies, oldest first.
	ListComments(ctx context.Context, parentID string) ([]*model.Entity, error)

	PutBlob(ctx context.Context, key string, data []byte, contentType string) error
	GetBlob(ctx context.Context, key string) ([]byte, string, error)
	DeleteBlob(ctx context.Context, key string) error
}
