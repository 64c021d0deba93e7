package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/echogram/api/internal/model"
)

// MemoryStore is an in-process Store backed by maps. It is used in tests and
// for local development without Redis.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[string]*model.Entity
	blobs    map[string]memoryBlob
}

type memoryBlob struct {
	data        []byte
	contentType string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: make(map[string]*model.Entity),
		blobs:    make(map[string]memoryBlob),
	}
}

// CreateEntity stores a new entity. The id must not already exist.
func (s *MemoryStore) CreateEntity(_ context.Context, e *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[e.ID]; ok {
		return fmt.Errorf("entity %s already exists", e.ID)
	}
	cp, err := copyEntity(e)
	if err != nil {
		return err
	}
	s.entities[e.ID] = cp
	return nil
}

// GetEntity returns a copy of the entity.
func (s *MemoryStore) GetEntity(_ context.Context, id string) (*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEntity(e)
}

// UpdateEntity applies mutate under the attempt guard and returns the
// updated entity.
func (s *MemoryStore) UpdateEntity(_ context.Context, id string, attempt int, mutate func(*model.Entity) error) (*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	if attempt >= 0 && e.Attempt != attempt {
		return nil, ErrStaleAttempt
	}

	cp, err := copyEntity(e)
	if err != nil {
		return nil, err
	}
	if err := mutate(cp); err != nil {
		return nil, err
	}
	s.entities[id] = cp
	return copyEntity(cp)
}

// DeleteEntity removes the entity.
func (s *MemoryStore) DeleteEntity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[id]; !ok {
		return ErrNotFound
	}
	delete(s.entities, id)
	return nil
}

// ListPosts returns top-level entities, newest first.
func (s *MemoryStore) ListPosts(_ context.Context) ([]*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var posts []*model.Entity
	for _, e := range s.entities {
		if e.IsComment() {
			continue
		}
		cp, err := copyEntity(e)
		if err != nil {
			return nil, err
		}
		posts = append(posts, cp)
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}

// ListComments returns an entity's replies, oldest first.
func (s *MemoryStore) ListComments(_ context.Context, parentID string) ([]*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var comments []*model.Entity
	for _, e := range s.entities {
		if e.ParentID != parentID {
			continue
		}
		cp, err := copyEntity(e)
		if err != nil {
			return nil, err
		}
		comments = append(comments, cp)
	}
	sort.Slice(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments, nil
}

// PutBlob stores binary data under a key.
func (s *MemoryStore) PutBlob(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[key] = memoryBlob{data: cp, contentType: contentType}
	return nil
}

// GetBlob returns stored binary data and its content type.
func (s *MemoryStore) GetBlob(_ context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	return cp, b.contentType, nil
}

// DeleteBlob removes stored binary data. Missing keys are not an error.
func (s *MemoryStore) DeleteBlob(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, key)
	return nil
}

// copyEntity deep-copies through JSON so callers never share pointers with
// the store's copy.
func copyEntity(e *model.Entity) (*model.Entity, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to copy entity: %w", err)
	}
	var cp model.Entity
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to copy entity: %w", err)
	}
	return &cp, nil
}
