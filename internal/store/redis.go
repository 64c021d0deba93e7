package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/echogram/api/internal/client"
	"github.com/echogram/api/internal/model"
)

const (
	entityKeyPrefix = "entity:"
	blobKeyPrefix   = "blob:"
	blobTypePrefix  = "blobtype:"
	feedKey         = "feed"
	commentsPrefix  = "comments:"

	// casRetries bounds optimistic-lock retries when concurrent writers
	// touch the same entity between WATCH and EXEC.
	casRetries = 5
)

// RedisStore is the production Store. Entity records, the feed index, and
// per-post comment indexes live in Redis; binary artifacts go to object
// storage when configured and fall back to Redis keys otherwise.
type RedisStore struct {
	rdb     *redis.Client
	storage client.StorageClient // optional
}

// NewRedisStore creates a RedisStore. storage may be nil.
func NewRedisStore(rdb *redis.Client, storage client.StorageClient) *RedisStore {
	return &RedisStore{rdb: rdb, storage: storage}
}

// CreateEntity stores a new entity and indexes it in the feed or its
// parent's comment list.
func (s *RedisStore) CreateEntity(ctx context.Context, e *model.Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	key := entityKeyPrefix + e.ID
	ok, err := s.rdb.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}
	if !ok {
		return fmt.Errorf("entity %s already exists", e.ID)
	}

	score := float64(e.CreatedAt.UnixNano())
	member := redis.Z{Score: score, Member: e.ID}
	if e.IsComment() {
		err = s.rdb.ZAdd(ctx, commentsPrefix+e.ParentID, member).Err()
	} else {
		err = s.rdb.ZAdd(ctx, feedKey, member).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to index entity: %w", err)
	}
	return nil
}

// GetEntity fetches an entity by id.
func (s *RedisStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	data, err := s.rdb.Get(ctx, entityKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load entity: %w", err)
	}

	var e model.Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return &e, nil
}

// UpdateEntity applies mutate under the attempt guard inside a WATCH
// transaction, so concurrent recreates and slow workers cannot clobber
// each other's writes.
func (s *RedisStore) UpdateEntity(ctx context.Context, id string, attempt int, mutate func(*model.Entity) error) (*model.Entity, error) {
	key := entityKeyPrefix + id
	var updated *model.Entity

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		var e model.Entity
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("failed to unmarshal entity: %w", err)
		}
		if attempt >= 0 && e.Attempt != attempt {
			return ErrStaleAttempt
		}
		if err := mutate(&e); err != nil {
			return err
		}

		out, err := json.Marshal(&e)
		if err != nil {
			return fmt.Errorf("failed to marshal entity: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			updated = &e
		}
		return err
	}

	for i := 0; i < casRetries; i++ {
		err := s.rdb.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("entity %s update contended beyond %d retries", id, casRetries)
}

// DeleteEntity removes the entity and its index memberships. The caller is
// responsible for first deleting children and blobs it knows about.
func (s *RedisStore) DeleteEntity(ctx context.Context, id string) error {
	e, err := s.GetEntity(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, entityKeyPrefix+id)
	if e.IsComment() {
		pipe.ZRem(ctx, commentsPrefix+e.ParentID, id)
	} else {
		pipe.ZRem(ctx, feedKey, id)
		pipe.Del(ctx, commentsPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}

// ListPosts returns top-level entities, newest first.
func (s *RedisStore) ListPosts(ctx context.Context) ([]*model.Entity, error) {
	ids, err := s.rdb.ZRevRange(ctx, feedKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read feed index: %w", err)
	}
	return s.loadMany(ctx, ids)
}

// ListComments returns an entity's replies, oldest first.
func (s *RedisStore) ListComments(ctx context.Context, parentID string) ([]*model.Entity, error) {
	ids, err := s.rdb.ZRange(ctx, commentsPrefix+parentID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read comment index: %w", err)
	}
	return s.loadMany(ctx, ids)
}

func (s *RedisStore) loadMany(ctx context.Context, ids []string) ([]*model.Entity, error) {
	var out []*model.Entity
	for _, id := range ids {
		e, err := s.GetEntity(ctx, id)
		if err != nil {
			// Index entries can briefly outlive a deleted record.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// PutBlob stores binary data in object storage when available, otherwise in
// Redis.
func (s *RedisStore) PutBlob(ctx context.Context, key string, data []byte, contentType string) error {
	if s.storage != nil {
		if _, err := s.storage.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
			return err
		}
		return nil
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, blobKeyPrefix+key, data, 0)
	pipe.Set(ctx, blobTypePrefix+key, contentType, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save blob: %w", err)
	}
	return nil
}

// GetBlob returns stored binary data and its content type.
func (s *RedisStore) GetBlob(ctx context.Context, key string) ([]byte, string, error) {
	if s.storage != nil {
		data, err := s.storage.Download(ctx, key)
		if err != nil {
			return nil, "", err
		}
		return data, "", nil
	}
	data, err := s.rdb.Get(ctx, blobKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to load blob: %w", err)
	}
	contentType, err := s.rdb.Get(ctx, blobTypePrefix+key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, "", fmt.Errorf("failed to load blob type: %w", err)
	}
	return data, contentType, nil
}

// DeleteBlob removes stored binary data. Missing keys are not an error.
func (s *RedisStore) DeleteBlob(ctx context.Context, key string) error {
	if s.storage != nil {
		return s.storage.Delete(ctx, key)
	}
	if err := s.rdb.Del(ctx, blobKeyPrefix+key, blobTypePrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
