package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TaskTypeGenerate = "generate:entity"

// GeneratePayload is the asynq task payload for one generation attempt.
type GeneratePayload struct {
	EntityID string `json:"entityId"`
	Attempt  int    `json:"attempt"`
}

// TaskEnqueuer hands generation attempts to the background worker. Tests
// substitute a synchronous implementation.
type TaskEnqueuer interface {
	EnqueueGenerate(ctx context.Context, entityID string, attempt int) error
}

// AsynqEnqueuer is the production TaskEnqueuer backed by an asynq client.
type AsynqEnqueuer struct {
	client *asynq.Client
}

// NewAsynqEnqueuer creates an AsynqEnqueuer.
func NewAsynqEnqueuer(client *asynq.Client) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client}
}

// EnqueueGenerate queues one generation attempt. MaxRetry is zero: a failed
// attempt stays failed until the user explicitly recreates.
func (a *AsynqEnqueuer) EnqueueGenerate(ctx context.Context, entityID string, attempt int) error {
	payload, err := json.Marshal(GeneratePayload{EntityID: entityID, Attempt: attempt})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeGenerate, payload)
	_, err = a.client.EnqueueContext(ctx, task,
		asynq.Queue("generate"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
