// Package queue is a Redis-backed FIFO task queue with per-task status and
// out-of-band cancellation.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"
)

const (
	QueueKey            = "fleetwatch:tasks:queue"
	statusKeyPrefix     = "fleetwatch:tasks:status:"
	cancelChannelPrefix = "fleetwatch:tasks:cancel:"

	// DefaultStatusTTL bounds how long task status is kept.
	DefaultStatusTTL = time.Hour
)

// ErrEmptyTaskID is returned for operations that need a task id.
var ErrEmptyTaskID = errors.New("task id is empty")

// StatusKey is the Redis hash holding the status of taskID.
func StatusKey(taskID string) string { return statusKeyPrefix + taskID }

// CancelChannel is the pub/sub channel cancellation for taskID is sent on.
func CancelChannel(taskID string) string { return cancelChannelPrefix + taskID }

// Queue is safe for concurrent use by any number of producers and consumers
// across instances; every mutation is a single Redis command or a MULTI block.
type Queue struct {
	client    redis.UniversalClient
	statusTTL time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

// New creates a Queue. A non-positive statusTTL selects DefaultStatusTTL.
func New(client redis.UniversalClient, statusTTL time.Duration, logger *logging.Logger) *Queue {
	if statusTTL <= 0 {
		statusTTL = DefaultStatusTTL
	}
	return &Queue{client: client, statusTTL: statusTTL, logger: logger, now: time.Now}
}

// Enqueue appends payload to the queue, records it as pending and returns its
// id. A payload without an id gets a new one.
func (q *Queue) Enqueue(ctx context.Context, payload models.TaskPayload) (string, error) {
	if payload.TaskID == "" {
		payload.TaskID = uuid.NewString()
	}
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = q.now().UTC()
	}
	if payload.TenantID == "" {
		payload.TenantID = models.DefaultTenant
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode task: %w", err)
	}

	key := StatusKey(payload.TaskID)
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, QueueKey, data)
		pipe.HSet(ctx, key, map[string]any{
			"status":     models.TaskPending,
			"tenant_id":  payload.TenantID,
			"created_at": payload.CreatedAt.Format(time.RFC3339Nano),
		})
		pipe.Expire(ctx, key, q.statusTTL)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task %s: %w", payload.TaskID, err)
	}

	metrics.TasksEnqueued.Inc()
	q.logger.Infof("Queued task: task_id=%s", payload.TaskID)
	return payload.TaskID, nil
}

// Dequeue blocks up to timeout for the next task. It returns nil, nil when
// the timeout passes with the queue empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*models.TaskPayload, error) {
	res, err := q.client.BLPop(ctx, timeout, QueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}

	// BLPOP replies with [key, value].
	var payload models.TaskPayload
	if err := json.Unmarshal([]byte(res[1]), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	metrics.TasksDequeued.Inc()
	return &payload, nil
}

// Len returns the number of queued tasks.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, QueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

// SetStatus merges fields into the task's status and refreshes its TTL.
func (q *Queue) SetStatus(ctx context.Context, taskID, status string, fields map[string]string) error {
	if taskID == "" {
		return ErrEmptyTaskID
	}
	values := map[string]any{
		"status":     status,
		"updated_at": q.now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		values[k] = v
	}

	key := StatusKey(taskID)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, q.statusTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set status of task %s: %w", taskID, err)
	}
	return nil
}

// GetStatus returns the task's status map, or nil when it is unknown or has
// expired.
func (q *Queue) GetStatus(ctx context.Context, taskID string) (map[string]string, error) {
	if taskID == "" {
		return nil, ErrEmptyTaskID
	}
	res, err := q.client.HGetAll(ctx, StatusKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read status of task %s: %w", taskID, err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return res, nil
}

// Cancel signals workers that taskID should stop. Delivery is best effort: a
// worker not subscribed at that moment misses the signal.
func (q *Queue) Cancel(ctx context.Context, taskID string) error {
	if taskID == "" {
		return ErrEmptyTaskID
	}
	if err := q.client.Publish(ctx, CancelChannel(taskID), "cancel").Err(); err != nil {
		return fmt.Errorf("failed to cancel task %s: %w", taskID, err)
	}
	q.logger.Infof("Cancellation requested: task_id=%s", taskID)
	return nil
}

// SubscribeCancel listens for cancellation of taskID.
func (q *Queue) SubscribeCancel(ctx context.Context, taskID string) (*redis.PubSub, error) {
	pubsub := q.client.Subscribe(ctx, CancelChannel(taskID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to cancellation of %s: %w", taskID, err)
	}
	return pubsub, nil
}
