package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rotation-feed/internal/domain"
)

// RedisBuildQueue реализует очередь задач построения расписаний
// на базе Redis lists.
type RedisBuildQueue struct {
	client *redis.Client
	key    string
}

// NewRedisBuildQueue создаёт очередь по указанному ключу.
func NewRedisBuildQueue(client *redis.Client, key string) *RedisBuildQueue {
	return &RedisBuildQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisBuildQueue) Enqueue(ctx context.Context, job domain.BuildJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RedisBuildQueue) Pop(ctx context.Context) (domain.BuildJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.BuildJob{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.BuildJob{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.BuildJob{}, err
		}
		if len(res) != 2 {
			return domain.BuildJob{}, errors.New("redis queue: unexpected response")
		}
		var job domain.BuildJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.BuildJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}
