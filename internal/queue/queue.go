// Package queue hands scoring work from the ingestion path to a worker
// loop. Ingestion enqueues and returns immediately; scoring latency never
// blocks a scrape write. Redis backs the queue when configured, with an
// in-process channel fallback for dev and tests.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spotline/spotline/internal/metrics"
)

const redisKey = "spotline:scoring:jobs"

// Job is one scoring request for a scrape generation. Personalized jobs
// carry NotBefore slightly in the future so the system pass gets a head
// start; the ordering is an explicit queue property, not a scheduler
// accident.
type Job struct {
	ID           string    `json:"id"`
	SpotID       string    `json:"spot_id"`
	ScrapeTS     int64     `json:"scrape_ts"`
	SlotIDs      []string  `json:"slot_ids"`
	Personalized bool      `json:"personalized"`
	UserIDs      []string  `json:"user_ids,omitempty"` // empty on a personalized job means all users with a layer
	NotBefore    time.Time `json:"not_before"`
}

// Queue is the job transport between ingestion and the scoring worker.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (*Job, error)
}

// NewRedis returns a Redis-backed queue.
func NewRedis(client *redis.Client) Queue {
	return &redisQueue{client: client}
}

type redisQueue struct {
	client *redis.Client
}

func (q *redisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, redisKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	metrics.QueueDepth.Inc()
	return nil
}

func (q *redisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		res, err := q.client.BRPop(ctx, 5*time.Second, redisKey).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to dequeue job: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job: %w", err)
		}
		metrics.QueueDepth.Dec()
		return &job, nil
	}
}

// NewMemory returns an in-process queue with the given capacity.
func NewMemory(capacity int) Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &memoryQueue{ch: make(chan Job, capacity)}
}

type memoryQueue struct {
	ch chan Job
}

func (q *memoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.ch <- job:
		metrics.QueueDepth.Inc()
		return nil
	default:
		return errors.New("scoring queue full")
	}
}

func (q *memoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case job := <-q.ch:
		metrics.QueueDepth.Dec()
		return &job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
