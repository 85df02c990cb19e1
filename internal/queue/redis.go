// Package queue dispatches import jobs through Redis lists.
//
// Enqueue pushes a job id onto the queue list. Dequeue atomically moves the
// next id onto a processing list, where it stays until Ack removes it. Ids
// left on the processing list by a crashed worker are returned to the queue
// by Requeue at startup. Running a job twice is harmless: a job that already
// left pending is skipped by the worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/JonMunkholm/catalog-importer/internal/config"
	"github.com/JonMunkholm/catalog-importer/internal/core"
)

// DefaultPollWait bounds each blocking pop so workers notice shutdown.
const DefaultPollWait = 5 * time.Second

// Queue is a core.TaskQueue on Redis.
type Queue struct {
	rdb        redis.Cmdable
	key        string
	processing string
	pollWait   time.Duration
}

var _ core.TaskQueue = (*Queue)(nil)

// Connect opens a client for cfg and verifies it with PING.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// New creates a queue on key. A non-positive pollWait selects
// DefaultPollWait.
func New(rdb redis.Cmdable, key string, pollWait time.Duration) *Queue {
	if pollWait <= 0 {
		pollWait = DefaultPollWait
	}
	return &Queue{rdb: rdb, key: key, processing: processingKey(key), pollWait: pollWait}
}

func processingKey(key string) string {
	return key + ":processing"
}

func (q *Queue) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	if err := q.rdb.LPush(ctx, q.key, jobID.String()).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context) (core.Task, error) {
	payload, err := q.rdb.BRPopLPush(ctx, q.key, q.processing, q.pollWait).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return core.Task{}, core.ErrQueueEmpty
	case ctx.Err() != nil:
		return core.Task{}, ctx.Err()
	case err != nil:
		return core.Task{}, fmt.Errorf("dequeue: %w", err)
	}

	task, err := decodeTask(payload)
	if err != nil {
		// Drop it so it is not redelivered forever.
		slog.Error("discarding malformed task", "payload", payload, "error", err)
		_ = q.rdb.LRem(ctx, q.processing, 1, payload).Err()
		return core.Task{}, core.ErrQueueEmpty
	}
	return task, nil
}

func (q *Queue) Ack(ctx context.Context, t core.Task) error {
	if err := q.rdb.LRem(ctx, q.processing, 1, t.Receipt).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", t.JobID, err)
	}
	return nil
}

// Requeue moves every unacknowledged task back onto the queue and returns
// how many were moved.
func (q *Queue) Requeue(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.rdb.RPopLPush(ctx, q.processing, q.key).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("requeue: %w", err)
		}
		n++
	}
}

// Len returns the number of waiting tasks.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

func decodeTask(payload string) (core.Task, error) {
	id, err := uuid.Parse(payload)
	if err != nil {
		return core.Task{}, fmt.Errorf("invalid job id %q: %w", payload, err)
	}
	return core.Task{JobID: id, Receipt: payload}, nil
}
