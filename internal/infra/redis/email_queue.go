package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EmailJob is one queued outbound email.
type EmailJob struct {
	To      string    `json:"to"`
	Name    string    `json:"name"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

// EmailQueue is a Redis list used as a FIFO (LPUSH / BRPOP).
type EmailQueue struct {
	client RedisClient
	key    string
}

func NewEmailQueue(client RedisClient, key string) *EmailQueue {
	if key == "" {
		key = "emails"
	}
	return &EmailQueue{client: client, key: key}
}

func (q *EmailQueue) Key() string       { return q.key }
func (q *EmailQueue) FailedKey() string { return q.key + ":failed" }

func (q *EmailQueue) Push(ctx context.Context, job EmailJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}
	return q.client.LPush(ctx, q.key, data)
}

// Pop waits up to timeout; it returns (nil, nil) when nothing arrived.
func (q *EmailQueue) Pop(ctx context.Context, timeout time.Duration) (*EmailJob, error) {
	raw, err := q.client.BRPop(ctx, timeout, q.key)
	if err != nil {
		if errors.Is(err, Nil) {
			return nil, nil
		}
		return nil, err
	}
	var job EmailJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("bad email job: %w", err)
	}
	return &job, nil
}

// PushFailed parks a job that exhausted its retries.
func (q *EmailQueue) PushFailed(ctx context.Context, job EmailJob, cause error) error {
	data, err := json.Marshal(map[string]any{
		"job":   job,
		"error": cause.Error(),
		"time":  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.FailedKey(), data)
}

func (q *EmailQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key)
}
