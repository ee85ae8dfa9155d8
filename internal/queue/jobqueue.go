package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// DelayedQueue is a durable, delay-capable work queue backed by Redis. Jobs
// become visible no earlier than their fire time; timing beyond that is
// best-effort. Delivery is at-least-once: a claimed job that is not acked
// before its visibility timeout elapses is returned to the delayed set and
// delivered again. Acked jobs are removed, not retained.
type DelayedQueue struct {
	client *redis.Client
	prefix string
}

// NewDelayedQueue constructs a queue rooted at the given key prefix.
func NewDelayedQueue(client *redis.Client, prefix string) *DelayedQueue {
	if prefix == "" {
		prefix = "leadcall:schedule"
	}
	return &DelayedQueue{client: client, prefix: prefix}
}

func (q *DelayedQueue) delayedKey() string    { return q.prefix + ":delayed" }
func (q *DelayedQueue) processingKey() string { return q.prefix + ":processing" }
func (q *DelayedQueue) payloadKey() string    { return q.prefix + ":payloads" }

// claimScript atomically moves due jobs from the delayed set into the
// processing set and returns their payloads. Doing the move and the read in
// one script is what makes delivery at-least-once instead of at-most-once.
var claimScript = redis.NewScript(`
local delayed = KEYS[1]
local processing = KEYS[2]
local payloads = KEYS[3]
local now = tonumber(ARGV[1])
local deadline = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local due = redis.call('ZRANGEBYSCORE', delayed, '-inf', now, 'LIMIT', 0, limit)
local out = {}
for _, id in ipairs(due) do
  redis.call('ZREM', delayed, id)
  redis.call('ZADD', processing, deadline, id)
  local payload = redis.call('HGET', payloads, id)
  if payload then
    out[#out + 1] = payload
  end
end
return out
`)

// reapScript returns expired claims to the delayed set for redelivery.
var reapScript = redis.NewScript(`
local delayed = KEYS[1]
local processing = KEYS[2]
local now = tonumber(ARGV[1])
local expired = redis.call('ZRANGEBYSCORE', processing, '-inf', now)
for _, id in ipairs(expired) do
  redis.call('ZREM', processing, id)
  redis.call('ZADD', delayed, now, id)
end
return #expired
`)

// Enqueue places a job on the queue, visible no earlier than delay from now.
// The job's id is assigned when unset.
func (q *DelayedQueue) Enqueue(ctx context.Context, job ScheduledJob, delay time.Duration) (uuid.UUID, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now().UTC()
	job.EnqueuedAt = now
	if job.FireAt.IsZero() {
		job.FireAt = now.Add(delay)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return uuid.Nil, fmt.Errorf("job queue: marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.payloadKey(), job.ID.String(), payload)
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(job.FireAt.UnixMilli()),
		Member: job.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("job queue: enqueue: %w", err)
	}

	return job.ID, nil
}

// Claim takes up to limit due jobs, making them invisible to other consumers
// until the visibility timeout elapses.
func (q *DelayedQueue) Claim(ctx context.Context, limit int, visibility time.Duration) ([]ScheduledJob, error) {
	if limit <= 0 {
		limit = 10
	}
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}

	now := time.Now().UTC()
	raw, err := claimScript.Run(ctx, q.client,
		[]string{q.delayedKey(), q.processingKey(), q.payloadKey()},
		now.UnixMilli(), now.Add(visibility).UnixMilli(), limit,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("job queue: claim: %w", err)
	}

	jobs := make([]ScheduledJob, 0, len(raw))
	for _, payload := range raw {
		var job ScheduledJob
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			return nil, fmt.Errorf("job queue: unmarshal job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Ack removes a processed job. Jobs that are never acked come back via
// ReapExpired.
func (q *DelayedQueue) Ack(ctx context.Context, jobID uuid.UUID) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.processingKey(), jobID.String())
	pipe.HDel(ctx, q.payloadKey(), jobID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("job queue: ack %s: %w", jobID, err)
	}
	return nil
}

// ReapExpired returns jobs whose claim expired to the delayed set and reports
// how many were requeued.
func (q *DelayedQueue) ReapExpired(ctx context.Context) (int, error) {
	n, err := reapScript.Run(ctx, q.client,
		[]string{q.delayedKey(), q.processingKey()},
		time.Now().UTC().UnixMilli(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("job queue: reap expired: %w", err)
	}
	return n, nil
}

// Depth reports how many jobs are waiting for their fire time.
func (q *DelayedQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("job queue: depth: %w", err)
	}
	return n, nil
}
