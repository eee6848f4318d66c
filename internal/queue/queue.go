// Package queue implements a durable job queue on Redis Streams.
//
// Jobs flow through a single stream consumed by a consumer group. Each
// job also owns a hash keyed by job ID that carries status, attempt
// count, progress and the serialized payload so status survives worker
// restarts. Failed attempts are parked in a delayed zset scored by
// their ready time and moved back onto the stream by PromoteDue.
// Stalled deliveries (a worker died mid-job) are reclaimed with
// XAUTOCLAIM once their idle time exceeds the lease.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrJobNotFound is returned for IDs with no job hash, either because
// the job never existed or its TTL expired.
var ErrJobNotFound = errors.New("job not found")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusDelayed   Status = "delayed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	streamKey  = "lumio:jobs"
	dlqKey     = "lumio:jobs:dlq"
	delayedKey = "lumio:jobs:delayed"
	groupName  = "lumio-workers"

	jobKeyPrefix      = "lumio:job:"
	completedCountKey = "lumio:stats:completed"
	failedCountKey    = "lumio:stats:failed"
)

// Job is a claimed unit of work.
type Job struct {
	ID        string
	MessageID string
	Attempt   int
	Payload   []byte
}

// JobStatus is the externally visible state of a job.
type JobStatus struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stats is a point-in-time snapshot of queue depth.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Config holds queue tuning. Zero values take defaults.
type Config struct {
	// JobTTL bounds how long job state (and results) survive (default 24h).
	JobTTL time.Duration
	// MaxAttempts before a job is marked failed (default 3).
	MaxAttempts int
	// BackoffBase is the first retry delay; attempt n waits
	// BackoffBase * 2^(n-1) (default 2s).
	BackoffBase time.Duration
	// Lease is the idle time after which a pending delivery is
	// reclaimed from a dead consumer (default 60s).
	Lease time.Duration
}

// Queue is a Redis Streams backed job queue.
type Queue struct {
	client      *redis.Client
	logger      *slog.Logger
	consumer    string
	jobTTL      time.Duration
	maxAttempts int
	backoffBase time.Duration
	lease       time.Duration
}

// New creates a Queue and ensures the consumer group exists.
func New(ctx context.Context, client *redis.Client, logger *slog.Logger, cfg Config) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 24 * time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 60 * time.Second
	}

	q := &Queue{
		client:      client,
		logger:      logger.With("component", "queue"),
		consumer:    fmt.Sprintf("lumio-%s", uuid.New().String()[:8]),
		jobTTL:      cfg.JobTTL,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		lease:       cfg.Lease,
	}

	err := client.XGroupCreateMkStream(ctx, streamKey, groupName, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return q, nil
}

func jobKey(id string) string { return jobKeyPrefix + id }

// Enqueue records a new job and publishes it to the stream.
func (q *Queue) Enqueue(ctx context.Context, id string, payload []byte) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(id), map[string]interface{}{
		"status":     string(StatusPending),
		"progress":   0,
		"attempts":   0,
		"payload":    string(payload),
		"created_at": now,
		"updated_at": now,
	})
	pipe.Expire(ctx, jobKey(id), q.jobTTL)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{"id": id},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	q.logger.Info("job enqueued", "job_id", id)
	return nil
}

// Claim returns the next job to work on, blocking up to block. It first
// reclaims deliveries that sat idle past the lease (their consumer is
// presumed dead), then reads fresh messages. Returns nil when nothing
// is available.
func (q *Queue) Claim(ctx context.Context, block time.Duration) (*Job, error) {
	if job, err := q.reclaimStalled(ctx); err != nil || job != nil {
		return job, err
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    groupName,
		Consumer: q.consumer,
		Streams:  []string{streamKey, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return q.activate(ctx, streams[0].Messages[0])
}

// reclaimStalled pulls one delivery whose idle time exceeds the lease.
func (q *Queue) reclaimStalled(ctx context.Context) (*Job, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   streamKey,
		Group:    groupName,
		Consumer: q.consumer,
		MinIdle:  q.lease,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to reclaim stalled jobs: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	q.logger.Warn("reclaimed stalled delivery", "message_id", msgs[0].ID)
	return q.activate(ctx, msgs[0])
}

// activate marks a delivered message active and loads its payload.
// Messages whose job hash is gone (deleted or expired) are acked away.
func (q *Queue) activate(ctx context.Context, msg redis.XMessage) (*Job, error) {
	id, _ := msg.Values["id"].(string)
	if id == "" {
		q.ackDelete(ctx, msg.ID)
		return nil, nil
	}

	exists, err := q.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check job state: %w", err)
	}
	if exists == 0 {
		q.logger.Info("dropping message for deleted job", "job_id", id)
		q.ackDelete(ctx, msg.ID)
		return nil, nil
	}

	attempt, err := q.client.HIncrBy(ctx, jobKey(id), "attempts", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to bump attempt count: %w", err)
	}
	q.client.HSet(ctx, jobKey(id),
		"status", string(StatusActive),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)

	payload, err := q.client.HGet(ctx, jobKey(id), "payload").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job payload: %w", err)
	}

	return &Job{
		ID:        id,
		MessageID: msg.ID,
		Attempt:   int(attempt),
		Payload:   []byte(payload),
	}, nil
}

// ackDelete removes a delivery from the stream without touching job
// state. Used for messages whose job hash no longer exists.
func (q *Queue) ackDelete(ctx context.Context, messageID string) {
	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, streamKey, groupName, messageID)
	pipe.XDel(ctx, streamKey, messageID)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn("failed to discard stream message", "message_id", messageID, "error", err)
	}
}

// Discard drops a claimed delivery without recording an outcome.
// Workers call this when they notice the job was deleted mid-flight;
// writing completed or failed state would resurrect the deleted hash.
func (q *Queue) Discard(ctx context.Context, job *Job) {
	q.ackDelete(ctx, job.MessageID)
}

// Complete acknowledges a job as successfully finished.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID),
		"status", string(StatusCompleted),
		"progress", 100,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.XAck(ctx, streamKey, groupName, job.MessageID)
	pipe.XDel(ctx, streamKey, job.MessageID)
	pipe.Incr(ctx, completedCountKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Nack records a failed attempt. Before MaxAttempts the job is parked
// in the delayed set with exponential backoff; at MaxAttempts it is
// marked failed and a copy lands on the dead letter stream.
func (q *Queue) Nack(ctx context.Context, job *Job, cause error) error {
	now := time.Now().UTC()
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}

	if job.Attempt >= q.maxAttempts {
		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, jobKey(job.ID),
			"status", string(StatusFailed),
			"error", msg,
			"updated_at", now.Format(time.RFC3339Nano),
		)
		pipe.XAck(ctx, streamKey, groupName, job.MessageID)
		pipe.XDel(ctx, streamKey, job.MessageID)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: dlqKey,
			Values: map[string]interface{}{
				"id":       job.ID,
				"reason":   msg,
				"moved_at": now.Format(time.RFC3339),
				"consumer": q.consumer,
			},
		})
		pipe.Incr(ctx, failedCountKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to mark job failed: %w", err)
		}
		q.logger.Error("job failed permanently",
			"job_id", job.ID, "attempts", job.Attempt, "error", msg)
		return nil
	}

	delay := q.backoffBase * (1 << (job.Attempt - 1))
	ready := now.Add(delay)

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID),
		"status", string(StatusDelayed),
		"error", msg,
		"updated_at", now.Format(time.RFC3339Nano),
	)
	pipe.XAck(ctx, streamKey, groupName, job.MessageID)
	pipe.XDel(ctx, streamKey, job.MessageID)
	pipe.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(ready.UnixMilli()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	q.logger.Warn("job attempt failed, retry scheduled",
		"job_id", job.ID, "attempt", job.Attempt, "delay", delay, "error", msg)
	return nil
}

// PromoteDue moves delayed jobs whose ready time has passed back onto
// the stream. Returns how many were promoted.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, delayedKey, id).Result()
		if err != nil {
			return promoted, fmt.Errorf("failed to unpark job: %w", err)
		}
		if removed == 0 {
			continue // another instance got it
		}

		exists, err := q.client.Exists(ctx, jobKey(id)).Result()
		if err != nil || exists == 0 {
			continue
		}

		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, jobKey(id),
			"status", string(StatusPending),
			"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
		)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey,
			Values: map[string]interface{}{"id": id},
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return promoted, fmt.Errorf("failed to promote job: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

// Progress updates a job's progress percentage.
func (q *Queue) Progress(ctx context.Context, id string, pct int) error {
	exists, err := q.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check job state: %w", err)
	}
	if exists == 0 {
		return ErrJobNotFound
	}
	return q.client.HSet(ctx, jobKey(id),
		"progress", pct,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
}

// Status returns the current state of a job.
func (q *Queue) Status(ctx context.Context, id string) (*JobStatus, error) {
	fields, err := q.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job state: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	status := &JobStatus{
		ID:     id,
		Status: Status(fields["status"]),
		Error:  fields["error"],
	}
	status.Progress, _ = strconv.Atoi(fields["progress"])
	status.Attempts, _ = strconv.Atoi(fields["attempts"])
	status.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	status.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	return status, nil
}

// Exists reports whether a job hash is still present. Workers use this
// between pipeline stages to notice mid-flight deletion.
func (q *Queue) Exists(ctx context.Context, id string) (bool, error) {
	n, err := q.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check job state: %w", err)
	}
	return n > 0, nil
}

// Delete removes all trace of a job. Deleting an unknown or already
// deleted job is not an error.
func (q *Queue) Delete(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.Del(ctx, jobKey(id))
	pipe.ZRem(ctx, delayedKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// Stats returns a snapshot of queue depth.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	streamLen, err := q.client.XLen(ctx, streamKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream length: %w", err)
	}

	var active int64
	pending, err := q.client.XPending(ctx, streamKey, groupName).Result()
	if err == nil && pending != nil {
		active = pending.Count
	}

	delayed, err := q.client.ZCard(ctx, delayedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read delayed count: %w", err)
	}

	completed, _ := q.client.Get(ctx, completedCountKey).Int64()
	failed, _ := q.client.Get(ctx, failedCountKey).Int64()

	waiting := streamLen - active
	if waiting < 0 {
		waiting = 0
	}

	return &Stats{
		Waiting:   waiting,
		Active:    active,
		Delayed:   delayed,
		Completed: completed,
		Failed:    failed,
	}, nil
}
