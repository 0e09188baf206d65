// Package queue implements the durable campaign job queue on Redis: priority
// ordering, delayed retries with exponential backoff and bounded retention of
// terminal jobs. Jobs survive process restarts; a crash between enqueue and
// pickup leaves the job in the scheduled set.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyDelayed    = "queue:campaigns:delayed"
	keyReady      = "queue:campaigns:ready"
	keyProcessing = "queue:campaigns:processing"
	keyCompleted  = "queue:campaigns:completed"
	keyFailed     = "queue:campaigns:failed"
	keyJobPrefix  = "queue:campaigns:job:"

	// terminal job payloads are kept for inspection, then expire
	terminalJobTTL = 24 * time.Hour
)

var (
	ErrEmpty = errors.New("queue: no job ready")

	// ErrParked is returned by a handler to release its claim without retry
	// or archival. The job payload is kept indefinitely so the job can be
	// re-enqueued later.
	ErrParked = errors.New("queue: job parked")
)

type Job struct {
	ID          string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	BackoffMS   int64           `json:"backoff_ms"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	LastError   string          `json:"last_error,omitempty"`
}

type Options struct {
	Priority    int
	MaxAttempts int
	Backoff     time.Duration
	Delay       time.Duration
}

type Queue struct {
	rdb          *redis.Client
	log          *zap.Logger
	retention    int
	claimTimeout time.Duration
}

func New(rdb *redis.Client, retention int, claimTimeout time.Duration, log *zap.Logger) *Queue {
	if retention <= 0 {
		retention = 100
	}
	if claimTimeout <= 0 {
		claimTimeout = 10 * time.Minute
	}
	return &Queue{rdb: rdb, log: log, retention: retention, claimTimeout: claimTimeout}
}

// Enqueue stores the job payload and schedules it. Returns the job ID.
func (q *Queue) Enqueue(ctx context.Context, payload any, opts Options) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	job := Job{
		ID:          uuid.New().String(),
		Payload:     raw,
		Priority:    opts.Priority,
		MaxAttempts: opts.MaxAttempts,
		BackoffMS:   opts.Backoff.Milliseconds(),
		EnqueuedAt:  time.Now().UTC(),
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 3
	}

	if err := q.saveJob(ctx, &job); err != nil {
		return "", err
	}

	readyAt := time.Now().Add(opts.Delay)
	if err := q.rdb.ZAdd(ctx, keyDelayed, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: job.ID,
	}).Err(); err != nil {
		return "", err
	}

	q.log.Info("job enqueued",
		zap.String("job_id", job.ID),
		zap.Int("priority", job.Priority),
		zap.Duration("delay", opts.Delay),
	)
	return job.ID, nil
}

// Claim returns the highest-priority ready job, or ErrEmpty. The claimed job
// is leased: if the process dies before Ack/Nack, ReapStale puts it back.
//
// The lease is registered in the processing set before the job leaves the
// ready set, so at every step the job is a member of at least one tracked
// set and a crash anywhere in between is recoverable by the reaper.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	if err := q.promote(ctx); err != nil {
		return nil, err
	}

	for i := 0; i < 3; i++ {
		candidates, err := q.rdb.ZRange(ctx, keyReady, 0, 0).Result()
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, ErrEmpty
		}
		jobID := candidates[0]

		deadline := time.Now().Add(q.claimTimeout)
		if err := q.rdb.ZAdd(ctx, keyProcessing, redis.Z{
			Score:  float64(deadline.UnixMilli()),
			Member: jobID,
		}).Err(); err != nil {
			return nil, err
		}

		// the consumer that removes the ready entry owns the claim; a loser
		// must not touch the processing entry, it now belongs to the winner
		removed, err := q.rdb.ZRem(ctx, keyReady, jobID).Result()
		if err != nil {
			return nil, err
		}
		if removed == 0 {
			continue
		}

		// a failure past this point leaves the job leased in the processing
		// set, ReapStale requeues it once the lease expires
		job, err := q.loadJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		job.Attempts++
		if err := q.saveJob(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, ErrEmpty
}

// Ack marks the job done and archives it in the bounded completed list.
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	if err := q.rdb.ZRem(ctx, keyProcessing, job.ID).Err(); err != nil {
		return err
	}
	return q.archive(ctx, keyCompleted, job)
}

// Park releases a claimed job without scheduling a retry and without the
// archival TTL, leaving the payload readable until Discard. Used for jobs
// halted externally that may be re-enqueued at any later time.
func (q *Queue) Park(ctx context.Context, job *Job) error {
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	return q.rdb.ZRem(ctx, keyProcessing, job.ID).Err()
}

// Discard puts a no-longer-referenced job record on the terminal TTL.
func (q *Queue) Discard(ctx context.Context, id string) error {
	return q.rdb.Expire(ctx, keyJobPrefix+id, terminalJobTTL).Err()
}

// Nack records a failed attempt. The job is rescheduled with exponential
// backoff until attempts are exhausted; the final failure is archived and
// reported by the returned bool.
func (q *Queue) Nack(ctx context.Context, job *Job, cause error) (exhausted bool, err error) {
	if cause != nil {
		job.LastError = cause.Error()
	}

	if job.Attempts >= job.MaxAttempts {
		if err := q.archive(ctx, keyFailed, job); err != nil {
			return true, err
		}
		if err := q.rdb.ZRem(ctx, keyProcessing, job.ID).Err(); err != nil {
			return true, err
		}
		q.log.Warn("job exhausted all attempts",
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts),
			zap.String("last_error", job.LastError),
		)
		return true, nil
	}

	delay := BackoffDelay(time.Duration(job.BackoffMS)*time.Millisecond, job.Attempts)
	if err := q.saveJob(ctx, job); err != nil {
		return false, err
	}
	// reschedule before releasing the lease, a crash in between leaves the
	// job in both sets rather than lost
	readyAt := time.Now().Add(delay)
	err = q.rdb.ZAdd(ctx, keyDelayed, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: job.ID,
	}).Err()
	if err != nil {
		return false, err
	}
	if err := q.rdb.ZRem(ctx, keyProcessing, job.ID).Err(); err != nil {
		return false, err
	}
	q.log.Info("job rescheduled",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempts),
		zap.Duration("backoff", delay),
	)
	return false, nil
}

// ReapStale requeues jobs whose processing lease expired (crashed worker).
// The interrupted run still counts as an attempt.
func (q *Queue) ReapStale(ctx context.Context) error {
	now := time.Now().UnixMilli()
	ids, err := q.rdb.ZRangeByScore(ctx, keyProcessing, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		// read while still leased; an unreadable job stays in the processing
		// set and is retried on the next reap pass
		job, err := q.loadJob(ctx, id)
		if err != nil {
			q.log.Error("cannot read stale job, leaving it leased",
				zap.String("job_id", id), zap.Error(err))
			continue
		}
		q.log.Warn("requeueing stale job", zap.String("job_id", id), zap.Int("attempts", job.Attempts))
		if _, err := q.Nack(ctx, job, errors.New("processing lease expired")); err != nil {
			q.log.Error("failed to requeue stale job", zap.String("job_id", id), zap.Error(err))
		}
	}
	return nil
}

// promote moves due jobs from the delayed set into the ready set, scored so
// that lower priority numbers pop first and FIFO holds within a priority.
func (q *Queue) promote(ctx context.Context) error {
	now := time.Now().UnixMilli()
	ids, err := q.rdb.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		// an unreadable job stays in the delayed set and is retried on the
		// next promotion pass, it is never dropped
		job, err := q.loadJob(ctx, id)
		if err != nil {
			q.log.Error("cannot read delayed job, leaving it scheduled",
				zap.String("job_id", id), zap.Error(err))
			continue
		}
		// add before remove: a crash in between leaves the job in both sets,
		// which the next pass collapses, instead of in neither
		if err := q.rdb.ZAdd(ctx, keyReady, redis.Z{
			Score:  ReadyScore(job.Priority, now),
			Member: id,
		}).Err(); err != nil {
			return err
		}
		if err := q.rdb.ZRem(ctx, keyDelayed, id).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) archive(ctx context.Context, listKey string, job *Job) error {
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, listKey, job.ID)
	pipe.LTrim(ctx, listKey, 0, int64(q.retention-1))
	pipe.Expire(ctx, keyJobPrefix+job.ID, terminalJobTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *Queue) saveJob(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.Set(ctx, keyJobPrefix+job.ID, raw, 0).Err()
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	raw, err := q.rdb.Get(ctx, keyJobPrefix+id).Bytes()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Payload returns the stored payload of a job, including terminal jobs still
// inside the retention window.
func (q *Queue) Payload(ctx context.Context, id string) (json.RawMessage, error) {
	job, err := q.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.Payload, nil
}

// BackoffDelay returns the wait before retry number attempts+1: the base
// delay doubles after every failed attempt.
func BackoffDelay(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = 5 * time.Second
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	return delay
}

// ReadyScore orders the ready set: priority dominates, enqueue time breaks
// ties. Millisecond timestamps stay below 1e13 until the year 2286.
func ReadyScore(priority int, nowMillis int64) float64 {
	return float64(priority)*1e13 + float64(nowMillis)
}
