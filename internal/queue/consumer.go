package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Handler processes a claimed job. A nil return acks the job; ErrParked
// parks it for later re-enqueue; any other error nacks it and lets the
// queue retry with backoff.
type Handler func(ctx context.Context, job *Job) error

// OnExhausted is called once when a job has burned through every attempt.
type OnExhausted func(ctx context.Context, job *Job, cause error)

// Consumer polls the queue and runs jobs one at a time. Run several consumers
// for concurrent campaigns; a single campaign is always one job, so per-
// campaign processing stays sequential.
type Consumer struct {
	queue        *Queue
	handler      Handler
	onExhausted  OnExhausted
	pollInterval time.Duration
	log          *zap.Logger
}

func NewConsumer(q *Queue, handler Handler, onExhausted OnExhausted, log *zap.Logger) *Consumer {
	return &Consumer{
		queue:        q,
		handler:      handler,
		onExhausted:  onExhausted,
		pollInterval: time.Second,
		log:          log,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	reapTicker := time.NewTicker(time.Minute)
	defer reapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reapTicker.C:
			if err := c.queue.ReapStale(ctx); err != nil && ctx.Err() == nil {
				c.log.Error("reap stale jobs failed", zap.Error(err))
			}
		default:
		}

		job, err := c.queue.Claim(ctx)
		if err != nil {
			if !errors.Is(err, ErrEmpty) && ctx.Err() == nil {
				c.log.Error("claim failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.pollInterval):
			}
			continue
		}

		c.process(ctx, job)
	}
}

func (c *Consumer) process(ctx context.Context, job *Job) {
	start := time.Now()
	err := c.handler(ctx, job)
	if err == nil {
		if ackErr := c.queue.Ack(ctx, job); ackErr != nil {
			c.log.Error("ack failed", zap.String("job_id", job.ID), zap.Error(ackErr))
		}
		c.log.Info("job done",
			zap.String("job_id", job.ID),
			zap.Duration("took", time.Since(start)),
		)
		return
	}

	if errors.Is(err, ErrParked) {
		if parkErr := c.queue.Park(ctx, job); parkErr != nil {
			c.log.Error("park failed", zap.String("job_id", job.ID), zap.Error(parkErr))
		}
		c.log.Info("job parked", zap.String("job_id", job.ID))
		return
	}

	c.log.Error("job attempt failed",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempts),
		zap.Error(err),
	)
	exhausted, nackErr := c.queue.Nack(ctx, job, err)
	if nackErr != nil {
		c.log.Error("nack failed", zap.String("job_id", job.ID), zap.Error(nackErr))
		return
	}
	if exhausted && c.onExhausted != nil {
		c.onExhausted(ctx, job, err)
	}
}
