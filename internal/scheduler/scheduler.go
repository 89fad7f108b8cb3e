// Package scheduler is the durable delayed-task backend for follow-up
// re-checks. Tasks live in Redis: a sorted set indexes due times, a hash
// holds payloads, so due tasks survive process restarts. The set member is
// the ticket ID, which also enforces at most one pending task per ticket.
package scheduler

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/resolvemeq/agent-service/internal/domain"
	"github.com/resolvemeq/agent-service/internal/observability"
)

const (
	dueKey     = "agent:followups:due"
	payloadKey = "agent:followups:payload"

	// claimBatch bounds how many due tasks one poll cycle claims.
	claimBatch = 32
)

// Handler receives a claimed due task. Errors requeue the task with a short
// delay; handlers must therefore tolerate redelivery.
type Handler func(ctx context.Context, task domain.FollowUpTask) error

// FollowUpScheduler implements the engine's Scheduler contract on Redis.
type FollowUpScheduler struct {
	client       *redis.Client
	handler      Handler
	pollInterval time.Duration
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// New builds the scheduler. The handler may be set later via SetHandler to
// break the construction cycle with the engine.
func New(client *redis.Client, pollInterval time.Duration, metrics *observability.Metrics, logger *zap.Logger) *FollowUpScheduler {
	return &FollowUpScheduler{
		client:       client,
		pollInterval: pollInterval,
		metrics:      metrics,
		logger:       logger,
	}
}

// SetHandler wires the dispatch target for due tasks.
func (s *FollowUpScheduler) SetHandler(handler Handler) {
	s.handler = handler
}

// Schedule durably records "check ticket T at time D". Scheduling again for
// the same ticket replaces the pending task.
func (s *FollowUpScheduler) Schedule(ctx context.Context, task domain.FollowUpTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, dueKey, redis.Z{
		Score:  float64(task.DueAt.UnixMilli()),
		Member: task.TicketID,
	})
	pipe.HSet(ctx, payloadKey, task.TicketID, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	s.logger.Debug("follow-up scheduled",
		zap.String("ticket_id", task.TicketID),
		zap.Time("due_at", task.DueAt))
	return nil
}

// Cancel removes a pending task, if any. Called when a human closes a
// ticket so the fired task cannot re-open it.
func (s *FollowUpScheduler) Cancel(ctx context.Context, ticketID string) error {
	pipe := s.client.Pipeline()
	pipe.ZRem(ctx, dueKey, ticketID)
	pipe.HDel(ctx, payloadKey, ticketID)
	_, err := pipe.Exec(ctx)
	return err
}

// PendingCount returns the number of scheduled tasks.
func (s *FollowUpScheduler) PendingCount(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, dueKey).Result()
}

// Run polls for due tasks until ctx is cancelled.
func (s *FollowUpScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.dispatchDue(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("follow-up poll failed", zap.Error(err))
			}
			if s.metrics != nil {
				if pending, err := s.PendingCount(ctx); err == nil {
					s.metrics.PendingFollowUps.Set(float64(pending))
				}
			}
		}
	}
}

func (s *FollowUpScheduler) dispatchDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := s.client.ZRangeByScore(ctx, dueKey, &redis.ZRangeBy{
		Min:   "0",
		Max:   now,
		Count: claimBatch,
	}).Result()
	if err != nil {
		return err
	}

	for _, ticketID := range members {
		// ZRem returning 1 means this instance claimed the task
		removed, err := s.client.ZRem(ctx, dueKey, ticketID).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}

		raw, err := s.client.HGet(ctx, payloadKey, ticketID).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return err
		}
		_ = s.client.HDel(ctx, payloadKey, ticketID).Err()

		var task domain.FollowUpTask
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			s.logger.Error("dropping undecodable follow-up payload",
				zap.String("ticket_id", ticketID), zap.Error(err))
			continue
		}

		if err := s.handler(ctx, task); err != nil {
			s.logger.Warn("follow-up dispatch failed, requeueing",
				zap.String("ticket_id", ticketID), zap.Error(err))
			task.Attempt++
			task.DueAt = time.Now().Add(s.pollInterval * 2)
			if requeueErr := s.Schedule(ctx, task); requeueErr != nil {
				s.logger.Error("failed to requeue follow-up",
					zap.String("ticket_id", ticketID), zap.Error(requeueErr))
			}
		}
	}
	return nil
}
