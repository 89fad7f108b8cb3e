package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/resolvemeq/agent-service/internal/analysis"
	"github.com/resolvemeq/agent-service/internal/config"
	"github.com/resolvemeq/agent-service/internal/domain"
	"github.com/resolvemeq/agent-service/internal/events"
	"github.com/resolvemeq/agent-service/internal/locking"
	"github.com/resolvemeq/agent-service/internal/observability"
	"github.com/resolvemeq/agent-service/internal/repository"
	apperrors "github.com/resolvemeq/agent-service/pkg/util"
)

// Trigger is one unit of engine work: either a fresh analysis pass over a
// ticket or a fired follow-up task.
type Trigger struct {
	TicketID string
	FollowUp *domain.FollowUpTask
}

// Engine drives the decide-then-act cycle. All work for one ticket runs
// inside that ticket's exclusive section; analysis calls for distinct
// tickets run concurrently on the worker pool.
type Engine struct {
	cfg          config.AgentConfig
	policy       PolicyConfig
	store        repository.TicketStore
	interactions repository.InteractionRepository
	analyzer     analysis.Client
	executor     *Executor
	scheduler    Scheduler
	locker       locking.TicketLocker
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger
	queue        chan Trigger
}

// EngineDependencies bundles collaborators for the engine.
type EngineDependencies struct {
	Store        repository.TicketStore
	Interactions repository.InteractionRepository
	Analyzer     analysis.Client
	Executor     *Executor
	Scheduler    Scheduler
	Locker       locking.TicketLocker
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// NewEngine constructs the engine.
func NewEngine(cfg config.AgentConfig, deps EngineDependencies) *Engine {
	return &Engine{
		cfg:          cfg,
		policy:       PolicyFromConfig(cfg),
		store:        deps.Store,
		interactions: deps.Interactions,
		analyzer:     deps.Analyzer,
		executor:     deps.Executor,
		scheduler:    deps.Scheduler,
		locker:       deps.Locker,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		queue:        make(chan Trigger, 256),
	}
}

// Submit enqueues a ticket for an analysis pass. Non-blocking until the
// queue is full.
func (e *Engine) Submit(ctx context.Context, ticketID string) error {
	select {
	case e.queue <- Trigger{TicketID: ticketID}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitFollowUp enqueues a fired follow-up task. Used as the scheduler's
// dispatch target.
func (e *Engine) SubmitFollowUp(ctx context.Context, task domain.FollowUpTask) error {
	select {
	case e.queue <- Trigger{TicketID: task.TicketID, FollowUp: &task}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes the trigger queue with a bounded worker pool until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case trigger := <-e.queue:
					e.handle(ctx, trigger)
				}
			}
		})
	}
	return group.Wait()
}

func (e *Engine) handle(ctx context.Context, trigger Trigger) {
	var err error
	if trigger.FollowUp != nil {
		err = e.HandleFollowUp(ctx, *trigger.FollowUp)
	} else {
		err = e.ProcessTicket(ctx, trigger.TicketID)
	}
	if err != nil {
		e.logger.Warn("trigger processing failed",
			zap.String("ticket_id", trigger.TicketID), zap.Error(err))
	}
}

// ProcessTicket runs one full analyze/decide/act pass for a ticket.
func (e *Engine) ProcessTicket(ctx context.Context, ticketID string) error {
	unlock, err := e.locker.Acquire(ctx, ticketID, e.cfg.LockTTL())
	if err != nil {
		return err
	}
	defer unlock(ctx) //nolint:errcheck

	return e.process(ctx, ticketID)
}

// process assumes the caller holds the ticket's exclusive section.
func (e *Engine) process(ctx context.Context, ticketID string) error {
	ticket, err := e.store.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status.Terminal() {
		e.logger.Debug("skipping ticket in terminal state",
			zap.String("ticket_id", ticketID), zap.String("status", string(ticket.Status)))
		return nil
	}

	history, err := e.interactions.ListByTicket(ctx, ticketID, e.cfg.HistoryWindow)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := e.analyzer.Analyze(ctx, buildContext(ticket, history))
	e.metrics.ObserveAnalysis(time.Since(start), err != nil)
	if err != nil {
		return e.handleAnalysisFailure(ctx, ticket, err)
	}

	decision := Decide(e.policy, PolicyInput{
		Confidence:         result.Confidence,
		RecommendedAction:  result.RecommendedAction,
		SuccessProbability: result.Solution.SuccessProbability,
		IsCritical:         result.IsCritical() || ticket.HasTag("urgent"),
		SuggestedTeam:      result.Detail.SuggestedTeam,
	})

	e.logger.Info("agent decision",
		zap.String("ticket_id", ticket.ID),
		zap.Float64("confidence", result.Confidence),
		zap.String("recommended", string(result.RecommendedAction)),
		zap.Float64("success_probability", result.Solution.SuccessProbability),
		zap.String("decision", string(decision)))

	if _, err := e.executor.Apply(ctx, ticket.ID, decision, result, history); err != nil {
		if apperrors.IsCode(err, "INVALID_TRANSITION") {
			// logged and dropped, no state change
			e.logger.Error("invalid transition dropped",
				zap.String("ticket_id", ticket.ID),
				zap.String("decision", string(decision)),
				zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// HandleFollowUp resolves a fired follow-up: close on confirmation,
// re-enter the engine on a negative reply, defer once more while inside the
// grace window, and apply the no-response default after it.
func (e *Engine) HandleFollowUp(ctx context.Context, task domain.FollowUpTask) error {
	unlock, err := e.locker.Acquire(ctx, task.TicketID, e.cfg.LockTTL())
	if err != nil {
		return err
	}
	defer unlock(ctx) //nolint:errcheck

	ticket, err := e.store.GetByID(ctx, task.TicketID)
	if err != nil {
		return err
	}
	if ticket.Status.Terminal() {
		// closed or escalated by a human while the task was pending
		e.metrics.FollowUpsFired.WithLabelValues("skipped").Inc()
		return nil
	}

	outcome, err := e.confirmationSince(ctx, task)
	if err != nil {
		return err
	}

	switch outcome {
	case domain.ConfirmationPositive:
		e.metrics.FollowUpsFired.WithLabelValues("confirmed").Inc()
		_, err := e.executor.CompleteFollowUp(ctx, task.TicketID, outcome)
		return err

	case domain.ConfirmationNegative:
		e.metrics.FollowUpsFired.WithLabelValues("reopened").Inc()
		if _, err := e.executor.CompleteFollowUp(ctx, task.TicketID, outcome); err != nil {
			return err
		}
		return e.process(ctx, task.TicketID)

	default:
		if task.Attempt == 0 && time.Since(task.ScheduledAt) < e.cfg.GraceWindow() {
			// give the requester the rest of the grace window
			retry := task
			retry.Attempt++
			retry.DueAt = task.ScheduledAt.Add(e.cfg.GraceWindow())
			e.metrics.FollowUpsFired.WithLabelValues("deferred").Inc()
			return e.scheduler.Schedule(ctx, retry)
		}
		if task.Critical {
			e.metrics.FollowUpsFired.WithLabelValues("escalated").Inc()
			if _, err := e.executor.CompleteFollowUp(ctx, task.TicketID, outcome); err != nil {
				return err
			}
			_, err := e.executor.EscalateStale(ctx, task.TicketID,
				"no confirmation received for critical issue")
			return err
		}
		// silence on a low-severity ticket counts as confirmation
		e.metrics.FollowUpsFired.WithLabelValues("auto_closed").Inc()
		_, err := e.executor.CompleteFollowUp(ctx, task.TicketID, domain.ConfirmationPositive)
		return err
	}
}

// confirmationSince classifies the latest requester feedback recorded after
// the follow-up was scheduled.
func (e *Engine) confirmationSince(ctx context.Context, task domain.FollowUpTask) (domain.Confirmation, error) {
	entry, err := e.interactions.LatestByKind(ctx, task.TicketID, domain.InteractionFeedback, task.ScheduledAt)
	if err != nil {
		if apperrors.ToDomainError(err).Code == "NOT_FOUND" {
			return domain.ConfirmationNone, nil
		}
		return domain.ConfirmationNone, err
	}
	if entry == nil {
		return domain.ConfirmationNone, nil
	}
	if confirmed, ok := entry.Content["confirmed"].(bool); ok {
		if confirmed {
			return domain.ConfirmationPositive, nil
		}
		return domain.ConfirmationNegative, nil
	}
	return domain.ConfirmationNone, nil
}

func (e *Engine) handleAnalysisFailure(ctx context.Context, ticket *domain.Ticket, cause error) error {
	// the ticket stays OPEN with a pending-review marker; the requester
	// sees a generic "we're reviewing your ticket" status
	err := e.store.WithTicket(ctx, ticket.ID, func(tx repository.TicketTx) error {
		return tx.AppendInteraction(ctx, &domain.Interaction{
			TicketID:  ticket.ID,
			Kind:      domain.InteractionPendingReview,
			ActorType: domain.SubjectTypeSystem,
			Content: map[string]any{
				"reason": "automated analysis unavailable",
			},
		})
	})
	if err != nil {
		e.logger.Error("failed to record pending-review marker",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	if e.dispatcher != nil {
		_ = e.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventAnalysisFailed,
			TicketID:  ticket.ID,
			Actor:     events.Actor{Type: domain.SubjectTypeSystem},
			Timestamp: time.Now(),
			Payload: events.AnalysisFailedPayload{
				RequesterID: ticket.RequesterID,
				Reason:      "automated analysis temporarily unavailable",
			},
		})
	}
	return cause
}

func buildContext(ticket *domain.Ticket, history []domain.Interaction) analysis.TicketContext {
	entries := make([]analysis.HistoryEntry, 0, len(history))
	for _, entry := range history {
		entries = append(entries, analysis.HistoryEntry{
			Kind:      string(entry.Kind),
			ActorType: string(entry.ActorType),
			Content:   entry.Content,
		})
	}
	return analysis.TicketContext{
		TicketID:    ticket.ID,
		ExternalKey: ticket.ExternalKey,
		Title:       ticket.Title,
		Description: ticket.Description,
		Category:    ticket.Category,
		Tags:        ticket.Tags,
		RequesterID: ticket.RequesterID,
		History:     entries,
	}
}
