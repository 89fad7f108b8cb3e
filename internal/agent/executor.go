package agent

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resolvemeq/agent-service/internal/config"
	"github.com/resolvemeq/agent-service/internal/domain"
	"github.com/resolvemeq/agent-service/internal/events"
	"github.com/resolvemeq/agent-service/internal/observability"
	"github.com/resolvemeq/agent-service/internal/repository"
	apperrors "github.com/resolvemeq/agent-service/pkg/util"
)

// Scheduler is the durable delayed-task backend the executor writes
// follow-up tasks to.
type Scheduler interface {
	Schedule(ctx context.Context, task domain.FollowUpTask) error
	Cancel(ctx context.Context, ticketID string) error
}

// Executor applies a Decision to a ticket: the status transition and the
// resulting Interaction are written in one transaction, the follow-up task
// is persisted before that transaction commits, and notifications go out
// through the event dispatcher after it does. Re-delivering a Decision to a
// ticket already in the target state is a no-op.
type Executor struct {
	store      repository.TicketStore
	scheduler  Scheduler
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.AgentConfig
}

// NewExecutor builds the executor.
func NewExecutor(store repository.TicketStore, scheduler Scheduler, dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger, cfg config.AgentConfig) *Executor {
	return &Executor{
		store:      store,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// transition sources per decision. AUTO_ESCALATE may fire from any
// non-terminal state; the rest are listed explicitly.
var decisionSources = map[domain.Decision][]domain.TicketStatus{
	domain.DecisionAutoResolve: {
		domain.TicketStatusOpen, domain.TicketStatusClarifying, domain.TicketStatusSolutionPending,
	},
	domain.DecisionSolutionWithFollowup: {
		domain.TicketStatusOpen, domain.TicketStatusClarifying, domain.TicketStatusResolved,
	},
	domain.DecisionRequestClarification: {
		domain.TicketStatusOpen, domain.TicketStatusClarifying,
		domain.TicketStatusSolutionPending, domain.TicketStatusResolved,
	},
	domain.DecisionAutoAssign: {
		domain.TicketStatusOpen,
	},
}

func decisionTarget(decision domain.Decision) domain.TicketStatus {
	switch decision {
	case domain.DecisionAutoResolve:
		return domain.TicketStatusResolved
	case domain.DecisionAutoEscalate:
		return domain.TicketStatusEscalated
	case domain.DecisionSolutionWithFollowup:
		return domain.TicketStatusSolutionPending
	case domain.DecisionRequestClarification:
		return domain.TicketStatusClarifying
	default:
		return domain.TicketStatusOpen
	}
}

// Apply carries out decision against the ticket. history is the bounded
// interaction window that informed the analysis; it goes into the
// escalation snapshot.
func (e *Executor) Apply(ctx context.Context, ticketID string, decision domain.Decision, a *domain.Analysis, history []domain.Interaction) (*domain.Ticket, error) {
	var (
		applied   bool
		oldStatus domain.TicketStatus
		scheduled bool
		result    *domain.Ticket
	)

	err := e.store.WithTicket(ctx, ticketID, func(tx repository.TicketTx) error {
		ticket := tx.Ticket()
		oldStatus = ticket.Status
		target := decisionTarget(decision)

		if alreadyApplied(ticket, decision, target, a) {
			result = ticket
			return nil
		}
		if !validSource(decision, ticket.Status) {
			return apperrors.NewInvalidTransition(string(ticket.Status), string(decision))
		}

		switch decision {
		case domain.DecisionAutoResolve:
			if err := tx.UpdateStatus(ctx, domain.TicketStatusResolved); err != nil {
				return err
			}
			if err := tx.AppendInteraction(ctx, e.agentInteraction(ticket.ID, domain.InteractionAgentResponse, decision, map[string]any{
				"resolution_steps": a.Solution.Steps,
				"estimated_time":   a.Solution.EstimatedTime,
				"reasoning":        a.Reasoning,
				"auto_resolved":    true,
			})); err != nil {
				return err
			}
			// fixed confirmation delay, independent of the estimate
			if err := e.scheduleWithRetry(ctx, e.buildFollowUp(ticket.ID, decision, a,
				time.Duration(e.cfg.FollowUpDefaultMinutes)*time.Minute)); err != nil {
				return err
			}
			scheduled = true

		case domain.DecisionAutoEscalate:
			team := strings.TrimSpace(a.Detail.SuggestedTeam)
			if team == "" {
				team = e.cfg.DefaultTeam
			}
			if err := tx.UpdateStatus(ctx, domain.TicketStatusEscalated); err != nil {
				return err
			}
			if err := tx.SetAssignment(ctx, &team, nil); err != nil {
				return err
			}
			if err := tx.AppendInteraction(ctx, e.agentInteraction(ticket.ID, domain.InteractionEscalation, decision, map[string]any{
				"escalation_reason": escalationReason(a),
				"severity":          a.Detail.Severity,
				"suggested_team":    team,
				"context_snapshot": map[string]any{
					"description":  ticket.Description,
					"category":     ticket.Category,
					"tags":         ticket.Tags,
					"analysis":     a,
					"interactions": compactHistory(history),
				},
			})); err != nil {
				return err
			}

		case domain.DecisionSolutionWithFollowup:
			if err := tx.UpdateStatus(ctx, domain.TicketStatusSolutionPending); err != nil {
				return err
			}
			if err := tx.AppendInteraction(ctx, e.agentInteraction(ticket.ID, domain.InteractionAgentResponse, decision, map[string]any{
				"solution_steps":   a.Solution.Steps,
				"estimated_time":   a.Solution.EstimatedTime,
				"confidence_level": a.Confidence,
				"auto_check":       true,
			})); err != nil {
				return err
			}
			delay := e.followUpDelay(a.Solution.EstimatedTime)
			if err := e.scheduleWithRetry(ctx, e.buildFollowUp(ticket.ID, decision, a, delay)); err != nil {
				return err
			}
			scheduled = true

		case domain.DecisionRequestClarification:
			if err := tx.UpdateStatus(ctx, domain.TicketStatusClarifying); err != nil {
				return err
			}
			if err := tx.AppendInteraction(ctx, e.agentInteraction(ticket.ID, domain.InteractionClarification, decision, map[string]any{
				"questions":  a.ClarificationQuestions(),
				"reason":     "Need additional information to provide accurate solution",
				"confidence": a.Confidence,
			})); err != nil {
				return err
			}

		case domain.DecisionAutoAssign:
			team := strings.TrimSpace(a.Detail.SuggestedTeam)
			if team == "" {
				team = e.cfg.DefaultTeam
			}
			if err := tx.SetAssignment(ctx, &team, nil); err != nil {
				return err
			}
			if err := tx.AppendInteraction(ctx, e.agentInteraction(ticket.ID, domain.InteractionAssignment, decision, map[string]any{
				"assigned_team": team,
				"reasoning":     a.Reasoning,
				"severity":      a.Detail.Severity,
			})); err != nil {
				return err
			}

		default:
			return apperrors.NewInvalidTransition(string(ticket.Status), string(decision))
		}

		applied = true
		result = ticket
		return nil
	})
	if err != nil {
		// the transaction rolled back; a follow-up written before the
		// failed commit must not fire
		if scheduled {
			if cancelErr := e.scheduler.Cancel(ctx, ticketID); cancelErr != nil {
				e.logger.Error("failed to cancel orphaned follow-up",
					zap.String("ticket_id", ticketID), zap.Error(cancelErr))
			}
		}
		return nil, err
	}
	if !applied {
		e.logger.Debug("decision already applied",
			zap.String("ticket_id", ticketID), zap.String("decision", string(decision)))
		return result, nil
	}

	e.metrics.ObserveDecision(string(decision))
	e.publishDecision(ctx, result, decision, oldStatus, a)
	if decision == domain.DecisionAutoAssign {
		e.publishAssigned(ctx, result)
	}
	return result, nil
}

// CompleteFollowUp records a fired follow-up's outcome. A positive
// confirmation closes the ticket; a negative one only records the outcome,
// the caller re-enters the engine afterwards.
func (e *Executor) CompleteFollowUp(ctx context.Context, ticketID string, outcome domain.Confirmation) (*domain.Ticket, error) {
	var (
		result    *domain.Ticket
		oldStatus domain.TicketStatus
		closed    bool
	)
	err := e.store.WithTicket(ctx, ticketID, func(tx repository.TicketTx) error {
		ticket := tx.Ticket()
		oldStatus = ticket.Status
		if ticket.Status.Terminal() {
			result = ticket
			return nil
		}

		if err := tx.AppendInteraction(ctx, e.agentInteraction(ticket.ID, domain.InteractionFollowUp, "", map[string]any{
			"check":   "did the solution work?",
			"outcome": outcome,
		})); err != nil {
			return err
		}
		if outcome == domain.ConfirmationPositive {
			if err := tx.UpdateStatus(ctx, domain.TicketStatusClosed); err != nil {
				return err
			}
			closed = true
		}
		result = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	if closed {
		e.publishStatusChange(ctx, result, oldStatus, "follow-up confirmed resolution")
	}
	return result, nil
}

// EscalateStale escalates a ticket whose critical follow-up expired without
// a requester confirmation. No fresh analysis is involved.
func (e *Executor) EscalateStale(ctx context.Context, ticketID, reason string) (*domain.Ticket, error) {
	var (
		result    *domain.Ticket
		oldStatus domain.TicketStatus
		applied   bool
	)
	err := e.store.WithTicket(ctx, ticketID, func(tx repository.TicketTx) error {
		ticket := tx.Ticket()
		oldStatus = ticket.Status
		if ticket.Status.Terminal() {
			result = ticket
			return nil
		}

		team := e.cfg.DefaultTeam
		if ticket.AssignedTeam != nil && *ticket.AssignedTeam != "" {
			team = *ticket.AssignedTeam
		}
		if err := tx.UpdateStatus(ctx, domain.TicketStatusEscalated); err != nil {
			return err
		}
		if err := tx.SetAssignment(ctx, &team, nil); err != nil {
			return err
		}
		decision := domain.DecisionAutoEscalate
		if err := tx.AppendInteraction(ctx, &domain.Interaction{
			TicketID:  ticket.ID,
			Kind:      domain.InteractionEscalation,
			ActorType: domain.SubjectTypeSystem,
			Decision:  &decision,
			Content: map[string]any{
				"escalation_reason": reason,
				"suggested_team":    team,
			},
		}); err != nil {
			return err
		}
		applied = true
		result = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applied {
		e.metrics.ObserveDecision(string(domain.DecisionAutoEscalate))
		e.publishStatusChange(ctx, result, oldStatus, reason)
	}
	return result, nil
}

func alreadyApplied(ticket *domain.Ticket, decision domain.Decision, target domain.TicketStatus, a *domain.Analysis) bool {
	if decision == domain.DecisionAutoAssign {
		team := strings.TrimSpace(a.Detail.SuggestedTeam)
		return team != "" && ticket.AssignedTeam != nil && *ticket.AssignedTeam == team
	}
	return ticket.Status == target
}

func validSource(decision domain.Decision, current domain.TicketStatus) bool {
	if decision == domain.DecisionAutoEscalate {
		// any live state may escalate, including RESOLVED when a follow-up
		// finds the solution did not hold
		return !current.Terminal()
	}
	for _, candidate := range decisionSources[decision] {
		if candidate == current {
			return true
		}
	}
	return false
}

func (e *Executor) agentInteraction(ticketID string, kind domain.InteractionKind, decision domain.Decision, content map[string]any) *domain.Interaction {
	entry := &domain.Interaction{
		TicketID:  ticketID,
		Kind:      kind,
		ActorType: domain.SubjectTypeSystem,
		Content:   content,
	}
	if decision != "" {
		entry.Decision = &decision
	}
	return entry
}

func (e *Executor) buildFollowUp(ticketID string, decision domain.Decision, a *domain.Analysis, delay time.Duration) domain.FollowUpTask {
	now := time.Now()
	return domain.FollowUpTask{
		TicketID:      ticketID,
		ScheduledAt:   now,
		DueAt:         now.Add(delay),
		ScheduledFor:  decision,
		SolutionSteps: a.Solution.Steps,
		Critical:      a.IsCritical(),
	}
}

// scheduleWithRetry persists the follow-up task, retrying with backoff.
// Losing a follow-up silently is not acceptable; the final failure surfaces
// as SCHEDULE_FAILURE and rolls back the enclosing transaction.
func (e *Executor) scheduleWithRetry(ctx context.Context, task domain.FollowUpTask) error {
	backoff := 100 * time.Millisecond
	attempts := e.cfg.ScheduleRetries
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = e.scheduler.Schedule(ctx, task); err == nil {
			e.metrics.FollowUpsScheduled.Inc()
			return nil
		}
		select {
		case <-ctx.Done():
			return apperrors.NewScheduleFailure(ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return apperrors.NewScheduleFailure(err)
}

// followUpDelay derives the re-check delay from the solution's estimated
// time ("5 minutes", "1 hour", "1 day") plus a fixed buffer.
func (e *Executor) followUpDelay(estimated string) time.Duration {
	minutes := parseEstimatedMinutes(estimated, e.cfg.FollowUpDefaultMinutes)
	return time.Duration(minutes)*time.Minute + e.cfg.FollowUpBuffer()
}

func parseEstimatedMinutes(estimated string, fallback int) int {
	estimated = strings.ToLower(estimated)
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, estimated)

	value := 0
	for _, r := range digits {
		value = value*10 + int(r-'0')
	}

	switch {
	case strings.Contains(estimated, "minute"):
		if value == 0 {
			return fallback
		}
		return value
	case strings.Contains(estimated, "hour"):
		if value == 0 {
			value = 1
		}
		return value * 60
	case strings.Contains(estimated, "day"):
		if value == 0 {
			value = 1
		}
		return value * 24 * 60
	default:
		return fallback
	}
}

func escalationReason(a *domain.Analysis) string {
	if strings.TrimSpace(a.Reasoning) != "" {
		return a.Reasoning
	}
	return "Complex issue requiring human attention"
}

func compactHistory(history []domain.Interaction) []map[string]any {
	compact := make([]map[string]any, 0, len(history))
	for _, entry := range history {
		compact = append(compact, map[string]any{
			"kind":       entry.Kind,
			"actor_type": entry.ActorType,
			"created_at": entry.CreatedAt,
		})
	}
	return compact
}

func (e *Executor) publishDecision(ctx context.Context, ticket *domain.Ticket, decision domain.Decision, oldStatus domain.TicketStatus, a *domain.Analysis) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventAgentDecision,
		TicketID:  ticket.ID,
		Actor:     events.Actor{Type: domain.SubjectTypeSystem},
		Timestamp: time.Now(),
		Payload: events.AgentDecisionPayload{
			Decision:      decision,
			OldStatus:     oldStatus,
			NewStatus:     ticket.Status,
			RequesterID:   ticket.RequesterID,
			AssignedTeam:  ticket.AssignedTeam,
			Confidence:    a.Confidence,
			Reasoning:     a.Reasoning,
			SolutionSteps: a.Solution.Steps,
			Title:         ticket.Title,
			Category:      string(ticket.Category),
			Tags:          ticket.Tags,
		},
	})
}

func (e *Executor) publishAssigned(ctx context.Context, ticket *domain.Ticket) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketAssigned,
		TicketID:  ticket.ID,
		Actor:     events.Actor{Type: domain.SubjectTypeSystem},
		Timestamp: time.Now(),
		Payload: events.TicketAssignedPayload{
			Team:       ticket.AssignedTeam,
			AssigneeID: ticket.AssigneeID,
		},
	})
}

func (e *Executor) publishStatusChange(ctx context.Context, ticket *domain.Ticket, oldStatus domain.TicketStatus, comment string) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketStatusChanged,
		TicketID:  ticket.ID,
		Actor:     events.Actor{Type: domain.SubjectTypeSystem},
		Timestamp: time.Now(),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
			Comment:   comment,
		},
	})
}
