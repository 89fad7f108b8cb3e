package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/resolvemeq/agent-service/internal/config"
	"github.com/resolvemeq/agent-service/internal/domain"
	"github.com/resolvemeq/agent-service/internal/events"
	"github.com/resolvemeq/agent-service/internal/notify"
)

// NotificationService turns domain events into outbound messages. It is a
// pure event consumer: the engine and ticket service never call it directly.
type NotificationService struct {
	notifier notify.Notifier
	cfg      config.NotifyConfig
	logger   *zap.Logger
}

// NewNotificationService builds the service and subscribes it to the
// dispatcher.
func NewNotificationService(dispatcher events.Dispatcher, notifier notify.Notifier, cfg config.NotifyConfig, logger *zap.Logger) *NotificationService {
	service := &NotificationService{notifier: notifier, cfg: cfg, logger: logger}
	dispatcher.Subscribe(events.EventTicketCreated, service.onTicketCreated)
	dispatcher.Subscribe(events.EventAgentDecision, service.onAgentDecision)
	dispatcher.Subscribe(events.EventAnalysisFailed, service.onAnalysisFailed)
	return service
}

func (s *NotificationService) onTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	s.notifier.Notify(ctx, payload.RequesterID,
		fmt.Sprintf("Your ticket %s (%q) has been received and is being analyzed.", payload.ExternalKey, payload.Title))
	return nil
}

func (s *NotificationService) onAgentDecision(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AgentDecisionPayload)
	if !ok {
		return nil
	}

	switch payload.Decision {
	case domain.DecisionAutoResolve:
		s.notifier.Notify(ctx, payload.RequesterID,
			fmt.Sprintf("We applied a fix for %q:\n%s\nWe'll check back with you shortly to confirm it worked.",
				payload.Title, stepList(payload.SolutionSteps)))
	case domain.DecisionSolutionWithFollowup:
		s.notifier.Notify(ctx, payload.RequesterID,
			fmt.Sprintf("Suggested steps for %q:\n%s\nLet us know whether this resolves the issue.",
				payload.Title, stepList(payload.SolutionSteps)))
	case domain.DecisionRequestClarification:
		s.notifier.Notify(ctx, payload.RequesterID,
			fmt.Sprintf("We need a bit more detail on %q before we can help. Please answer the questions on your ticket.",
				payload.Title))
	case domain.DecisionAutoAssign:
		team := "the support team"
		if payload.AssignedTeam != nil {
			team = *payload.AssignedTeam
		}
		s.notifier.Notify(ctx, payload.RequesterID,
			fmt.Sprintf("Your ticket %q has been routed to %s.", payload.Title, team))
	case domain.DecisionAutoEscalate:
		s.notifier.Notify(ctx, payload.RequesterID,
			fmt.Sprintf("Your ticket %q has been escalated to a specialist.", payload.Title))
		s.notifier.Notify(ctx, s.cfg.EscalationRef,
			fmt.Sprintf("Escalated ticket %s [%s]: %s (confidence %.2f). %s",
				event.TicketID, payload.Category, payload.Title, payload.Confidence, payload.Reasoning))
	}
	return nil
}

func (s *NotificationService) onAnalysisFailed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AnalysisFailedPayload)
	if !ok {
		return nil
	}
	s.notifier.Notify(ctx, payload.RequesterID,
		"Your ticket is queued for review by our support team.")
	return nil
}

func stepList(steps []string) string {
	if len(steps) == 0 {
		return "(see ticket for details)"
	}
	out := ""
	for i, step := range steps {
		out += fmt.Sprintf("%d. %s\n", i+1, step)
	}
	return out
}
