package service

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resolvemeq/agent-service/internal/agent"
	"github.com/resolvemeq/agent-service/internal/domain"
	"github.com/resolvemeq/agent-service/internal/events"
	"github.com/resolvemeq/agent-service/internal/repository"
	apperrors "github.com/resolvemeq/agent-service/pkg/util"
)

// TicketService coordinates the portal-facing ticket workflows and hands
// tickets to the decision engine.
type TicketService struct {
	store        repository.TicketStore
	interactions repository.InteractionRepository
	engine       *agent.Engine
	scheduler    agent.Scheduler
	dispatcher   events.Dispatcher
	logger       *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store        repository.TicketStore
	Interactions repository.InteractionRepository
	Engine       *agent.Engine
	Scheduler    agent.Scheduler
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    domain.TicketCategory
	Tags        []string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses    []domain.TicketStatus
	Categories  []domain.TicketCategory
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		store:        deps.Store,
		interactions: deps.Interactions,
		engine:       deps.Engine,
		scheduler:    deps.Scheduler,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
	}
}

// CreateTicket stores a new OPEN ticket and submits it to the engine.
func (s *TicketService) CreateTicket(ctx context.Context, requesterID string, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}
	category := input.Category
	if category == "" {
		category = domain.CategoryOther
	}

	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		RequesterID: requesterID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Category:    category,
		Tags:        input.Tags,
		Status:      domain.TicketStatusOpen,
	}
	if err := s.store.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    userActor(requesterID),
		Payload: events.TicketCreatedPayload{
			ExternalKey: ticket.ExternalKey,
			Category:    ticket.Category,
			Title:       ticket.Title,
			RequesterID: ticket.RequesterID,
		},
	})

	if err := s.engine.Submit(ctx, ticket.ID); err != nil {
		s.logger.Warn("failed to submit ticket to engine",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	return ticket, nil
}

// ListTicketsForRequester returns a requester's tickets.
func (s *TicketService) ListTicketsForRequester(ctx context.Context, requesterID string, filter TicketListFilter) ([]domain.Ticket, error) {
	tickets, err := s.store.ListWithFilter(ctx, repository.TicketFilter{
		RequesterID: &requesterID,
		Statuses:    filter.Statuses,
		Categories:  filter.Categories,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListTickets returns tickets for staff, unscoped.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	tickets, err := s.store.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:    filter.Statuses,
		Categories:  filter.Categories,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetTicketForRequester fetches a ticket and its history, enforcing
// ownership.
func (s *TicketService) GetTicketForRequester(ctx context.Context, requesterID, ticketID string) (*domain.Ticket, []domain.Interaction, error) {
	ticket, err := s.store.GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	if ticket.RequesterID != requesterID {
		return nil, nil, apperrors.NewForbidden("access denied")
	}
	history, err := s.interactions.ListByTicket(ctx, ticket.ID, 0)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, history, nil
}

// GetTicketByExternalKey fetches a ticket by the human-facing key printed in
// bot conversations and notifications (e.g. "TCK-1A2B3C4D").
func (s *TicketService) GetTicketByExternalKey(ctx context.Context, key string) (*domain.Ticket, []domain.Interaction, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return nil, nil, apperrors.NewValidationError("ticket key required", nil)
	}
	ticket, err := s.store.GetByExternalKey(ctx, key)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	history, err := s.interactions.ListByTicket(ctx, ticket.ID, 0)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, history, nil
}

// GetTicket fetches a ticket and its history for staff.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, []domain.Interaction, error) {
	ticket, err := s.store.GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	history, err := s.interactions.ListByTicket(ctx, ticket.ID, 0)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, history, nil
}

// ReplyInput carries a requester reply. Confirmed distinguishes solution
// feedback ("it worked" / "it didn't") from a plain clarification answer.
type ReplyInput struct {
	Body      string
	Confirmed *bool
}

// AddReply records a requester reply and re-triggers analysis where the
// engine is still in charge of the ticket.
func (s *TicketService) AddReply(ctx context.Context, requesterID, ticketID string, input ReplyInput) (*domain.Interaction, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, apperrors.NewValidationError("body required", nil)
	}

	ticket, err := s.store.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if ticket.RequesterID != requesterID {
		return nil, apperrors.NewForbidden("access denied")
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewConflict("ticket is closed", nil)
	}

	kind := domain.InteractionClarification
	content := map[string]any{"message": body}
	if input.Confirmed != nil {
		kind = domain.InteractionFeedback
		content["confirmed"] = *input.Confirmed
	}

	entry := &domain.Interaction{
		TicketID:  ticket.ID,
		Kind:      kind,
		ActorType: domain.SubjectTypeUser,
		ActorID:   &requesterID,
		Content:   content,
	}
	if err := s.store.WithTicket(ctx, ticket.ID, func(tx repository.TicketTx) error {
		return tx.AppendInteraction(ctx, entry)
	}); err != nil {
		return nil, apperrors.MapError(err)
	}

	if s.shouldRetrigger(ticket.Status, input.Confirmed) {
		if err := s.engine.Submit(ctx, ticket.ID); err != nil {
			s.logger.Warn("failed to re-trigger analysis",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	return entry, nil
}

// shouldRetrigger: clarification answers always re-enter the engine; a
// confirmation on a pending solution waits for the scheduled follow-up
// unless it is negative.
func (s *TicketService) shouldRetrigger(status domain.TicketStatus, confirmed *bool) bool {
	switch status {
	case domain.TicketStatusOpen, domain.TicketStatusClarifying:
		return true
	case domain.TicketStatusSolutionPending, domain.TicketStatusResolved:
		return confirmed != nil && !*confirmed
	default:
		return false
	}
}

// CloseTicket closes a ticket on behalf of a human actor and cancels any
// pending follow-up so it cannot re-open the ticket.
func (s *TicketService) CloseTicket(ctx context.Context, actorType domain.SubjectType, actorID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.store.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if actorType == domain.SubjectTypeUser && ticket.RequesterID != actorID {
		return nil, apperrors.NewForbidden("access denied")
	}
	if ticket.Status == domain.TicketStatusClosed {
		return ticket, nil
	}

	oldStatus := ticket.Status
	err = s.store.WithTicket(ctx, ticket.ID, func(tx repository.TicketTx) error {
		if tx.Ticket().Status == domain.TicketStatusClosed {
			return nil
		}
		if err := tx.UpdateStatus(ctx, domain.TicketStatusClosed); err != nil {
			return err
		}
		return tx.AppendInteraction(ctx, &domain.Interaction{
			TicketID:  ticket.ID,
			Kind:      domain.InteractionCancellation,
			ActorType: actorType,
			ActorID:   &actorID,
			Content:   map[string]any{"reason": "closed by " + strings.ToLower(string(actorType))},
		})
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	if err := s.scheduler.Cancel(ctx, ticket.ID); err != nil {
		s.logger.Warn("failed to cancel pending follow-up",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	ticket.Status = domain.TicketStatusClosed
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actorFor(actorType, actorID),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: domain.TicketStatusClosed,
			Comment:   "closed by " + strings.ToLower(string(actorType)),
		},
	})
	return ticket, nil
}

// ExportCSV streams a staff ticket export.
func (s *TicketService) ExportCSV(ctx context.Context, filter TicketListFilter, w io.Writer) error {
	tickets, err := s.ListTickets(ctx, filter)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{
		"external_key", "requester_id", "title", "category", "tags",
		"status", "assigned_team", "created_at", "updated_at",
	}); err != nil {
		return err
	}
	for i := range tickets {
		ticket := &tickets[i]
		team := ""
		if ticket.AssignedTeam != nil {
			team = *ticket.AssignedTeam
		}
		if err := writer.Write([]string{
			ticket.ExternalKey,
			ticket.RequesterID,
			ticket.Title,
			string(ticket.Category),
			strings.Join(ticket.Tags, ";"),
			string(ticket.Status),
			team,
			ticket.CreatedAt.Format(time.RFC3339),
			ticket.UpdatedAt.Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func userActor(userID string) events.Actor {
	return events.Actor{
		Type:   domain.SubjectTypeUser,
		UserID: &userID,
	}
}

func actorFor(subject domain.SubjectType, id string) events.Actor {
	if subject == domain.SubjectTypeStaff {
		return events.Actor{Type: domain.SubjectTypeStaff, StaffID: &id}
	}
	return userActor(id)
}
