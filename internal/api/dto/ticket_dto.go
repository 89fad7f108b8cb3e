package dto

import (
	"time"

	"github.com/resolvemeq/agent-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    domain.TicketCategory `json:"category"`
	Tags        []string              `json:"tags"`
}

// IngestTicketRequest is the chat-bot variant of ticket creation; the bot
// supplies the requester it acts for.
type IngestTicketRequest struct {
	RequesterID string                `json:"requester_id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    domain.TicketCategory `json:"category"`
	Tags        []string              `json:"tags"`
}

// ReplyRequest payload. Confirmed marks the reply as solution feedback.
type ReplyRequest struct {
	Body      string `json:"body"`
	Confirmed *bool  `json:"confirmed,omitempty"`
}

// TicketSummary response.
type TicketSummary struct {
	ID           string                `json:"id"`
	ExternalKey  string                `json:"external_key"`
	RequesterID  string                `json:"requester_id"`
	Title        string                `json:"title"`
	Category     domain.TicketCategory `json:"category"`
	Tags         []string              `json:"tags"`
	Status       domain.TicketStatus   `json:"status"`
	AssignedTeam *string               `json:"assigned_team,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info with its interaction history.
type TicketDetailResponse struct {
	TicketSummary
	Description  string                `json:"description"`
	AssigneeID   *string               `json:"assignee_id,omitempty"`
	ClosedAt     *time.Time            `json:"closed_at,omitempty"`
	Interactions []InteractionResponse `json:"interactions"`
}

// InteractionResponse represents one audit entry.
type InteractionResponse struct {
	ID        string                 `json:"id"`
	Kind      domain.InteractionKind `json:"kind"`
	ActorType domain.SubjectType     `json:"actor_type"`
	ActorID   *string                `json:"actor_id,omitempty"`
	Decision  *domain.Decision       `json:"decision,omitempty"`
	Content   map[string]any         `json:"content,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
