package events

import (
	"time"

	"github.com/resolvemeq/agent-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventAgentDecision       EventType = "agent_decision"
	EventAnalysisFailed      EventType = "analysis_failed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	UserID  *string            `json:"user_id,omitempty"`
	StaffID *string            `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by the engine and services.
// Downstream consumers (notifications, knowledge-base sync) subscribe to
// these rather than being called from the core.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	ExternalKey string                `json:"external_key"`
	Category    domain.TicketCategory `json:"category"`
	Title       string                `json:"title"`
	RequesterID string                `json:"requester_id"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	Team       *string `json:"team,omitempty"`
	AssigneeID *string `json:"assignee_id,omitempty"`
}

// AgentDecisionPayload records an applied autonomous decision for
// downstream consumers.
type AgentDecisionPayload struct {
	Decision      domain.Decision     `json:"decision"`
	OldStatus     domain.TicketStatus `json:"old_status"`
	NewStatus     domain.TicketStatus `json:"new_status"`
	RequesterID   string              `json:"requester_id"`
	AssignedTeam  *string             `json:"assigned_team,omitempty"`
	Confidence    float64             `json:"confidence"`
	Reasoning     string              `json:"reasoning,omitempty"`
	SolutionSteps []string            `json:"solution_steps,omitempty"`
	Title         string              `json:"title"`
	Category      string              `json:"category"`
	Tags          []string            `json:"tags,omitempty"`
}

// AnalysisFailedPayload marks a ticket awaiting human review because the
// reasoning service was unavailable.
type AnalysisFailedPayload struct {
	RequesterID string `json:"requester_id"`
	Reason      string `json:"reason"`
}
