package domain

import "time"

// SubjectType distinguishes authenticated principals and interaction actors.
type SubjectType string

const (
	SubjectTypeUser    SubjectType = "END_USER"
	SubjectTypeStaff   SubjectType = "STAFF"
	SubjectTypeSystem  SubjectType = "SYSTEM"
	SubjectTypeService SubjectType = "SERVICE"
)

// InteractionKind enumerates the kinds of audit entries a ticket accrues.
type InteractionKind string

const (
	InteractionAgentResponse InteractionKind = "agent_response"
	InteractionClarification InteractionKind = "clarification"
	InteractionFeedback      InteractionKind = "feedback"
	InteractionEscalation    InteractionKind = "escalation"
	InteractionFollowUp      InteractionKind = "follow_up"
	InteractionCancellation  InteractionKind = "cancellation"
	InteractionAssignment    InteractionKind = "assignment"
	InteractionPendingReview InteractionKind = "pending_review"
)

// Interaction is one immutable audit entry on a ticket's history. The engine
// records the Decision that produced system-authored entries so every
// autonomous action stays explainable after the fact.
type Interaction struct {
	ID        string
	TicketID  string
	Kind      InteractionKind
	ActorType SubjectType
	ActorID   *string
	Decision  *Decision
	Content   map[string]any
	CreatedAt time.Time
}
