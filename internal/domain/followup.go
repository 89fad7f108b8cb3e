package domain

import "time"

// FollowUpTask is a scheduled re-evaluation of a ticket after an autonomous
// action: "did the solution work?". Consumed once, then either closes the
// ticket or re-enters the engine. At most one task is pending per ticket.
type FollowUpTask struct {
	TicketID      string    `json:"ticket_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	DueAt         time.Time `json:"due_at"`
	ScheduledFor  Decision  `json:"scheduled_for"`
	SolutionSteps []string  `json:"solution_steps"`
	Critical      bool      `json:"critical"`
	Attempt       int       `json:"attempt"`
}

// Confirmation classifies the requester's reaction to a proposed solution at
// follow-up time.
type Confirmation string

const (
	ConfirmationPositive Confirmation = "POSITIVE"
	ConfirmationNegative Confirmation = "NEGATIVE"
	ConfirmationNone     Confirmation = "NONE"
)
