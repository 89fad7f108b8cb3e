package domain

// Decision is the output of the decision policy. Transient: it is not stored
// as its own entity, but the chosen value is recorded on the Interaction it
// produces.
type Decision string

const (
	DecisionAutoResolve          Decision = "AUTO_RESOLVE"
	DecisionAutoEscalate         Decision = "AUTO_ESCALATE"
	DecisionSolutionWithFollowup Decision = "SOLUTION_WITH_FOLLOWUP"
	DecisionRequestClarification Decision = "REQUEST_CLARIFICATION"
	DecisionAutoAssign           Decision = "AUTO_ASSIGN"
)
