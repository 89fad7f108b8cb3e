// Package agent implements the autonomous decision engine: a pure decision
// policy, an effectful action executor, and the orchestration between
// analysis, decision and follow-up.
package agent

import (
	"github.com/resolvemeq/agent-service/internal/config"
	"github.com/resolvemeq/agent-service/internal/domain"
)

// PolicyConfig carries the confidence thresholds the decision table is
// evaluated against. Deployment-tunable, never read from process-wide state.
type PolicyConfig struct {
	HighConfidence        float64
	MediumConfidence      float64
	MinSuccessProbability float64
}

// PolicyFromConfig extracts the policy thresholds from the agent config.
func PolicyFromConfig(cfg config.AgentConfig) PolicyConfig {
	return PolicyConfig{
		HighConfidence:        cfg.HighConfidence,
		MediumConfidence:      cfg.MediumConfidence,
		MinSuccessProbability: cfg.MinSuccessProbability,
	}
}

// PolicyInput bundles the analysis signals the policy decides on.
// Criticality is derived outside the policy (severity/category/tags) and
// passed in.
type PolicyInput struct {
	Confidence         float64
	RecommendedAction  domain.RecommendedAction
	SuccessProbability float64
	IsCritical         bool
	SuggestedTeam      string
}

// Decide maps analysis signals to exactly one autonomous action. Pure and
// total: no side effects, deterministic, an answer for every input.
//
// Rules, first match wins; confidence bands have inclusive lower bounds:
//
//	high confidence + auto_resolve + high success probability -> AUTO_RESOLVE
//	high confidence + escalate                                -> AUTO_ESCALATE
//	high confidence + assign + identified team                -> AUTO_ASSIGN
//	medium confidence or better                               -> SOLUTION_WITH_FOLLOWUP
//	below medium, critical                                    -> AUTO_ESCALATE
//	below medium, not critical                                -> REQUEST_CLARIFICATION
//
// High-confidence leftovers (auto_resolve with a weak solution, assign with
// no team identified, a clarify recommendation) fall into the
// medium-confidence band: propose the solution and verify with a follow-up.
func Decide(cfg PolicyConfig, in PolicyInput) domain.Decision {
	if in.Confidence >= cfg.HighConfidence {
		switch {
		case in.RecommendedAction == domain.ActionAutoResolve && in.SuccessProbability >= cfg.MinSuccessProbability:
			return domain.DecisionAutoResolve
		case in.RecommendedAction == domain.ActionEscalate:
			return domain.DecisionAutoEscalate
		case in.RecommendedAction == domain.ActionAssign && in.SuggestedTeam != "":
			return domain.DecisionAutoAssign
		}
	}
	if in.Confidence >= cfg.MediumConfidence {
		return domain.DecisionSolutionWithFollowup
	}
	if in.IsCritical {
		return domain.DecisionAutoEscalate
	}
	return domain.DecisionRequestClarification
}
