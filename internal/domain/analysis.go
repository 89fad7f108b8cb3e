package domain

import "strings"

// RecommendedAction is the reasoning service's suggested course of action.
type RecommendedAction string

const (
	ActionAutoResolve RecommendedAction = "auto_resolve"
	ActionEscalate    RecommendedAction = "escalate"
	ActionClarify     RecommendedAction = "clarify"
	ActionAssign      RecommendedAction = "assign"
)

// Solution is the reasoning service's proposed fix.
type Solution struct {
	Steps              []string `json:"steps"`
	EstimatedTime      string   `json:"estimated_time"`
	SuccessProbability float64  `json:"success_probability"`
}

// AnalysisDetail carries the categorization portion of an analysis.
type AnalysisDetail struct {
	Category               string   `json:"category"`
	Severity               string   `json:"severity"`
	Complexity             string   `json:"complexity"`
	SuggestedTeam          string   `json:"suggested_team"`
	ClarificationQuestions []string `json:"clarification_questions"`
}

// Analysis is the ephemeral result of one reasoning-service call. It is not
// persisted on its own; the executor attaches it to the Interaction it
// produces.
type Analysis struct {
	Confidence        float64           `json:"confidence"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	Detail            AnalysisDetail    `json:"analysis"`
	Solution          Solution          `json:"solution"`
	Reasoning         string            `json:"reasoning"`
}

// IsCritical derives the criticality flag fed to the decision policy:
// severe enough to bypass confidence-based clarification.
func (a *Analysis) IsCritical() bool {
	severity := strings.ToLower(a.Detail.Severity)
	if severity == "critical" || severity == "high" {
		return true
	}
	switch strings.ToLower(a.Detail.Category) {
	case "security", "outage", "data_loss":
		return true
	}
	return false
}

// ClarificationQuestions returns the service's guided questions, falling back
// to a generic set when the analysis carries none.
func (a *Analysis) ClarificationQuestions() []string {
	if len(a.Detail.ClarificationQuestions) > 0 {
		return a.Detail.ClarificationQuestions
	}
	return []string{
		"Can you provide more details about the issue?",
		"When did this problem first occur?",
		"What steps have you already tried?",
	}
}
