// Package analysis calls the external reasoning service that classifies
// tickets and proposes resolutions.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/resolvemeq/agent-service/internal/config"
	"github.com/resolvemeq/agent-service/internal/domain"
	apperrors "github.com/resolvemeq/agent-service/pkg/util"
)

// TicketContext is the bounded snapshot sent to the reasoning service.
type TicketContext struct {
	TicketID    string                `json:"ticket_id"`
	ExternalKey string                `json:"external_key"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    domain.TicketCategory `json:"category"`
	Tags        []string              `json:"tags"`
	RequesterID string                `json:"requester_id"`
	History     []HistoryEntry        `json:"history,omitempty"`
}

// HistoryEntry is one prior interaction included in the context window.
type HistoryEntry struct {
	Kind      string         `json:"kind"`
	ActorType string         `json:"actor_type"`
	Content   map[string]any `json:"content"`
}

// Client analyzes tickets. The engine depends on this narrow interface; the
// HTTP implementation below is the only production one.
type Client interface {
	Analyze(ctx context.Context, ticketCtx TicketContext) (*domain.Analysis, error)
}

type httpClient struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPClient builds the production client. Calls carry the configured
// timeout; retrying is safe, the service call has no side effects.
func NewHTTPClient(cfg config.AnalysisConfig, logger *zap.Logger) Client {
	return &httpClient{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout()},
		logger: logger,
	}
}

// Analyze posts the ticket context and decodes the structured analysis.
// Every failure mode (network, timeout, non-2xx, malformed payload) surfaces
// as ANALYSIS_UNAVAILABLE; the engine never fabricates a default analysis.
func (c *httpClient) Analyze(ctx context.Context, ticketCtx TicketContext) (*domain.Analysis, error) {
	body, err := json.Marshal(ticketCtx)
	if err != nil {
		return nil, apperrors.NewAnalysisUnavailable(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewAnalysisUnavailable(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("analysis request failed", zap.String("ticket_id", ticketCtx.TicketID), zap.Error(err))
		return nil, apperrors.NewAnalysisUnavailable(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("analysis service returned %d", resp.StatusCode)
		c.logger.Warn("analysis request rejected", zap.String("ticket_id", ticketCtx.TicketID), zap.Int("status", resp.StatusCode))
		return nil, apperrors.NewAnalysisUnavailable(err)
	}

	var result domain.Analysis
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.NewAnalysisUnavailable(fmt.Errorf("malformed analysis payload: %w", err))
	}
	if err := validate(&result); err != nil {
		return nil, apperrors.NewAnalysisUnavailable(err)
	}
	return &result, nil
}

func validate(a *domain.Analysis) error {
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence %.3f out of range", a.Confidence)
	}
	if p := a.Solution.SuccessProbability; p < 0 || p > 1 {
		return fmt.Errorf("success_probability %.3f out of range", p)
	}
	switch a.RecommendedAction {
	case domain.ActionAutoResolve, domain.ActionEscalate, domain.ActionClarify, domain.ActionAssign:
		return nil
	}
	return fmt.Errorf("unknown recommended_action %q", a.RecommendedAction)
}
