package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/resolvemeq/agent-service/internal/config"
	"github.com/resolvemeq/agent-service/internal/domain"
	apperrors "github.com/resolvemeq/agent-service/pkg/util"
)

func newTestClient(url string) Client {
	return NewHTTPClient(config.AnalysisConfig{URL: url, TimeoutSeconds: 2}, zap.NewNop())
}

func sampleContext() TicketContext {
	return TicketContext{
		TicketID:    "t-1",
		Title:       "VPN keeps dropping",
		Description: "Disconnects every few minutes",
		Category:    domain.CategoryVPN,
		RequesterID: "user-1",
	}
}

func TestAnalyzeDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"confidence": 0.87,
			"recommended_action": "auto_resolve",
			"analysis": {"category": "vpn", "severity": "low", "suggested_team": "Network"},
			"solution": {"steps": ["restart client"], "estimated_time": "5 minutes", "success_probability": 0.9},
			"reasoning": "known issue"
		}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).Analyze(context.Background(), sampleContext())
	require.NoError(t, err)
	assert.Equal(t, 0.87, result.Confidence)
	assert.Equal(t, domain.ActionAutoResolve, result.RecommendedAction)
	assert.Equal(t, "Network", result.Detail.SuggestedTeam)
	assert.Equal(t, 0.9, result.Solution.SuccessProbability)
	assert.False(t, result.IsCritical())
}

func TestAnalyzeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Analyze(context.Background(), sampleContext())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "ANALYSIS_UNAVAILABLE"))
}

func TestAnalyzeMalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"confidence": `))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Analyze(context.Background(), sampleContext())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "ANALYSIS_UNAVAILABLE"))
}

func TestAnalyzeRejectsOutOfRangeValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"confidence": 1.4, "recommended_action": "escalate"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Analyze(context.Background(), sampleContext())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "ANALYSIS_UNAVAILABLE"))
}

func TestAnalyzeRejectsUnknownAction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"confidence": 0.5, "recommended_action": "reboot_everything"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Analyze(context.Background(), sampleContext())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "ANALYSIS_UNAVAILABLE"))
}

func TestAnalyzeUnreachableService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newTestClient(server.URL).Analyze(context.Background(), sampleContext())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "ANALYSIS_UNAVAILABLE"))
}
