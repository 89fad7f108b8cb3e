package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 0.8, cfg.Agent.HighConfidence)
	assert.Equal(t, 0.6, cfg.Agent.MediumConfidence)
	assert.Equal(t, 0.8, cfg.Agent.MinSuccessProbability)
	assert.Equal(t, "IT Support", cfg.Agent.DefaultTeam)
	assert.Equal(t, 15*time.Minute, cfg.Agent.FollowUpBuffer())
	assert.Equal(t, time.Hour, cfg.Agent.GraceWindow())
	assert.Equal(t, 5*time.Second, cfg.Agent.PollInterval())
	assert.Equal(t, time.Minute, cfg.Agent.LockTTL())
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AGENT_HIGH_CONFIDENCE", "0.9")
	t.Setenv("AGENT_WORKERS", "8")
	t.Setenv("AGENT_DEFAULT_TEAM", "Platform")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Agent.HighConfidence)
	assert.Equal(t, 8, cfg.Agent.Workers)
	assert.Equal(t, "Platform", cfg.Agent.DefaultTeam)
}

func TestLoadRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("AGENT_HIGH_CONFIDENCE", "0.5")
	t.Setenv("AGENT_MEDIUM_CONFIDENCE", "0.7")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadIgnoresInvalidNumericValues(t *testing.T) {
	t.Setenv("AGENT_WORKERS", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Agent.Workers)
}
