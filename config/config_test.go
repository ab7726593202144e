package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Audit.MinSeverityStorage)
	assert.Equal(t, "high", cfg.Audit.MinSeverityAlert)
	assert.Equal(t, 1000, cfg.Audit.MaxEventsInMemory)
	assert.True(t, cfg.Audit.ActionVerificationRequired)
	assert.True(t, cfg.Audit.AnomalyDetectionEnabled)
	assert.True(t, cfg.Audit.BehaviorBaselineEnabled)
	assert.Equal(t, 60*time.Second, cfg.Audit.FlushInterval)
	assert.Equal(t, time.Hour, cfg.Audit.RateLimitSweepInterval)
	assert.InDelta(t, 0.1, cfg.Audit.BaselineSampleRate, 0.001)
	assert.Equal(t, "http://localhost:8080/api/security/alerts", cfg.Sinks.AlertURL)
	assert.Equal(t, 8081, cfg.API.Port)
	assert.False(t, cfg.API.RateLimit.Redis.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "argus.yaml")
	content := `audit:
  min_severity_alert: medium
  max_events_in_memory: 250
  sensitive_actions:
    - delete_user
sinks:
  alert_url: http://alerts.internal/api/security/alerts
api:
  port: 9090
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "medium", cfg.Audit.MinSeverityAlert)
	assert.Equal(t, 250, cfg.Audit.MaxEventsInMemory)
	assert.Equal(t, []string{"delete_user"}, cfg.Audit.SensitiveActions)
	assert.Equal(t, "http://alerts.internal/api/security/alerts", cfg.Sinks.AlertURL)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched keys keep their defaults.
	assert.Equal(t, "info", cfg.Audit.MinSeverityStorage)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ARGUS_API_PORT", "7070")
	t.Setenv("ARGUS_AUDIT_MIN_SEVERITY_ALERT", "critical")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.API.Port)
	assert.Equal(t, "critical", cfg.Audit.MinSeverityAlert)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad severity", "audit:\n  min_severity_alert: urgent\n"},
		{"zero buffer", "audit:\n  max_events_in_memory: 0\n"},
		{"bad port", "api:\n  port: 99999\n"},
		{"bad sample rate", "audit:\n  baseline_sample_rate: 1.5\n"},
		{"bad log level", "log:\n  level: verbose\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "argus.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
