package audit

import (
	"testing"

	"argus/core"

	"github.com/stretchr/testify/assert"
)

func classifierEvent(eventType core.EventType) *core.SecurityEvent {
	e := core.NewSecurityEvent(eventType)
	e.ActorID = "user-1"
	return e
}

func TestClassifyPriorityTable(t *testing.T) {
	sc := NewSeverityClassifier(testSensitivityIndex())

	tests := []struct {
		name           string
		event          *core.SecurityEvent
		recentFailures int
		anomalyScore   float64
		expected       core.Severity
	}{
		{
			name:     "impersonation always critical",
			event:    classifierEvent(core.EventImpersonationAttempt),
			expected: core.SeverityCritical,
		},
		{
			name: "impersonation outranks everything else",
			event: func() *core.SecurityEvent {
				e := classifierEvent(core.EventImpersonationAttempt)
				e.Action = "delete_user"
				return e
			}(),
			anomalyScore: 0,
			expected:     core.SeverityCritical,
		},
		{
			name: "successful privilege escalation is high",
			event: func() *core.SecurityEvent {
				e := classifierEvent(core.EventPrivilegeEscalation)
				e.Outcome = core.OutcomeSuccess
				return e
			}(),
			expected: core.SeverityHigh,
		},
		{
			name: "failed privilege escalation is medium",
			event: func() *core.SecurityEvent {
				e := classifierEvent(core.EventPrivilegeEscalation)
				e.Outcome = core.OutcomeFailure
				return e
			}(),
			expected: core.SeverityMedium,
		},
		{
			name:           "five recent auth failures are high",
			event:          classifierEvent(core.EventAuthFailure),
			recentFailures: 5,
			expected:       core.SeverityHigh,
		},
		{
			name:           "three recent auth failures are medium",
			event:          classifierEvent(core.EventAuthFailure),
			recentFailures: 3,
			expected:       core.SeverityMedium,
		},
		{
			name:           "isolated auth failure is low",
			event:          classifierEvent(core.EventAuthFailure),
			recentFailures: 0,
			expected:       core.SeverityLow,
		},
		{
			name: "sensitive action floors at medium",
			event: func() *core.SecurityEvent {
				e := classifierEvent(core.EventResourceAccess)
				e.Action = "delete_user"
				return e
			}(),
			expected: core.SeverityMedium,
		},
		{
			name: "sensitive resource floors at medium",
			event: func() *core.SecurityEvent {
				e := classifierEvent(core.EventResourceAccess)
				e.ResourceType = "credentials"
				return e
			}(),
			expected: core.SeverityMedium,
		},
		{
			name: "sensitive action with high anomaly escalates past the floor",
			event: func() *core.SecurityEvent {
				e := classifierEvent(core.EventResourceAccess)
				e.Action = "delete_user"
				return e
			}(),
			anomalyScore: 85,
			expected:     core.SeverityHigh,
		},
		{
			name: "failed verification is high",
			event: func() *core.SecurityEvent {
				e := classifierEvent(core.EventActionVerification)
				e.Verification = &core.Verification{Verified: false}
				return e
			}(),
			expected: core.SeverityHigh,
		},
		{
			name: "passed verification falls through to default",
			event: func() *core.SecurityEvent {
				e := classifierEvent(core.EventActionVerification)
				e.Verification = &core.Verification{Verified: true}
				return e
			}(),
			expected: core.SeverityInfo,
		},
		{
			name:     "auth success defaults to info",
			event:    classifierEvent(core.EventAuthSuccess),
			expected: core.SeverityInfo,
		},
		{
			name:     "suspicious activity defaults to medium",
			event:    classifierEvent(core.EventSuspiciousActivity),
			expected: core.SeverityMedium,
		},
		{
			name:     "rate limit exceeded defaults to low",
			event:    classifierEvent(core.EventRateLimitExceeded),
			expected: core.SeverityLow,
		},
		{
			name: "failed token validation is medium",
			event: func() *core.SecurityEvent {
				e := classifierEvent(core.EventTokenValidation)
				e.Outcome = core.OutcomeFailure
				return e
			}(),
			expected: core.SeverityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sc.Classify(tt.event, tt.recentFailures, tt.anomalyScore)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestClassifyAnomalyBreakpoints(t *testing.T) {
	sc := NewSeverityClassifier(testSensitivityIndex())

	tests := []struct {
		score    float64
		expected core.Severity
	}{
		{95, core.SeverityHigh},
		{80, core.SeverityHigh},
		{79.9, core.SeverityMedium},
		{60, core.SeverityMedium},
		{59.9, core.SeverityLow},
		{40, core.SeverityLow},
		{39.9, core.SeverityInfo},
		{0, core.SeverityInfo},
	}

	for _, tt := range tests {
		e := classifierEvent(core.EventResourceAccess)
		got := sc.Classify(e, 0, tt.score)
		assert.Equal(t, tt.expected, got, "score %.1f", tt.score)
	}
}

func TestClassifySeverityMonotonicInAnomalyScore(t *testing.T) {
	sc := NewSeverityClassifier(testSensitivityIndex())

	prev := -1
	for score := 0.0; score <= 100; score += 5 {
		e := classifierEvent(core.EventResourceAccess)
		rank := sc.Classify(e, 0, score).Rank()
		assert.GreaterOrEqual(t, rank, prev, "severity must not decrease as the score rises")
		prev = rank
	}
}

func TestClassifyAnonymousEventsSkipAnomalyRules(t *testing.T) {
	sc := NewSeverityClassifier(testSensitivityIndex())

	e := core.NewSecurityEvent(core.EventResourceAccess)
	assert.Equal(t, core.SeverityInfo, sc.Classify(e, 0, 95),
		"events without an actor have no baseline to deviate from")
}
