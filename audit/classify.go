package audit

import (
	"argus/core"
)

// Anomaly score breakpoints feeding severity classification.
const (
	anomalyHighThreshold   = 80.0
	anomalyMediumThreshold = 60.0
	anomalyLowThreshold    = 40.0
)

// Recent-failure counts escalating repeated auth failures.
const (
	failureCountHigh   = 5
	failureCountMedium = 3
)

// SeverityClassifier assigns severity to events. Classification is a pure
// function of the event, the recent same-type failure count for its actor,
// and the anomaly score; it performs no I/O.
type SeverityClassifier struct {
	sensitive *core.SensitivityIndex
}

// NewSeverityClassifier creates a classifier using the given sensitivity
// lists.
func NewSeverityClassifier(sensitive *core.SensitivityIndex) *SeverityClassifier {
	return &SeverityClassifier{sensitive: sensitive}
}

// Classify applies the priority decision table, first match wins:
//
//  1. Impersonation attempts are always critical.
//  2. Privilege escalation is high on success, medium otherwise.
//  3. Repeated auth failures escalate by recent count.
//  4. Sensitive actions are at least medium.
//  5. Sensitive resources are at least medium.
//  6. Failed action verification is high.
//  7. The anomaly score maps through the 80/60/40 breakpoints when the
//     event carries an actor.
//  8. Otherwise the per-type default applies.
func (sc *SeverityClassifier) Classify(e *core.SecurityEvent, recentFailures int, anomalyScore float64) core.Severity {
	switch {
	case e.Type == core.EventImpersonationAttempt:
		return core.SeverityCritical

	case e.Type == core.EventPrivilegeEscalation:
		if e.Outcome == core.OutcomeSuccess {
			return core.SeverityHigh
		}
		return core.SeverityMedium

	case e.Type == core.EventAuthFailure && recentFailures >= failureCountHigh:
		return core.SeverityHigh

	case e.Type == core.EventAuthFailure && recentFailures >= failureCountMedium:
		return core.SeverityMedium
	}

	// Sensitive actions and resources floor the remaining rules at medium
	// rather than short-circuiting: a stricter later match still wins.
	if sc.sensitive != nil &&
		(sc.sensitive.SensitiveAction(e.Action) ||
			(e.ResourceType != "" && sc.sensitive.SensitiveResource(e.ResourceType))) {
		return core.MaxSeverity(core.SeverityMedium, sc.classifyRest(e, anomalyScore))
	}

	return sc.classifyRest(e, anomalyScore)
}

// classifyRest evaluates the verification, anomaly and per-type default
// rules.
func (sc *SeverityClassifier) classifyRest(e *core.SecurityEvent, anomalyScore float64) core.Severity {
	if e.Type == core.EventActionVerification && e.Verification != nil && !e.Verification.Verified {
		return core.SeverityHigh
	}

	// The anomaly breakpoints only apply to attributed events; anonymous
	// traffic has no baseline to deviate from.
	if e.ActorID != "" {
		switch {
		case anomalyScore >= anomalyHighThreshold:
			return core.SeverityHigh
		case anomalyScore >= anomalyMediumThreshold:
			return core.SeverityMedium
		case anomalyScore >= anomalyLowThreshold:
			return core.SeverityLow
		}
	}

	switch e.Type {
	case core.EventAuthSuccess:
		return core.SeverityInfo
	case core.EventAuthFailure:
		return core.SeverityLow
	case core.EventSuspiciousActivity:
		return core.SeverityMedium
	case core.EventRateLimitExceeded:
		return core.SeverityLow
	case core.EventAPIAbuse:
		return core.SeverityMedium
	case core.EventTokenValidation:
		if e.Outcome == core.OutcomeFailure {
			return core.SeverityMedium
		}
		return core.SeverityInfo
	default:
		return core.SeverityInfo
	}
}
