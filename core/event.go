package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of security-relevant occurrence an event records.
type EventType string

const (
	EventAuthSuccess          EventType = "auth-success"
	EventAuthFailure          EventType = "auth-failure"
	EventPrivilegeEscalation  EventType = "privilege-escalation"
	EventPrivilegeUse         EventType = "privilege-use"
	EventSuspiciousActivity   EventType = "suspicious-activity"
	EventResourceAccess       EventType = "resource-access"
	EventAgentAccess          EventType = "agent-access"
	EventIntegrationAccess    EventType = "integration-access"
	EventConfigurationChange  EventType = "configuration-change"
	EventSensitiveDataAccess  EventType = "sensitive-data-access"
	EventImpersonationAttempt EventType = "impersonation-attempt"
	EventRateLimitExceeded    EventType = "rate-limit-exceeded"
	EventAPIAbuse             EventType = "api-abuse"
	EventTokenValidation      EventType = "token-validation"
	EventActionVerification   EventType = "action-verification"
)

// AllEventTypes lists every recognized event type.
var AllEventTypes = []EventType{
	EventAuthSuccess, EventAuthFailure, EventPrivilegeEscalation,
	EventPrivilegeUse, EventSuspiciousActivity, EventResourceAccess,
	EventAgentAccess, EventIntegrationAccess, EventConfigurationChange,
	EventSensitiveDataAccess, EventImpersonationAttempt, EventRateLimitExceeded,
	EventAPIAbuse, EventTokenValidation, EventActionVerification,
}

// IsValid checks if the event type is one of the recognized values.
func (t EventType) IsValid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// String returns the string representation.
func (t EventType) String() string {
	return string(t)
}

// Outcome records how the audited operation concluded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeBlocked Outcome = "blocked"
)

// Verification is a structured attestation that an action was confirmed
// by an external action-verification system. When a sensitive action is
// logged without one, the pipeline synthesizes an unverified marker.
type Verification struct {
	Verified  bool   `json:"verified"`
	Stem      string `json:"stem"`
	Action    string `json:"action"`
	Signature string `json:"signature,omitempty"`
}

// SecurityEvent is a single audited occurrence. It is immutable once it
// leaves the pipeline; Severity is assigned by the classifier, never by
// the caller.
type SecurityEvent struct {
	EventID         string                 `json:"event_id"`
	Type            EventType              `json:"type"`
	Severity        Severity               `json:"severity"`
	Timestamp       time.Time              `json:"timestamp"`
	ActorID         string                 `json:"actor_id,omitempty"`
	ActorTrustLevel string                 `json:"actor_trust_level,omitempty"`
	SourceAddress   string                 `json:"source_address,omitempty"`
	SourceAgent     string                 `json:"source_agent,omitempty"`
	GeoLocation     string                 `json:"geo_location,omitempty"`
	ResourceID      string                 `json:"resource_id,omitempty"`
	ResourceType    string                 `json:"resource_type,omitempty"`
	Action          string                 `json:"action,omitempty"`
	Outcome         Outcome                `json:"outcome"`
	Details         map[string]interface{} `json:"details,omitempty"`
	Verification    *Verification          `json:"verification,omitempty"`
}

// NewSecurityEvent creates a new SecurityEvent with a generated UUID and
// the current UTC time.
func NewSecurityEvent(eventType EventType) *SecurityEvent {
	return &SecurityEvent{
		EventID:   uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Details:   make(map[string]interface{}),
	}
}
