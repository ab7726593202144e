package audit

import "argus/core"

// Convenience constructors for the common event families. Each builds a
// SecurityEvent and funnels it through Log; callers needing full control
// over the event fields use Log directly.

// LogAuthSuccess records a successful authentication.
func (p *Pipeline) LogAuthSuccess(actorID, sourceAddress, sourceAgent string, details map[string]interface{}) {
	e := core.NewSecurityEvent(core.EventAuthSuccess)
	e.ActorID = actorID
	e.SourceAddress = sourceAddress
	e.SourceAgent = sourceAgent
	e.Action = "auth_attempt"
	e.Outcome = core.OutcomeSuccess
	mergeDetails(e, details)
	p.Log(e)
}

// LogAuthFailure records a failed authentication attempt.
func (p *Pipeline) LogAuthFailure(actorID, sourceAddress, sourceAgent, reason string) {
	e := core.NewSecurityEvent(core.EventAuthFailure)
	e.ActorID = actorID
	e.SourceAddress = sourceAddress
	e.SourceAgent = sourceAgent
	e.Action = "auth_failure"
	e.Outcome = core.OutcomeFailure
	if reason != "" {
		e.Details["reason"] = reason
	}
	p.Log(e)
}

// LogPrivilegeEscalation records an attempt to gain elevated privileges.
func (p *Pipeline) LogPrivilegeEscalation(actorID, targetPrivilege string, success bool, details map[string]interface{}) {
	e := core.NewSecurityEvent(core.EventPrivilegeEscalation)
	e.ActorID = actorID
	e.Action = "privilege_escalation"
	e.Details["target_privilege"] = targetPrivilege
	if success {
		e.Outcome = core.OutcomeSuccess
	} else {
		e.Outcome = core.OutcomeFailure
	}
	mergeDetails(e, details)
	p.Log(e)
}

// LogPrivilegeUse records the exercise of an already-held privilege.
func (p *Pipeline) LogPrivilegeUse(actorID, privilege string, details map[string]interface{}) {
	e := core.NewSecurityEvent(core.EventPrivilegeUse)
	e.ActorID = actorID
	e.Action = privilege
	e.Outcome = core.OutcomeSuccess
	mergeDetails(e, details)
	p.Log(e)
}

// LogResourceAccess records access to a resource.
func (p *Pipeline) LogResourceAccess(actorID, resourceID, resourceType, action string, outcome core.Outcome) {
	var eventType core.EventType
	if p.sensitive != nil && p.sensitive.SensitiveResource(resourceType) {
		eventType = core.EventSensitiveDataAccess
	} else {
		eventType = core.EventResourceAccess
	}
	e := core.NewSecurityEvent(eventType)
	e.ActorID = actorID
	e.ResourceID = resourceID
	e.ResourceType = resourceType
	e.Action = "access_" + resourceType
	e.Outcome = outcome
	if action != "" {
		e.Details["operation"] = action
	}
	p.Log(e)
}

// LogSuspiciousActivity records behavior flagged by a caller's own
// heuristics.
func (p *Pipeline) LogSuspiciousActivity(actorID, description string, details map[string]interface{}) {
	e := core.NewSecurityEvent(core.EventSuspiciousActivity)
	e.ActorID = actorID
	e.Details["description"] = description
	mergeDetails(e, details)
	p.Log(e)
}

// LogTokenValidation records the outcome of a credential or token check.
func (p *Pipeline) LogTokenValidation(actorID string, outcome core.Outcome, details map[string]interface{}) {
	e := core.NewSecurityEvent(core.EventTokenValidation)
	e.ActorID = actorID
	e.Action = "token_validation"
	e.Outcome = outcome
	mergeDetails(e, details)
	p.Log(e)
}

// LogActionVerification records an explicit verification result supplied
// by the caller, bypassing fallback synthesis.
func (p *Pipeline) LogActionVerification(actorID, action string, v *core.Verification, outcome core.Outcome) {
	e := core.NewSecurityEvent(core.EventActionVerification)
	e.ActorID = actorID
	e.Action = action
	e.Outcome = outcome
	e.Verification = v
	p.Log(e)
}

// LogImpersonationAttempt records an actor attempting to act as another.
func (p *Pipeline) LogImpersonationAttempt(actorID, targetActorID, sourceAddress string) {
	e := core.NewSecurityEvent(core.EventImpersonationAttempt)
	e.ActorID = actorID
	e.SourceAddress = sourceAddress
	e.Outcome = core.OutcomeBlocked
	e.Details["target_actor_id"] = targetActorID
	p.Log(e)
}

// LogAPIAbuse records misuse of a service API, such as scraping or
// repeated malformed requests.
func (p *Pipeline) LogAPIAbuse(actorID, endpoint, sourceAddress string, details map[string]interface{}) {
	e := core.NewSecurityEvent(core.EventAPIAbuse)
	e.ActorID = actorID
	e.SourceAddress = sourceAddress
	e.Action = "api_call"
	e.Outcome = core.OutcomeBlocked
	e.Details["endpoint"] = endpoint
	mergeDetails(e, details)
	p.Log(e)
}

// LogConfigurationChange records a change to system configuration.
func (p *Pipeline) LogConfigurationChange(actorID, setting string, details map[string]interface{}) {
	e := core.NewSecurityEvent(core.EventConfigurationChange)
	e.ActorID = actorID
	e.Action = "configuration_change"
	e.Outcome = core.OutcomeSuccess
	e.Details["setting"] = setting
	mergeDetails(e, details)
	p.Log(e)
}

func mergeDetails(e *core.SecurityEvent, details map[string]interface{}) {
	for k, v := range details {
		e.Details[k] = v
	}
}
