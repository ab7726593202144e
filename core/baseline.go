package core

import "time"

// UserBehaviorBaseline is the learned historical behavior profile for one
// actor, used as the reference point for anomaly scoring. It is created
// lazily on the actor's first event and never explicitly deleted; durable
// retention is owned by the store behind it.
type UserBehaviorBaseline struct {
	ActorID    string `json:"actor_id"`
	TrustLevel string `json:"trust_level,omitempty"`

	// Bounded dedup lists of recently observed values, FIFO-evicted at
	// BaselineListCapacity entries.
	KnownAddresses []string `json:"known_addresses"`
	KnownLocations []string `json:"known_locations"`
	KnownAgents    []string `json:"known_agents"`

	// Activity histograms.
	HourOfDay [24]int64 `json:"hour_of_day"`
	DayOfWeek [7]int64  `json:"day_of_week"`

	// Open frequency maps. Cardinality is bounded by the action/resource
	// taxonomy, so no cap is applied.
	ActionFrequency   map[string]int64 `json:"action_frequency"`
	ResourceFrequency map[string]int64 `json:"resource_frequency"`

	LastActivityAt time.Time `json:"last_activity_at"`
	RiskScore      float64   `json:"risk_score"`
}

// NewUserBehaviorBaseline creates an empty baseline for an actor.
func NewUserBehaviorBaseline(actorID string) *UserBehaviorBaseline {
	return &UserBehaviorBaseline{
		ActorID:           actorID,
		RiskScore:         UnknownActorRiskScore,
		ActionFrequency:   make(map[string]int64),
		ResourceFrequency: make(map[string]int64),
	}
}

// appendBounded adds v to list unless already present, evicting the oldest
// entry once the list exceeds capacity.
func appendBounded(list []string, v string, capacity int) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	list = append(list, v)
	if len(list) > capacity {
		list = list[1:]
	}
	return list
}

func contains(list []string, v string) bool {
	for _, existing := range list {
		if existing == v {
			return true
		}
	}
	return false
}

// RecordAddress observes a source address.
func (b *UserBehaviorBaseline) RecordAddress(addr string) {
	b.KnownAddresses = appendBounded(b.KnownAddresses, addr, BaselineListCapacity)
}

// RecordLocation observes a geo location.
func (b *UserBehaviorBaseline) RecordLocation(loc string) {
	b.KnownLocations = appendBounded(b.KnownLocations, loc, BaselineListCapacity)
}

// RecordAgent observes a client agent string.
func (b *UserBehaviorBaseline) RecordAgent(agent string) {
	b.KnownAgents = appendBounded(b.KnownAgents, agent, BaselineListCapacity)
}

// KnowsAddress reports whether the address has been seen recently.
func (b *UserBehaviorBaseline) KnowsAddress(addr string) bool {
	return contains(b.KnownAddresses, addr)
}

// KnowsLocation reports whether the location has been seen recently.
func (b *UserBehaviorBaseline) KnowsLocation(loc string) bool {
	return contains(b.KnownLocations, loc)
}

// KnowsAgent reports whether the agent string has been seen recently.
func (b *UserBehaviorBaseline) KnowsAgent(agent string) bool {
	return contains(b.KnownAgents, agent)
}

// HourSampleTotal returns the total number of hour-of-day observations.
func (b *UserBehaviorBaseline) HourSampleTotal() int64 {
	var total int64
	for _, n := range b.HourOfDay {
		total += n
	}
	return total
}

// DaySampleTotal returns the total number of day-of-week observations.
func (b *UserBehaviorBaseline) DaySampleTotal() int64 {
	var total int64
	for _, n := range b.DayOfWeek {
		total += n
	}
	return total
}

// ActionSampleTotal returns the total number of action observations.
func (b *UserBehaviorBaseline) ActionSampleTotal() int64 {
	var total int64
	for _, n := range b.ActionFrequency {
		total += n
	}
	return total
}

// ResourceSampleTotal returns the total number of resource-type observations.
func (b *UserBehaviorBaseline) ResourceSampleTotal() int64 {
	var total int64
	for _, n := range b.ResourceFrequency {
		total += n
	}
	return total
}

// Clone returns a deep copy safe to read outside the tracker's lock.
func (b *UserBehaviorBaseline) Clone() *UserBehaviorBaseline {
	c := *b
	c.KnownAddresses = append([]string(nil), b.KnownAddresses...)
	c.KnownLocations = append([]string(nil), b.KnownLocations...)
	c.KnownAgents = append([]string(nil), b.KnownAgents...)
	c.ActionFrequency = make(map[string]int64, len(b.ActionFrequency))
	for k, v := range b.ActionFrequency {
		c.ActionFrequency[k] = v
	}
	c.ResourceFrequency = make(map[string]int64, len(b.ResourceFrequency))
	for k, v := range b.ResourceFrequency {
		c.ResourceFrequency[k] = v
	}
	return &c
}
