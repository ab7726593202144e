package audit

import (
	"argus/core"
)

// Factor weights for the anomaly score. Flat weights apply when the
// observed value has never been seen in the actor's baseline.
const (
	weightUnseenAddress  = 70.0
	weightUnseenLocation = 60.0
	weightUnseenAgent    = 40.0
	weightUnseenAction   = 80.0
	weightUnseenResource = 60.0
	weightRapidChange    = 100.0
	weightPrivilegeEvent = 50.0
	weightSensitiveRes   = 40.0
)

// AnomalyScorer scores events against the actor's behavior baseline. The
// additive-then-averaged design keeps a single strong signal (such as a
// rapid location change) from being diluted by many weak ones while still
// normalizing for how many signals were observable.
type AnomalyScorer struct {
	tracker   *BaselineTracker
	sensitive *core.SensitivityIndex
}

// NewAnomalyScorer creates a scorer reading from the given tracker.
func NewAnomalyScorer(tracker *BaselineTracker, sensitive *core.SensitivityIndex) *AnomalyScorer {
	return &AnomalyScorer{tracker: tracker, sensitive: sensitive}
}

// Score computes a risk score in [0, 100] for the event. Actors without a
// baseline score a fixed 50: neither alarmed nor ignored. Each factor that
// contributes adds its weight to a running total, which is then divided by
// the number of contributing factors and clamped.
func (as *AnomalyScorer) Score(actorID string, e *core.SecurityEvent) float64 {
	baseline, ok := as.tracker.Get(actorID)
	if !ok {
		return core.UnknownActorRiskScore
	}

	var total float64
	factors := 0
	add := func(contribution float64) {
		if contribution > 0 {
			total += contribution
			factors++
		}
	}

	// Time-of-day rarity: 0 for a uniformly typical hour, 100 for an hour
	// never observed.
	if hourTotal := baseline.HourSampleTotal(); hourTotal > 0 {
		freq := baseline.HourOfDay[e.Timestamp.Hour()]
		add(100 * (1 - float64(freq)/float64(hourTotal)*24))
	}

	// Day-of-week rarity.
	if dayTotal := baseline.DaySampleTotal(); dayTotal > 0 {
		freq := baseline.DayOfWeek[int(e.Timestamp.Weekday())]
		add(100 * (1 - float64(freq)/float64(dayTotal)*7))
	}

	newAddress := e.SourceAddress != "" && !baseline.KnowsAddress(e.SourceAddress)
	if newAddress {
		add(weightUnseenAddress)
	}
	if e.GeoLocation != "" && !baseline.KnowsLocation(e.GeoLocation) {
		add(weightUnseenLocation)
	}
	if e.SourceAgent != "" && !baseline.KnowsAgent(e.SourceAgent) {
		add(weightUnseenAgent)
	}

	// Unseen or rare action.
	if e.Action != "" {
		if actionTotal := baseline.ActionSampleTotal(); actionTotal > 0 {
			freq, seen := baseline.ActionFrequency[e.Action]
			if !seen {
				add(weightUnseenAction)
			} else {
				add(100 * (1 - float64(freq)/float64(actionTotal)))
			}
		}
	}

	// Unseen or rare resource type.
	if e.ResourceType != "" {
		if resourceTotal := baseline.ResourceSampleTotal(); resourceTotal > 0 {
			freq, seen := baseline.ResourceFrequency[e.ResourceType]
			if !seen {
				add(weightUnseenResource)
			} else {
				add(100 * (1 - float64(freq)/float64(resourceTotal)))
			}
		}
	}

	// Rapid actor-location change: a new address within minutes of the
	// last activity models session hijacking or credential sharing.
	if newAddress && len(baseline.KnownAddresses) > 0 &&
		!baseline.LastActivityAt.IsZero() &&
		e.Timestamp.Sub(baseline.LastActivityAt) < core.RapidLocationChangeWindow {
		add(weightRapidChange)
	}

	if e.Type == core.EventPrivilegeEscalation || e.Type == core.EventPrivilegeUse {
		add(weightPrivilegeEvent)
	}

	if as.sensitive != nil && e.ResourceType != "" && as.sensitive.SensitiveResource(e.ResourceType) {
		add(weightSensitiveRes)
	}

	if factors == 0 {
		return 0
	}
	score := total / float64(factors)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
