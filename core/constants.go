package core

import "time"

const (
	// HTTPClientTimeout bounds all outbound sink requests.
	HTTPClientTimeout = 10 * time.Second

	// UnknownActorRiskScore is the fixed anomaly score for actors with no
	// baseline: neither alarmed nor ignored.
	UnknownActorRiskScore = 50.0

	// RecentFailureWindow is the lookback for counting same-type failures
	// per actor during classification.
	RecentFailureWindow = 5 * time.Minute

	// RapidLocationChangeWindow is the maximum gap since the actor's last
	// activity for a new source address to count as a rapid location change.
	RapidLocationChangeWindow = 5 * time.Minute

	// BaselineListCapacity bounds the per-actor lists of recently seen
	// addresses, locations and agents.
	BaselineListCapacity = 10

	// DefaultBufferCapacity is the default size of the in-memory event ring.
	DefaultBufferCapacity = 1000
)
