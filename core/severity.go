package core

// Severity is an ordered classification assigned post-hoc by the
// classifier, used to gate storage and alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric position of the severity in the info..critical
// ordering. Unknown severities rank below info.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is equal to or stricter than other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// IsValid checks if the severity is one of the recognized levels.
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// String returns the string representation.
func (s Severity) String() string {
	return string(s)
}

// MaxSeverity returns the stricter of two severities.
func MaxSeverity(a, b Severity) Severity {
	if a.Rank() >= b.Rank() {
		return a
	}
	return b
}

// ParseSeverity maps a string to a Severity, defaulting to info for
// unrecognized input.
func ParseSeverity(s string) Severity {
	sev := Severity(s)
	if sev.IsValid() {
		return sev
	}
	return SeverityInfo
}
