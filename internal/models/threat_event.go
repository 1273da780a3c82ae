package models

import "time"

// ThreatCategory names a family of attack signatures.
type ThreatCategory string

const (
	ThreatSQLInjection    ThreatCategory = "sql-injection"
	ThreatCrossSiteScript ThreatCategory = "cross-site-script"
	ThreatPathTraversal   ThreatCategory = "path-traversal"

	// Weak signals: logged, never blocking.
	ThreatHostileClient    ThreatCategory = "hostile-client"
	ThreatSuspiciousHeader ThreatCategory = "suspicious-header"
)

// ThreatEvent is a write-once record of a request matching an attack signature.
type ThreatEvent struct {
	Timestamp      time.Time      `json:"timestamp"`
	Category       ThreatCategory `json:"category"`
	SourceIdentity string         `json:"source_identity"`
	MatchedPattern string         `json:"matched_pattern"`
	RequestTarget  string         `json:"request_target"`
}
