package models

import (
	"regexp"
	"time"
)

// ObservedJob is one extracted candidate together with its identity key.
type ObservedJob struct {
	Key       string
	Candidate JobCandidate
}

// Observation is the result of one successful extraction for a source,
// applied to the store as a single unit.
type Observation struct {
	SourceID int64
	At       time.Time
	// Keep, when set, deletes active jobs of the source whose URL does not
	// match before the batch is applied.
	Keep  *regexp.Regexp
	Jobs  []ObservedJob
	Total int
}

// ObservationResult reports what applying an observation changed.
type ObservationResult struct {
	Inserted int
	Touched  int
	Excluded int
	Pruned   int
}

// RunOutcome is the per-source result of a refresh.
type RunOutcome struct {
	SourceID   int64        `json:"source_id"`
	URL        string       `json:"url,omitempty"`
	NewCount   int          `json:"new_count"`
	TotalCount int          `json:"total_count"`
	Status     SourceStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
	Warnings   []string     `json:"warnings,omitempty"`
}
