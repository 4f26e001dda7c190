package models

import "time"

// JobCandidate is the normalized posting produced by extraction.
// Empty strings stand in for missing values.
type JobCandidate struct {
	Title    string   `json:"title"`
	Company  string   `json:"company,omitempty"`
	Location string   `json:"location,omitempty"`
	URL      string   `json:"url"`
	PostedAt string   `json:"posted_at,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Job is a tracked listing for one source.
type Job struct {
	ID          int64     `json:"id"`
	SourceID    int64     `json:"source_id"`
	JobKey      string    `json:"job_key"`
	Title       string    `json:"title"`
	Company     string    `json:"company,omitempty"`
	Location    string    `json:"location,omitempty"`
	URL         string    `json:"url"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	IsNew       bool      `json:"is_new"`
}

// JobFilter narrows job listings.
type JobFilter struct {
	SourceID int64
	NewOnly  bool
}

// JobExclusion is a tombstone that keeps a removed job from coming back.
type JobExclusion struct {
	SourceID  int64     `json:"source_id"`
	JobKey    string    `json:"job_key"`
	JobURL    string    `json:"job_url"`
	CreatedAt time.Time `json:"created_at"`
}
