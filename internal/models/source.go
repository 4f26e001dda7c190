package models

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBatchLocked is returned by stores when another process holds the
	// batch refresh lock.
	ErrBatchLocked = errors.New("batch lock held")
)

type SourceStatus string

const (
	StatusPending SourceStatus = "pending"
	StatusOK      SourceStatus = "ok"
	StatusError   SourceStatus = "error"
)

// Source is a tracked career page.
type Source struct {
	ID            int64        `json:"id"`
	URL           string       `json:"url"`
	CreatedAt     time.Time    `json:"created_at"`
	LastCheckedAt *time.Time   `json:"last_checked_at"`
	LastStatus    SourceStatus `json:"last_status"`
	LastError     string       `json:"last_error,omitempty"`
}

// JobRun is the audit record of one refresh attempt.
type JobRun struct {
	ID         int64        `json:"id"`
	SourceID   int64        `json:"source_id"`
	RanAt      time.Time    `json:"ran_at"`
	NewCount   int          `json:"new_count"`
	TotalCount int          `json:"total_count"`
	Status     SourceStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
}
