// Package provider acquires page HTML through the direct fetcher or one of
// the managed rendering services, in a configured fallback order.
package provider

import (
	"errors"
	"fmt"

	"github.com/jimezsa/jobwatch/internal/models"
)

const (
	NameDirect      = "direct"
	NameZyte        = "zyte"
	NameScrapingBee = "scrapingbee"
)

var (
	ErrUnconfigured = errors.New("provider not configured")
	ErrProvider     = errors.New("provider error")
)

// Error is a failure reported by a managed provider.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s returned %d", e.Provider, e.StatusCode)
}

// Is lets callers match any Error with errors.Is(err, ErrProvider).
func (e *Error) Is(target error) bool {
	return target == ErrProvider
}

// Result is the page acquired for one URL.
type Result struct {
	HTML           string
	Cookies        string
	FinalURL       string
	Provider       string
	StructuredJobs []models.JobCandidate
}
