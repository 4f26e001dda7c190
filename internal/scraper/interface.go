package scraper

import (
	"context"
	"errors"

	"github.com/PuerkitoBio/goquery"
	"github.com/jimezsa/jobwatch/internal/models"
)

// ErrAdapterParse marks a failure inside a site adapter. Callers degrade to
// generic extraction instead of failing the fetch.
var ErrAdapterParse = errors.New("adapter parse failed")

// JSONFetcher performs the auxiliary JSON request some adapters need.
type JSONFetcher interface {
	FetchJSON(ctx context.Context, rawURL string, headers map[string]string) (any, error)
}

// ParseContext carries what an adapter knows about the fetched page.
type ParseContext struct {
	Company  string
	Cookies  string
	FinalURL string
	Fetcher  JSONFetcher
}

// Adapter extracts job candidates from one parsed page.
type Adapter interface {
	Name() string
	Parse(ctx context.Context, doc *goquery.Document, baseURL string, pc ParseContext) ([]models.JobCandidate, error)
}
