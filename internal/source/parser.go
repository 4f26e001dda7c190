// Package source turns a career page URL into normalized job candidates.
package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/jimezsa/jobwatch/internal/network"
	"github.com/jimezsa/jobwatch/internal/provider"
	"github.com/jimezsa/jobwatch/internal/scraper"
	"github.com/rs/zerolog"
)

const (
	WarnJavaScript     = "This site may require JavaScript rendering; try another URL or use a different source."
	WarnLargePage      = "Large page detected; some listings may be missed."
	WarnAdapterFailure = "Adapter parsing failed; falling back to generic rules."

	minLinks       = 5
	minBodyText    = 200
	largePageRatio = 0.9
)

// Fetcher acquires pages and auxiliary JSON.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (provider.Result, error)
	FetchJSON(ctx context.Context, rawURL string, headers map[string]string) (any, error)
	MaxBytes() int64
}

// Result is everything extracted from one page.
type Result struct {
	URL      string
	FinalURL string
	Host     string
	Adapter  string
	Provider string
	Company  string
	Jobs     []models.JobCandidate
	Warnings []string
}

type Parser struct {
	fetcher Fetcher
	guard   network.AddressGuard
	logger  zerolog.Logger
}

func NewParser(fetcher Fetcher, guard network.AddressGuard, logger zerolog.Logger) *Parser {
	return &Parser{
		fetcher: fetcher,
		guard:   guard,
		logger:  logger.With().Str("component", "parser").Logger(),
	}
}

// Parse fetches rawURL and extracts its job listings. Invalid and
// non-public URLs fail before any request is made.
func (p *Parser) Parse(ctx context.Context, rawURL string) (Result, error) {
	target, err := network.ParseHTTPURL(rawURL)
	if err != nil {
		return Result{}, err
	}
	host := scraper.NormalizeHost(target.Hostname())
	if err := p.guard.EnsurePublic(ctx, host); err != nil {
		return Result{}, err
	}

	pageURL := target.String()
	fetched, err := p.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return Result{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fetched.HTML))
	if err != nil {
		return Result{}, fmt.Errorf("parse html from %s: %w", pageURL, err)
	}

	adapter := scraper.ForHost(host)
	company := CompanyFromMeta(doc, host)
	warnings := Warnings(fetched.HTML, doc, p.fetcher.MaxBytes())

	pc := scraper.ParseContext{
		Company:  company,
		Cookies:  fetched.Cookies,
		FinalURL: fetched.FinalURL,
		Fetcher:  p.fetcher,
	}
	adapterJobs, err := runAdapter(ctx, adapter, doc, pageURL, pc)
	if err != nil {
		p.logger.Warn().Str("url", pageURL).Str("adapter", adapter.Name()).Err(err).Msg("adapter failed")
		warnings = append(warnings, WarnAdapterFailure)
		adapterJobs = nil
	}

	var jobs []models.JobCandidate
	if adapter.Name() != scraper.SiteGeneric {
		genericJobs, _ := scraper.Generic{}.Parse(ctx, doc, pageURL, scraper.ParseContext{Company: company})
		jobs = scraper.Merge(adapterJobs, genericJobs, fetched.StructuredJobs)
	} else {
		jobs = scraper.Merge(adapterJobs, fetched.StructuredJobs)
	}
	jobs = scraper.FilterJobs(jobs, pageURL, host)

	p.logger.Debug().
		Str("url", pageURL).
		Str("adapter", adapter.Name()).
		Str("provider", fetched.Provider).
		Int("jobs", len(jobs)).
		Int("warnings", len(warnings)).
		Msg("parsed")

	return Result{
		URL:      pageURL,
		FinalURL: fetched.FinalURL,
		Host:     host,
		Adapter:  adapter.Name(),
		Provider: fetched.Provider,
		Company:  company,
		Jobs:     jobs,
		Warnings: warnings,
	}, nil
}

// runAdapter converts adapter panics into ErrAdapterParse.
func runAdapter(ctx context.Context, adapter scraper.Adapter, doc *goquery.Document, baseURL string, pc scraper.ParseContext) (jobs []models.JobCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			jobs = nil
			err = fmt.Errorf("%w: %s: panic: %v", scraper.ErrAdapterParse, adapter.Name(), r)
		}
	}()
	return adapter.Parse(ctx, doc, baseURL, pc)
}

var companyMeta = []string{
	"meta[property='og:site_name']",
	"meta[name='application-name']",
	"meta[name='apple-mobile-web-app-title']",
	"meta[name='twitter:site']",
}

// CompanyFromMeta names the page owner from its meta tags, or host.
func CompanyFromMeta(doc *goquery.Document, host string) string {
	for _, selector := range companyMeta {
		value, _ := doc.Find(selector).First().Attr("content")
		if value = strings.TrimSpace(value); value != "" {
			return strings.TrimPrefix(value, "@")
		}
	}
	return host
}

// Warnings flags pages that likely need rendering or were truncated.
func Warnings(html string, doc *goquery.Document, maxBytes int64) []string {
	var warnings []string
	links := doc.Find("a").Length()
	text := strings.TrimSpace(doc.Find("body").Text())
	if links < minLinks || len(text) < minBodyText {
		warnings = append(warnings, WarnJavaScript)
	}
	if float64(len(html)) > float64(maxBytes)*largePageRatio {
		warnings = append(warnings, WarnLargePage)
	}
	return warnings
}
