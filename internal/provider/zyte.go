package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/jimezsa/jobwatch/internal/jsonwalk"
	"github.com/jimezsa/jobwatch/internal/network"
	"github.com/rs/zerolog"
)

const (
	DefaultZyteURL         = "https://api.zyte.com/v1/extract"
	DefaultZyteExtractType = "jobPosting"

	zyteErrorSnippet  = 800
	zytePreviewLength = 1000
)

type ZyteOptions struct {
	APIKey         string
	APIURL         string
	BrowserHTML    bool
	StructuredData bool
	ExtractType    string
	Always         bool
	Debug          bool
	Timeout        time.Duration
	MaxBytes       int64
}

// Zyte fetches rendered HTML and, optionally, server-side extracted job
// postings from the Zyte extract API.
type Zyte struct {
	client network.Doer
	opts   ZyteOptions
	logger zerolog.Logger
}

func NewZyte(client network.Doer, opts ZyteOptions, logger zerolog.Logger) *Zyte {
	if opts.APIURL == "" {
		opts.APIURL = DefaultZyteURL
	}
	if opts.ExtractType == "" {
		opts.ExtractType = DefaultZyteExtractType
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultProviderTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = network.DefaultMaxBytes
	}
	return &Zyte{
		client: client,
		opts:   opts,
		logger: logger.With().Str("component", NameZyte).Logger(),
	}
}

func (z *Zyte) Name() string {
	return NameZyte
}

func (z *Zyte) Configured() bool {
	return z != nil && z.opts.APIKey != ""
}

func (z *Zyte) Always() bool {
	return z.Configured() && z.opts.Always
}

func (z *Zyte) Fetch(ctx context.Context, target string) (Result, error) {
	if !z.Configured() {
		return Result{}, fmt.Errorf("%w: %s api key", ErrUnconfigured, NameZyte)
	}

	base := map[string]any{
		"url":         target,
		"browserHtml": z.opts.BrowserHTML,
	}
	payload := base
	if z.opts.StructuredData {
		payload = make(map[string]any, len(base)+1)
		for key, value := range base {
			payload[key] = value
		}
		payload[z.opts.ExtractType] = true
	}

	data, err := z.request(ctx, payload)
	if err != nil && z.opts.StructuredData && isUnrecognizedProperty(err) {
		z.logger.Debug().Str("url", target).Err(err).Msg("retrying without extraction")
		data, err = z.request(ctx, base)
	}
	if err != nil {
		return Result{}, err
	}

	if z.opts.Debug {
		z.logger.Debug().Strs("keys", sortedKeys(data)).Msg("response keys")
	}

	html := jsonwalk.String(data, "browserHtml")
	if html == "" {
		html = decodeResponseBody(jsonwalk.String(data, "httpResponseBody"))
	}

	structured := selectStructured(data)
	if z.opts.Debug {
		z.logger.Debug().
			Str("type", jsonwalk.Classify(structured).Kind.String()).
			Str("preview", preview(structured)).
			Msg("structured payload")
	}

	if html == "" {
		return Result{}, &Error{Provider: NameZyte, Message: "zyte returned empty HTML"}
	}

	jobs := StructuredJobs(structured, target)
	if z.opts.Debug {
		z.logger.Debug().Int("jobs", len(jobs)).Msg("structured jobs")
	}
	return Result{HTML: html, FinalURL: target, StructuredJobs: jobs}, nil
}

func (z *Zyte) request(ctx context.Context, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", NameZyte, err)
	}

	ctx, cancel := context.WithTimeout(ctx, z.opts.Timeout)
	defer cancel()

	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodPost, z.opts.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", NameZyte, err)
	}
	auth := base64.StdEncoding.EncodeToString([]byte(z.opts.APIKey + ":"))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", network.DefaultUserAgent)

	resp, err := z.client.Do(req)
	if err != nil {
		return nil, providerTransportError(ctx, NameZyte, z.opts.Timeout, err)
	}
	defer resp.Body.Close()

	raw, err := network.ReadLimited(resp.Body, z.opts.MaxBytes)
	if err != nil {
		if errors.Is(err, network.ErrUpstreamTooLarge) {
			return nil, fmt.Errorf("%s: %w", NameZyte, err)
		}
		return nil, providerTransportError(ctx, NameZyte, z.opts.Timeout, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := raw
		if len(snippet) > zyteErrorSnippet {
			snippet = snippet[:zyteErrorSnippet]
		}
		return nil, &Error{
			Provider:   NameZyte,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("zyte returned %d: %s", resp.StatusCode, snippet),
		}
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", NameZyte, err)
	}
	return data, nil
}

// isUnrecognizedProperty reports a schema rejection of the extraction flag.
func isUnrecognizedProperty(err error) bool {
	var perr *Error
	if !errors.As(err, &perr) {
		return false
	}
	return strings.Contains(strings.ToLower(perr.Message), "unrecognized property")
}

// decodeResponseBody returns the base64-decoded body when it decodes to
// text, the raw value otherwise.
func decodeResponseBody(value string) string {
	if value == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil || !utf8.Valid(decoded) {
		return value
	}
	return string(decoded)
}

var structuredKeys = []string{
	"jobPostingNavigation",
	"job_posting_navigation",
	"jobPosting",
	"job_posting",
	"structuredData",
	"structured_data",
}

// selectStructured picks the extraction payload out of a response.
func selectStructured(data map[string]any) any {
	for _, key := range structuredKeys {
		if value := data[key]; jsonwalk.Truthy(value) {
			return value
		}
	}
	if jsonwalk.Truthy(data["jobTitle"]) && jsonwalk.Truthy(data["url"]) {
		return data
	}
	if inner := jsonwalk.Map(data, "data"); inner != nil && jsonwalk.Has(inner, "jobTitle", "url") {
		return inner
	}
	if jsonwalk.Has(data, "jobTitle", "url") {
		return data
	}
	return nil
}

func sortedKeys(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func preview(value any) string {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "[unserializable]"
	}
	if len(raw) > zytePreviewLength {
		raw = raw[:zytePreviewLength]
	}
	return string(raw)
}
