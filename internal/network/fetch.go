package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout             = 12 * time.Second
	DefaultMaxBytes      int64 = 1536 * 1024
	DefaultMaxRedirects        = 5
	DefaultMaxRateLimitRetries = 3

	defaultRateLimitWait = 800 * time.Millisecond
	maxRateLimitWait     = 2 * time.Second
)

// AddressGuard vets a host before a connection is made to it.
type AddressGuard interface {
	EnsurePublic(ctx context.Context, host string) error
}

type FetchOptions struct {
	Timeout             time.Duration
	MaxBytes            int64
	MaxRedirects        int
	MaxRateLimitRetries int
	UserAgent           string
}

func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		Timeout:             DefaultTimeout,
		MaxBytes:            DefaultMaxBytes,
		MaxRedirects:        DefaultMaxRedirects,
		MaxRateLimitRetries: DefaultMaxRateLimitRetries,
		UserAgent:           DefaultUserAgent,
	}
}

// Page is a fetched HTML document.
type Page struct {
	HTML     string
	Cookies  string
	FinalURL string
}

// Fetcher retrieves one URL, following redirects by hand so that every hop
// passes through the address guard.
type Fetcher struct {
	client Doer
	guard  AddressGuard
	opts   FetchOptions
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

func NewFetcher(client Doer, guard AddressGuard, opts FetchOptions, logger zerolog.Logger) *Fetcher {
	defaults := DefaultFetchOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaults.MaxBytes
	}
	if opts.MaxRedirects < 0 {
		opts.MaxRedirects = defaults.MaxRedirects
	}
	if opts.MaxRateLimitRetries < 0 {
		opts.MaxRateLimitRetries = defaults.MaxRateLimitRetries
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	return &Fetcher{
		client: client,
		guard:  guard,
		opts:   opts,
		logger: logger.With().Str("component", "fetch").Logger(),
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// MaxBytes returns the response size cap.
func (f *Fetcher) MaxBytes() int64 {
	return f.opts.MaxBytes
}

func (f *Fetcher) FetchHTML(ctx context.Context, rawURL string, headers map[string]string) (Page, error) {
	resp, err := f.fetch(ctx, rawURL, htmlHeaders(f.opts.UserAgent), headers)
	if err != nil {
		return Page{}, err
	}
	return Page{HTML: string(resp.body), Cookies: resp.cookies, FinalURL: resp.finalURL}, nil
}

func (f *Fetcher) FetchJSON(ctx context.Context, rawURL string, headers map[string]string) (any, error) {
	resp, err := f.fetch(ctx, rawURL, jsonHeaders(f.opts.UserAgent), headers)
	if err != nil {
		return nil, err
	}
	var data any
	if err := json.Unmarshal(resp.body, &data); err != nil {
		return nil, fmt.Errorf("decode json from %s: %w", resp.finalURL, err)
	}
	return data, nil
}

type fetchResponse struct {
	body     []byte
	cookies  string
	finalURL string
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, base, extra map[string]string) (fetchResponse, error) {
	target, err := ParseHTTPURL(rawURL)
	if err != nil {
		return fetchResponse{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	redirects, retries := 0, 0
	for {
		if err := f.guard.EnsurePublic(ctx, target.Hostname()); err != nil {
			return fetchResponse{}, err
		}

		start := f.now()
		resp, err := f.send(ctx, target.String(), base, extra)
		if err != nil {
			return fetchResponse{}, f.transportError(ctx, target, err)
		}
		f.logger.Debug().
			Str("url", target.String()).
			Int("status", resp.StatusCode).
			Dur("elapsed", f.now().Sub(start)).
			Msg("fetch")

		switch {
		case resp.StatusCode == fhttp.StatusTooManyRequests:
			wait := retryAfter(resp.Header.Get("Retry-After"), f.now())
			closeBody(resp)
			if retries >= f.opts.MaxRateLimitRetries {
				return fetchResponse{}, &HTTPError{StatusCode: resp.StatusCode, URL: target.String(), Reason: "rate limited"}
			}
			retries++
			f.logger.Debug().Str("url", target.String()).Dur("wait", wait).Int("attempt", retries).Msg("rate limited, backing off")
			if err := f.sleep(ctx, wait); err != nil {
				return fetchResponse{}, f.transportError(ctx, target, err)
			}
			continue

		case isRedirect(resp.StatusCode):
			location := strings.TrimSpace(resp.Header.Get("Location"))
			closeBody(resp)
			if location == "" {
				return fetchResponse{}, &HTTPError{StatusCode: resp.StatusCode, URL: target.String(), Reason: "redirect missing location"}
			}
			if redirects >= f.opts.MaxRedirects {
				return fetchResponse{}, fmt.Errorf("%w: %s after %d hops", ErrTooManyRedirects, rawURL, redirects)
			}
			next, err := resolveRedirect(target, location)
			if err != nil {
				return fetchResponse{}, err
			}
			redirects++
			f.logger.Debug().Str("from", target.String()).Str("to", next.String()).Msg("redirect")
			target = next
			continue

		case resp.StatusCode < 200 || resp.StatusCode > 299:
			closeBody(resp)
			return fetchResponse{}, &HTTPError{StatusCode: resp.StatusCode, URL: target.String()}
		}

		body, err := readBody(resp, f.opts.MaxBytes)
		if err != nil {
			if errors.Is(err, ErrUpstreamTooLarge) {
				return fetchResponse{}, fmt.Errorf("%s: %w", target.String(), err)
			}
			return fetchResponse{}, f.transportError(ctx, target, err)
		}
		return fetchResponse{
			body:     body,
			cookies:  CookieHeader(resp.Header.Values("Set-Cookie")),
			finalURL: target.String(),
		}, nil
	}
}

func (f *Fetcher) send(ctx context.Context, target string, base, extra map[string]string) (*fhttp.Response, error) {
	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	applyHeaders(req, base, extra)
	return f.client.Do(req)
}

func (f *Fetcher) transportError(ctx context.Context, target *url.URL, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrTimeout, target.String(), f.opts.Timeout)
	}
	return fmt.Errorf("request %s: %w", target.String(), err)
}

// ParseHTTPURL parses raw and requires an absolute http or https URL.
func ParseHTTPURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty url", ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidInput, raw)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidInput, raw)
	}
	return u, nil
}

func resolveRedirect(current *url.URL, location string) (*url.URL, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: bad redirect location %q: %v", ErrInvalidInput, location, err)
	}
	next := current.ResolveReference(ref)
	switch strings.ToLower(next.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: redirect to unsupported scheme %q", ErrInvalidInput, next.Scheme)
	}
	if next.Hostname() == "" {
		return nil, fmt.Errorf("%w: redirect without host %q", ErrInvalidInput, location)
	}
	return next, nil
}

func isRedirect(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// retryAfter converts a Retry-After header into a bounded wait.
func retryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	wait := defaultRateLimitWait
	if value != "" {
		if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
			wait = time.Duration(seconds) * time.Second
		} else if at, err := time.Parse(time.RFC1123, value); err == nil {
			wait = at.Sub(now)
			if wait < 0 {
				wait = 0
			}
		}
	}
	if wait > maxRateLimitWait {
		wait = maxRateLimitWait
	}
	return wait
}

func readBody(resp *fhttp.Response, maxBytes int64) ([]byte, error) {
	defer resp.Body.Close()
	if resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("%w: content-length %d exceeds %d", ErrUpstreamTooLarge, resp.ContentLength, maxBytes)
	}
	return ReadLimited(resp.Body, maxBytes)
}

// ReadLimited reads r and fails as soon as more than maxBytes arrive.
func ReadLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrUpstreamTooLarge, maxBytes)
	}
	return data, nil
}

// CookieHeader turns Set-Cookie values into a Cookie request header.
func CookieHeader(setCookies []string) string {
	pairs := make([]string, 0, len(setCookies))
	for _, value := range setCookies {
		pair, _, _ := strings.Cut(value, ";")
		pair = strings.TrimSpace(pair)
		if pair == "" || !strings.Contains(pair, "=") {
			continue
		}
		pairs = append(pairs, pair)
	}
	return strings.Join(pairs, "; ")
}

func htmlHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":                userAgent,
		"Accept":                    "text/html,application/xhtml+xml",
		"Accept-Language":           "en-US,en;q=0.9",
		"Upgrade-Insecure-Requests": "1",
		"Cache-Control":             "no-cache",
		"Pragma":                    "no-cache",
	}
}

func jsonHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent": userAgent,
		"Accept":     "application/json",
	}
}

func applyHeaders(req *fhttp.Request, base, extra map[string]string) {
	for key, value := range base {
		req.Header.Set(key, value)
	}
	for key, value := range extra {
		if strings.TrimSpace(value) == "" {
			continue
		}
		req.Header.Set(key, value)
	}
}

func closeBody(resp *fhttp.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
