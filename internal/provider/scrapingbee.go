package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/jimezsa/jobwatch/internal/network"
)

const (
	DefaultScrapingBeeURL  = "https://app.scrapingbee.com/api/v1/"
	defaultProviderTimeout = 60 * time.Second
)

type ScrapingBeeOptions struct {
	APIKey   string
	APIURL   string
	RenderJS bool
	Always   bool
	Timeout  time.Duration
	MaxBytes int64
}

// ScrapingBee fetches pages through the ScrapingBee HTML API.
type ScrapingBee struct {
	client network.Doer
	opts   ScrapingBeeOptions
}

func NewScrapingBee(client network.Doer, opts ScrapingBeeOptions) *ScrapingBee {
	if opts.APIURL == "" {
		opts.APIURL = DefaultScrapingBeeURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultProviderTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = network.DefaultMaxBytes
	}
	return &ScrapingBee{client: client, opts: opts}
}

func (b *ScrapingBee) Name() string {
	return NameScrapingBee
}

func (b *ScrapingBee) Configured() bool {
	return b != nil && b.opts.APIKey != ""
}

func (b *ScrapingBee) Always() bool {
	return b.Configured() && b.opts.Always
}

func (b *ScrapingBee) Fetch(ctx context.Context, target string) (Result, error) {
	if !b.Configured() {
		return Result{}, fmt.Errorf("%w: %s api key", ErrUnconfigured, NameScrapingBee)
	}

	params := url.Values{}
	params.Set("api_key", b.opts.APIKey)
	params.Set("url", target)
	if b.opts.RenderJS {
		params.Set("render_js", "true")
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodGet, b.opts.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("%s request: %w", NameScrapingBee, err)
	}
	req.Header.Set("User-Agent", network.DefaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := b.client.Do(req)
	if err != nil {
		return Result{}, providerTransportError(ctx, NameScrapingBee, b.opts.Timeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &Error{
			Provider:   NameScrapingBee,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("scrapingbee returned %d", resp.StatusCode),
		}
	}

	body, err := network.ReadLimited(resp.Body, b.opts.MaxBytes)
	if err != nil {
		if errors.Is(err, network.ErrUpstreamTooLarge) {
			return Result{}, fmt.Errorf("%s: %w", NameScrapingBee, err)
		}
		return Result{}, providerTransportError(ctx, NameScrapingBee, b.opts.Timeout, err)
	}
	return Result{HTML: string(body), FinalURL: target}, nil
}

func providerTransportError(ctx context.Context, name string, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", network.ErrTimeout, name, timeout)
	}
	return fmt.Errorf("%s request: %w", name, err)
}
