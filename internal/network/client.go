package network

import (
	"net/url"
	"sync"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// DefaultUserAgent matches the TLS fingerprint of the client profile closely
// enough for career sites that sniff browsers.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Doer sends a single request. Implementations must not follow redirects.
type Doer interface {
	Do(req *fhttp.Request) (*fhttp.Response, error)
}

type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
	Rotator   *Rotator
}

// Client is a browser-profile HTTP client with optional proxy rotation.
type Client struct {
	http      tls_client.HttpClient
	rotator   *Rotator
	userAgent string
	mu        sync.Mutex
}

func NewClient(opts ClientOptions) (*Client, error) {
	timeout := int(opts.Timeout / time.Second)
	if timeout <= 0 {
		timeout = 30
	}

	client, err := tls_client.NewHttpClient(
		tls_client.NewNoopLogger(),
		tls_client.WithClientProfile(profiles.Chrome_120),
		tls_client.WithTimeoutSeconds(timeout),
		tls_client.WithNotFollowRedirects(),
	)
	if err != nil {
		return nil, err
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		http:      client,
		rotator:   opts.Rotator,
		userAgent: userAgent,
	}, nil
}

func (c *Client) Do(req *fhttp.Request) (*fhttp.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	proxy := c.rotateProxy()
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if proxy != nil {
			c.rotator.ReportFailure(proxy)
		}
		return nil, err
	}
	if proxy != nil {
		c.rotator.Report(proxy, resp.StatusCode)
	}
	return resp, nil
}

func (c *Client) rotateProxy() *url.URL {
	if c.rotator == nil || c.rotator.Len() == 0 {
		return nil
	}
	proxy, err := c.rotator.Next()
	if err != nil {
		_ = c.http.SetProxy("")
		return nil
	}
	if err := c.http.SetProxy(proxy.String()); err != nil {
		return nil
	}
	return proxy
}
