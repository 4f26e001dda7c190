package provider

import (
	"context"
	"io"
	"strings"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/jimezsa/jobwatch/internal/network"
)

type doerFunc func(req *fhttp.Request) (*fhttp.Response, error)

func (f doerFunc) Do(req *fhttp.Request) (*fhttp.Response, error) {
	return f(req)
}

func newResponse(req *fhttp.Request, status int, body string) *fhttp.Response {
	return &fhttp.Response{
		StatusCode:    status,
		Header:        fhttp.Header{},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: -1,
		Request:       req,
	}
}

type fakeFetcher struct {
	page  network.Page
	err   error
	calls int
}

func (f *fakeFetcher) FetchHTML(_ context.Context, rawURL string, _ map[string]string) (network.Page, error) {
	f.calls++
	if f.err != nil {
		return network.Page{}, f.err
	}
	page := f.page
	if page.FinalURL == "" {
		page.FinalURL = rawURL
	}
	return page, nil
}

func (f *fakeFetcher) FetchJSON(context.Context, string, map[string]string) (any, error) {
	return map[string]any{"ok": true}, nil
}

func (f *fakeFetcher) MaxBytes() int64 {
	return network.DefaultMaxBytes
}

type recordedFetch struct {
	provider string
	failed   bool
}

type fakeRecorder struct {
	fetches []recordedFetch
}

func (r *fakeRecorder) ObserveFetch(provider string, err error, _ time.Duration) {
	r.fetches = append(r.fetches, recordedFetch{provider: provider, failed: err != nil})
}
