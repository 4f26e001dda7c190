package provider

import (
	"context"
	"errors"
	"testing"

	fhttp "github.com/bogdanfinn/fhttp"
)

func TestScrapingBeeFetch(t *testing.T) {
	doer := doerFunc(func(req *fhttp.Request) (*fhttp.Response, error) {
		q := req.URL.Query()
		if q.Get("api_key") != "bee" || q.Get("url") != "https://jobs.example.com/?a=1" || q.Get("render_js") != "true" {
			t.Fatalf("unexpected query: %v", q)
		}
		return newResponse(req, 200, "<html>bee</html>"), nil
	})

	b := NewScrapingBee(doer, ScrapingBeeOptions{APIKey: "bee", RenderJS: true})
	res, err := b.Fetch(context.Background(), "https://jobs.example.com/?a=1")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.HTML != "<html>bee</html>" || res.FinalURL != "https://jobs.example.com/?a=1" || res.Cookies != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestScrapingBeeErrors(t *testing.T) {
	doer := doerFunc(func(req *fhttp.Request) (*fhttp.Response, error) {
		if _, ok := req.URL.Query()["render_js"]; ok {
			t.Fatalf("render_js should be omitted")
		}
		return newResponse(req, 401, "denied"), nil
	})

	b := NewScrapingBee(doer, ScrapingBeeOptions{APIKey: "bee"})
	_, err := b.Fetch(context.Background(), "https://jobs.example.com/")
	if !errors.Is(err, ErrProvider) || err.Error() != "scrapingbee returned 401" {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := NewScrapingBee(doer, ScrapingBeeOptions{}).Fetch(context.Background(), "https://jobs.example.com/"); !errors.Is(err, ErrUnconfigured) {
		t.Fatalf("expected unconfigured error, got %v", err)
	}
}
