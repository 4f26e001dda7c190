package seen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jimezsa/jobwatch/internal/models"
)

// sourceEntry is one element of a source list file. Files may hold plain
// URL strings or objects with a url field.
type sourceEntry struct {
	URL string `json:"url"`
}

func (s *sourceEntry) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		s.URL = raw
		return nil
	}
	type plain sourceEntry
	return json.Unmarshal(data, (*plain)(s))
}

// ReadSourceList reads a JSON array of source URLs from path.
func ReadSourceList(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []string{}, nil
	}

	var entries []sourceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(entries))
	for _, entry := range entries {
		if url := strings.TrimSpace(entry.URL); url != "" {
			urls = append(urls, url)
		}
	}
	return urls, nil
}

// WriteSourceList writes sources as pretty JSON.
func WriteSourceList(path string, sources []models.Source) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is required")
	}
	entries := make([]sourceEntry, 0, len(sources))
	for _, src := range sources {
		entries = append(entries, sourceEntry{URL: src.URL})
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ImportSources adds every URL, skipping known ones. Invalid URLs are
// collected and returned together after the valid ones are stored.
func (e *Engine) ImportSources(ctx context.Context, urls []string) (added int, err error) {
	known, err := e.store.ListSources(ctx)
	if err != nil {
		return 0, err
	}
	existing := make(map[string]struct{}, len(known))
	for _, src := range known {
		existing[src.URL] = struct{}{}
	}

	var errs []error
	for _, raw := range urls {
		src, err := e.AddSource(ctx, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", raw, err))
			continue
		}
		if _, ok := existing[src.URL]; ok {
			continue
		}
		existing[src.URL] = struct{}{}
		added++
	}
	return added, errors.Join(errs...)
}
