package provider

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/jimezsa/jobwatch/internal/jsonwalk"
	"github.com/jimezsa/jobwatch/internal/models"
)

// StructuredJobs converts a provider extraction payload into candidates.
// Companies fall back to the hostname of pageURL.
func StructuredJobs(data any, pageURL string) []models.JobCandidate {
	if data == nil {
		return nil
	}
	if raw, ok := data.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil
		}
		data = decoded
	}

	base, _ := url.Parse(pageURL)
	fallbackCompany := ""
	if base != nil {
		fallbackCompany = base.Hostname()
	}

	var jobs []models.JobCandidate
	seen := map[string]struct{}{}
	jsonwalk.Walk(data, func(obj map[string]any) []any {
		var extra []any
		for _, pair := range [][2]string{{"jobPosting", "job_posting"}, {"jobPostingNavigation", "job_posting_navigation"}} {
			if value := firstTruthy(obj[pair[0]], obj[pair[1]]); value != nil {
				extra = append(extra, value)
			}
		}
		if jsonwalk.String(obj, "name") == "jobPosting" && obj["content"] != nil {
			extra = append(extra, obj["content"])
		}
		for _, key := range []string{"items", "positions", "jobs"} {
			extra = append(extra, jsonwalk.Slice(obj, key)...)
		}

		if isPosting(obj) || jsonwalk.Has(obj, "title", "name", "jobTitle") {
			if job, ok := structuredJob(obj, base, fallbackCompany); ok {
				key := strings.ToLower(job.Title + "::" + job.URL)
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					jobs = append(jobs, job)
				}
			}
		}
		return extra
	})
	return jobs
}

func isPosting(obj map[string]any) bool {
	return jsonwalk.String(obj, "type") == "JobPosting" || jsonwalk.String(obj, "@type") == "JobPosting"
}

func structuredJob(obj map[string]any, base *url.URL, fallbackCompany string) (models.JobCandidate, bool) {
	title := strings.TrimSpace(jsonwalk.String(obj, "title", "name", "jobTitle"))
	link := jsonwalk.String(obj, "url", "applyUrl", "link")
	if title == "" || link == "" {
		return models.JobCandidate{}, false
	}
	if base != nil {
		if ref, err := url.Parse(link); err == nil {
			link = base.ResolveReference(ref).String()
		}
	}

	location := firstText(
		obj["location"],
		jsonwalk.Path(obj, "jobLocation", "raw"),
		obj["jobLocation"],
		obj["location_display"],
		obj["locationName"],
		jsonwalk.Path(obj, "location", "address", "addressLocality"),
		jsonwalk.Path(obj, "jobLocation", "address", "addressLocality"),
	)
	company := firstText(
		jsonwalk.Path(obj, "hiringOrganization", "name"),
		jsonwalk.Path(obj, "company", "name"),
		obj["company"],
	)
	if company == "" {
		company = fallbackCompany
	}

	return models.JobCandidate{
		Title:    title,
		Company:  company,
		Location: location,
		URL:      link,
		PostedAt: jsonwalk.String(obj, "datePosted", "postedAt"),
	}, true
}

func firstText(values ...any) string {
	for _, value := range values {
		if text := jsonwalk.Text(value); text != "" {
			return text
		}
	}
	return ""
}

func firstTruthy(values ...any) any {
	for _, value := range values {
		if jsonwalk.Truthy(value) {
			return value
		}
	}
	return nil
}
