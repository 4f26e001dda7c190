package scraper

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	SiteGeneric    = "generic"
	SiteLever      = "lever"
	SiteGreenhouse = "greenhouse"
	SiteVKTeam     = "team.vk.company"
	SiteRevolut    = "revolut"
	SiteSpotify    = "lifeatspotify"
)

// ForHost picks the adapter for a hostname. Unknown hosts get Generic.
func ForHost(host string) Adapter {
	host = NormalizeHost(host)
	switch {
	case matchesDomain(host, "lifeatspotify.com"):
		return Spotify{}
	case host == "team.vk.company":
		return VKTeam{}
	case matchesDomain(host, "revolut.com"):
		return Revolut{}
	case host == "jobs.lever.co":
		return Lever{}
	case host == "boards.greenhouse.io", host == "job-boards.greenhouse.io":
		return Greenhouse{}
	default:
		return Generic{}
	}
}

// listingPatterns holds hosts whose pages link to many hub and category
// URLs; only URLs matching the pattern are real listings.
var listingPatterns = []struct {
	domain  string
	pattern *regexp.Regexp
}{
	{domain: "lifeatspotify.com", pattern: regexp.MustCompile(`(?i)lifeatspotify\.com/jobs/[a-z0-9-]+`)},
}

// ListingPattern returns the canonical listing URL pattern for host, or nil.
func ListingPattern(host string) *regexp.Regexp {
	host = NormalizeHost(host)
	for _, entry := range listingPatterns {
		if matchesDomain(host, entry.domain) {
			return entry.pattern
		}
	}
	return nil
}

// NormalizeHost lowercases host and drops a trailing dot.
func NormalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}

// HostOf returns the normalized hostname of rawURL.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return NormalizeHost(u.Hostname())
}

func matchesDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
