package scraper

import "testing"

func TestForHost(t *testing.T) {
	cases := map[string]string{
		"www.lifeatspotify.com":    SiteSpotify,
		"team.vk.company":          SiteVKTeam,
		"www.revolut.com":          SiteRevolut,
		"jobs.lever.co":            SiteLever,
		"boards.greenhouse.io":     SiteGreenhouse,
		"job-boards.greenhouse.io": SiteGreenhouse,
		"JOBS.LEVER.CO.":           SiteLever,
		"notrevolut.com":           SiteGeneric,
		"example.com":              SiteGeneric,
	}
	for host, want := range cases {
		if got := ForHost(host).Name(); got != want {
			t.Fatalf("ForHost(%q) = %q, want %q", host, got, want)
		}
	}
}

func TestListingPattern(t *testing.T) {
	pattern := ListingPattern("www.lifeatspotify.com")
	if pattern == nil {
		t.Fatalf("expected pattern for spotify")
	}
	if !pattern.MatchString("https://www.lifeatspotify.com/jobs/designer-1") {
		t.Fatalf("expected listing url to match")
	}
	if pattern.MatchString("https://www.lifeatspotify.com/job-categories/design") {
		t.Fatalf("expected category url not to match")
	}
	if ListingPattern("example.com") != nil {
		t.Fatalf("expected no pattern for example.com")
	}
}

func TestHostOf(t *testing.T) {
	if got := HostOf("https://Jobs.Lever.co./acme"); got != "jobs.lever.co" {
		t.Fatalf("unexpected host: %q", got)
	}
	if got := HostOf("::bad"); got != "" {
		t.Fatalf("expected empty host, got %q", got)
	}
}
