package services_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/brandsight/brandsight-workflows/internal/config"
	"github.com/brandsight/brandsight-workflows/internal/models"
	"github.com/brandsight/brandsight-workflows/services"
)

func newTestCitationService() services.CitationService {
	cfg := &config.Config{
		Enrichment: config.EnrichmentConfig{
			MaxTitleFetches:   10,
			FetchTimeoutSecs:  2,
			MaxTitleBodyBytes: 200000,
		},
	}
	return services.NewCitationService(cfg, nil)
}

func TestExtractLinks(t *testing.T) {
	svc := newTestCitationService()

	tests := []struct {
		name   string
		text   string
		expect []string
	}{
		{
			name:   "bare url",
			text:   "Visit https://www.cisco.com/products for details.",
			expect: []string{"https://www.cisco.com/products"},
		},
		{
			name:   "markdown link target",
			text:   "See [the report](https://example.com/report.pdf) for numbers.",
			expect: []string{"https://example.com/report.pdf"},
		},
		{
			name:   "trailing punctuation stripped",
			text:   "Sources: https://example.com/a, https://example.com/b.",
			expect: []string{"https://example.com/a", "https://example.com/b"},
		},
		{
			name:   "duplicates removed first seen wins",
			text:   "https://example.com/x and again https://example.com/x",
			expect: []string{"https://example.com/x"},
		},
		{
			name:   "non-http scheme skipped",
			text:   "Contact ftp://files.example.com or mailto:info@example.com",
			expect: []string{},
		},
		{
			name:   "empty text",
			text:   "",
			expect: []string{},
		},
		{
			name: "markdown and bare mixed",
			text: "Per [Gartner](https://gartner.com/mq) and https://idc.com/report",
			expect: []string{
				"https://gartner.com/mq",
				"https://idc.com/report",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.ExtractLinks(tt.text)
			if len(got) != len(tt.expect) {
				t.Fatalf("expected %d links, got %d: %v", len(tt.expect), len(got), got)
			}
			for i := range got {
				if got[i] != tt.expect[i] {
					t.Errorf("link %d: expected %q, got %q", i, tt.expect[i], got[i])
				}
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	svc := newTestCitationService()

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "strips tracking params and fragment",
			input:  "https://example.com/page?utm_source=x&id=7&gclid=abc#section",
			expect: "https://example.com/page?id=7",
		},
		{
			name:   "preserves non-tracking param order",
			input:  "https://example.com/search?b=2&a=1",
			expect: "https://example.com/search?b=2&a=1",
		},
		{
			name:   "lowercases scheme and host and strips www",
			input:  "HTTPS://WWW.Example.COM/Path",
			expect: "https://example.com/Path",
		},
		{
			name:   "fbclid removed",
			input:  "https://example.com/?fbclid=xyz",
			expect: "https://example.com/",
		},
		{
			name:   "unparseable url returned as is",
			input:  "https://exa mple.com/%zz",
			expect: "https://exa mple.com/%zz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.NormalizeURL(tt.input)
			if got != tt.expect {
				t.Errorf("expected %q, got %q", tt.expect, got)
			}
			if again := svc.NormalizeURL(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestToDomains(t *testing.T) {
	svc := newTestCitationService()

	links := []string{
		"https://www.cisco.com/products",
		"https://Blog.Example.com/post",
		"not a url at all://",
	}
	domains := svc.ToDomains(links)
	expect := []string{"cisco.com", "blog.example.com"}
	if len(domains) != len(expect) {
		t.Fatalf("expected %d domains, got %d: %v", len(expect), len(domains), domains)
	}
	for i := range expect {
		if domains[i] != expect[i] {
			t.Errorf("domain %d: expected %q, got %q", i, expect[i], domains[i])
		}
	}
}

func TestEnrichCitations(t *testing.T) {
	svc := newTestCitationService()

	links := []string{
		"https://www.example.com/a?utm_source=chat",
		"https://example.com/a",
		"https://cisco.com/b",
		"",
	}
	citations := svc.EnrichCitations(context.Background(), links, 0)
	if len(citations) != 2 {
		t.Fatalf("expected 2 citations after dedupe, got %d: %+v", len(citations), citations)
	}

	if citations[0].URL != "https://example.com/a" {
		t.Errorf("expected normalized first url, got %q", citations[0].URL)
	}
	if citations[0].Domain != "example.com" || citations[1].Domain != "cisco.com" {
		t.Errorf("unexpected domains: %q, %q", citations[0].Domain, citations[1].Domain)
	}
	if citations[0].Rank != 1 || citations[1].Rank != 2 {
		t.Errorf("expected dense ranks 1 and 2, got %d and %d", citations[0].Rank, citations[1].Rank)
	}
	for _, c := range citations {
		if c.Title != nil {
			t.Errorf("expected nil title with maxTitles 0, got %q", *c.Title)
		}
	}
}

func TestEnrichCitationsTitleTruncation(t *testing.T) {
	longTitle := strings.Repeat("ネ", 400)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><head><title>%s</title></head><body></body></html>", longTitle)
	}))
	defer srv.Close()

	svc := newTestCitationService()
	citations := svc.EnrichCitations(context.Background(), []string{srv.URL + "/page"}, 1)
	if len(citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(citations))
	}
	if citations[0].Title == nil {
		t.Fatal("expected a fetched title")
	}
	got := *citations[0].Title
	if !utf8.ValidString(got) {
		t.Errorf("truncated title is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 300 {
		t.Errorf("expected title capped at 300 runes, got %d", n)
	}
}

// Quality scores are a relative ranking signal; assert bounds and ordering,
// not exact values.
func TestQualityScoreBounds(t *testing.T) {
	svc := newTestCitationService()
	title := "Enterprise Networking Buyer Guide"

	citations := []models.Citation{
		{URL: "https://cisco.com/products", Domain: "cisco.com", Rank: 1, Title: &title},
		{URL: "https://ietf.org/rfc", Domain: "ietf.org", Rank: 1},
		{URL: "https://example.com/page", Domain: "example.com", Rank: 7},
		{URL: "https://technews.io/story", Domain: "technews.io", Rank: 15},
		{URL: "https://example.com/page?utm_source=x", Domain: "example.com", Rank: 1},
		{},
	}
	for _, c := range citations {
		got := svc.QualityScore(c)
		if got < 0 || got > 1 {
			t.Errorf("score %v for %q outside [0, 1]", got, c.URL)
		}
	}
}

func TestQualityScoreOrdering(t *testing.T) {
	svc := newTestCitationService()
	title := "Enterprise Networking Buyer Guide"

	vendor := models.Citation{URL: "https://cisco.com/products", Domain: "cisco.com", Rank: 1, Title: &title}
	generic := models.Citation{URL: "https://technews.io/story", Domain: "technews.io", Rank: 15}
	if svc.QualityScore(vendor) <= svc.QualityScore(generic) {
		t.Error("expected a ranked, titled vendor citation to outscore a late generic one")
	}

	clean := models.Citation{URL: "https://example.com/page", Domain: "example.com", Rank: 1}
	tracked := models.Citation{URL: "https://example.com/page?utm_source=x", Domain: "example.com", Rank: 1}
	if svc.QualityScore(tracked) > svc.QualityScore(clean) {
		t.Error("tracking params must never raise the score")
	}

	titled := clean
	titled.Title = &title
	if svc.QualityScore(titled) <= svc.QualityScore(clean) {
		t.Error("expected a real title to raise the score")
	}

	if svc.QualityScore(models.Citation{}) != 0 {
		t.Error("expected zero score for an empty citation")
	}
}

func TestQualityScoreRankMonotonic(t *testing.T) {
	svc := newTestCitationService()

	base := models.Citation{URL: "https://example.com/a", Domain: "example.com"}
	top := base
	top.Rank = 3
	mid := base
	mid.Rank = 8
	low := base
	low.Rank = 20

	if svc.QualityScore(top) <= svc.QualityScore(mid) {
		t.Error("expected rank 3 to score above rank 8")
	}
	if svc.QualityScore(mid) <= svc.QualityScore(low) {
		t.Error("expected rank 8 to score above rank 20")
	}
}
