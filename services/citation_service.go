// services/citation_service.go
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/brandsight/brandsight-workflows/internal/config"
	"github.com/brandsight/brandsight-workflows/internal/models"
)

var (
	// Markdown targets are captured first: the bare-URL pattern's boundary
	// rules would otherwise truncate them at the closing paren.
	markdownLinkRE = regexp.MustCompile(`\[[^\]]*\]\(\s*(https?://[^\s)]+)\s*\)`)
	bareURLRE      = regexp.MustCompile(`https?://[^\s\])>,"]+`)
	whitespaceRE   = regexp.MustCompile(`\s+`)
)

// trailingJunk is the punctuation the URL regexes commonly over-capture
// from prose.
const trailingJunk = ".,);:]"

const (
	titleMaxLen   = 300
	userAgent     = "Mozilla/5.0 (compatible; BrandsightBot/1.0)"
	minTitleBonus = 10 // title must be longer than this to earn the quality bonus
)

// DefaultVendorDomains are the official vendor sites that earn the highest
// domain-category bonus in quality scoring.
func DefaultVendorDomains() []string {
	return []string{
		"extremenetworks.com",
		"cisco.com",
		"juniper.net",
		"arista.com",
		"hpe.com",
		"arubanetworks.com",
		"fortinet.com",
		"ui.com",
		"nokia.com",
		"dell.com",
	}
}

type citationService struct {
	httpClient    *http.Client
	vendorDomains map[string]bool
	maxBodyBytes  int
}

// NewCitationService builds an enricher bounded by the config's fetch
// timeout and body-size cap. vendorDomains feeds quality scoring; nil uses
// the default vendor set.
func NewCitationService(cfg *config.Config, vendorDomains []string) CitationService {
	if vendorDomains == nil {
		vendorDomains = DefaultVendorDomains()
	}
	vendors := make(map[string]bool, len(vendorDomains))
	for _, d := range vendorDomains {
		vendors[strings.ToLower(d)] = true
	}

	return &citationService{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Enrichment.FetchTimeoutSecs) * time.Second,
		},
		vendorDomains: vendors,
		maxBodyBytes:  cfg.Enrichment.MaxTitleBodyBytes,
	}
}

func (s *citationService) ExtractLinks(text string) []string {
	if text == "" {
		return []string{}
	}

	var links []string
	seen := make(map[string]bool)

	add := func(raw string) {
		cleaned := strings.TrimRight(raw, trailingJunk)
		if cleaned == "" || seen[cleaned] {
			return
		}
		if !validLink(cleaned) {
			return
		}
		seen[cleaned] = true
		links = append(links, cleaned)
	}

	for _, m := range markdownLinkRE.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, raw := range bareURLRE.FindAllString(text, -1) {
		add(raw)
	}

	if links == nil {
		return []string{}
	}
	return links
}

func validLink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (s *citationService) ToDomains(links []string) []string {
	out := make([]string, 0, len(links))
	for _, link := range links {
		domain := domainOf(link)
		if domain != "" {
			out = append(out, domain)
		}
	}
	return out
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// NormalizeURL drops tracking params and the fragment and canonicalizes
// scheme/host casing. Applying it twice is a fixed point.
func (s *citationService) NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	// Filter the raw query manually to keep parameter order stable.
	if u.RawQuery != "" {
		var kept []string
		for _, pair := range strings.Split(u.RawQuery, "&") {
			key := pair
			if idx := strings.Index(pair, "="); idx >= 0 {
				key = pair[:idx]
			}
			if isTrackingParam(key) {
				continue
			}
			kept = append(kept, pair)
		}
		u.RawQuery = strings.Join(kept, "&")
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	u.Host = strings.TrimPrefix(host, "www.")

	return u.String()
}

func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	return strings.HasPrefix(k, "utm_") || strings.HasPrefix(k, "gclid") || strings.HasPrefix(k, "fbclid")
}

func (s *citationService) EnrichCitations(ctx context.Context, links []string, maxTitles int) []models.Citation {
	citations := make([]models.Citation, 0, len(links))
	seen := make(map[string]bool)

	for _, raw := range links {
		if raw == "" {
			continue
		}
		normalized := s.NormalizeURL(raw)
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		citations = append(citations, models.Citation{
			URL:    normalized,
			Domain: domainOf(normalized),
			Rank:   len(citations) + 1,
			Title:  nil,
		})
	}

	// Titles only for the first maxTitles by rank; failures stay nil and
	// never abort the batch.
	for i := range citations {
		if i >= maxTitles {
			break
		}
		if title := s.fetchTitle(ctx, citations[i].URL); title != "" {
			t := title
			citations[i].Title = &t
		}
	}

	return citations
}

// fetchTitle grabs the page <title> best-effort: short timeout, capped body
// read, empty string on any failure.
func (s *citationService) fetchTitle(ctx context.Context, pageURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		fmt.Printf("[fetchTitle] fetch failed for %s: %v\n", pageURL, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ""
	}

	limited := io.LimitReader(resp.Body, int64(s.maxBodyBytes))
	doc, err := goquery.NewDocumentFromReader(limited)
	if err != nil {
		return ""
	}

	title := whitespaceRE.ReplaceAllString(doc.Find("title").First().Text(), " ")
	title = strings.TrimSpace(title)
	return truncateRunes(title, titleMaxLen)
}

// truncateRunes caps s at max runes without splitting a multi-byte
// character.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// QualityScore is an additive heuristic. Scores only rank citations
// relative to each other.
func (s *citationService) QualityScore(citation models.Citation) float64 {
	score := 0.0

	domain := strings.ToLower(citation.Domain)
	switch {
	case domain == "":
		// no domain bonus
	case s.vendorDomains[domain]:
		score += 0.4 // official vendor source
	case strings.HasSuffix(domain, ".org") || strings.HasSuffix(domain, ".edu"):
		score += 0.4
	case strings.HasSuffix(domain, ".com") && strings.Count(domain, ".") == 1:
		score += 0.3 // clean commercial domain
	case strings.Contains(domain, "news") || strings.Contains(domain, "media"):
		score += 0.2
	}

	if citation.Title != nil && len(*citation.Title) > minTitleBonus {
		score += 0.2
	}

	if citation.URL != "" && !strings.Contains(citation.URL, "utm_") && !strings.Contains(citation.URL, "gclid") {
		score += 0.1
	}

	switch {
	case citation.Rank >= 1 && citation.Rank <= 5:
		score += 0.2
	case citation.Rank > 5 && citation.Rank <= 10:
		score += 0.1
	}

	if score > 1.0 {
		return 1.0
	}
	if score < 0.0 {
		return 0.0
	}
	return score
}
