package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/voyago/leadharvest/internal/crawl"
)

// boostKeywords mark links worth crawling sooner: contact pages and
// travel-business sections.
var boostKeywords = []string{
	"contact", "about", "booking", "reservation",
	"hotel", "tour", "travel", "restaurant",
}

// Links implements crawl.Extractor. Discovery is independent of lead
// quality: every resolvable http(s) anchor on the page is returned, with a
// priority boost for travel-relevant anchors.
func (p *Pipeline) Links(res crawl.Result) []crawl.DiscoveredLink {
	if len(res.Body) == 0 {
		return nil
	}
	baseRaw := res.FinalURL
	if baseRaw == "" {
		baseRaw = res.Job.URL
	}
	base, err := url.Parse(baseRaw)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []crawl.DiscoveredLink
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(strings.ToLower(href), "javascript:") ||
			strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		target := abs.String()
		if seen[target] {
			return
		}
		seen[target] = true

		priority := p.cfg.LinkPriority
		if relevantLink(target, s.Text()) {
			priority += p.cfg.LinkBoost
		}
		out = append(out, crawl.DiscoveredLink{URL: target, Priority: priority})
	})
	return out
}

func relevantLink(target, anchorText string) bool {
	haystack := strings.ToLower(target + " " + anchorText)
	for _, kw := range boostKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
