// Package detector decides whether a fetched page needs JavaScript rendering
// to expose its real content.
package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Detector reports whether a page body looks like a JS application shell.
type Detector interface {
	NeedsJS(body []byte) bool
}

// Heuristic implements Detector using simple HTML signals: a body below a
// minimum size, known JS-shell keywords, or required selectors missing from
// the static DOM.
type Heuristic struct {
	minHTMLBytes int
	selectors    []string
	keywords     [][]byte
}

// NewHeuristic constructs a Detector with the configured thresholds.
func NewHeuristic(minBytes int, selectors, keywords []string) *Heuristic {
	lowered := make([][]byte, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(kw)))
	}
	return &Heuristic{
		minHTMLBytes: minBytes,
		selectors:    selectors,
		keywords:     lowered,
	}
}

// NeedsJS inspects the page for signals that JS rendering is required.
func (d *Heuristic) NeedsJS(body []byte) bool {
	if d == nil {
		return false
	}
	switch {
	case d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes:
		return true
	case d.containsKeywords(body):
		return true
	default:
		return d.missingSelectors(body)
	}
}

func (d *Heuristic) containsKeywords(body []byte) bool {
	if len(body) == 0 || len(d.keywords) == 0 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, kw := range d.keywords {
		if bytes.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (d *Heuristic) missingSelectors(body []byte) bool {
	if len(d.selectors) == 0 || len(body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	for _, sel := range d.selectors {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() == 0 {
			return true
		}
	}
	return false
}

// None is a Detector that never requests JS rendering.
type None struct{}

// NeedsJS implements Detector.
func (None) NeedsJS([]byte) bool { return false }
