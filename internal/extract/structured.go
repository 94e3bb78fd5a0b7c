package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/voyago/leadharvest/internal/lead"
)

// acceptedTypes are the schema.org types worth turning into leads.
var acceptedTypes = map[string]bool{
	"organization":      true,
	"localbusiness":     true,
	"hotel":             true,
	"restaurant":        true,
	"touristattraction": true,
}

// jsonLDEntity is a loose view of a schema.org node. @type may be a string
// or a list; address may be a string or a PostalAddress object.
type jsonLDEntity struct {
	Type      json.RawMessage `json:"@type"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Telephone string          `json:"telephone"`
	URL       string          `json:"url"`
	Address   json.RawMessage `json:"address"`
	Graph     []jsonLDEntity  `json:"@graph"`
}

type postalAddress struct {
	StreetAddress   string `json:"streetAddress"`
	AddressLocality string `json:"addressLocality"`
	PostalCode      string `json:"postalCode"`
	AddressCountry  string `json:"addressCountry"`
}

// extractStructured runs the JSON-LD and microdata pass. The goquery parse
// error is the only hard failure; malformed script blocks are skipped.
func extractStructured(body []byte, sourceURL string, now time.Time) ([]lead.Candidate, error) {
	if len(body) == 0 {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []lead.Candidate
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		out = append(out, parseJSONLD([]byte(s.Text()), sourceURL, now)...)
	})
	doc.Find("[itemtype]").Each(func(_ int, s *goquery.Selection) {
		if cand, ok := parseMicrodata(s, sourceURL, now); ok {
			out = append(out, cand)
		}
	})
	return out, nil
}

func parseJSONLD(raw []byte, sourceURL string, now time.Time) []lead.Candidate {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var entities []jsonLDEntity
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &entities); err != nil {
			return nil
		}
	} else {
		var single jsonLDEntity
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil
		}
		entities = append(entities, single)
	}

	var out []lead.Candidate
	for _, ent := range entities {
		out = append(out, entityCandidates(ent, sourceURL, now)...)
	}
	return out
}

func entityCandidates(ent jsonLDEntity, sourceURL string, now time.Time) []lead.Candidate {
	var out []lead.Candidate
	for _, nested := range ent.Graph {
		out = append(out, entityCandidates(nested, sourceURL, now)...)
	}
	typ, ok := entityType(ent.Type)
	if !ok {
		return out
	}
	cand := lead.Candidate{
		SourceURL:    sourceURL,
		BusinessName: strings.TrimSpace(ent.Name),
		Email:        strings.TrimSpace(ent.Email),
		Phone:        strings.TrimSpace(ent.Telephone),
		Website:      strings.TrimSpace(ent.URL),
		Address:      flattenAddress(ent.Address),
		LeadType:     leadTypeForSchema(typ),
		Method:       lead.MethodStructured,
		FetchedAt:    now,
	}
	if cand.Identified() {
		out = append(out, cand)
	}
	return out
}

// entityType resolves @type (string or list) against the accepted set.
func entityType(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		t := strings.ToLower(single)
		return t, acceptedTypes[t]
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, s := range many {
			t := strings.ToLower(s)
			if acceptedTypes[t] {
				return t, true
			}
		}
	}
	return "", false
}

func flattenAddress(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var addr postalAddress
	if err := json.Unmarshal(raw, &addr); err != nil {
		return ""
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{addr.StreetAddress, addr.PostalCode, addr.AddressLocality, addr.AddressCountry} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func leadTypeForSchema(typ string) string {
	switch typ {
	case "hotel":
		return "hotel"
	case "restaurant":
		return "restaurant"
	case "touristattraction":
		return "tour_operator"
	default:
		return "unknown"
	}
}

// parseMicrodata pulls itemprop values out of an itemtype-scoped element.
func parseMicrodata(s *goquery.Selection, sourceURL string, now time.Time) (lead.Candidate, bool) {
	itemtype, _ := s.Attr("itemtype")
	lower := strings.ToLower(itemtype)
	matched := false
	for _, t := range []string{"organization", "business", "hotel", "restaurant", "touristattraction"} {
		if strings.Contains(lower, t) {
			matched = true
			break
		}
	}
	if !matched {
		return lead.Candidate{}, false
	}

	prop := func(name string) string {
		return strings.TrimSpace(s.Find(fmt.Sprintf("[itemprop=%q]", name)).First().Text())
	}
	cand := lead.Candidate{
		SourceURL:    sourceURL,
		BusinessName: prop("name"),
		Email:        prop("email"),
		Phone:        prop("telephone"),
		Address:      prop("address"),
		LeadType:     microdataLeadType(lower),
		Method:       lead.MethodStructured,
		FetchedAt:    now,
	}
	if href, ok := s.Find("[itemprop=url]").First().Attr("href"); ok {
		cand.Website = strings.TrimSpace(href)
	}
	return cand, cand.Identified()
}

func microdataLeadType(itemtype string) string {
	switch {
	case strings.Contains(itemtype, "hotel"):
		return "hotel"
	case strings.Contains(itemtype, "restaurant"):
		return "restaurant"
	case strings.Contains(itemtype, "touristattraction"):
		return "tour_operator"
	default:
		return "unknown"
	}
}
