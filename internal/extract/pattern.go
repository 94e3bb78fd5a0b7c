package extract

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/nyaruka/phonenumbers"

	"github.com/voyago/leadharvest/internal/lead"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
	addrRe  = regexp.MustCompile(`\d{1,5}\s+[A-Za-z0-9.,'\-\s]+(?:Street|Avenue|Road|Boulevard|Lane|Drive|Place|Court|Way|Terrace|Close|Crescent|Grove|Square|Gardens|Plaza)`)
	nameRe  = regexp.MustCompile(`[A-Z][a-zA-Z0-9&\s'-]+(?:Hotel|Resort|Tours?|Travel|Restaurant|Cafe|Agency|Lodge|Inn|Guesthouse|Accommodation|Booking|Reservation)`)

	// Trailing page-section suffixes stripped off extracted business names.
	nameSuffixRe = regexp.MustCompile(`(?i)\s*[-–|]\s*(?:Contact(?:\s+Information)?|About|Home).*$`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// extractPatterns runs the regex pass over the page's visible text. Each
// distinct email yields a candidate; phones without a matching email yield
// their own. All candidates share the page-level name and address guesses.
func (p *Pipeline) extractPatterns(text string, body []byte, sourceURL string, now time.Time) []lead.Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	name := businessName(text, body)
	address := firstAddress(text)
	leadType := classifyLeadType(text, name)

	emails := dedupeStrings(emailRe.FindAllString(text, -1))
	phones := p.validPhones(phoneRe.FindAllString(text, -1))

	var out []lead.Candidate
	base := lead.Candidate{
		SourceURL:    sourceURL,
		BusinessName: name,
		Address:      address,
		LeadType:     leadType,
		Method:       lead.MethodPattern,
		FetchedAt:    now,
	}

	// Pair emails and phones positionally; leftovers get their own candidate.
	n := len(emails)
	if len(phones) > n {
		n = len(phones)
	}
	for i := 0; i < n; i++ {
		cand := base
		if i < len(emails) {
			cand.Email = emails[i]
		}
		if i < len(phones) {
			cand.Phone = phones[i]
		}
		out = append(out, cand)
	}
	if len(out) == 0 && base.Identified() {
		out = append(out, base)
	}
	return out
}

// validPhones normalizes raw phone matches to E.164 and drops invalid ones.
func (p *Pipeline) validPhones(raw []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range raw {
		e164 := p.normalizeLoosePhone(r)
		if e164 == "" || seen[e164] {
			continue
		}
		seen[e164] = true
		out = append(out, e164)
	}
	return out
}

// normalizeLoosePhone validates a raw regex match. The pattern can run past
// the number into adjacent digits (street numbers, years), so on validation
// failure the trailing space-separated group is dropped and the prefix
// retried until nothing remains.
func (p *Pipeline) normalizeLoosePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	for raw != "" {
		if e164 := p.normalizePhone(raw); e164 != "" {
			return e164
		}
		cut := strings.LastIndexAny(raw, " \t")
		if cut < 0 {
			return ""
		}
		raw = strings.TrimRight(raw[:cut], " \t().-")
	}
	return ""
}

func (p *Pipeline) normalizePhone(raw string) string {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), p.cfg.DefaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// businessName finds the page's best business-name guess: a travel-suffixed
// name from the text first, then the <title> or first <h1>.
func businessName(text string, body []byte) string {
	if m := nameRe.FindString(text); m != "" {
		if clean := cleanName(m); clean != "" {
			return clean
		}
	}
	if len(body) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	for _, sel := range []string{"title", "h1"} {
		if clean := cleanName(doc.Find(sel).First().Text()); clean != "" {
			return clean
		}
	}
	return ""
}

func cleanName(raw string) string {
	name := nameSuffixRe.ReplaceAllString(raw, "")
	name = spaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if len(name) <= 3 {
		return ""
	}
	return name
}

func firstAddress(text string) string {
	addr := spaceRe.ReplaceAllString(addrRe.FindString(text), " ")
	addr = strings.TrimSpace(addr)
	if len(addr) <= 10 {
		return ""
	}
	return addr
}

// classifyLeadType buckets a page into hotel / restaurant / tour_operator.
// The business name is the stronger signal; page text breaks ties.
func classifyLeadType(text, name string) string {
	nameLower := strings.ToLower(name)
	for typ, words := range map[string][]string{
		"hotel":         {"hotel", "resort", "lodge", "inn"},
		"restaurant":    {"restaurant", "cafe", "dining"},
		"tour_operator": {"tour", "travel", "agency"},
	} {
		for _, w := range words {
			if strings.Contains(nameLower, w) {
				return typ
			}
		}
	}
	textLower := strings.ToLower(text)
	switch {
	case containsAny(textLower, "hotel", "accommodation", "booking"):
		return "hotel"
	case containsAny(textLower, "restaurant", "dining", "menu"):
		return "restaurant"
	case containsAny(textLower, "tour", "excursion", "guide"):
		return "tour_operator"
	default:
		return "unknown"
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// visibleText extracts the page's rendered text with scripts and styles
// removed. Falls back to the raw bytes when the HTML cannot be parsed.
func visibleText(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}
	doc.Find("script, style, noscript").Remove()
	return spaceRe.ReplaceAllString(doc.Text(), " ")
}
