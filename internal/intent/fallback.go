package intent

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Deterministic patterns. These are intentionally rigid: the fallback must
// never hallucinate slots, only extract what is unambiguously present.
var (
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDatePattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	adultsPattern    = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:adultos?|adults?|pessoas?|people)\b`)
	childrenPattern  = regexp.MustCompile(`(?i)(?:crian[çc]as?\s*(?:de)?|children|kids?)\s*:?\s*((?:\d{1,2}\s*(?:,|e\s|and\s)\s*)*\d{1,2})`)

	cancelPattern   = regexp.MustCompile(`(?i)\bcancel(?:ar|amento|led)?\b`)
	checkoutPattern = regexp.MustCompile(`(?i)\b(?:pagar|pagamento|pay|payment|checkout)\b|\[link\]`)
	handoffPattern  = regexp.MustCompile(`(?i)\b(?:atendente|humano|recep[çc][ãa]o|human|agent|someone)\b`)
	quotePattern    = regexp.MustCompile(`(?i)\b(?:reserva(?:r)?|disponibilidade|vaga|di[áa]ria|quote|availab|book)`)
)

// Fallback classifies with fixed patterns relative to the current date.
func Fallback(redactedText string) *Classification {
	return FallbackAt(redactedText, time.Now().UTC())
}

// FallbackAt is Fallback pinned to a reference date; year-less dates resolve
// to their next occurrence on or after now.
func FallbackAt(redactedText string, now time.Time) *Classification {
	c := &Classification{
		SchemaVersion: SchemaVersion,
		Intent:        IntentUnknown,
		Confidence:    0.3,
		Reason:        "pattern_fallback",
	}

	dates := extractDates(redactedText, now)
	if len(dates) >= 2 {
		c.Entities.Checkin = dates[0]
		c.Entities.Checkout = dates[1]
	} else if len(dates) == 1 {
		c.Entities.Checkin = dates[0]
	}
	if m := adultsPattern.FindStringSubmatch(redactedText); m != nil {
		c.Entities.AdultCount, _ = strconv.Atoi(m[1])
	}
	c.Entities.ChildrenAges = extractChildrenAges(redactedText)

	switch {
	case cancelPattern.MatchString(redactedText):
		c.Intent = IntentCancelRequest
		c.Confidence = 0.6
	case handoffPattern.MatchString(redactedText):
		c.Intent = IntentHumanHandoff
		c.Confidence = 0.6
	case checkoutPattern.MatchString(redactedText):
		c.Intent = IntentCheckoutRequest
		c.Confidence = 0.5
	case len(dates) >= 2 || quotePattern.MatchString(redactedText):
		c.Intent = IntentQuoteRequest
		c.Confidence = 0.5
	}
	if err := checkSlots(c.Entities); err != nil {
		// Extracted slots that fail coherence are dropped, not repaired.
		c.Entities = Entities{}
	}
	return c
}

// extractDates returns ISO dates in chronological order, deduplicated.
func extractDates(text string, now time.Time) []string {
	seen := map[string]bool{}
	var out []string
	add := func(y, m, d int) {
		t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
		// Reject impossible dates the regex let through, e.g. 31/02.
		if t.Year() != y || int(t.Month()) != m || t.Day() != d {
			return
		}
		iso := t.Format("2006-01-02")
		if !seen[iso] {
			seen[iso] = true
			out = append(out, iso)
		}
	}
	for _, m := range isoDatePattern.FindAllStringSubmatch(text, -1) {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		add(y, mo, d)
	}
	for _, m := range slashDatePattern.FindAllStringSubmatch(text, -1) {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y := 0
		if m[3] != "" {
			y, _ = strconv.Atoi(m[3])
			if y < 100 {
				y += 2000
			}
		} else {
			y = now.Year()
			candidate := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
			if candidate.Before(now.Truncate(24 * time.Hour)) {
				y++
			}
		}
		add(y, mo, d)
	}
	sort.Strings(out)
	return out
}

func extractChildrenAges(text string) []int {
	m := childrenPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	fields := strings.FieldsFunc(m[1], func(r rune) bool {
		return !('0' <= r && r <= '9')
	})
	var ages []int
	for _, f := range fields {
		if f == "" {
			continue
		}
		age, err := strconv.Atoi(f)
		if err == nil {
			ages = append(ages, age)
		}
	}
	return ages
}

// Describe renders a classification for structured logs; entities only,
// never raw text.
func Describe(c *Classification) string {
	return fmt.Sprintf("%s(%.2f)", c.Intent, c.Confidence)
}
