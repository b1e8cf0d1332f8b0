// Package locale resolves per-language style guidance for generated text.
package locale

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// Rule is the style guidance for one language.
type Rule struct {
	// Spelling and vocabulary conventions
	Spelling string
	// Date, currency and number formatting
	Formats string
	// Register and greeting conventions
	Register string
}

// DefaultRules is the built-in rule table keyed by BCP-47 tag.
var DefaultRules = map[string]Rule{
	"en": {
		Spelling: "Use plain international English.",
		Formats:  "Write dates as 12 March 2025. Use the currency of the target organization.",
		Register: "Neutral professional tone; greet with \"Hello\" or the recipient's first name.",
	},
	"en-GB": {
		Spelling: "Use British spelling (organisation, authorise, colour).",
		Formats:  "Dates as DD/MM/YYYY. Currency in GBP (£1,250.00).",
		Register: "Polite and understated; \"Dear\" or \"Hi\" followed by first name.",
	},
	"en-US": {
		Spelling: "Use American spelling (organization, authorize, color).",
		Formats:  "Dates as MM/DD/YYYY. Currency in USD ($1,250.00).",
		Register: "Direct and friendly; \"Hi\" followed by first name.",
	},
	"de": {
		Spelling: "Write in German with correct umlauts and noun capitalisation.",
		Formats:  "Dates as DD.MM.YYYY. Currency as 1.250,00 €.",
		Register: "Formal \"Sie\" address; \"Sehr geehrte/r\" or \"Guten Tag\".",
	},
	"fr": {
		Spelling: "Write in French with correct accents.",
		Formats:  "Dates as DD/MM/YYYY. Currency as 1 250,00 €.",
		Register: "Formal \"vous\" address; \"Bonjour\" followed by the name.",
	},
	"es": {
		Spelling: "Write in Spanish with correct accents and inverted punctuation.",
		Formats:  "Dates as DD/MM/YYYY. Currency as 1.250,00 €.",
		Register: "Formal \"usted\" address; \"Estimado/a\".",
	},
	"nl": {
		Spelling: "Write in Dutch.",
		Formats:  "Dates as DD-MM-YYYY. Currency as € 1.250,00.",
		Register: "Polite \"u\" address; \"Beste\" followed by first name.",
	},
	"it": {
		Spelling: "Write in Italian with correct accents.",
		Formats:  "Dates as DD/MM/YYYY. Currency as 1.250,00 €.",
		Register: "Formal \"Lei\" address; \"Gentile\" followed by the name.",
	},
	"pt": {
		Spelling: "Write in Portuguese with correct accents.",
		Formats:  "Dates as DD/MM/YYYY. Currency as 1.250,00 €.",
		Register: "Formal address; \"Prezado/a\" or \"Caro/a\".",
	},
}

// Cache memoizes resolved guidance per language. It is created once at
// process start, never invalidated, and safe for concurrent use.
type Cache struct {
	rules    map[language.Tag]Rule
	fallback language.Tag

	mu       sync.RWMutex
	resolved map[string]string
}

// NewCache creates a cache over rules. Unparseable keys are skipped.
func NewCache(rules map[string]Rule) *Cache {
	c := &Cache{
		rules:    make(map[language.Tag]Rule, len(rules)),
		fallback: language.English,
		resolved: make(map[string]string),
	}
	for key, r := range rules {
		tag, err := language.Parse(key)
		if err != nil {
			continue
		}
		c.rules[tag] = r
	}
	return c
}

// Guidance returns the style guidance for a BCP-47 language tag, falling back
// from region to base language to English.
func (c *Cache) Guidance(lang string) string {
	key := strings.ToLower(strings.TrimSpace(lang))

	c.mu.RLock()
	g, ok := c.resolved[key]
	c.mu.RUnlock()
	if ok {
		return g
	}

	g = c.resolve(key)

	c.mu.Lock()
	c.resolved[key] = g
	c.mu.Unlock()
	return g
}

func (c *Cache) resolve(key string) string {
	tag, err := language.Parse(key)
	if err != nil {
		tag = c.fallback
	}

	if r, ok := c.rules[tag]; ok {
		return render(tag, r)
	}

	base, _ := tag.Base()
	baseTag, err := language.Compose(base)
	if err == nil {
		if r, ok := c.rules[baseTag]; ok {
			return render(tag, r)
		}
	}

	if r, ok := c.rules[c.fallback]; ok {
		return render(tag, r)
	}
	return ""
}

func render(tag language.Tag, r Rule) string {
	var sb strings.Builder
	sb.WriteString("Write all user-facing text in ")
	sb.WriteString(tag.String())
	sb.WriteString(".\n")
	for _, line := range []string{r.Spelling, r.Formats, r.Register} {
		if line == "" {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
