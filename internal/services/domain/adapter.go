// Package domain rewrites generic analysis vocabulary into the terms of the
// dashboard's subject domain.
package domain

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"
)

// Terms maps a generic term to its domain replacement
type Terms map[string]string

// DefaultTerms are the built-in glossaries, keyed by domain
var DefaultTerms = map[string]Terms{
	"finance": {
		"trend":      "price trend",
		"anomaly":    "abnormal price movement",
		"support":    "support level",
		"resistance": "resistance level",
	},
	"retail": {
		"trend":      "sales trend",
		"anomaly":    "unusual demand spike",
		"support":    "baseline sales level",
		"resistance": "sales ceiling",
	},
}

// glossaryFile is the YAML layout of a glossary file:
//
//	domains:
//	  energy:
//	    trend: load trend
type glossaryFile struct {
	Domains map[string]Terms `yaml:"domains"`
}

// Adapter applies per-domain glossaries to annotation text
type Adapter struct {
	mu       sync.RWMutex
	glossary map[string]Terms
	compiled map[string]*regexp.Regexp
	logger   arbor.ILogger
}

// NewAdapter creates an Adapter with the built-in glossaries extended or
// overridden by extra
func NewAdapter(extra map[string]map[string]string, logger arbor.ILogger) *Adapter {
	a := &Adapter{
		glossary: make(map[string]Terms),
		compiled: make(map[string]*regexp.Regexp),
		logger:   logger,
	}
	for domain, terms := range DefaultTerms {
		a.Merge(domain, terms)
	}
	for domain, terms := range extra {
		a.Merge(domain, terms)
	}
	return a
}

// Merge adds or overrides terms for a domain
func (a *Adapter) Merge(domain string, terms map[string]string) {
	domain = normalizeDomain(domain)
	if domain == "" || len(terms) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.glossary[domain]
	if !ok {
		existing = make(Terms)
		a.glossary[domain] = existing
	}
	for term, replacement := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || strings.TrimSpace(replacement) == "" {
			continue
		}
		existing[term] = strings.TrimSpace(replacement)
	}
	delete(a.compiled, domain)
}

// LoadTermsFile merges a YAML glossary file into the adapter
func (a *Adapter) LoadTermsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read glossary %s: %w", path, err)
	}

	var file glossaryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse glossary %s: %w", path, err)
	}

	for domain, terms := range file.Domains {
		a.Merge(domain, terms)
	}
	a.logger.Debug().
		Str("path", path).
		Int("domains", len(file.Domains)).
		Msg("Domain glossary loaded")
	return nil
}

// Domains lists the domains with a glossary
func (a *Adapter) Domains() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, 0, len(a.glossary))
	for d := range a.glossary {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Terms returns a copy of a domain's glossary
func (a *Adapter) Terms(domain string) Terms {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(Terms)
	for k, v := range a.glossary[normalizeDomain(domain)] {
		out[k] = v
	}
	return out
}

// Adapt rewrites generic terms in text for the domain. Matching is whole
// word and case-insensitive; plurals stay plural. Text that already uses a
// replacement is left alone. An unknown domain returns text unchanged.
func (a *Adapter) Adapt(domain, text string) string {
	domain = normalizeDomain(domain)
	terms := a.Terms(domain)
	if len(terms) == 0 || text == "" {
		return text
	}

	re := a.pattern(domain, terms)

	var b strings.Builder
	last, replaced := 0, 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		term, plural, ok := lookup(terms, strings.ToLower(match))
		if !ok {
			continue
		}
		replacement := terms[term]

		if alreadyAdapted(text[:loc[0]], text[loc[1]:], replacement, term) {
			continue
		}

		out := replacement
		if plural {
			out = pluralize(out)
		}
		if startsUpper(match) {
			out = capitalize(out)
		}

		b.WriteString(text[last:loc[0]])
		b.WriteString(out)
		last = loc[1]
		replaced++
	}
	b.WriteString(text[last:])

	if replaced > 0 {
		a.logger.Debug().
			Str("domain", domain).
			Int("replacements", replaced).
			Msg("Annotation adapted to domain")
	}
	return b.String()
}

// pattern compiles one alternation over the domain's terms and their
// plurals, longest first
func (a *Adapter) pattern(domain string, terms Terms) *regexp.Regexp {
	a.mu.RLock()
	re, ok := a.compiled[domain]
	a.mu.RUnlock()
	if ok {
		return re
	}

	keys := make([]string, 0, len(terms))
	for term := range terms {
		keys = append(keys, term)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	alternatives := make([]string, 0, len(keys))
	for _, term := range keys {
		if strings.HasSuffix(term, "y") {
			alternatives = append(alternatives, regexp.QuoteMeta(strings.TrimSuffix(term, "y"))+`(?:y|ies)`)
			continue
		}
		alternatives = append(alternatives, regexp.QuoteMeta(term)+`(?:es|s)?`)
	}
	re = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alternatives, "|") + `)\b`)

	a.mu.Lock()
	a.compiled[domain] = re
	a.mu.Unlock()
	return re
}

// lookup resolves a matched word to its glossary term
func lookup(terms Terms, word string) (string, bool, bool) {
	if _, ok := terms[word]; ok {
		return word, false, true
	}
	for term := range terms {
		if word == term+"s" || word == term+"es" {
			return term, true, true
		}
		if strings.HasSuffix(term, "y") && word == strings.TrimSuffix(term, "y")+"ies" {
			return term, true, true
		}
	}
	return "", false, false
}

// alreadyAdapted reports whether the text around a match already spells out
// the replacement ("price " before "trend", " level" after "support")
func alreadyAdapted(before, after, replacement, term string) bool {
	lower := strings.ToLower(replacement)
	idx := strings.LastIndex(lower, term)
	if idx < 0 || lower == term {
		return false
	}
	prefix, suffix := lower[:idx], lower[idx+len(term):]
	return strings.HasSuffix(strings.ToLower(before), prefix) &&
		strings.HasPrefix(strings.ToLower(after), suffix)
}

func pluralize(s string) string {
	switch {
	case strings.HasSuffix(s, "y") && !strings.HasSuffix(s, "ey"):
		return strings.TrimSuffix(s, "y") + "ies"
	case strings.HasSuffix(s, "s"), strings.HasSuffix(s, "x"), strings.HasSuffix(s, "ch"), strings.HasSuffix(s, "sh"):
		return s + "es"
	}
	return s + "s"
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

func capitalize(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}
