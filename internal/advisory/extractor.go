package advisory

import (
	"strings"
	"unicode"
)

// Fields holds the five advisory sections pulled from retrieved guideline text.
type Fields struct {
	HealthImplications string
	GeneralAdvice      string
	SensitiveGroups    string
	OutdoorActivities  string
	ProtectiveMeasures string
}

func (f *Fields) set(field Field, value string) {
	switch field {
	case HealthImplications:
		f.HealthImplications = value
	case GeneralAdvice:
		f.GeneralAdvice = value
	case SensitiveGroups:
		f.SensitiveGroups = value
	case OutdoorActivities:
		f.OutdoorActivities = value
	case ProtectiveMeasures:
		f.ProtectiveMeasures = value
	}
}

// Get returns the value of a single field.
func (f Fields) Get(field Field) string {
	switch field {
	case HealthImplications:
		return f.HealthImplications
	case GeneralAdvice:
		return f.GeneralAdvice
	case SensitiveGroups:
		return f.SensitiveGroups
	case OutdoorActivities:
		return f.OutdoorActivities
	case ProtectiveMeasures:
		return f.ProtectiveMeasures
	}
	return ""
}

// Extractor applies a rule table to retrieved context.
type Extractor struct {
	rules []Rule
}

// NewExtractor returns an Extractor over rules. A nil table means DefaultRules.
func NewExtractor(rules []Rule) *Extractor {
	if rules == nil {
		rules = DefaultRules
	}
	return &Extractor{rules: rules}
}

var defaultExtractor = NewExtractor(nil)

// Extract runs DefaultRules over context.
func Extract(context string, aqi int, profile string) Fields {
	return defaultExtractor.Extract(context, aqi, profile)
}

// Extract evaluates every rule independently and falls back per field when a
// rule yields nothing.
func (e *Extractor) Extract(context string, aqi int, profile string) Fields {
	text := []rune(context)
	lower := lowerRunes(text)

	var fields Fields
	for _, rule := range e.rules {
		value := apply(rule, text, lower, profile)
		if value == "" && rule.Fallback != nil {
			value = rule.Fallback(context, profile)
		}
		fields.set(rule.Field, value)
	}
	return fields
}

func apply(rule Rule, text, lower []rune, profile string) string {
	if len(rule.Guard) > 0 && !containsAny(lower, rule.Guard) {
		return ""
	}

	start := -1
	for _, anchor := range rule.anchors(profile) {
		if i := indexRunes(lower, lowerRunes([]rune(anchor)), 0); i >= 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	end := indexRunes(text, []rune{'.'}, start+rule.Lookahead)
	if end < 0 {
		end = len(text)
	}
	return strings.TrimSpace(string(text[start:end]))
}

func containsAny(lower []rune, keywords []string) bool {
	for _, kw := range keywords {
		if indexRunes(lower, lowerRunes([]rune(kw)), 0) >= 0 {
			return true
		}
	}
	return false
}

// lowerRunes keeps one rune per input rune so offsets stay aligned with the source.
func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

// indexRunes returns the first index >= from where needle occurs, or -1.
func indexRunes(haystack, needle []rune, from int) int {
	if from < 0 {
		from = 0
	}
	if len(needle) == 0 || from > len(haystack)-len(needle) {
		return -1
	}
outer:
	for i := from; i <= len(haystack)-len(needle); i++ {
		for j, r := range needle {
			if haystack[i+j] != r {
				continue outer
			}
		}
		return i
	}
	return -1
}
