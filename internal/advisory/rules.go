package advisory

import "aqi-advisory/internal/models"

// Field names one advisory output slot.
type Field string

const (
	HealthImplications Field = "health_implications"
	GeneralAdvice      Field = "general_advice"
	SensitiveGroups    Field = "sensitive_groups"
	OutdoorActivities  Field = "outdoor_activities"
	ProtectiveMeasures Field = "protective_measures"
)

const (
	defaultLookahead   = 200
	sensitiveLookahead = 300
	previewLength      = 300

	emptyContextImplications = "No specific health guidance was found for this air quality level."
)

// Rule describes how one field is sliced out of the retrieved context.
//
// A rule fires only if at least one Guard keyword occurs (an empty Guard always
// passes). The first anchor found wins; anchors are tried in order. Text runs
// from the anchor to the first '.' at or after anchor+Lookahead.
type Rule struct {
	Field     Field
	Guard     []string
	Anchors   []string
	Lookahead int
	// ProfileAnchors replaces Anchors, keyed by user profile.
	ProfileAnchors map[string][]string
	Fallback       func(context, profile string) string
}

func (r Rule) anchors(profile string) []string {
	if r.ProfileAnchors != nil {
		return r.ProfileAnchors[profile]
	}
	return r.Anchors
}

func fixed(s string) func(string, string) string {
	return func(string, string) string { return s }
}

// DefaultRules is the rule table used by the service.
var DefaultRules = []Rule{
	{
		Field:     HealthImplications,
		Anchors:   []string{"health implications", "health effects"},
		Lookahead: defaultLookahead,
		Fallback:  previewFallback,
	},
	{
		Field:     GeneralAdvice,
		Guard:     []string{"advice", "recommendation"},
		Anchors:   []string{"general"},
		Lookahead: defaultLookahead,
		Fallback:  fixed("Follow general air quality guidelines for your area."),
	},
	{
		Field: SensitiveGroups,
		ProfileAnchors: map[string][]string{
			models.ProfileAsthma:       {"asthma", "respiratory"},
			models.ProfileHeartDisease: {"heart", "cardiovascular", "cardiac"},
			models.ProfileElderly:      {"elderly", "senior", "older adults"},
			models.ProfileChildren:     {"children", "child", "pediatric"},
			models.ProfilePregnant:     {"pregnant", "pregnancy", "expecting"},
		},
		Lookahead: sensitiveLookahead,
		Fallback: func(_, profile string) string {
			return "Individuals with " + profile + " should take extra precautions."
		},
	},
	{
		Field:     OutdoorActivities,
		Anchors:   []string{"outdoor", "exercise"},
		Lookahead: defaultLookahead,
		Fallback:  fixed("Limit outdoor activities based on AQI level."),
	},
	{
		Field:     ProtectiveMeasures,
		Anchors:   []string{"protective", "precaution", "measure"},
		Lookahead: defaultLookahead,
		Fallback:  fixed("Stay indoors when possible, use air purifiers, and wear appropriate masks."),
	},
}

func previewFallback(context, _ string) string {
	runes := []rune(context)
	if len(runes) == 0 {
		return emptyContextImplications
	}
	if len(runes) > previewLength {
		return string(runes[:previewLength]) + "..."
	}
	return context
}
