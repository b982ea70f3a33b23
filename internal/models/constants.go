package models

const (
	ProfileGeneral      = "general"
	ProfileAsthma       = "asthma"
	ProfileHeartDisease = "heart disease"
	ProfileElderly      = "elderly"
	ProfileChildren     = "children"
	ProfilePregnant     = "pregnant"

	DefaultCity    = "Unknown"
	DefaultProfile = ProfileGeneral

	MinAQI = 0
	MaxAQI = 500

	// QueryTemplate is filled with aqi, category and user profile.
	QueryTemplate    = "AQI %d %s health advisory for %s profile"
	ContextSeparator = "\n\n"
)

// Profiles lists the accepted user profiles in display order.
var Profiles = []string{
	ProfileGeneral,
	ProfileAsthma,
	ProfileHeartDisease,
	ProfileElderly,
	ProfileChildren,
	ProfilePregnant,
}

// IsValidProfile reports whether p is one of Profiles.
func IsValidProfile(p string) bool {
	for _, profile := range Profiles {
		if p == profile {
			return true
		}
	}
	return false
}
