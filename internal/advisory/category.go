package advisory

// band is one row of the AQI breakpoint table
type band struct {
	max   int
	label string
	icon  string
	mask  string
}

// bands are ordered by upper bound; the last row catches everything above 300.
var bands = []band{
	{50, "Good", "🟢", "No mask needed. Air quality is good."},
	{100, "Moderate", "🟡", "Optional: N95 mask for sensitive individuals during prolonged outdoor activities."},
	{150, "Unhealthy for Sensitive Groups", "🟠", "Recommended: N95 or KN95 mask for sensitive groups and during outdoor activities."},
	{200, "Unhealthy", "🔴", "Strongly Recommended: N95 or KN95 mask for all individuals, especially during outdoor activities."},
	{300, "Very Unhealthy", "🟣", "Essential: N95 or KN95 mask required for all outdoor activities. Consider P100 respirator for extended exposure."},
	{int(^uint(0) >> 1), "Hazardous", "🟤", "Critical: P100 respirator or equivalent required. Minimize all outdoor exposure."},
}

func lookup(aqi int) band {
	for _, b := range bands {
		if aqi <= b.max {
			return b
		}
	}
	return bands[len(bands)-1]
}

// Categorize returns the category label and colored icon for an AQI value.
func Categorize(aqi int) (string, string) {
	b := lookup(aqi)
	return b.label, b.icon
}

// RecommendMask returns the mask guidance for an AQI value.
func RecommendMask(aqi int) string {
	return lookup(aqi).mask
}

// Severity is the zero-based band index of aqi, 0 for Good through 5 for Hazardous.
func Severity(aqi int) int {
	for i, b := range bands {
		if aqi <= b.max {
			return i
		}
	}
	return len(bands) - 1
}
