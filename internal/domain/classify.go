package domain

// Rule pairs a predicate over a day summary with the label it produces.
// A nil aggregate never matches a threshold.
type Rule struct {
	Label string
	Match func(s DaySummary) bool
}

// LabelNormal is the label when no rule in a set matches.
const LabelNormal = "Normal"

// Labels produced by the default extreme-weather rule set.
const (
	LabelStorm       = "Storm"
	LabelSevereCold  = "Severe Cold"
	LabelExtremeHeat = "Extreme Heat"
	LabelStrongWinds = "Strong Winds"
	LabelHeavyRain   = "Heavy Rain"
)

// Extreme-weather thresholds: wind in m/s, precipitation in mm, temperature
// in °C.
const (
	stormWindThreshold   = 12.0
	stormPrecipThreshold = 15.0
	severeColdThreshold  = -5.0
	extremeHeatThreshold = 28.0
)

func exceeds(v *float64, threshold float64) bool {
	return v != nil && *v > threshold
}

func below(v *float64, threshold float64) bool {
	return v != nil && *v < threshold
}

// ExtremeWeatherRules is the default ordered rule set for extremes reports.
// Order matters: a stormy, freezing day is a Storm, not Severe Cold.
var ExtremeWeatherRules = []Rule{
	{Label: LabelStorm, Match: func(s DaySummary) bool {
		return exceeds(s.WindSpeedMax, stormWindThreshold) && exceeds(s.PrecipSum, stormPrecipThreshold)
	}},
	{Label: LabelSevereCold, Match: func(s DaySummary) bool {
		return below(s.TempMin, severeColdThreshold)
	}},
	{Label: LabelExtremeHeat, Match: func(s DaySummary) bool {
		return exceeds(s.TempMax, extremeHeatThreshold)
	}},
	{Label: LabelStrongWinds, Match: func(s DaySummary) bool {
		return exceeds(s.WindSpeedMax, stormWindThreshold)
	}},
	{Label: LabelHeavyRain, Match: func(s DaySummary) bool {
		return exceeds(s.PrecipSum, stormPrecipThreshold)
	}},
}

// Classify evaluates the rules in order and returns the label of the first
// match, or LabelNormal when none match. Evaluation short-circuits.
func Classify(summary DaySummary, rules []Rule) string {
	for _, rule := range rules {
		if rule.Match(summary) {
			return rule.Label
		}
	}
	return LabelNormal
}

// Labels produced by afternoon-trend classification over paired samples.
const (
	LabelCoolerAfternoon = "Cooler Afternoon"
	LabelNormalWarming   = "Normal Warming"
)

// ClassifyAfternoonTrend compares a morning and an afternoon temperature
// sample. A strictly negative delta (afternoon cooler than morning) is a
// Cooler Afternoon; a zero delta deliberately falls on the warming side, so
// equal temperatures classify as Normal Warming.
func ClassifyAfternoonTrend(tempMorning, tempAfternoon float64) string {
	if tempAfternoon-tempMorning < 0 {
		return LabelCoolerAfternoon
	}
	return LabelNormalWarming
}
