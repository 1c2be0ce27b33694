package cook

import (
	"fmt"
	"regexp"
	"strings"
)

// defaultOvenFahrenheit is used when a step mentions the oven without an
// explicit temperature.
const defaultOvenFahrenheit = 350

// threeDigitTemp matches a plausible oven temperature embedded in step text.
var threeDigitTemp = regexp.MustCompile(`\b([1-5][0-9]{2})\b`)

// SuggestTemperature derives a quick-apply heat suggestion from step text
// keywords. It is only ever a default: an explicit setTemperature tool call
// always wins.
func SuggestTemperature(stepText string) string {
	text := strings.ToLower(stepText)
	if text == "" {
		return ""
	}

	switch {
	case strings.Contains(text, "boil"), strings.Contains(text, "high heat"):
		return "High"
	case strings.Contains(text, "saut"), strings.Contains(text, "brown"), strings.Contains(text, "sear"):
		return "Med-High"
	case strings.Contains(text, "simmer"), strings.Contains(text, "medium"):
		return "Medium"
	case strings.Contains(text, "oven"), strings.Contains(text, "roast"), strings.Contains(text, "bake"):
		if m := threeDigitTemp.FindStringSubmatch(text); m != nil {
			return fmt.Sprintf("%s°F", m[1])
		}
		return fmt.Sprintf("%d°F", defaultOvenFahrenheit)
	}
	return "Low"
}
