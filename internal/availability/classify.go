package availability

import "strings"

// availableKeywords are the localized substrings the source uses when a
// slot has open spots. Anything else classifies as full, so a wording
// change on the source site turns into false negatives rather than a
// notification storm. Kept in one table so it can be updated without
// touching the diff engine.
var availableKeywords = []string{
	"POSTI DISPONIBILI",
	"DISPONIBILI",
}

// homeModeKeywords identify the home-based delivery mode in the
// calendar's test-type column.
var homeModeKeywords = []string{
	"CENT@CASA",
	"CASA",
}

// ClassifyStatus maps the source's free-text status to a Status.
func ClassifyStatus(text string) Status {
	upper := strings.ToUpper(text)
	for _, kw := range availableKeywords {
		if strings.Contains(upper, kw) {
			return StatusAvailable
		}
	}
	return StatusFull
}

// IsHomeDelivery reports whether a row belongs to the home-based
// delivery mode this service monitors.
func IsHomeDelivery(deliveryMode string) bool {
	upper := strings.ToUpper(deliveryMode)
	for _, kw := range homeModeKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}
