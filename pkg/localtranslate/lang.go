package localtranslate

import "strings"

// displayNameToCode maps the human display names most commonly presented by
// settings UIs to ISO-639-1 codes. Unmapped input is assumed to already be
// a code and is returned lowercased, per spec.md §4.6 ("a canonicalize
// helper maps human display names to codes at the edges").
var displayNameToCode = map[string]string{
	"english":    "en",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"simplified chinese":  "zh",
	"traditional chinese": "zh-Hant",
	"french":     "fr",
	"german":     "de",
	"spanish":    "es",
	"italian":    "it",
	"portuguese": "pt",
	"russian":    "ru",
	"vietnamese": "vi",
	"thai":       "th",
	"polish":     "pl",
	"dutch":      "nl",
	"arabic":     "ar",
}

// Canonicalize maps a human display name (case-insensitive) to its
// ISO-639-1 code. Already-canonical codes, and anything unrecognized, pass
// through lowercased unchanged.
func Canonicalize(languageDisplayNameOrCode string) string {
	key := strings.ToLower(strings.TrimSpace(languageDisplayNameOrCode))
	if code, ok := displayNameToCode[key]; ok {
		return code
	}
	return key
}
