package riot

import "strings"

// NormalizeMatchID ensures a match id carries its platform prefix
// ("NA1_5296..."). Riot's match-v5 endpoints reject bare numeric ids, but
// older rows and some callers still hold them.
//
// Prepending the default platform is a heuristic, not a verified mapping:
// a bare id that originated on another region cannot be disambiguated
// without its separator. We deliberately keep this as a documented
// fallback and never guess harder than this.
func NormalizeMatchID(matchID, defaultPlatform string) (normalized string, wasNormalized bool) {
	if strings.Contains(matchID, "_") {
		return matchID, false
	}
	return strings.ToUpper(defaultPlatform) + "_" + matchID, true
}
