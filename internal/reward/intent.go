package reward

import (
	"strings"
)

// CanonicalIntent is the single voluntary-action token a grant requires.
// Rewards are never issued without the client asserting the user chose
// to watch the ad.
const CanonicalIntent = "watch_ad_to_support_us"

// intentAliases are the accepted spellings, compared case- and
// whitespace-insensitively.
var intentAliases = map[string]bool{
	"watch ad to support us": true,
	"watch_ad_to_support_us": true,
}

// NormalizeIntent maps a raw client intent to the canonical token.
// Returns false for anything outside the alias set.
func NormalizeIntent(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Join(strings.Fields(s), " ")
	if !intentAliases[s] && !intentAliases[strings.ReplaceAll(s, "_", " ")] {
		return "", false
	}
	return CanonicalIntent, true
}
