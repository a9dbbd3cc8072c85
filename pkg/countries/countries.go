// Package countries normalizes country designations to ISO 3166-1 alpha-2 codes.
//
// Geolocation providers disagree on the spelling of countries; one returns "RO"
// where another returns "Romania". Comparisons between provider answers must
// therefore go through Normalize or Equal rather than raw string equality.
package countries

import "strings"

// Unknown is the sentinel used when a provider could not determine a country.
// It suppresses comparisons; no value is considered equal to it, not even itself.
const Unknown = "Unknown"

// byName maps lower-cased country names and common aliases to alpha-2 codes.
var byName = map[string]string{
	"albania":              "AL",
	"andorra":              "AD",
	"argentina":            "AR",
	"armenia":              "AM",
	"australia":            "AU",
	"austria":              "AT",
	"azerbaijan":           "AZ",
	"bangladesh":           "BD",
	"belarus":              "BY",
	"belgium":              "BE",
	"bosnia and herzegovina": "BA",
	"brazil":               "BR",
	"bulgaria":             "BG",
	"canada":               "CA",
	"chile":                "CL",
	"china":                "CN",
	"colombia":             "CO",
	"croatia":              "HR",
	"cyprus":               "CY",
	"czech republic":       "CZ",
	"czechia":              "CZ",
	"denmark":              "DK",
	"egypt":                "EG",
	"estonia":              "EE",
	"finland":              "FI",
	"france":               "FR",
	"georgia":              "GE",
	"germany":              "DE",
	"greece":               "GR",
	"hong kong":            "HK",
	"hungary":              "HU",
	"iceland":              "IS",
	"india":                "IN",
	"indonesia":            "ID",
	"ireland":              "IE",
	"israel":               "IL",
	"italy":                "IT",
	"japan":                "JP",
	"kazakhstan":           "KZ",
	"kenya":                "KE",
	"korea":                "KR",
	"latvia":               "LV",
	"liechtenstein":        "LI",
	"lithuania":            "LT",
	"luxembourg":           "LU",
	"malaysia":             "MY",
	"malta":                "MT",
	"mexico":               "MX",
	"moldova":              "MD",
	"monaco":               "MC",
	"morocco":              "MA",
	"netherlands":          "NL",
	"new zealand":          "NZ",
	"nigeria":              "NG",
	"north macedonia":      "MK",
	"norway":               "NO",
	"pakistan":             "PK",
	"peru":                 "PE",
	"philippines":          "PH",
	"poland":               "PL",
	"portugal":             "PT",
	"romania":              "RO",
	"russia":               "RU",
	"russian federation":   "RU",
	"saudi arabia":         "SA",
	"serbia":               "RS",
	"singapore":            "SG",
	"slovakia":             "SK",
	"slovenia":             "SI",
	"south africa":         "ZA",
	"south korea":          "KR",
	"spain":                "ES",
	"sweden":               "SE",
	"switzerland":          "CH",
	"taiwan":               "TW",
	"thailand":             "TH",
	"the netherlands":      "NL",
	"turkey":               "TR",
	"türkiye":              "TR",
	"uae":                  "AE",
	"uk":                   "GB",
	"ukraine":              "UA",
	"united arab emirates": "AE",
	"united kingdom":       "GB",
	"united states":        "US",
	"united states of america": "US",
	"usa":                  "US",
	"vietnam":              "VN",
}

// Normalize maps a country designation to its upper-case alpha-2 code. Known
// long-form names are looked up case-insensitively, two-letter codes are
// upper-cased, and the empty string and the Unknown sentinel both normalize to
// Unknown. Anything else is folded to upper case unchanged, so that two
// providers agreeing on an unmapped spelling still compare equal. Normalize is
// idempotent.
func Normalize(country string) string {
	c := strings.TrimSpace(country)
	if c == "" || strings.EqualFold(c, Unknown) {
		return Unknown
	}
	if code, ok := byName[strings.ToLower(c)]; ok {
		return code
	}
	return strings.ToUpper(c)
}

// Equal reports whether a and b designate the same country. The Unknown
// sentinel is never equal to anything.
func Equal(a, b string) bool {
	na := Normalize(a)
	if na == Unknown {
		return false
	}
	return na == Normalize(b)
}
