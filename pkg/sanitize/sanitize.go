// Package sanitize coerces untrusted keepalive fields into storable values.
//
// Every function is a pure coercion: it returns the value to store and whether
// the input was accepted. Rejected inputs are replaced by a sentinel, never
// propagated, so a hostile payload cannot place markup or control characters
// in the store, the dashboard, or a chat message.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/vpnsentinel/vpnsentinel/pkg/iputil"
)

const (
	// UnknownID replaces rejected client ids and IP addresses.
	UnknownID = "unknown"
	// UnknownLoc replaces rejected location fields.
	UnknownLoc = "Unknown"

	maxFieldLen = 100
)

var (
	idRe  = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	locRe = regexp.MustCompile(`^[A-Za-z0-9\s.,'"“”-]+$`)
	tzRe  = regexp.MustCompile(`^[A-Za-z0-9\s.,'"“”/_-]+$`)
)

// ClientID returns the trimmed id when it is 1-100 characters drawn from
// [A-Za-z0-9._-], and UnknownID otherwise.
func ClientID(give string) (string, bool) {
	id := strings.TrimSpace(give)
	if len(id) < 1 || len(id) > maxFieldLen || !idRe.MatchString(id) {
		return UnknownID, false
	}
	return id, true
}

// NormalizeClientID is the lenient client-side counterpart of ClientID: the
// input is lowercased, every run of characters outside [a-z0-9._-] collapses
// to a single '-', and leading and trailing '-' are trimmed. An input that
// normalizes to nothing yields UnknownID.
func NormalizeClientID(give string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(give)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			sb.WriteRune(r)
			dash = false
		default:
			if !dash {
				sb.WriteByte('-')
				dash = true
			}
		}
	}
	id := strings.Trim(sb.String(), "-")
	if id == "" {
		return UnknownID
	}
	if len(id) > maxFieldLen {
		id = id[:maxFieldLen]
	}
	return id
}

// PublicIP returns the canonical textual form of the trimmed input when it
// parses as an IPv4 or IPv6 literal, and UnknownID otherwise.
func PublicIP(give string) (string, bool) {
	ip := iputil.Parse(strings.TrimSpace(give))
	if ip == nil {
		return UnknownID, false
	}
	return ip.String(), true
}

// Version returns the trimmed version string when it is 1-100 characters drawn
// from [A-Za-z0-9._-]. The version is optional, so both empty input and
// rejected input yield "".
func Version(give string) (string, bool) {
	v := strings.TrimSpace(give)
	if v == "" {
		return "", true
	}
	if len(v) > maxFieldLen || !idRe.MatchString(v) {
		return "", false
	}
	return v, true
}

// Location returns the trimmed value when it is at most 100 characters of
// letters, digits, whitespace, and light punctuation, and UnknownLoc otherwise.
func Location(give string) (string, bool) {
	return location(give, locRe)
}

// Timezone is Location but additionally allows '/' and '_', as in
// "Europe/London" or "America/New_York".
func Timezone(give string) (string, bool) {
	return location(give, tzRe)
}

func location(give string, re *regexp.Regexp) (string, bool) {
	loc := strings.TrimSpace(give)
	if loc == "" || len(loc) > maxFieldLen || !re.MatchString(loc) {
		return UnknownLoc, false
	}
	return loc, true
}
