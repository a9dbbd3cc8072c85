package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientID(t *testing.T) {
	tests := []struct {
		name string
		give string
		want string
		ok   bool
	}{
		{"plain", "office-vpn", "office-vpn", true},
		{"dots and underscores", "node_3.eu-west", "node_3.eu-west", true},
		{"trimmed", "  office-vpn  ", "office-vpn", true},
		{"empty", "", "unknown", false},
		{"blank", "   ", "unknown", false},
		{"too long", strings.Repeat("a", 101), "unknown", false},
		{"max length", strings.Repeat("a", 100), strings.Repeat("a", 100), true},
		{"spaces inside", "office vpn", "unknown", false},
		{"markup", "<script>alert(1)</script>", "unknown", false},
		{"path traversal", "../../etc/passwd", "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClientID(tt.give)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestPublicIP(t *testing.T) {
	tests := []struct {
		name string
		give string
		want string
		ok   bool
	}{
		{"v4", "91.203.5.146", "91.203.5.146", true},
		{"v4 trimmed", " 91.203.5.146 ", "91.203.5.146", true},
		{"v6", "2001:db8::68", "2001:db8::68", true},
		{"v4 in v6 form", "::ffff:91.203.5.146", "91.203.5.146", true},
		{"hostname", "vpn.example.com", "unknown", false},
		{"with port", "91.203.5.146:443", "unknown", false},
		{"empty", "", "unknown", false},
		{"sentinel round-trip", "unknown", "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PublicIP(tt.give)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestVersion(t *testing.T) {
	got, ok := Version("v1.4.2")
	assert.True(t, ok)
	assert.Equal(t, "v1.4.2", got)

	got, ok = Version("")
	assert.True(t, ok)
	assert.Equal(t, "", got)

	got, ok = Version("v1; rm -rf /")
	assert.False(t, ok)
	assert.Equal(t, "", got)
}

func TestLocation(t *testing.T) {
	tests := []struct {
		name string
		give string
		want string
		ok   bool
	}{
		{"city", "London", "London", true},
		{"compound", "Frankfurt am Main", "Frankfurt am Main", true},
		{"punctuated", "St. John's, Newfoundland", "St. John's, Newfoundland", true},
		{"org", "M247 Europe SRL", "M247 Europe SRL", true},
		{"empty", "", "Unknown", false},
		{"too long", strings.Repeat("x", 101), "Unknown", false},
		{"markup", "<b>London</b>", "Unknown", false},
		{"slash rejected", "Europe/London", "Unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Location(tt.give)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestTimezone(t *testing.T) {
	got, ok := Timezone("Europe/London")
	assert.True(t, ok)
	assert.Equal(t, "Europe/London", got)

	got, ok = Timezone("America/New_York")
	assert.True(t, ok)
	assert.Equal(t, "America/New_York", got)

	got, ok = Timezone("<svg/onload=1>")
	assert.False(t, ok)
	assert.Equal(t, "Unknown", got)
}

func TestNormalizeClientID(t *testing.T) {
	tests := []struct {
		name string
		give string
		want string
	}{
		{"clean", "office-vpn", "office-vpn"},
		{"upper", "Office-VPN", "office-vpn"},
		{"spaces collapse", "my office vpn", "my-office-vpn"},
		{"run collapses once", "a!!@@b", "a-b"},
		{"trimmed dashes", "++office++", "office"},
		{"empty", "", "unknown"},
		{"only junk", "!!!", "unknown"},
		{"truncated", strings.Repeat("a", 150), strings.Repeat("a", 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeClientID(tt.give))
		})
	}
}
