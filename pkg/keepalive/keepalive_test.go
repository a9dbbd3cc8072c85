package keepalive

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNested(t *testing.T) {
	body := []byte(`{
		"client_id": "office-vpn",
		"timestamp": "2026-08-24T10:15:00+01:00",
		"public_ip": "91.203.5.146",
		"status": "alive",
		"location": {
			"country": "GB", "city": "London", "region": "England",
			"org": "M247", "timezone": "Europe/London"
		},
		"dns_test": {"location": "GB", "colo": "LHR"},
		"client_version": "v1.4.2"
	}`)
	rec, err := Parse(body)
	require.NoError(t, err)
	assert.Equal(t, Record{
		ClientID:      "office-vpn",
		Timestamp:     "2026-08-24T10:15:00+01:00",
		PublicIP:      "91.203.5.146",
		Status:        "alive",
		Country:       "GB",
		City:          "London",
		Region:        "England",
		Org:           "M247",
		Timezone:      "Europe/London",
		DNSLoc:        "GB",
		DNSColo:       "LHR",
		ClientVersion: "v1.4.2",
	}, rec)
}

func TestParseFlat(t *testing.T) {
	body := []byte(`{
		"client_id": "office-vpn",
		"public_ip": "91.203.5.146",
		"status": "alive",
		"country": "GB", "city": "London", "region": "England",
		"org": "M247", "timezone": "Europe/London",
		"dns_loc": "GB", "dns_colo": "LHR"
	}`)
	rec, err := Parse(body)
	require.NoError(t, err)
	assert.Equal(t, "GB", rec.Country)
	assert.Equal(t, "London", rec.City)
	assert.Equal(t, "GB", rec.DNSLoc)
	assert.Equal(t, "LHR", rec.DNSColo)
}

func TestParseNestedWinsPerKey(t *testing.T) {
	// The nested block overrides only the keys it actually carries.
	body := []byte(`{
		"client_id": "office-vpn",
		"country": "US", "city": "Flatville", "dns_loc": "US",
		"location": {"country": "GB"},
		"dns_test": {"colo": "LHR"}
	}`)
	rec, err := Parse(body)
	require.NoError(t, err)
	assert.Equal(t, "GB", rec.Country)
	assert.Equal(t, "Flatville", rec.City)
	assert.Equal(t, "US", rec.DNSLoc)
	assert.Equal(t, "LHR", rec.DNSColo)
}

func TestParseRejects(t *testing.T) {
	for name, body := range map[string]string{
		"array":         `[1,2,3]`,
		"scalar":        `"hello"`,
		"truncated":     `{"client_id": "x"`,
		"no client_id":  `{"public_ip": "91.203.5.146"}`,
		"empty object":  `{}`,
		"string nested": `{"client_id": "x", "location": "GB"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	p := Payload{
		ClientID:  "office-vpn",
		Timestamp: "2026-08-24T10:15:00+01:00",
		PublicIP:  "91.203.5.146",
		Status:    StatusAlive,
		Location: Location{
			Country: "GB", City: "London", Region: "England",
			Org: "M247", Timezone: "Europe/London",
		},
		DNSTest: DNSTest{Location: "GB", Colo: "LHR"},
	}
	body, err := json.Marshal(p)
	require.NoError(t, err)
	rec, err := Parse(body)
	require.NoError(t, err)
	assert.Equal(t, "office-vpn", rec.ClientID)
	assert.Equal(t, "GB", rec.Country)
	assert.Equal(t, "LHR", rec.DNSColo)
	assert.Empty(t, rec.ClientVersion)
}

func TestSanitize(t *testing.T) {
	rec := Record{
		ClientID: "office-vpn",
		PublicIP: "91.203.5.146",
		Country:  "GB",
		City:     "<script>x</script>",
		Timezone: "Europe/London",
	}
	clean, rejected := rec.Sanitize()
	assert.Equal(t, "office-vpn", clean.ClientID)
	assert.Equal(t, "91.203.5.146", clean.PublicIP)
	assert.Equal(t, "GB", clean.Country)
	assert.Equal(t, "Unknown", clean.City)
	assert.Equal(t, "Europe/London", clean.Timezone)
	assert.Equal(t, []string{"city"}, rejected)

	// Missing fields become sentinels without being counted as rejected.
	assert.Equal(t, "Unknown", clean.Region)
	assert.Equal(t, "Unknown", clean.DNSLoc)
}

func TestSanitizeHostileEverything(t *testing.T) {
	rec := Record{
		ClientID: "../../etc/passwd",
		PublicIP: "not-an-ip",
		Country:  "<b>GB</b>",
		DNSLoc:   "GB\x00",
	}
	clean, rejected := rec.Sanitize()
	assert.Equal(t, "unknown", clean.ClientID)
	assert.Equal(t, "unknown", clean.PublicIP)
	assert.Equal(t, "Unknown", clean.Country)
	assert.Equal(t, "Unknown", clean.DNSLoc)
	assert.Len(t, rejected, 4)
}
