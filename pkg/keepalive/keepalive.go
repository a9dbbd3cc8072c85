// Package keepalive defines the wire shape of a client keepalive and the
// parser that turns either accepted wire form into one canonical record.
package keepalive

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/vpnsentinel/vpnsentinel/pkg/sanitize"
)

// StatusAlive is the fixed status value a client reports.
const StatusAlive = "alive"

// Location is the nested geolocation block of a keepalive payload.
type Location struct {
	Country  string `json:"country"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Org      string `json:"org"`
	Timezone string `json:"timezone"`
}

// DNSTest is the nested DNS egress block of a keepalive payload.
type DNSTest struct {
	Location string `json:"location"`
	Colo     string `json:"colo"`
}

// Payload is the canonical nested keepalive shape that clients send.
type Payload struct {
	ClientID      string   `json:"client_id"`
	Timestamp     string   `json:"timestamp"`
	PublicIP      string   `json:"public_ip"`
	Status        string   `json:"status"`
	Location      Location `json:"location"`
	DNSTest       DNSTest  `json:"dns_test"`
	ClientVersion string   `json:"client_version,omitempty"`
}

// Record is the shape-independent form of one keepalive. Nothing downstream of
// Parse ever sees the wire shape again.
type Record struct {
	ClientID      string
	Timestamp     string
	PublicIP      string
	Status        string
	Country       string
	City          string
	Region        string
	Org           string
	Timezone      string
	DNSLoc        string
	DNSColo       string
	ClientVersion string
}

// Parse decodes body as a keepalive in either the nested or the flat wire
// form. A nested block wins over its flat siblings only for the keys it
// actually carries. The error is non-nil when body is not a JSON object or
// carries no client_id; such requests must be rejected with 400.
func Parse(body []byte) (Record, error) {
	var wire struct {
		ClientID      string            `json:"client_id"`
		Timestamp     string            `json:"timestamp"`
		PublicIP      string            `json:"public_ip"`
		Status        string            `json:"status"`
		ClientVersion string            `json:"client_version"`
		Location      map[string]string `json:"location"`
		DNSTest       map[string]string `json:"dns_test"`

		// Flat alternative: the nested keys hoisted to the top level.
		Country  string `json:"country"`
		City     string `json:"city"`
		Region   string `json:"region"`
		Org      string `json:"org"`
		Timezone string `json:"timezone"`
		DNSLoc   string `json:"dns_loc"`
		DNSColo  string `json:"dns_colo"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return Record{}, errors.Wrap(err, "malformed keepalive")
	}
	if wire.ClientID == "" {
		return Record{}, errors.New("keepalive carries no client_id")
	}
	pick := func(nested map[string]string, key, flat string) string {
		if v, ok := nested[key]; ok {
			return v
		}
		return flat
	}
	return Record{
		ClientID:      wire.ClientID,
		Timestamp:     wire.Timestamp,
		PublicIP:      wire.PublicIP,
		Status:        wire.Status,
		Country:       pick(wire.Location, "country", wire.Country),
		City:          pick(wire.Location, "city", wire.City),
		Region:        pick(wire.Location, "region", wire.Region),
		Org:           pick(wire.Location, "org", wire.Org),
		Timezone:      pick(wire.Location, "timezone", wire.Timezone),
		DNSLoc:        pick(wire.DNSTest, "location", wire.DNSLoc),
		DNSColo:       pick(wire.DNSTest, "colo", wire.DNSColo),
		ClientVersion: wire.ClientVersion,
	}, nil
}

// Sanitize coerces every field of the record through the rules of the
// sanitize package and returns the storable record together with the names of
// the fields whose original values were rejected. Missing fields come back as
// the appropriate sentinel but are not counted as rejected.
func (r Record) Sanitize() (Record, []string) {
	var rejected []string
	field := func(name, val string, f func(string) (string, bool)) string {
		out, ok := f(val)
		if !ok && strings.TrimSpace(val) != "" {
			rejected = append(rejected, name)
		}
		return out
	}
	return Record{
		ClientID:      field("client_id", r.ClientID, sanitize.ClientID),
		Timestamp:     r.Timestamp,
		Status:        r.Status,
		PublicIP:      field("public_ip", r.PublicIP, sanitize.PublicIP),
		Country:       field("country", r.Country, sanitize.Location),
		City:          field("city", r.City, sanitize.Location),
		Region:        field("region", r.Region, sanitize.Location),
		Org:           field("org", r.Org, sanitize.Location),
		Timezone:      field("timezone", r.Timezone, sanitize.Timezone),
		DNSLoc:        field("dns_loc", r.DNSLoc, sanitize.Location),
		DNSColo:       field("dns_colo", r.DNSColo, sanitize.Location),
		ClientVersion: field("client_version", r.ClientVersion, sanitize.Version),
	}, rejected
}
