package geoip

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/datawire/dlib/dlog"
)

func serveJSON(t *testing.T, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func serveStatus(t *testing.T, code int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestResolveFirstProviderWins(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	r := NewResolver(2 * time.Second)
	r.providers[0].url = serveJSON(t, `{
		"ip": "91.203.5.146", "city": "London", "region": "England",
		"country": "GB", "org": "M247 Europe SRL", "timezone": "Europe/London"
	}`).URL
	r.providers[1].url = serveJSON(t, `{"query": "9.9.9.9", "country": "US"}`).URL
	r.providers[2].url = serveJSON(t, `{"ip": "8.8.8.8", "country": "US"}`).URL

	rec := r.Resolve(ctx, ServiceAuto)
	assert.Equal(t, Record{
		IP:       "91.203.5.146",
		Country:  "GB",
		City:     "London",
		Region:   "England",
		Org:      "M247 Europe SRL",
		Timezone: "Europe/London",
		Source:   "ipinfo.io",
	}, rec)
}

func TestResolveFallsThroughChain(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	r := NewResolver(2 * time.Second)
	r.providers[0].url = serveStatus(t, http.StatusTooManyRequests).URL
	r.providers[1].url = serveJSON(t, `{
		"query": "45.142.120.50", "country": "Germany", "regionName": "Hesse",
		"city": "Frankfurt am Main", "isp": "Datacamp Limited", "timezone": "Europe/Berlin"
	}`).URL

	rec := r.Resolve(ctx, ServiceAuto)
	assert.Equal(t, "45.142.120.50", rec.IP)
	assert.Equal(t, "Germany", rec.Country)
	assert.Equal(t, "Hesse", rec.Region)
	assert.Equal(t, "Datacamp Limited", rec.Org)
	assert.Equal(t, "ip-api.com", rec.Source)
}

func TestResolveEmptyIPIsFailure(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	r := NewResolver(2 * time.Second)
	r.providers[0].url = serveJSON(t, `{"city": "Nowhere"}`).URL
	r.providers[1].url = serveJSON(t, `{"query": "45.142.120.50", "country": "DE"}`).URL

	rec := r.Resolve(ctx, ServiceAuto)
	assert.Equal(t, "45.142.120.50", rec.IP)
	assert.Equal(t, "ip-api.com", rec.Source)
}

func TestResolveNamedProviderSingleShot(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	r := NewResolver(2 * time.Second)
	r.providers[0].url = serveStatus(t, http.StatusInternalServerError).URL
	r.providers[1].url = serveJSON(t, `{"query": "45.142.120.50", "country": "DE"}`).URL

	// A named provider must not fall through to the rest of the chain.
	assert.True(t, r.Resolve(ctx, "ipinfo.io").IsZero())
	assert.False(t, r.Resolve(ctx, "ip-api.com").IsZero())
}

func TestResolveUnknownService(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	r := NewResolver(2 * time.Second)
	assert.True(t, r.Resolve(ctx, "geo.example.com").IsZero())
}

func TestParseIPWhoisAsnFallback(t *testing.T) {
	rec, err := parseIPWhois([]byte(`{
		"ip": "91.203.5.146", "country": "United Kingdom", "city": "London",
		"region": "England", "asn": {"name": "M247"}, "timezone": "Europe/London"
	}`))
	assert.NoError(t, err)
	assert.Equal(t, "M247", rec.Org)

	// A flat asn string must not break parsing.
	rec, err = parseIPWhois([]byte(`{"ip": "91.203.5.146", "org": "M247 Europe", "asn": "AS9009"}`))
	assert.NoError(t, err)
	assert.Equal(t, "M247 Europe", rec.Org)
}
