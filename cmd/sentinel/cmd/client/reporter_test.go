package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"

	"github.com/vpnsentinel/vpnsentinel/pkg/keepalive"
)

func testPayload(id string) keepalive.Payload {
	return keepalive.Payload{
		ClientID:  id,
		Timestamp: "2026-08-25T12:00:00+01:00",
		PublicIP:  "91.203.5.146",
		Status:    keepalive.StatusAlive,
		Location: keepalive.Location{
			Country: "GB", City: "London", Region: "England",
			Org: "M247", Timezone: "Europe/London",
		},
		DNSTest: keepalive.DNSTest{Location: "GB", Colo: "LHR"},
	}
}

func TestReporterSubmit(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)

	var gotPath, gotKey, gotType string
	var gotBody keepalive.Payload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		gotType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	env := &Env{ServerURL: ts.URL, APIPath: "api/v1", APIKey: "secret"}
	rep, err := newReporter(env)
	require.NoError(t, err)

	require.NoError(t, rep.submit(ctx, testPayload("office-vpn")))
	assert.Equal(t, "/api/v1/keepalive", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "office-vpn", gotBody.ClientID)
	assert.Equal(t, keepalive.StatusAlive, gotBody.Status)
}

func TestReporterSubmitFailure(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	rep, err := newReporter(&Env{ServerURL: ts.URL, APIPath: "/api/v1"})
	require.NoError(t, err)
	err = rep.submit(ctx, testPayload("office-vpn"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestReporterCaptureMode(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	capture := filepath.Join(t.TempDir(), "nested", "dirs", "capture.jsonl")

	rep, err := newReporter(&Env{
		ServerURL:       "http://server.invalid:5000",
		APIPath:         "/api/v1",
		TestCapturePath: capture,
	})
	require.NoError(t, err)

	// No network I/O happens: the server URL does not even resolve.
	require.NoError(t, rep.submit(ctx, testPayload("one")))
	require.NoError(t, rep.submit(ctx, testPayload("two")))

	raw, err := os.ReadFile(capture)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 2)
	for i, id := range []string{"one", "two"} {
		var p keepalive.Payload
		require.NoError(t, json.Unmarshal([]byte(lines[i]), &p))
		assert.Equal(t, id, p.ClientID)
		assert.NotContains(t, lines[i], "\n")
	}
}

func TestReporterCABundle(t *testing.T) {
	_, err := newReporter(&Env{
		ServerURL:    "https://server.example",
		CABundlePath: filepath.Join(t.TempDir(), "missing.pem"),
	})
	require.Error(t, err)

	junk := filepath.Join(t.TempDir(), "junk.pem")
	require.NoError(t, os.WriteFile(junk, []byte("not a certificate"), 0o644))
	_, err = newReporter(&Env{ServerURL: "https://server.example", CABundlePath: junk})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no certificates")
}
