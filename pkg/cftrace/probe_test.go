package cftrace

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"
)

func startFakeResolver(t *testing.T, txt []string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			if len(txt) > 0 {
				m.Answer = append(m.Answer, &dns.TXT{
					Hdr: dns.RR_Header{
						Name:   r.Question[0].Name,
						Rrtype: dns.TypeTXT,
						Class:  dns.ClassINET,
					},
					Txt: txt,
				})
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() {
		_ = srv.ActivateAndServe()
	}()
	t.Cleanup(func() {
		_ = srv.Shutdown()
	})
	return pc.LocalAddr().String()
}

func TestProbeDNS(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	p := NewProber(2 * time.Second)
	p.resolver = startFakeResolver(t, []string{"loc=GB colo=LHR"})
	p.traceURLs = nil

	assert.Equal(t, Trace{Loc: "GB", Colo: "LHR"}, p.Probe(ctx))
}

func TestProbeFallsBackToHTTP(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fl=1\nip=203.0.113.7\nloc=RO\ncolo=OTP\n"))
	}))
	defer ts.Close()

	p := NewProber(500 * time.Millisecond)
	p.resolver = startFakeResolver(t, nil) // answers with no TXT payload
	p.traceURLs = []string{ts.URL}

	assert.Equal(t, Trace{Loc: "RO", Colo: "OTP"}, p.Probe(ctx))
}

func TestProbeAllPathsFail(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	p := NewProber(500 * time.Millisecond)
	p.resolver = startFakeResolver(t, nil)
	p.traceURLs = []string{ts.URL}

	assert.True(t, p.Probe(ctx).IsZero())
}
