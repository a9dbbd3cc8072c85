package cftrace

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/datawire/dlib/dlog"
)

const (
	defaultResolver = "1.1.1.1:53"
	whoamiName      = "whoami.cloudflare."
)

var defaultTraceURLs = []string{
	"https://1.1.1.1/cdn-cgi/trace",
	"https://www.cloudflare.com/cdn-cgi/trace",
}

// Prober determines the DNS egress location of this node by asking Cloudflare
// who is asking.
type Prober struct {
	resolver  string
	traceURLs []string
	timeout   time.Duration
	hClient   *http.Client
}

// NewProber returns a Prober that queries 1.1.1.1 with the given per-attempt
// timeout.
func NewProber(timeout time.Duration) *Prober {
	return &Prober{
		resolver:  defaultResolver,
		traceURLs: defaultTraceURLs,
		timeout:   timeout,
		hClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: nil,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 1 * time.Second,
				}).DialContext,
				DisableKeepAlives: true,
			},
		},
	}
}

// Probe queries TXT whoami.cloudflare through the configured resolver, falling
// back to the HTTPS trace endpoints when that yields no location. A zero Trace
// means every path failed.
func (p *Prober) Probe(ctx context.Context) Trace {
	if t := p.probeDNS(ctx); !t.IsZero() {
		return t
	}
	for _, url := range p.traceURLs {
		if t := p.probeHTTP(ctx, url); !t.IsZero() {
			return t
		}
	}
	return Trace{}
}

func (p *Prober) probeDNS(ctx context.Context) Trace {
	dc := &dns.Client{Net: "udp", Timeout: p.timeout}
	msg := new(dns.Msg)
	msg.SetQuestion(whoamiName, dns.TypeTXT)
	in, _, err := dc.ExchangeContext(ctx, msg, p.resolver)
	if err != nil {
		dlog.Debugf(ctx, "dns egress probe via %s: %v", p.resolver, err)
		return Trace{}
	}
	sb := strings.Builder{}
	for _, rr := range in.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			for _, s := range txt.Txt {
				sb.WriteString(s)
				sb.WriteByte('\n')
			}
		}
	}
	return Parse(sb.String())
}

func (p *Prober) probeHTTP(ctx context.Context, url string) Trace {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Trace{}
	}
	resp, err := p.hClient.Do(req)
	if err != nil {
		dlog.Debugf(ctx, "trace endpoint %s: %v", url, err)
		return Trace{}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		dlog.Debugf(ctx, "trace endpoint %s: status %d", url, resp.StatusCode)
		return Trace{}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return Trace{}
	}
	return Parse(string(body))
}
