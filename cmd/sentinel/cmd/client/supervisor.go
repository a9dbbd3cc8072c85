package client

import (
	"context"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/dlib/dtime"

	"github.com/vpnsentinel/vpnsentinel/pkg/cftrace"
	"github.com/vpnsentinel/vpnsentinel/pkg/geoip"
	"github.com/vpnsentinel/vpnsentinel/pkg/keepalive"
	"github.com/vpnsentinel/vpnsentinel/pkg/version"
)

// geoResolver and dnsProber are the slices of geoip and cftrace the
// supervisor uses; tests stub them.
type geoResolver interface {
	Resolve(ctx context.Context, service string) geoip.Record
}

type dnsProber interface {
	Probe(ctx context.Context) cftrace.Trace
}

// supervisor owns the measure-assemble-submit cycle and the in-memory view of
// the last observations that the health endpoint reads.
type supervisor struct {
	env      *Env
	id       string
	resolver geoResolver
	prober   dnsProber
	rep      *reporter

	mu        sync.Mutex
	lastBeat  time.Time
	lastGeo   geoip.Record
	lastTrace cftrace.Trace
}

func newSupervisor(env *Env, id string) (*supervisor, error) {
	rep, err := newReporter(env)
	if err != nil {
		return nil, err
	}
	s := &supervisor{
		env:      env,
		id:       id,
		resolver: geoip.NewResolver(env.Timeout()),
		prober:   cftrace.NewProber(env.Timeout()),
		rep:      rep,
	}
	s.beat()
	return s, nil
}

// run executes one cycle per interval until ctx is done. A failed cycle never
// stops the loop; the next interval simply tries again.
func (s *supervisor) run(ctx context.Context) error {
	for ctx.Err() == nil {
		s.cycle(ctx)
		dtime.SleepWithContext(ctx, s.env.Interval())
	}
	return nil
}

func (s *supervisor) cycle(ctx context.Context) {
	s.beat()
	geo := s.resolver.Resolve(ctx, s.env.GeoService)
	if geo.IsZero() {
		dlog.Warn(ctx, "geolocation failed on every provider, skipping this cycle")
		return
	}
	trace := s.prober.Probe(ctx)
	s.observe(geo, trace)

	if err := s.rep.submit(ctx, s.buildPayload(geo, trace)); err != nil {
		dlog.Warnf(ctx, "keepalive submission failed: %v", err)
		return
	}
	dlog.Infof(ctx, "keepalive sent: ip=%s country=%s dns=%s/%s via %s",
		geo.IP, geo.Country, trace.Loc, trace.Colo, geo.Source)
}

// buildPayload assembles the canonical keepalive from the latest
// observations. The timestamp is the local wall clock with its offset.
func (s *supervisor) buildPayload(geo geoip.Record, trace cftrace.Trace) keepalive.Payload {
	return keepalive.Payload{
		ClientID:  s.id,
		Timestamp: time.Now().Format(time.RFC3339),
		PublicIP:  geo.IP,
		Status:    keepalive.StatusAlive,
		Location: keepalive.Location{
			Country:  geo.Country,
			City:     geo.City,
			Region:   geo.Region,
			Org:      geo.Org,
			Timezone: geo.Timezone,
		},
		DNSTest: keepalive.DNSTest{
			Location: trace.Loc,
			Colo:     trace.Colo,
		},
		ClientVersion: version.Version,
	}
}

func (s *supervisor) beat() {
	s.mu.Lock()
	s.lastBeat = time.Now()
	s.mu.Unlock()
}

func (s *supervisor) lastBeatTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBeat
}

func (s *supervisor) observe(geo geoip.Record, trace cftrace.Trace) {
	s.mu.Lock()
	s.lastGeo = geo
	s.lastTrace = trace
	s.mu.Unlock()
}
