// Package server implements the aggregation side of VPN Sentinel: keepalive
// ingestion behind the security gate, the canonical client store with its
// eviction sweep, health classification, the operator dashboard, and the chat
// notification bus.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dhttp"
	"github.com/datawire/dlib/dlog"

	"github.com/vpnsentinel/vpnsentinel/cmd/sentinel/cmd/server/gate"
	"github.com/vpnsentinel/vpnsentinel/cmd/sentinel/cmd/server/state"
	"github.com/vpnsentinel/vpnsentinel/pkg/geoip"
	"github.com/vpnsentinel/vpnsentinel/pkg/telegram"
	"github.com/vpnsentinel/vpnsentinel/pkg/version"
)

// sweepPeriod is the fixed cadence of the stale-client eviction loop.
const sweepPeriod = 60 * time.Second

// ipResolver is the part of geoip.Resolver the service needs; tests stub it.
type ipResolver interface {
	Resolve(ctx context.Context, service string) geoip.Record
}

type service struct {
	env       *Env
	id        string
	startedAt time.Time
	state     *state.State
	gate      *gate.Gate
	resolver  ipResolver
	notifier  *Notifier
}

func newService(env *Env, tgClient *telegram.Client) *service {
	id := uuid.New().String()
	return &service{
		env:       env,
		id:        id,
		startedAt: time.Now(),
		state:     state.New(nil, env.ServerIPTTL()),
		gate: gate.New(gate.Config{
			APIKey:    env.APIKey,
			Whitelist: env.AllowedIPs,
			Window:    env.RateWindow(),
			Burst:     env.RateLimitRequests,
		}),
		resolver: geoip.NewResolver(10 * time.Second),
		notifier: NewNotifier(tgClient, id, env.ClientTimeout()),
	}
}

// Main is the entry point of the server role.
func Main(ctx context.Context, _ ...string) error {
	ctx, err := LoadEnv(ctx)
	if err != nil {
		return err
	}
	env := GetEnv(ctx)
	dlog.Infof(ctx, "VPN Sentinel server %s [pid:%d]", version.Version, os.Getpid())

	var tgClient *telegram.Client
	if cfg := env.TelegramConfig(); cfg.Active() {
		// Enabled without credentials is a fatal misconfiguration.
		if tgClient, err = telegram.NewClient(cfg); err != nil {
			return err
		}
	} else {
		dlog.Info(ctx, "chat notifications disabled")
	}

	s := newService(env, tgClient)
	dlog.Infof(ctx, "instance id %s, client timeout %s", s.id, env.ClientTimeout())

	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		EnableSignalHandling: true,
		SoftShutdownTimeout:  5 * time.Second,
	})

	g.Go("api", s.serveAPI)
	g.Go("health", s.serveHealth)
	g.Go("dashboard", s.serveDashboard)
	g.Go("gc", s.gcLoop)
	g.Go("notify", s.notifier.Run)

	if tgClient != nil {
		messages := make(chan telegram.Message)
		poller := telegram.NewPoller(tgClient, messages)
		router := telegram.NewRouter(tgClient, s.commands())
		g.Go("chat-poll", poller.Run)
		g.Go("chat-route", func(ctx context.Context) error {
			return router.Run(ctx, messages)
		})
	}

	s.notifier.ServerStarted(ctx)
	err = g.Wait()

	// The group context is gone by now; give the stop notice its own bounded one.
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	s.notifier.ServerStopped(stopCtx)
	dlog.Infof(ctx, "server stopped after %s", time.Since(s.startedAt).Round(time.Second))
	return err
}

// apiHandler builds the authenticated API router: gate middleware in front of
// the ingestion endpoints under the configured prefix.
func (s *service) apiHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(recoverer)
	r.Route(apiPath(s.env.APIPath), func(r chi.Router) {
		r.Use(s.gate.Middleware)
		r.Post("/keepalive", s.handleKeepalive)
		r.Get("/status", s.handleStatus)
	})
	return r
}

func (s *service) serveAPI(ctx context.Context) error {
	r := s.apiHandler()
	addr := fmt.Sprintf(":%d", s.env.APIPort)
	sc := &dhttp.ServerConfig{Handler: r}
	if s.env.TLSCertPath != "" && s.env.TLSKeyPath != "" {
		dlog.Infof(ctx, "api listening on %s%s (TLS)", addr, apiPath(s.env.APIPath))
		return sc.ListenAndServeTLS(ctx, addr, s.env.TLSCertPath, s.env.TLSKeyPath)
	}
	dlog.Infof(ctx, "api listening on %s%s", addr, apiPath(s.env.APIPath))
	return sc.ListenAndServe(ctx, addr)
}

func (s *service) serveHealth(ctx context.Context) error {
	r := chi.NewRouter()
	r.Get("/health", s.handleServerHealth)
	r.Get("/health/ready", s.handleServerHealth)
	r.Get("/health/startup", s.handleServerHealth)
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", s.env.HealthPort)
	dlog.Infof(ctx, "health listening on %s", addr)
	return (&dhttp.ServerConfig{Handler: r}).ListenAndServe(ctx, addr)
}

func (s *service) serveDashboard(ctx context.Context) error {
	r := chi.NewRouter()
	r.Get("/dashboard", s.handleDashboard)
	r.Get("/dashboard/", s.handleDashboard)
	r.Get("/logs", s.handleLogs)

	addr := fmt.Sprintf(":%d", s.env.DashboardPort)
	dlog.Infof(ctx, "dashboard listening on %s", addr)
	return (&dhttp.ServerConfig{Handler: r}).ListenAndServe(ctx, addr)
}

// gcLoop sweeps the store for stale clients on a fixed cadence.
func (s *service) gcLoop(ctx context.Context) error {
	ticker := time.NewTicker(sweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep is one iteration of the eviction loop, separated out for tests.
func (s *service) sweep(ctx context.Context) {
	evicted := s.state.Evict(ctx, s.env.ClientTimeout())
	if len(evicted) > 0 {
		evictionsTotal.Add(float64(len(evicted)))
		activeClients.Set(float64(s.state.Count()))
		if s.state.Count() == 0 {
			s.notifier.StoreEmptied()
		}
	}
	s.notifier.SweepTick(ctx)
}
