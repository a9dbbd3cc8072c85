package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/blang/semver/v4"

	"github.com/datawire/dlib/dlog"

	"github.com/vpnsentinel/vpnsentinel/pkg/keepalive"
	"github.com/vpnsentinel/vpnsentinel/pkg/sanitize"
	"github.com/vpnsentinel/vpnsentinel/pkg/version"
)

// keepaliveResponse is the body of an accepted keepalive.
type keepaliveResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	ServerTime string `json:"server_time"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *service) handleKeepalive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		keepalivesRejected.WithLabelValues("read").Inc()
		writeJSON(w, http.StatusBadRequest, errorBody{"Unreadable request body"})
		return
	}
	rec, err := keepalive.Parse(body)
	if err != nil {
		keepalivesRejected.WithLabelValues("malformed").Inc()
		dlog.Warnf(ctx, "api: rejected keepalive: %v", err)
		writeJSON(w, http.StatusBadRequest, errorBody{"Invalid keepalive payload"})
		return
	}
	clean, rejected := rec.Sanitize()
	if clean.ClientID == sanitize.UnknownID {
		keepalivesRejected.WithLabelValues("client_id").Inc()
		dlog.Warnf(ctx, "security: rejected keepalive with invalid client_id %q", rec.ClientID)
		writeJSON(w, http.StatusBadRequest, errorBody{"Invalid client_id"})
		return
	}
	if len(rejected) > 0 {
		dlog.Warnf(ctx, "security: client %s sent invalid fields %v, stored sentinels", clean.ClientID, rejected)
	}

	s.ensureServerIP(ctx)
	out := s.state.Apply(clean)
	keepalivesAccepted.Inc()
	activeClients.Set(float64(s.state.Count()))

	dlog.Infof(ctx, "api: keepalive from %s", clean.ClientID)
	dlog.Infof(ctx, "vpn-info: client=%s ip=%s location=%s provider=%s dns=%s/%s",
		clean.ClientID, out.Entry.IP, out.Entry.Location, out.Entry.Provider, out.Entry.DNSLoc, out.Entry.DNSColo)
	if serverIP := s.state.CachedServerIP(); clean.PublicIP == sanitize.UnknownID || (serverIP != "" && clean.PublicIP == serverIP) {
		dlog.Warnf(ctx, "security: VPN BYPASS WARNING: client %s reports ip %s (server egress %s)",
			clean.ClientID, clean.PublicIP, serverIP)
	}
	s.warnVersionSkew(ctx, clean.ClientID, clean.ClientVersion)

	s.notifier.KeepaliveAccepted()
	switch {
	case out.IsNew:
		s.notifier.ClientConnected(ctx, clean.ClientID, out.Entry)
	case out.IPChanged:
		s.notifier.IPChanged(ctx, clean.ClientID, out.Entry, out.OldIP, out.Entry.IP)
	}

	writeJSON(w, http.StatusOK, keepaliveResponse{
		Status:     "ok",
		Message:    "Keepalive received from " + clean.ClientID,
		ServerTime: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *service) handleServerHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"instance_id": s.id,
		"uptime":      time.Since(s.startedAt).Round(time.Second).String(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ensureServerIP lazily resolves the server's own egress IP through the same
// provider chain the clients use. The cached value ages out per the TTL; a
// failed refresh keeps whatever the store had.
func (s *service) ensureServerIP(ctx context.Context) {
	if s.state.CachedServerIP() != "" {
		return
	}
	rec := s.resolver.Resolve(ctx, s.env.GeoService)
	if rec.IsZero() {
		if stale := s.state.ReviveServerIP(); stale != "" {
			dlog.Warnf(ctx, "egress ip refresh failed; keeping %s", stale)
			return
		}
		dlog.Warn(ctx, "could not resolve the server's own egress IP; bypass detection degraded")
		return
	}
	if s.state.SetServerIP(rec.IP) {
		dlog.Infof(ctx, "server egress ip %s via %s", rec.IP, rec.Source)
	}
}

func (s *service) warnVersionSkew(ctx context.Context, id, clientVersion string) {
	if clientVersion == "" {
		return
	}
	v, err := semver.ParseTolerant(clientVersion)
	if err != nil {
		return
	}
	if v.Major != version.Structured().Major {
		dlog.Warnf(ctx, "client %s runs version %s, server is %s", id, clientVersion, version.Version)
	}
}

// recoverer turns a handler panic into the 500 contract of the API. Chi ships
// one, but its body is plain text and this API promises JSON.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				dlog.Errorf(r.Context(), "server: panic in %s: %v", r.URL.Path, p)
				writeJSON(w, http.StatusInternalServerError, errorBody{"Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// apiPath slash-normalizes the configured API prefix.
func apiPath(p string) string {
	return path.Join("/", p)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
