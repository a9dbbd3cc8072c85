// Package gate guards the authenticated API endpoints. Every request passes
// three ordered checks before it reaches a handler: source whitelist, sliding
// window rate limit, and API key. Health endpoints and the dashboard bypass
// the gate entirely.
package gate

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/vpnsentinel/vpnsentinel/pkg/iputil"
)

// Config carries the operator knobs of the gate.
type Config struct {
	APIKey    string
	Whitelist []string // empty means allow all sources
	Window    time.Duration
	Burst     int
	Clock     Clock // nil means wall time
}

// Gate is an http middleware enforcing the ordered admission checks.
type Gate struct {
	apiKey    string
	whitelist map[string]struct{}
	limiter   *RateLimiter
	warnOnce  sync.Once
}

// New builds a Gate from cfg. Whitelist entries that do not parse as IPs are
// dropped; a whitelist that only held garbage therefore allows all sources.
func New(cfg Config) *Gate {
	var wl map[string]struct{}
	for _, entry := range cfg.Whitelist {
		if ip := iputil.Canonical(entry); ip != "" {
			if wl == nil {
				wl = make(map[string]struct{}, len(cfg.Whitelist))
			}
			wl[ip] = struct{}{}
		}
	}
	return &Gate{
		apiKey:    cfg.APIKey,
		whitelist: wl,
		limiter:   NewRateLimiter(cfg.Window, cfg.Burst, cfg.Clock),
	}
}

// ClientIP extracts the source IP of a request: the first X-Forwarded-For
// entry, then X-Real-IP, then the transport peer address. Headers that do not
// parse as IPs are skipped rather than trusted.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := iputil.FirstForwarded(xff); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := iputil.Canonical(xri); ip != "" {
			return ip
		}
	}
	return iputil.Canonical(r.RemoteAddr)
}

// Middleware wraps next with the gate checks.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := ClientIP(r)
		hasAuth := r.Header.Get("X-API-Key") != ""

		if g.whitelist != nil {
			if _, ok := g.whitelist[ip]; !ok {
				dlog.Warnf(ctx, "gate: endpoint=%s ip=%s auth=%t outcome=reject-whitelist", r.URL.Path, ip, hasAuth)
				rejections.WithLabelValues("whitelist").Inc()
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
		}

		if !g.limiter.Allow(ip) {
			dlog.Warnf(ctx, "gate: endpoint=%s ip=%s auth=%t outcome=reject-ratelimit", r.URL.Path, ip, hasAuth)
			rejections.WithLabelValues("ratelimit").Inc()
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}

		if g.apiKey == "" {
			g.warnOnce.Do(func() {
				dlog.Warn(ctx, "gate: no API key configured, accepting unauthenticated requests")
			})
		} else {
			switch key := r.Header.Get("X-API-Key"); {
			case key == "":
				dlog.Warnf(ctx, "gate: endpoint=%s ip=%s auth=false outcome=reject-nokey", r.URL.Path, ip)
				rejections.WithLabelValues("nokey").Inc()
				writeError(w, http.StatusUnauthorized, "API key required")
				return
			case key != g.apiKey:
				dlog.Warnf(ctx, "gate: endpoint=%s ip=%s auth=true outcome=reject-badkey", r.URL.Path, ip)
				rejections.WithLabelValues("badkey").Inc()
				writeError(w, http.StatusForbidden, "Invalid API key")
				return
			}
		}

		dlog.Infof(ctx, "gate: endpoint=%s ip=%s auth=%t outcome=accept", r.URL.Path, ip, hasAuth)
		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the short JSON body of every gate rejection.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
