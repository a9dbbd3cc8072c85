package server

import (
	"context"
	"strconv"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/vpnsentinel/vpnsentinel/pkg/telegram"
)

// Env is the complete environment surface of the server role.
type Env struct {
	APIPort       uint16 `env:"VPN_SENTINEL_SERVER_API_PORT,default=5000"`
	HealthPort    uint16 `env:"VPN_SENTINEL_SERVER_HEALTH_PORT,default=8081"`
	DashboardPort uint16 `env:"VPN_SENTINEL_SERVER_DASHBOARD_PORT,default=8080"`

	APIPath string `env:"VPN_SENTINEL_API_PATH,default=/api/v1"`
	APIKey  string `env:"VPN_SENTINEL_API_KEY,default="`

	AllowedIPs        []string `env:"VPN_SENTINEL_SERVER_ALLOWED_IPS,default="`
	RateLimitRequests int      `env:"VPN_SENTINEL_SERVER_RATE_LIMIT_REQUESTS,default=30"`
	RateLimitWindow   int      `env:"VPN_SENTINEL_SERVER_RATE_LIMIT_WINDOW,default=60"`

	ClientTimeoutMinutes int `env:"VPN_SENTINEL_CLIENT_TIMEOUT_MINUTES,default=30"`
	ServerIPTTLMinutes   int `env:"VPN_SENTINEL_SERVER_IP_TTL_MINUTES,default=15"`

	GeoService string `env:"VPN_SENTINEL_GEOLOCATION_SERVICE,default=auto"`

	TLSCertPath string `env:"VPN_SENTINEL_TLS_CERT_PATH,default="`
	TLSKeyPath  string `env:"VPN_SENTINEL_TLS_KEY_PATH,default="`

	TelegramEnabled string `env:"VPN_SENTINEL_TELEGRAM_ENABLED,default="`
	TelegramToken   string `env:"TELEGRAM_BOT_TOKEN,default="`
	TelegramChatID  string `env:"TELEGRAM_CHAT_ID,default="`

	LogFile  string `env:"VPN_SENTINEL_LOG_FILE,default="`
	Timezone string `env:"TZ,default=UTC"`
}

// ClientTimeout returns the staleness threshold of the eviction sweep.
func (e *Env) ClientTimeout() time.Duration {
	return time.Duration(e.ClientTimeoutMinutes) * time.Minute
}

// ServerIPTTL returns how long the server trusts its own cached egress IP.
func (e *Env) ServerIPTTL() time.Duration {
	return time.Duration(e.ServerIPTTLMinutes) * time.Minute
}

// RateWindow returns the sliding window of the rate limiter.
func (e *Env) RateWindow() time.Duration {
	return time.Duration(e.RateLimitWindow) * time.Second
}

// TelegramConfig translates the three chat variables into the transport
// config. VPN_SENTINEL_TELEGRAM_ENABLED is a tristate: unset (or unparsable)
// means "on when both credentials are present".
func (e *Env) TelegramConfig() telegram.Config {
	cfg := telegram.Config{Token: e.TelegramToken, ChatID: e.TelegramChatID}
	if b, err := strconv.ParseBool(e.TelegramEnabled); err == nil {
		cfg.Enabled = &b
	}
	return cfg
}

type envKey struct{}

// LoadEnv processes the server environment and attaches it to the context.
func LoadEnv(ctx context.Context) (context.Context, error) {
	var env Env
	if err := envconfig.Process(ctx, &env); err != nil {
		return ctx, err
	}
	return WithEnv(ctx, &env), nil
}

func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

func GetEnv(ctx context.Context) *Env {
	env, ok := ctx.Value(envKey{}).(*Env)
	if !ok {
		return nil
	}
	return env
}
