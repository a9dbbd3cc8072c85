package client

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Env is the complete environment surface of the client role. The bare
// INTERVAL and TIMEOUT names are honored when their prefixed variants are
// unset.
type Env struct {
	ServerURL string `env:"VPN_SENTINEL_URL,default=http://localhost:5000"`
	APIPath   string `env:"VPN_SENTINEL_API_PATH,default=/api/v1"`
	ClientID  string `env:"VPN_SENTINEL_CLIENT_ID,default="`
	APIKey    string `env:"VPN_SENTINEL_API_KEY,default="`

	IntervalSecs      int `env:"VPN_SENTINEL_INTERVAL,default=0"`
	IntervalAliasSecs int `env:"INTERVAL,default=0"`
	TimeoutSecs       int `env:"VPN_SENTINEL_TIMEOUT,default=0"`
	TimeoutAliasSecs  int `env:"TIMEOUT,default=0"`

	AllowInsecure bool   `env:"VPN_SENTINEL_ALLOW_INSECURE,default=false"`
	CABundlePath  string `env:"VPN_SENTINEL_TLS_CERT_PATH,default="`

	HealthPort    uint16 `env:"VPN_SENTINEL_HEALTH_PORT,default=8082"`
	HealthMonitor bool   `env:"VPN_SENTINEL_HEALTH_MONITOR,default=true"`
	HealthPidfile string `env:"VPN_SENTINEL_HEALTH_PIDFILE,default="`

	GeoService      string `env:"VPN_SENTINEL_GEOLOCATION_SERVICE,default=auto"`
	TestCapturePath string `env:"VPN_SENTINEL_TEST_CAPTURE_PATH,default="`
}

// Interval returns the submission period (default 5 minutes).
func (e *Env) Interval() time.Duration {
	return secsOrDefault(300, e.IntervalSecs, e.IntervalAliasSecs)
}

// Timeout returns the HTTP timeout of outbound client calls (default 30s).
func (e *Env) Timeout() time.Duration {
	return secsOrDefault(30, e.TimeoutSecs, e.TimeoutAliasSecs)
}

func secsOrDefault(def int, vals ...int) time.Duration {
	for _, v := range vals {
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return time.Duration(def) * time.Second
}

type envKey struct{}

// LoadEnv processes the client environment and attaches it to the context.
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
