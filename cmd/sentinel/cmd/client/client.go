// Package client implements the agent side of VPN Sentinel: the periodic
// self-measurement loop, authenticated keepalive submission, and the local
// health endpoint.
package client

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/vpnsentinel/vpnsentinel/pkg/sanitize"
	"github.com/vpnsentinel/vpnsentinel/pkg/version"
)

// Main is the entry point of the client role.
func Main(ctx context.Context, _ ...string) error {
	ctx, err := LoadEnv(ctx)
	if err != nil {
		return err
	}
	env := GetEnv(ctx)
	dlog.Infof(ctx, "VPN Sentinel client %s [pid:%d]", version.Version, os.Getpid())

	id := resolveClientID(env.ClientID)
	dlog.Infof(ctx, "reporting as %s to %s every %s", id, env.ServerURL, env.Interval())

	if env.HealthPidfile != "" {
		sweepPidFile(ctx, env.HealthPidfile)
		if err := writePidFile(env.HealthPidfile); err != nil {
			dlog.Warnf(ctx, "cannot write pid file %s: %v", env.HealthPidfile, err)
		} else {
			defer removePidFile(ctx, env.HealthPidfile)
		}
	}

	sup, err := newSupervisor(env, id)
	if err != nil {
		return err
	}

	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		EnableSignalHandling: true,
		SoftShutdownTimeout:  5 * time.Second,
	})

	if env.HealthMonitor {
		hm := newHealthMonitor(env.HealthPort, sup)
		g.Go("health", func(ctx context.Context) error {
			// A broken health endpoint must not stop reporting.
			if err := hm.serve(ctx); err != nil && ctx.Err() == nil {
				dlog.Errorf(ctx, "health endpoint failed: %v", err)
			}
			return nil
		})
	}
	g.Go("report", sup.run)

	return g.Wait()
}

// resolveClientID normalizes the configured id, or generates one when none is
// configured.
func resolveClientID(give string) string {
	if strings.TrimSpace(give) != "" {
		return sanitize.NormalizeClientID(give)
	}
	return generateClientID()
}

// generateClientID builds vpn-client-<last 7 digits of epoch><6 random digits>.
func generateClientID() string {
	epoch := strconv.FormatInt(time.Now().Unix(), 10)
	if len(epoch) > 7 {
		epoch = epoch[len(epoch)-7:]
	}
	return fmt.Sprintf("vpn-client-%s%06d", epoch, rand.Intn(1000000))
}
