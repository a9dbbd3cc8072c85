package client

import (
	"context"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/datawire/dlib/dlog"
)

// sweepPidFile clears a stale pid file left by an earlier run. A recorded
// process that still runs under our own user gets SIGTERM, then SIGKILL when
// it refuses to go; a foreign or absent process just loses its file.
func sweepPidFile(ctx context.Context, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			dlog.Warnf(ctx, "cannot read pid file %s: %v", path, err)
		}
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		dlog.Warnf(ctx, "pid file %s holds no pid, removing it", path)
		removePidFile(ctx, path)
		return
	}
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		// Process is gone; only the file lingers.
		removePidFile(ctx, path)
		return
	}
	if !ownedByUs(proc) {
		dlog.Warnf(ctx, "pid file %s records live foreign process %d, removing the file only", path, pid)
		removePidFile(ctx, path)
		return
	}
	dlog.Infof(ctx, "terminating stale process %d from %s", pid, path)
	_ = proc.TerminateWithContext(ctx)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if running, _ := proc.IsRunningWithContext(ctx); !running {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if running, _ := proc.IsRunningWithContext(ctx); running {
		_ = proc.KillWithContext(ctx)
	}
	removePidFile(ctx, path)
}

func ownedByUs(proc *process.Process) bool {
	owner, err := proc.Username()
	if err != nil {
		return false
	}
	me, err := user.Current()
	return err == nil && owner == me.Username
}

func writePidFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func removePidFile(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		dlog.Warnf(ctx, "cannot remove pid file %s: %v", path, err)
	}
}
