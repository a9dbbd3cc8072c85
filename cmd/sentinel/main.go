package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/datawire/dlib/dlog"

	"github.com/vpnsentinel/vpnsentinel/cmd/sentinel/cmd/client"
	"github.com/vpnsentinel/vpnsentinel/cmd/sentinel/cmd/server"
	"github.com/vpnsentinel/vpnsentinel/pkg/log"
)

func doMain(fn func(ctx context.Context, args ...string) error, args ...string) {
	ctx := context.Background()
	ctx = log.MakeBaseLogger(ctx, os.Getenv("VPN_SENTINEL_LOG_LEVEL"), os.Getenv("VPN_SENTINEL_LOG_FILE"))

	if err := fn(ctx, args...); err != nil {
		dlog.Errorf(ctx, "quit: %v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sentinel {server|client}")
	os.Exit(127)
}

func main() {
	if len(os.Args) > 1 {
		switch name := os.Args[1]; name {
		case "server":
			doMain(server.Main, os.Args[2:]...)
		case "client":
			doMain(client.Main, os.Args[2:]...)
		default:
			fmt.Fprintln(os.Stderr, "sentinel: unknown command:", name)
			os.Exit(127)
		}
		return
	}

	switch name := filepath.Base(os.Args[0]); name {
	case "vpn-sentinel-server":
		doMain(server.Main, os.Args[1:]...)
	case "vpn-sentinel-client":
		doMain(client.Main, os.Args[1:]...)
	default:
		usage()
	}
}
