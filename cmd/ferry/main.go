// Ferry - remote file engine for SSH/rsync servers
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lab427/ferry/internal/cli"
)

// Version information - overridden at build time via -ldflags.
var (
	Version   = "v0.1.0-dev"
	BuildTime = "unknown"
)

func main() {
	cli.Version = Version
	cli.BuildTime = BuildTime

	// Ctrl-C cancels the command context; long-running commands (queue
	// runs, watch folders) drain and exit cleanly on it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
