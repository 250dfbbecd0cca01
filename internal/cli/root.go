// Package cli provides the command-line interface for ferry.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lab427/ferry/internal/config"
	"github.com/lab427/ferry/internal/history"
	"github.com/lab427/ferry/internal/logging"
	"github.com/lab427/ferry/internal/notify"
	"github.com/lab427/ferry/internal/remotefs"
	"github.com/lab427/ferry/internal/transport"
)

var (
	// Global flags
	cfgFile      string
	endpointFlag string
	verbose      bool

	// Global logger
	logger *logging.Logger

	// Loaded configuration
	cfg *config.Config
)

// Version information - set by the main package at startup.
var (
	Version   = "v0.1.0-dev"
	BuildTime = "unknown"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ferry",
		Short: "Ferry - remote file engine for SSH/rsync servers",
		Long: `Ferry ` + Version + ` - Built: ` + BuildTime + `
Manage files on remote servers over SSH and move data with rsync.

Browse, search and clean up remote trees, detect duplicates, batch
rename, soft-delete into a restorable trash, queue uploads and
downloads with free-space preflight, and auto-upload watch folders.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = logging.NewDefault()
			if verbose {
				logging.SetDebug()
			}

			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&endpointFlag, "endpoint", "e", "", "Endpoint name (defaults to default_endpoint)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = Version + " (" + BuildTime + ")"

	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newDupesCmd())
	rootCmd.AddCommand(newRenameCmd())
	rootCmd.AddCommand(newTrashCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newMvCmd())
	rootCmd.AddCommand(newCpCmd())
	rootCmd.AddCommand(newDuCmd())
	rootCmd.AddCommand(newChecksumCmd())
	rootCmd.AddCommand(newUpCmd())
	rootCmd.AddCommand(newDownCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newBookmarkCmd())
	rootCmd.AddCommand(newShellCmd())
	rootCmd.AddCommand(newEditCmd())

	return rootCmd
}

// resolveEndpoint picks the endpoint for this invocation from the
// --endpoint flag, the config default, or a bookmark reference.
func resolveEndpoint() (transport.Endpoint, error) {
	return cfg.Endpoint(endpointFlag)
}

// newClient creates the transport client over the system ssh/rsync.
func newClient() *transport.Client {
	return transport.NewClient(logger)
}

// newManager creates a file manager over a fresh transport client.
func newManager() *remotefs.Manager {
	return remotefs.NewManager(newClient(), logger)
}

// openHistory opens the configured history store. Returns nil when
// history is disabled; callers treat a nil store as "do not record".
func openHistory() (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	path := cfg.History.Path
	if path == "" {
		var err error
		path, err = history.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return history.Open(path)
}

// logAction writes to the audit trail, tolerating a disabled store.
func logAction(store *history.Store, endpoint, action, path, detail string) {
	if store == nil {
		return
	}
	if err := store.LogAction(endpoint, action, path, detail); err != nil {
		logger.Warn().Err(err).Str("action", action).Msg("Recording action failed")
	}
}

// newNotifier assembles the configured notification sinks.
func newNotifier() notify.Notifier {
	return notify.FromConfig(&cfg.Notifications, logger)
}

// resolvePath expands a bookmark reference (@name) or returns the path
// unchanged. A bookmark also pins the endpoint for the invocation.
func resolvePath(arg string) (transport.Endpoint, string, error) {
	if len(arg) > 1 && arg[0] == '@' {
		bm, ok := cfg.Bookmarks[arg[1:]]
		if !ok {
			return transport.Endpoint{}, "", fmt.Errorf("unknown bookmark %q", arg[1:])
		}
		ep, err := cfg.Endpoint(bm.Endpoint)
		if err != nil {
			return transport.Endpoint{}, "", err
		}
		return ep, bm.Path, nil
	}
	ep, err := resolveEndpoint()
	if err != nil {
		return transport.Endpoint{}, "", err
	}
	return ep, arg, nil
}
