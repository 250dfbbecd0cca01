package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lab427/ferry/internal/transfer"
	"github.com/lab427/ferry/internal/watch"
)

// newWatchCmd creates the 'watch' command group.
func newWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run watch folders that auto-upload new files",
	}
	watchCmd.AddCommand(newWatchRunCmd())
	watchCmd.AddCommand(newWatchListCmd())
	return watchCmd
}

func newWatchRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [rule-name]...",
		Short: "Run watch folders until interrupted",
		Long: `Start the configured watch folders and the transfer queue, then
block until interrupted. With no arguments every configured rule runs;
otherwise only the named rules.

Files already present when a watch starts are never uploaded; only files
that appear afterwards are, once their size and mtime have held still
for the rule's debounce window.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := selectRules(args)
			if err != nil {
				return err
			}

			store, err := openHistory()
			if err != nil {
				logger.Warn().Err(err).Msg("History unavailable, transfers will not be recorded")
			}
			defer closeHistory(store)
			var recorder transfer.Recorder
			if store != nil {
				recorder = store
			}

			q := transfer.NewQueue(newClient(), newNotifier(), recorder, logger)
			q.Start()
			defer q.Stop()

			mgr := watch.NewManager(q, logger)
			defer mgr.StopAll()
			for _, rule := range rules {
				if err := mgr.StartRule(rule); err != nil {
					return err
				}
			}

			logger.Info().Int("rules", len(rules)).Msg("Watching; press Ctrl-C to stop")
			<-cmd.Context().Done()
			logger.Info().Msg("Shutting down watch folders")
			return nil
		},
	}
}

func newWatchListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the configured watch rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(cfg.Watches) == 0 {
				fmt.Println("No watch rules configured.")
				return nil
			}
			for _, rule := range cfg.Watches {
				pattern := rule.Pattern
				if pattern == "" {
					pattern = "*"
				}
				fmt.Printf("%s: %s (%s) -> %s:%s\n",
					rule.Name, rule.LocalDir, pattern, rule.Endpoint.Name, rule.RemoteDir)
			}
			return nil
		},
	}
}

// selectRules returns the configured rules matching names, or all rules
// when names is empty.
func selectRules(names []string) ([]watch.Rule, error) {
	if len(cfg.Watches) == 0 {
		return nil, fmt.Errorf("no watch rules configured")
	}
	if len(names) == 0 {
		return cfg.Watches, nil
	}

	byName := make(map[string]watch.Rule, len(cfg.Watches))
	for _, rule := range cfg.Watches {
		byName[rule.Name] = rule
	}
	rules := make([]watch.Rule, 0, len(names))
	for _, name := range names {
		rule, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("no watch rule named %q", name)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
