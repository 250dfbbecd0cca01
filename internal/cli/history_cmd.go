package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lab427/ferry/internal/history"
)

// newHistoryCmd creates the 'history' command group.
func newHistoryCmd() *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireHistory()
			if err != nil {
				return err
			}
			defer closeHistory(store)

			records, err := store.RecentTransfers(limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No transfers recorded.")
				return nil
			}
			for _, r := range records {
				fmt.Println(formatTransferRecord(r))
			}
			return nil
		},
	}
	historyCmd.PersistentFlags().IntVar(&limit, "limit", 20, "Maximum number of entries to show")
	historyCmd.AddCommand(newHistoryActionsCmd(&limit))
	return historyCmd
}

func newHistoryActionsCmd(limit *int) *cobra.Command {
	var search string

	actionsCmd := &cobra.Command{
		Use:   "actions",
		Short: "Show recent file-manager actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireHistory()
			if err != nil {
				return err
			}
			defer closeHistory(store)

			var records []history.ActionRecord
			if search != "" {
				records, err = store.SearchActions(search, *limit)
			} else {
				records, err = store.RecentActions(*limit)
			}
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No actions recorded.")
				return nil
			}
			for _, r := range records {
				line := fmt.Sprintf("%s  %-8s %s %s",
					r.At.Local().Format("2006-01-02 15:04:05"), r.Action, r.Endpoint, r.Path)
				if r.Detail != "" {
					line += " (" + r.Detail + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	actionsCmd.Flags().StringVar(&search, "search", "", "Filter actions by path or detail substring")
	return actionsCmd
}

func formatTransferRecord(r history.TransferRecord) string {
	line := fmt.Sprintf("%s  %-8s %-9s %s -> %s",
		r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Direction, r.Status, r.Source, r.Dest)
	if r.Bytes > 0 {
		line += fmt.Sprintf(" (%s in %s)", humanize.IBytes(uint64(r.Bytes)), r.Duration)
	}
	if r.Error != "" {
		line += ": " + r.Error
	}
	return line
}

// requireHistory opens the history store or explains why it cannot.
func requireHistory() (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, fmt.Errorf("history is disabled in the configuration")
	}
	store, err := openHistory()
	if err != nil {
		return nil, err
	}
	return store, nil
}
