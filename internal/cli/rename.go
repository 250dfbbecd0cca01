package cli

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/lab427/ferry/internal/remotefs"
)

// newRenameCmd creates the 'rename' command.
func newRenameCmd() *cobra.Command {
	var dryRun bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "rename <remote-dir|@bookmark> <pattern> <replacement>",
		Short: "Batch rename files in a remote directory with a regex",
		Long: `Rename every matching entry in a directory by regular expression.

The full rename plan is computed and checked for collisions before
anything is touched; any collision aborts the whole batch. --dry-run
prints the plan without applying it.

Example:
  ferry rename /mnt/user/media/shows '\.720p\.WEB' ''`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, dir, err := resolvePath(args[0])
			if err != nil {
				return err
			}
			pattern, err := regexp.Compile(args[1])
			if err != nil {
				return fmt.Errorf("bad pattern: %w", err)
			}
			replacement := args[2]
			m := newManager()

			entries, err := m.List(cmd.Context(), ep, dir)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name)
			}

			plan, err := remotefs.PlanRename(names, names, pattern, replacement)
			if err != nil {
				return err
			}
			if len(plan) == 0 {
				fmt.Println("Nothing matches; no renames planned.")
				return nil
			}

			for _, r := range plan {
				fmt.Printf("%s -> %s\n", r.Old, r.New)
			}
			if dryRun {
				return nil
			}
			if !yes {
				ok, err := confirm(fmt.Sprintf("Apply %d renames?", len(plan)))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}

			if err := m.BatchRename(cmd.Context(), ep, dir, plan); err != nil {
				return err
			}

			store, _ := openHistory()
			defer closeHistory(store)
			logAction(store, ep.Name, "rename", dir, fmt.Sprintf("%d entries, pattern %q", len(plan), args[1]))
			fmt.Printf("Renamed %d entries.\n", len(plan))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Print the plan without applying it")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
