package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// newDupesCmd creates the 'dupes' command.
func newDupesCmd() *cobra.Command {
	var deleteDupes bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "dupes <remote-dir|@bookmark>",
		Short: "Find duplicate files in a remote tree",
		Long: `Scan a remote tree for duplicate files.

Files are grouped by exact size, then by a digest of their first 64 KiB.
--delete removes all but the first file of each group, after re-verifying
the full content digests match; a group that fails verification is left
untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, dir, err := resolvePath(args[0])
			if err != nil {
				return err
			}
			m := newManager()

			groups, err := m.FindDuplicates(cmd.Context(), ep, dir)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Println("No duplicates found.")
				return nil
			}

			var reclaimable int64
			for _, g := range groups {
				fmt.Printf("%s x%d:\n", humanize.IBytes(uint64(g.Size)), len(g.Paths))
				for i, p := range g.Paths {
					keep := ""
					if i == 0 {
						keep = "  (kept)"
					}
					fmt.Printf("  %s%s\n", p, keep)
				}
				reclaimable += g.Size * int64(len(g.Paths)-1)
			}
			fmt.Printf("\n%d groups, %s reclaimable\n", len(groups), humanize.IBytes(uint64(reclaimable)))

			if !deleteDupes {
				return nil
			}
			if !yes {
				ok, err := confirm(fmt.Sprintf("Delete duplicates and reclaim %s?", humanize.IBytes(uint64(reclaimable))))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}

			store, _ := openHistory()
			defer closeHistory(store)

			for _, g := range groups {
				deleted, err := m.DeleteDuplicates(cmd.Context(), ep, g)
				if err != nil {
					fmt.Printf("group %s: %v\n", g.Digest, err)
					continue
				}
				for _, p := range deleted {
					logAction(store, ep.Name, "delete-duplicate", p, "kept "+g.Paths[0])
					fmt.Printf("deleted %s\n", p)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&deleteDupes, "delete", false, "Delete all but the first file of each group")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
