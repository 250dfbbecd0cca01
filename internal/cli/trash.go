package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newTrashCmd creates the 'trash' command group.
func newTrashCmd() *cobra.Command {
	trashCmd := &cobra.Command{
		Use:   "trash",
		Short: "Soft-delete remote files into a restorable trash",
	}

	trashCmd.AddCommand(newTrashPutCmd())
	trashCmd.AddCommand(newTrashListCmd())
	trashCmd.AddCommand(newTrashRestoreCmd())
	trashCmd.AddCommand(newTrashPurgeCmd())
	trashCmd.AddCommand(newTrashEmptyCmd())
	return trashCmd
}

func newTrashPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <remote-path>...",
		Short: "Move remote files into the trash",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, err := resolveEndpoint()
			if err != nil {
				return err
			}
			m := newManager()
			store, _ := openHistory()
			defer closeHistory(store)

			for _, p := range args {
				entry, err := m.TrashPut(cmd.Context(), ep, p)
				if err != nil {
					return err
				}
				logAction(store, ep.Name, "trash", p, "as "+entry.Name)
				fmt.Printf("trashed %s as %s\n", p, entry.Name)
			}
			return nil
		},
	}
}

func newTrashListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List trash contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, err := resolveEndpoint()
			if err != nil {
				return err
			}
			entries, err := newManager().TrashList(cmd.Context(), ep)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("Trash is empty.")
				return nil
			}
			for _, e := range entries {
				note := ""
				if !e.HasSidecar {
					note = "  (no origin record; cannot restore)"
				}
				fmt.Printf("%s%s\n", e.Name, note)
			}
			return nil
		},
	}
}

func newTrashRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <trash-name>...",
		Short: "Restore trash entries to their original locations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, err := resolveEndpoint()
			if err != nil {
				return err
			}
			m := newManager()
			entries, err := m.TrashList(cmd.Context(), ep)
			if err != nil {
				return err
			}
			byName := make(map[string]int, len(entries))
			for i, e := range entries {
				byName[e.Name] = i
			}

			store, _ := openHistory()
			defer closeHistory(store)

			for _, name := range args {
				i, ok := byName[name]
				if !ok {
					return fmt.Errorf("no trash entry named %q", name)
				}
				origin, err := m.Restore(cmd.Context(), ep, entries[i])
				if err != nil {
					return err
				}
				logAction(store, ep.Name, "restore", origin, "from "+name)
				fmt.Printf("restored %s -> %s\n", name, origin)
			}
			return nil
		},
	}
}

func newTrashPurgeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge <trash-name>...",
		Short: "Permanently delete trash entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, err := resolveEndpoint()
			if err != nil {
				return err
			}
			if !yes {
				ok, err := confirm(fmt.Sprintf("Permanently delete %d trash entries?", len(args)))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}

			m := newManager()
			entries, err := m.TrashList(cmd.Context(), ep)
			if err != nil {
				return err
			}
			byName := make(map[string]int, len(entries))
			for i, e := range entries {
				byName[e.Name] = i
			}

			store, _ := openHistory()
			defer closeHistory(store)

			for _, name := range args {
				i, ok := byName[name]
				if !ok {
					return fmt.Errorf("no trash entry named %q", name)
				}
				if err := m.Purge(cmd.Context(), ep, entries[i]); err != nil {
					return err
				}
				logAction(store, ep.Name, "purge", name, "")
				fmt.Printf("purged %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newTrashEmptyCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "empty",
		Short: "Permanently delete everything in the trash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, err := resolveEndpoint()
			if err != nil {
				return err
			}
			if !yes {
				ok, err := confirm("Permanently delete the entire trash?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}

			purged, err := newManager().EmptyTrash(cmd.Context(), ep)
			if purged > 0 {
				store, _ := openHistory()
				defer closeHistory(store)
				logAction(store, ep.Name, "empty-trash", ep.TrashPath, fmt.Sprintf("%d entries", purged))
				fmt.Printf("purged %d entries\n", purged)
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
