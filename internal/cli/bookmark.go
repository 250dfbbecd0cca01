package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lab427/ferry/internal/config"
	"github.com/lab427/ferry/internal/remotefs"
)

// newBookmarkCmd creates the 'bookmark' command group.
func newBookmarkCmd() *cobra.Command {
	bookmarkCmd := &cobra.Command{
		Use:     "bookmark",
		Aliases: []string{"bm"},
		Short:   "Manage saved remote locations",
		Long: `Bookmarks name a remote directory on an endpoint. Commands that take
a remote path accept @name in place of the path.`,
	}
	bookmarkCmd.AddCommand(newBookmarkListCmd())
	bookmarkCmd.AddCommand(newBookmarkAddCmd())
	bookmarkCmd.AddCommand(newBookmarkRmCmd())
	return bookmarkCmd
}

func newBookmarkListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bookmarks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(cfg.Bookmarks) == 0 {
				fmt.Println("No bookmarks.")
				return nil
			}
			names := make([]string, 0, len(cfg.Bookmarks))
			for name := range cfg.Bookmarks {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				bm := cfg.Bookmarks[name]
				fmt.Printf("@%-16s %s:%s\n", name, bm.Endpoint, bm.Path)
			}
			return nil
		},
	}
}

func newBookmarkAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <remote-path>",
		Short: "Add or replace a bookmark on the current endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, remotePath := args[0], args[1]
			if name == "" || name[0] == '@' {
				return fmt.Errorf("bookmark name must not be empty or start with '@'")
			}
			ep, err := resolveEndpoint()
			if err != nil {
				return err
			}
			cleaned, err := remotefs.CleanRemotePath(remotePath)
			if err != nil {
				return err
			}
			if cfg.Bookmarks == nil {
				cfg.Bookmarks = make(map[string]config.Bookmark)
			}
			cfg.Bookmarks[name] = config.Bookmark{Endpoint: ep.Name, Path: cleaned}
			if err := config.Save(cfg, cfgFile); err != nil {
				return err
			}
			fmt.Printf("Saved @%s -> %s:%s\n", name, ep.Name, cleaned)
			return nil
		},
	}
}

func newBookmarkRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a bookmark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if len(name) > 0 && name[0] == '@' {
				name = name[1:]
			}
			if _, ok := cfg.Bookmarks[name]; !ok {
				return fmt.Errorf("unknown bookmark %q", name)
			}
			delete(cfg.Bookmarks, name)
			if err := config.Save(cfg, cfgFile); err != nil {
				return err
			}
			fmt.Printf("Removed @%s\n", name)
			return nil
		},
	}
}
