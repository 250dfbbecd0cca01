package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lab427/ferry/internal/remotefs"
)

// newLsCmd creates the 'ls' command.
func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <remote-dir|@bookmark>",
		Short: "List a remote directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, dir, err := resolvePath(args[0])
			if err != nil {
				return err
			}

			entries, err := newManager().List(cmd.Context(), ep, dir)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Println(formatEntry(e))
			}
			return nil
		},
	}
}

// formatEntry renders one listing row: type marker, size, mtime, name.
func formatEntry(e remotefs.Entry) string {
	marker := " "
	switch {
	case e.IsDir:
		marker = "d"
	case e.IsSymlink:
		marker = "l"
	}
	size := humanize.IBytes(uint64(e.Size))
	if e.IsDir {
		size = "-"
	}
	return fmt.Sprintf("%s %10s  %s  %s", marker, size, e.ModTime.Format("2006-01-02 15:04"), e.Name)
}

// newSearchCmd creates the 'search' command.
func newSearchCmd() *cobra.Command {
	var contentText string
	var fileType string

	cmd := &cobra.Command{
		Use:   "search <remote-dir|@bookmark> [pattern]",
		Short: "Search a remote tree by name, type or content",
		Long: `Search a remote tree.

By default matches base names containing the pattern, case-insensitively,
streaming results as the remote walk finds them. --type searches by file
category instead; --content searches inside text files.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, dir, err := resolvePath(args[0])
			if err != nil {
				return err
			}
			pattern := ""
			if len(args) == 2 {
				pattern = args[1]
			}
			m := newManager()

			switch {
			case contentText != "":
				matches, err := m.SearchContent(cmd.Context(), ep, dir, contentText, 0)
				if err != nil {
					return err
				}
				for _, p := range matches {
					fmt.Println(p)
				}
				return nil

			case fileType != "":
				it, err := m.SearchByType(cmd.Context(), ep, dir, remotefs.Category(fileType))
				if err != nil {
					return err
				}
				return printStream(it)

			default:
				if pattern == "" {
					return fmt.Errorf("a name pattern is required unless --content or --type is given")
				}
				it, err := m.SearchNames(cmd.Context(), ep, dir, pattern)
				if err != nil {
					return err
				}
				return printStream(it)
			}
		},
	}

	cmd.Flags().StringVar(&contentText, "content", "", "Search inside text files for this string")
	cmd.Flags().StringVar(&fileType, "type", "", "Search by category: "+categoryList())
	return cmd
}

func printStream(it *remotefs.NameIterator) error {
	defer it.Close()
	for it.Next() {
		fmt.Println(it.Path())
	}
	return it.Err()
}

func categoryList() string {
	names := make([]string, 0)
	for _, c := range remotefs.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

// newMkdirCmd creates the 'mkdir' command.
func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <remote-dir>",
		Short: "Create a remote directory (with parents)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, dir, err := resolvePath(args[0])
			if err != nil {
				return err
			}
			if err := newManager().Mkdir(cmd.Context(), ep, dir); err != nil {
				return err
			}
			store, _ := openHistory()
			defer closeHistory(store)
			logAction(store, ep.Name, "mkdir", dir, "")
			return nil
		},
	}
}

// newMvCmd creates the 'mv' command.
func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <remote-src> <remote-dest-dir>",
		Short: "Move a remote file or directory into another directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, err := resolveEndpoint()
			if err != nil {
				return err
			}
			if err := newManager().Move(cmd.Context(), ep, args[0], args[1]); err != nil {
				return err
			}
			store, _ := openHistory()
			defer closeHistory(store)
			logAction(store, ep.Name, "mv", args[0], "to "+args[1])
			return nil
		},
	}
}

// newCpCmd creates the 'cp' command.
func newCpCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "cp <remote-src> <remote-dest-dir>",
		Short: "Copy a remote file or directory within the endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, err := resolveEndpoint()
			if err != nil {
				return err
			}
			if err := newManager().Copy(cmd.Context(), ep, args[0], args[1], recursive); err != nil {
				return err
			}
			store, _ := openHistory()
			defer closeHistory(store)
			logAction(store, ep.Name, "cp", args[0], "to "+args[1])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Copy directories recursively")
	return cmd
}

// newDuCmd creates the 'du' command.
func newDuCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "du <remote-dir|@bookmark>",
		Short: "Show the total size of a remote directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, dir, err := resolvePath(args[0])
			if err != nil {
				return err
			}
			size, err := newManager().DirSize(cmd.Context(), ep, dir)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", humanize.IBytes(uint64(size)), dir)
			return nil
		},
	}
}

// newChecksumCmd creates the 'checksum' command.
func newChecksumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checksum <remote-file>",
		Short: "Print the md5 digest of a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, p, err := resolvePath(args[0])
			if err != nil {
				return err
			}
			sum, err := newManager().Checksum(cmd.Context(), ep, p)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", sum, p)
			return nil
		},
	}
}
