package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lab427/ferry/internal/remotefs"
	"github.com/lab427/ferry/internal/transport"
)

// newShellCmd creates the 'shell' command for an interactive remote session.
func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell [dir|@bookmark]",
		Short: "Open an interactive shell on the endpoint",
		Long: `Open a login shell on the endpoint over ssh with a TTY. With no
argument the shell starts in the endpoint's base path; a directory or
bookmark argument starts it there instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, err := resolveEndpoint()
			if err != nil {
				return err
			}
			dir := ep.BasePath
			if len(args) > 0 {
				ep, dir, err = resolvePath(args[0])
				if err != nil {
					return err
				}
			}
			dir, err = remotefs.CleanRemotePath(dir)
			if err != nil {
				return err
			}

			command := fmt.Sprintf("cd %s && exec \"$SHELL\" -l", transport.ShellQuote(dir))
			res, err := newClient().Run(cmd.Context(), ep, command, transport.RunOptions{})
			if err != nil {
				return err
			}
			if !res.Ok() {
				return fmt.Errorf("remote shell exited with status %d", res.ExitCode)
			}
			return nil
		},
	}
}

// newEditCmd creates the 'edit' command, running $EDITOR on the endpoint.
func newEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <file|@bookmark>",
		Short: "Edit a remote file in the endpoint's $EDITOR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, p, err := resolvePath(args[0])
			if err != nil {
				return err
			}
			p, err = remotefs.CleanRemotePath(p)
			if err != nil {
				return err
			}

			command := fmt.Sprintf("\"${EDITOR:-vi}\" %s", transport.ShellQuote(p))
			res, err := newClient().Run(cmd.Context(), ep, command, transport.RunOptions{})
			if err != nil {
				return err
			}
			if !res.Ok() {
				return fmt.Errorf("editor exited with status %d", res.ExitCode)
			}
			return nil
		},
	}
}
