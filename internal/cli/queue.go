package cli

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/lab427/ferry/internal/transfer"
	"github.com/lab427/ferry/internal/transport"
)

// newUpCmd creates the 'up' command.
func newUpCmd() *cobra.Command {
	var remoteDir string
	var recursive bool

	cmd := &cobra.Command{
		Use:   "up <local-path>... --to <remote-dir|@bookmark>",
		Short: "Upload local files or directories",
		Long: `Queue one upload per argument and run the queue to completion.

Transfers run strictly one at a time, in order. Each transfer is gated
on a free-space preflight against the destination before any bytes move.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remoteDir == "" {
				return fmt.Errorf("--to is required")
			}
			ep, dest, err := resolvePath(remoteDir)
			if err != nil {
				return err
			}
			jobs := make([]jobSpec, 0, len(args))
			for _, src := range args {
				jobs = append(jobs, jobSpec{source: src, dest: dest, recursive: recursive})
			}
			return runQueue(cmd, ep, transport.DirectionUpload, jobs)
		},
	}

	cmd.Flags().StringVar(&remoteDir, "to", "", "Remote destination directory (or @bookmark)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Upload directories recursively")
	return cmd
}

// newDownCmd creates the 'down' command.
func newDownCmd() *cobra.Command {
	var localDir string
	var recursive bool

	cmd := &cobra.Command{
		Use:   "down <remote-path|@bookmark>... --to <local-dir>",
		Short: "Download remote files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if localDir == "" {
				return fmt.Errorf("--to is required")
			}
			var ep transport.Endpoint
			jobs := make([]jobSpec, 0, len(args))
			for _, arg := range args {
				argEp, src, err := resolvePath(arg)
				if err != nil {
					return err
				}
				if ep.Host != "" && argEp.Host != ep.Host {
					return fmt.Errorf("all sources must live on the same endpoint")
				}
				ep = argEp
				jobs = append(jobs, jobSpec{
					source:    src,
					dest:      path.Join(localDir, path.Base(src)),
					recursive: recursive,
				})
			}
			return runQueue(cmd, ep, transport.DirectionDownload, jobs)
		},
	}

	cmd.Flags().StringVar(&localDir, "to", "", "Local destination directory")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Download directories recursively")
	return cmd
}

type jobSpec struct {
	source    string
	dest      string
	recursive bool
}

// runQueue enqueues the jobs, drives the queue until every job is
// terminal, and reports per-job outcomes. The exit status is non-zero if
// any job failed.
func runQueue(cmd *cobra.Command, ep transport.Endpoint, direction transport.Direction, specs []jobSpec) error {
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

	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		job, err := q.Enqueue(direction, ep, spec.source, spec.dest, spec.recursive)
		if err != nil {
			return err
		}
		ids = append(ids, job.ID)
	}

	// Progress goes to stderr; stdout carries only the results.
	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(fmt.Sprintf("%s to %s", direction, ep.Name)),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	for {
		stats := q.Stats()
		done := stats.Succeeded + stats.Failed
		_ = bar.Set(done)
		if stats.Queued == 0 && stats.Running == 0 {
			break
		}
		select {
		case <-cmd.Context().Done():
			fmt.Fprintln(os.Stderr, "\ninterrupted; stopping after the current transfer")
			q.Stop()
			return cmd.Context().Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	_ = bar.Finish()

	failed := 0
	for _, id := range ids {
		job, ok := q.Job(id)
		if !ok {
			continue
		}
		switch job.Status {
		case transfer.StatusSucceeded:
			fmt.Printf("ok   %s\n", job.Source)
		case transfer.StatusFailed:
			failed++
			fmt.Printf("FAIL %s: %v\n", job.Source, job.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transfers failed", failed, len(ids))
	}
	return nil
}
