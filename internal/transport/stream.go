package transport

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// RunStream starts command on the endpoint and returns its live stdout.
// Used by operations that walk huge remote trees (name search) so the first
// results arrive before the remote find finishes. Closing the reader tears
// the remote command down.
func (c *Client) RunStream(ctx context.Context, ep Endpoint, command string) (io.ReadCloser, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}

	args := []string{
		"-o", "BatchMode=yes",
		"-o", fmt.Sprintf("ConnectTimeout=%d", connectTimeoutSec),
	}
	if ep.Port > 0 && ep.Port != DefaultSSHPort {
		args = append(args, "-p", strconv.Itoa(ep.Port))
	}
	args = append(args, ep.SSHAddr(), command)

	cmd := exec.CommandContext(ctx, "ssh", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ssh %s: %w", ep.SSHAddr(), err)
	}

	c.logger.Debug().
		Str("endpoint", ep.Name).
		Str("command", command).
		Msg("ssh stream")

	return &processStream{ReadCloser: stdout, cmd: cmd}, nil
}

// processStream ties the pipe's lifetime to the child process: Close shuts
// the pipe and reaps the process, whatever state it is in.
type processStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *processStream) Close() error {
	s.ReadCloser.Close()
	// Exit status of an early-terminated find is noise; the consumer
	// already has the lines it wanted.
	_ = s.cmd.Wait()
	return nil
}
