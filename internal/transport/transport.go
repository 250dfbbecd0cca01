package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lab427/ferry/internal/logging"
)

const (
	// connectTimeoutSec is passed to ssh -o ConnectTimeout for captured
	// commands so a dead host fails fast instead of hanging a worker.
	connectTimeoutSec = 5

	// DefaultRunTimeout bounds captured commands that did not specify one.
	DefaultRunTimeout = 30 * time.Second

	// sshConnectExit is the exit code ssh reserves for its own failures
	// (unreachable host, refused auth) as opposed to the remote command's.
	sshConnectExit = 255
)

// RunOptions control a single remote command invocation.
type RunOptions struct {
	// Capture collects stdout/stderr and bounds the command with Timeout.
	// Interactive invocations (editors, shells, live log follows) leave it
	// false and get a TTY with no timeout.
	Capture bool

	// Timeout applies only to captured commands. Zero means
	// DefaultRunTimeout.
	Timeout time.Duration
}

// Result is the outcome of a remote command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Ok reports whether the remote command exited zero.
func (r Result) Ok() bool { return r.ExitCode == 0 }

// Client executes remote commands and bulk copies against endpoints.
type Client struct {
	runner CommandRunner
	logger *logging.Logger
}

// NewClient creates a transport client using the system ssh/rsync binaries.
func NewClient(logger *logging.Logger) *Client {
	return &Client{runner: NewExecRunner(), logger: logger}
}

// NewClientWithRunner creates a client with a custom runner. Used in tests.
func NewClientWithRunner(runner CommandRunner, logger *logging.Logger) *Client {
	return &Client{runner: runner, logger: logger}
}

// Run executes command on the endpoint's host.
//
// Captured mode adds BatchMode so ssh never touches the TTY for password or
// host-key prompts, and returns *TimeoutError when the bound is exceeded.
// Interactive mode allocates a TTY, inherits stdio and has no timeout.
func (c *Client) Run(ctx context.Context, ep Endpoint, command string, opts RunOptions) (Result, error) {
	if err := ep.Validate(); err != nil {
		return Result{}, err
	}

	args := []string{}
	if opts.Capture {
		args = append(args,
			"-o", "BatchMode=yes",
			"-o", fmt.Sprintf("ConnectTimeout=%d", connectTimeoutSec),
		)
	} else {
		args = append(args, "-t")
	}
	if ep.Port > 0 && ep.Port != DefaultSSHPort {
		args = append(args, "-p", strconv.Itoa(ep.Port))
	}
	args = append(args, ep.SSHAddr(), command)

	runCtx := ctx
	timeout := opts.Timeout
	if opts.Capture {
		if timeout <= 0 {
			timeout = DefaultRunTimeout
		}
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c.logger.Debug().
		Str("endpoint", ep.Name).
		Str("command", command).
		Bool("capture", opts.Capture).
		Msg("ssh run")

	res, err := c.runner.Run(runCtx, "ssh", args, opts.Capture)
	if err != nil {
		if opts.Capture && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Result{}, &TimeoutError{Command: command, Timeout: timeout}
		}
		return Result{}, fmt.Errorf("ssh %s: %w", ep.SSHAddr(), err)
	}

	if res.ExitCode == sshConnectExit {
		return Result{}, &ConnectError{
			Endpoint: ep.Name,
			Addr:     ep.SSHAddr(),
			Detail:   strings.TrimSpace(res.Stderr),
		}
	}

	return Result{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}, nil
}

// FreeSpace reports the available bytes on the filesystem holding path.
// It is the preflight gate for transfers: jobs whose payload exceeds the
// destination's free space fail before any bytes move.
func (c *Client) FreeSpace(ctx context.Context, ep Endpoint, path string) (int64, error) {
	res, err := c.Run(ctx, ep, fmt.Sprintf("df -B1 %s", ShellQuote(path)), RunOptions{Capture: true})
	if err != nil {
		return 0, err
	}
	if !res.Ok() {
		return 0, &ExitError{Command: "df", ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}

	avail, err := parseDFAvail(res.Stdout)
	if err != nil {
		return 0, fmt.Errorf("df output for %s: %w", path, err)
	}
	return avail, nil
}

// parseDFAvail extracts the "Available" column from df -B1 output. df
// wraps a long device name onto its own line, leaving a data line with no
// device field; the layout is told apart by field count.
func parseDFAvail(out string) (int64, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 1; i-- {
		fields := strings.Fields(lines[i])
		var avail string
		switch {
		case len(fields) >= 6:
			avail = fields[3]
		case len(fields) == 5:
			// Wrapped layout: blocks, used, avail, use%, mount point.
			avail = fields[2]
		default:
			continue
		}
		n, err := strconv.ParseInt(avail, 10, 64)
		if err != nil {
			continue
		}
		return n, nil
	}
	return 0, errors.New("no parsable data line")
}

// ShellQuote wraps s in single quotes, escaping embedded quotes, so remote
// paths with spaces or shell metacharacters survive the remote shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
